package settings

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/scoutpost/ScoutPost/app/repository"
	"github.com/scoutpost/ScoutPost/internal/pkg/cache"
	"github.com/scoutpost/ScoutPost/internal/pkg/env"
)

const cacheKeyPrefix = "setting:"

// DefaultTTL bounds how long a stale setting can be served after an
// out-of-band database edit.
const DefaultTTL = 5 * time.Minute

// Service reads operator settings through the cache abstraction with
// explicit invalidation on write. Values resolve settings-first with an
// environment fallback keyed by the uppercased setting name.
type Service struct {
	repo  repository.SettingRepository
	cache cache.Cache
	ttl   time.Duration
}

// NewService creates a settings service from an injected repository and cache.
func NewService(repo repository.SettingRepository, c cache.Cache, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{repo: repo, cache: c, ttl: ttl}
}

// Get returns the setting value for key, consulting the cache first.
func (s *Service) Get(ctx context.Context, key string) (string, error) {
	cacheKey := cacheKeyPrefix + key
	if val, err := s.cache.Get(ctx, cacheKey); err == nil {
		return val, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		log.Printf("settings cache read failed for %s: %v", key, err)
	}

	val, err := s.repo.GetValue(key)
	if err != nil {
		return "", err
	}
	if val != "" {
		if err := s.cache.Set(ctx, cacheKey, val, s.ttl); err != nil {
			log.Printf("settings cache write failed for %s: %v", key, err)
		}
	}
	return val, nil
}

// GetWithEnvFallback returns the setting value, falling back to the given
// environment variable when no row exists.
func (s *Service) GetWithEnvFallback(ctx context.Context, key, envKey string) string {
	val, err := s.Get(ctx, key)
	if err != nil {
		log.Printf("settings lookup failed for %s: %v", key, err)
	}
	if val != "" {
		return val
	}
	return env.GetEnv(envKey, "")
}

// Set writes the setting and invalidates its cache entry.
func (s *Service) Set(ctx context.Context, key, value string) error {
	if err := s.repo.SetValue(key, value); err != nil {
		return err
	}
	if err := s.cache.Delete(ctx, cacheKeyPrefix+key); err != nil {
		log.Printf("settings cache invalidation failed for %s: %v", key, err)
	}
	return nil
}
