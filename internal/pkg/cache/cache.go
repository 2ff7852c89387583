package cache

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/scoutpost/ScoutPost/internal/pkg/env"
)

// ErrCacheMiss is returned when a key is not present or has expired.
var ErrCacheMiss = errors.New("cache: key not found")

// Cache is the key/value contract used for TTL-bounded lookups (provider
// API keys, settings). Backed by Redis in deployments; the in-memory
// implementation exists for tests and single-instance fallback.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

var defaultCache Cache

// SetupCache initializes the process-wide cache from the environment.
func SetupCache() {
	host := env.GetEnv("CACHE_HOST", "localhost")
	port := env.GetEnv("CACHE_PORT", "6379")

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: "", // no password set
		DB:       0,  // use default DB
	})

	pong, err := client.Ping(context.Background()).Result()
	if err != nil {
		log.Printf("Warning: Could not connect to cache server, falling back to in-memory cache: %v", err)
		defaultCache = NewMemoryCache()
		return
	}
	log.Printf("Successfully connected to cache server: %s", pong)
	defaultCache = NewRedisCache(client)
}

// Default returns the process-wide cache instance.
func Default() Cache {
	if defaultCache == nil {
		SetupCache()
	}
	return defaultCache
}

type redisCache struct {
	client *redis.Client
}

// NewRedisCache wraps an existing Redis client in the Cache interface.
func NewRedisCache(client *redis.Client) Cache {
	return &redisCache{client: client}
}

func (c *redisCache) Get(ctx context.Context, key string) (string, error) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	return val, err
}

func (c *redisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *redisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}
