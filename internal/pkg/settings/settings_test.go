package settings

import (
	"context"
	"testing"
	"time"

	"github.com/scoutpost/ScoutPost/app/models"
	"github.com/scoutpost/ScoutPost/internal/pkg/cache"
)

// stubSettingRepo counts reads so the tests can observe cache behavior.
type stubSettingRepo struct {
	values map[string]string
	reads  int
}

func (r *stubSettingRepo) GetValue(key string) (string, error) {
	r.reads++
	return r.values[key], nil
}

func (r *stubSettingRepo) SetValue(key, value string) error {
	r.values[key] = value
	return nil
}

func (r *stubSettingRepo) List() ([]models.Setting, error) {
	var out []models.Setting
	for k, v := range r.values {
		out = append(out, models.Setting{Key: k, Value: v})
	}
	return out, nil
}

func TestGetCachesRepositoryReads(t *testing.T) {
	t.Parallel()

	repo := &stubSettingRepo{values: map[string]string{"billing_api_key": "sk_test_1"}}
	svc := NewService(repo, cache.NewMemoryCache(), time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		val, err := svc.Get(ctx, "billing_api_key")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if val != "sk_test_1" {
			t.Fatalf("expected sk_test_1, got %q", val)
		}
	}

	if repo.reads != 1 {
		t.Fatalf("expected one repository read behind the cache, got %d", repo.reads)
	}
}

func TestSetInvalidatesCache(t *testing.T) {
	t.Parallel()

	repo := &stubSettingRepo{values: map[string]string{"billing_api_key": "sk_old"}}
	svc := NewService(repo, cache.NewMemoryCache(), time.Minute)
	ctx := context.Background()

	if val, _ := svc.Get(ctx, "billing_api_key"); val != "sk_old" {
		t.Fatalf("expected sk_old, got %q", val)
	}

	if err := svc.Set(ctx, "billing_api_key", "sk_new"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	val, err := svc.Get(ctx, "billing_api_key")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "sk_new" {
		t.Fatalf("expected rotated key immediately after Set, got %q", val)
	}
}

func TestGetWithEnvFallback(t *testing.T) {
	repo := &stubSettingRepo{values: map[string]string{}}
	svc := NewService(repo, cache.NewMemoryCache(), time.Minute)
	ctx := context.Background()

	t.Setenv("BILLING_TEST_FALLBACK", "from_env")

	if val := svc.GetWithEnvFallback(ctx, "unset_key", "BILLING_TEST_FALLBACK"); val != "from_env" {
		t.Fatalf("expected env fallback, got %q", val)
	}

	repo.values["unset_key"] = "from_db"
	if val := svc.GetWithEnvFallback(ctx, "unset_key", "BILLING_TEST_FALLBACK"); val != "from_db" {
		t.Fatalf("expected stored value to win over env, got %q", val)
	}
}
