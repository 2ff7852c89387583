package controllers

import (
	"time"

	"github.com/scoutpost/ScoutPost/app/repository"
	"github.com/scoutpost/ScoutPost/internal/pkg/cache"
	"github.com/scoutpost/ScoutPost/internal/pkg/settings"
)

// formatTimePtr renders a nullable timestamp as RFC3339 UTC, or nil.
func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

// getSettingsService builds the cached settings reader used by controllers.
func getSettingsService() *settings.Service {
	return settings.NewService(
		repository.GetGlobalFactory().GetSettingRepository(),
		cache.Default(),
		settings.DefaultTTL,
	)
}
