package controllers

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/scoutpost/ScoutPost/app/models"
	"github.com/scoutpost/ScoutPost/app/repository"
	"github.com/scoutpost/ScoutPost/internal/pkg/usercontext"
)

// Secret-bearing settings are masked in list responses.
var secretSettingKeys = map[string]bool{
	models.SettingBillingAPIKey:        true,
	models.SettingBillingWebhookSecret: true,
}

func maskSecret(value string) string {
	if len(value) <= 4 {
		return "****"
	}
	return "****" + value[len(value)-4:]
}

// HandleAdminListSettings returns all operator settings, masking secrets.
func HandleAdminListSettings(c *fiber.Ctx) error {
	settings, err := repository.GetGlobalFactory().GetSettingRepository().List()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "settings_lookup_failed"})
	}

	out := make([]fiber.Map, 0, len(settings))
	for _, s := range settings {
		value := s.Value
		if secretSettingKeys[s.Key] && value != "" {
			value = maskSecret(value)
		}
		out = append(out, fiber.Map{
			"key":        s.Key,
			"value":      value,
			"type":       s.Type,
			"updated_at": s.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	return c.JSON(fiber.Map{"settings": out})
}

type settingUpdateRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// HandleAdminSetSetting upserts a setting and invalidates its cache entry.
func HandleAdminSetSetting(c *fiber.Ctx) error {
	var req settingUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request"})
	}
	req.Key = strings.TrimSpace(req.Key)
	if req.Key == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "key is required"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := getSettingsService().Set(ctx, req.Key, req.Value); err != nil {
		log.Printf("admin setting update failed for %s: %v", req.Key, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "setting_update_failed"})
	}

	userCtx := usercontext.GetUserContext(c)
	log.Printf("setting %s updated by admin user %d", req.Key, userCtx.UserID)

	return c.JSON(fiber.Map{"ok": true})
}
