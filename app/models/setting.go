package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// Setting is an operator-editable key/value pair. Billing provider
// configuration (API keys, webhook secrets) resolves settings-first with an
// environment fallback, so deployments can rotate keys without a restart.
type Setting struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Key       string    `gorm:"column:setting_key;size:255;not null;uniqueIndex" json:"key" validate:"required,min=1,max=255"`
	Value     string    `gorm:"type:text" json:"value"`
	Type      string    `gorm:"size:50;not null;default:'string'" json:"type" validate:"required"` // string, boolean, integer
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *Setting) Validate() error {
	v := validator.New()
	return v.Struct(s)
}

// Well-known setting keys consulted by the billing subsystem.
const (
	SettingBillingAPIKey        = "billing_api_key"
	SettingBillingWebhookSecret = "billing_webhook_secret"
	SettingBillingPortalReturn  = "billing_portal_return_url"
)
