package billing

import (
	"strings"
	"time"

	"github.com/scoutpost/ScoutPost/app/models"
)

// providerStatusMap is the closed mapping from provider subscription
// statuses to local payment statuses. Anything outside this table is
// treated as unknown so new provider states surface in logs instead of
// silently flowing into the state machine.
var providerStatusMap = map[string]string{
	"incomplete":         models.PaymentStatusIncomplete,
	"incomplete_expired": models.PaymentStatusIncompleteExpired,
	"trialing":           models.PaymentStatusTrialing,
	"active":             models.PaymentStatusActive,
	"past_due":           models.PaymentStatusPastDue,
	"canceled":           models.PaymentStatusCanceled,
	"unpaid":             models.PaymentStatusUnpaid,
	"paused":             models.PaymentStatusPaused,
}

// MapProviderStatus maps a provider subscription status onto the local
// enum. The second return reports whether the status was recognized.
func MapProviderStatus(status string) (string, bool) {
	mapped, ok := providerStatusMap[strings.ToLower(strings.TrimSpace(status))]
	return mapped, ok
}

func normalizeInterval(interval string) string {
	switch strings.ToLower(strings.TrimSpace(interval)) {
	case models.BillingIntervalMonth, models.BillingIntervalYear:
		return strings.ToLower(strings.TrimSpace(interval))
	default:
		return models.BillingIntervalNone
	}
}

// isEntitlingStatus reports whether a subscription in this status still
// grants access to the product.
func isEntitlingStatus(status string) bool {
	switch status {
	case models.PaymentStatusActive, models.PaymentStatusTrialing, models.PaymentStatusPastDue:
		return true
	default:
		return false
	}
}

// isRenewal decides whether an update event represents a billing-cycle
// rollover: the subscription must be active after the update, the previous
// record must have had a period start, and the period start must have
// moved. A status-only change (e.g. a cancel_at_period_end flip) never
// qualifies, so benign metadata updates cannot double-grant credits.
func isRenewal(prev *models.Payment, newStatus string, newPeriodStart *time.Time) bool {
	if newStatus != models.PaymentStatusActive {
		return false
	}
	if prev == nil || prev.PeriodStart == nil || newPeriodStart == nil {
		return false
	}
	return !newPeriodStart.Equal(*prev.PeriodStart)
}
