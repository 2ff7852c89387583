package models

import "time"

// Billing provider constants used across billing-related models.
const (
	BillingProviderStripe = "stripe"
)

const (
	PaymentTypeSubscription = "subscription"
	PaymentTypeOneTime      = "one_time"
)

const (
	BillingIntervalMonth = "month"
	BillingIntervalYear  = "year"
	BillingIntervalNone  = "none"
)

// Subscription payment statuses mirror the provider's lifecycle; one-time
// purchases only ever use the two terminal statuses below.
const (
	PaymentStatusIncomplete        = "incomplete"
	PaymentStatusIncompleteExpired = "incomplete_expired"
	PaymentStatusTrialing          = "trialing"
	PaymentStatusActive            = "active"
	PaymentStatusPastDue           = "past_due"
	PaymentStatusCanceled          = "canceled"
	PaymentStatusUnpaid            = "unpaid"
	PaymentStatusPaused            = "paused"
	PaymentStatusCompleted         = "completed"
	PaymentStatusFailed            = "failed"
)

// Payment is the authoritative local record of a subscription or one-time
// purchase. Rows are never deleted; cancellation is a status transition.
// The unique indexes on subscription_id and session_id are the natural
// deduplication keys for webhook redelivery.
type Payment struct {
	ID                uint       `gorm:"primaryKey" json:"-"`
	PublicID          string     `gorm:"type:varchar(36);not null;uniqueIndex" json:"id"`
	UserID            uint       `gorm:"not null;index" json:"user_id"`
	CustomerID        string     `gorm:"type:varchar(191);not null;index" json:"customer_id"`
	Type              string     `gorm:"type:varchar(20);not null" json:"type"`
	PriceID           string     `gorm:"type:varchar(191);not null;index" json:"price_id"`
	SubscriptionID    *string    `gorm:"type:varchar(191);default:null;uniqueIndex:ux_payments_subscription_id" json:"subscription_id,omitempty"`
	SessionID         *string    `gorm:"type:varchar(191);default:null;uniqueIndex:ux_payments_session_id" json:"session_id,omitempty"`
	Status            string     `gorm:"type:varchar(32);not null;index" json:"status"`
	BillingInterval   string     `gorm:"type:varchar(16);not null;default:'none'" json:"billing_interval"`
	PeriodStart       *time.Time `gorm:"type:timestamp;default:null" json:"period_start,omitempty"`
	PeriodEnd         *time.Time `gorm:"type:timestamp;default:null" json:"period_end,omitempty"`
	CancelAtPeriodEnd bool       `gorm:"default:false" json:"cancel_at_period_end"`
	TrialStart        *time.Time `gorm:"type:timestamp;default:null" json:"trial_start,omitempty"`
	TrialEnd          *time.Time `gorm:"type:timestamp;default:null" json:"trial_end,omitempty"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsSubscription reports whether the record tracks a provider subscription.
func (p *Payment) IsSubscription() bool {
	return p.Type == PaymentTypeSubscription
}
