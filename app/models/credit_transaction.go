package models

import "time"

const (
	CreditTxSubscriptionGrant = "subscription_grant"
	CreditTxLifetimeGrant     = "lifetime_grant"
	CreditTxPurchasePackage   = "purchase_package"
	CreditTxConsumption       = "consumption"
	CreditTxAdjustment        = "adjustment"
)

// CreditTransaction is an append-only ledger entry. Rows are immutable once
// written; the balance is always derived by summing non-expired amounts.
// ReferenceKey carries the stable dedup key for grants tied to a payment so
// a retried grant is absorbed by the unique index instead of double-crediting.
type CreditTransaction struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	UserID       uint       `gorm:"not null;index:idx_credit_transactions_user_created,priority:1" json:"user_id"`
	Amount       int64      `gorm:"not null" json:"amount"`
	Type         string     `gorm:"type:varchar(32);not null;index" json:"type"`
	Description  string     `gorm:"type:varchar(255);not null;default:''" json:"description"`
	PaymentID    *uint      `gorm:"default:null;index" json:"payment_id,omitempty"`
	ReferenceKey *string    `gorm:"type:varchar(191);default:null;uniqueIndex:ux_credit_transactions_reference" json:"-"`
	ExpireAt     *time.Time `gorm:"type:timestamp;default:null;index" json:"expire_at,omitempty"`
	CreatedAt    time.Time  `gorm:"autoCreateTime;index:idx_credit_transactions_user_created,priority:2" json:"created_at"`
}

// Expired reports whether the entry no longer counts toward the balance.
func (t *CreditTransaction) Expired(now time.Time) bool {
	return t.ExpireAt != nil && !t.ExpireAt.After(now)
}
