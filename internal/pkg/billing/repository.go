package billing

import (
	"time"

	"github.com/scoutpost/ScoutPost/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations used by the reconciliation engine. The
// upserts are the database-level serialization point for concurrent
// deliveries of the same subscription or session.
type Repository interface {
	FindPaymentBySubscriptionID(subscriptionID string) (*models.Payment, error)
	FindPaymentBySessionID(sessionID string) (*models.Payment, error)
	UpsertPaymentBySubscriptionID(p *models.Payment) error
	// CreatePaymentBySessionIDIfAbsent inserts a session-derived payment and
	// reports whether the row was created. Sessions are never updated after
	// creation.
	CreatePaymentBySessionIDIfAbsent(p *models.Payment) (bool, *models.Payment, error)
	ListPaymentsByUser(userID uint) ([]models.Payment, error)
	CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error)
	MarkWebhookProcessed(id uint, processingError string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) FindPaymentBySubscriptionID(subscriptionID string) (*models.Payment, error) {
	var p models.Payment
	err := r.db.Where("subscription_id = ?", subscriptionID).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) FindPaymentBySessionID(sessionID string) (*models.Payment, error) {
	var p models.Payment
	err := r.db.Where("session_id = ?", sessionID).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) UpsertPaymentBySubscriptionID(p *models.Payment) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "subscription_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"price_id",
			"status",
			"billing_interval",
			"period_start",
			"period_end",
			"cancel_at_period_end",
			"trial_start",
			"trial_end",
			"updated_at",
		}),
	}).Create(p).Error; err != nil {
		return err
	}

	// Ensure ID and PublicID reflect the stored row after a conflict.
	return r.db.Where("subscription_id = ?", p.SubscriptionID).First(p).Error
}

func (r *gormRepository) CreatePaymentBySessionIDIfAbsent(p *models.Payment) (bool, *models.Payment, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "session_id"},
		},
		DoNothing: true,
	}).Create(p)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.Payment
	if err := r.db.Where("session_id = ?", p.SessionID).First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) ListPaymentsByUser(userID uint) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&payments).Error
	return payments, err
}

func (r *gormRepository) CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.BillingWebhookEvent
	if err := r.db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.Model(&models.BillingWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}
