package credits

import (
	"time"

	"github.com/scoutpost/ScoutPost/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations for the credit ledger.
type Repository interface {
	// CreateIfAbsent appends a transaction, deduplicated on its reference
	// key, and reports whether the row was created.
	CreateIfAbsent(tx *models.CreditTransaction) (bool, *models.CreditTransaction, error)
	Create(tx *models.CreditTransaction) error
	SumActive(userID uint, now time.Time) (int64, error)
	ListByUser(userID uint, limit int) ([]models.CreditTransaction, error)
	ListExpiringBetween(userID uint, from, to time.Time) ([]models.CreditTransaction, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a credit ledger repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) CreateIfAbsent(tx *models.CreditTransaction) (bool, *models.CreditTransaction, error) {
	res := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "reference_key"},
		},
		DoNothing: true,
	}).Create(tx)
	if res.Error != nil {
		return false, nil, res.Error
	}

	created := res.RowsAffected > 0
	var stored models.CreditTransaction
	if err := r.db.Where("reference_key = ?", tx.ReferenceKey).First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) Create(tx *models.CreditTransaction) error {
	return r.db.Create(tx).Error
}

func (r *gormRepository) SumActive(userID uint, now time.Time) (int64, error) {
	var total int64
	err := r.db.Model(&models.CreditTransaction{}).
		Where("user_id = ? AND (expire_at IS NULL OR expire_at > ?)", userID, now).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error
	return total, err
}

func (r *gormRepository) ListByUser(userID uint, limit int) ([]models.CreditTransaction, error) {
	var txs []models.CreditTransaction
	q := r.db.Where("user_id = ?", userID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&txs).Error
	return txs, err
}

func (r *gormRepository) ListExpiringBetween(userID uint, from, to time.Time) ([]models.CreditTransaction, error) {
	var txs []models.CreditTransaction
	err := r.db.
		Where("user_id = ? AND amount > 0 AND expire_at IS NOT NULL AND expire_at > ? AND expire_at <= ?", userID, from, to).
		Order("expire_at ASC").
		Find(&txs).Error
	return txs, err
}
