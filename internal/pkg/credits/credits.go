package credits

import (
	"context"
	"errors"
	"time"

	"github.com/scoutpost/ScoutPost/app/models"
	"gorm.io/gorm"
)

// AppendInput describes a new ledger entry. A non-empty ReferenceKey makes
// the append idempotent: retrying the same grant after a crash or a webhook
// redelivery is a no-op.
type AppendInput struct {
	UserID       uint
	Amount       int64
	Type         string
	Description  string
	PaymentID    *uint
	ReferenceKey string
	ExpireDays   int
}

// Service is the append-only credit ledger. Balances are always derived
// from the transaction log, never stored as mutable state.
type Service struct {
	repo Repository
}

// NewService creates a ledger service from an injected repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// NewServiceFromDB creates a ledger service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(NewRepository(db))
}

// Append writes one ledger entry and returns it together with whether a new
// row was created (false means the reference key had already been applied).
func (s *Service) Append(ctx context.Context, in AppendInput) (bool, *models.CreditTransaction, error) {
	_ = ctx
	if in.UserID == 0 {
		return false, nil, errors.New("user_id is required")
	}
	if in.Amount == 0 {
		return false, nil, errors.New("amount must be non-zero")
	}
	if in.Type == "" {
		return false, nil, errors.New("transaction type is required")
	}

	tx := &models.CreditTransaction{
		UserID:      in.UserID,
		Amount:      in.Amount,
		Type:        in.Type,
		Description: in.Description,
		PaymentID:   in.PaymentID,
	}
	if in.ExpireDays > 0 {
		expireAt := time.Now().UTC().AddDate(0, 0, in.ExpireDays)
		tx.ExpireAt = &expireAt
	}

	if in.ReferenceKey == "" {
		if err := s.repo.Create(tx); err != nil {
			return false, nil, err
		}
		return true, tx, nil
	}

	key := in.ReferenceKey
	tx.ReferenceKey = &key
	return s.repo.CreateIfAbsent(tx)
}

// Balance returns the sum of non-expired transaction amounts for a user.
func (s *Service) Balance(ctx context.Context, userID uint) (int64, error) {
	_ = ctx
	if userID == 0 {
		return 0, errors.New("user_id is required")
	}
	return s.repo.SumActive(userID, time.Now().UTC())
}

// History returns the most recent ledger entries for a user, newest first.
func (s *Service) History(ctx context.Context, userID uint, limit int) ([]models.CreditTransaction, error) {
	_ = ctx
	if userID == 0 {
		return nil, errors.New("user_id is required")
	}
	return s.repo.ListByUser(userID, limit)
}

// ListExpiringSoon returns positive entries expiring within the given
// number of days, for user-facing warnings.
func (s *Service) ListExpiringSoon(ctx context.Context, userID uint, withinDays int) ([]models.CreditTransaction, error) {
	_ = ctx
	if userID == 0 {
		return nil, errors.New("user_id is required")
	}
	now := time.Now().UTC()
	return s.repo.ListExpiringBetween(userID, now, now.AddDate(0, 0, withinDays))
}
