package credits

import (
	"context"
	"testing"
	"time"

	"github.com/scoutpost/ScoutPost/app/models"
)

// memRepo is an in-memory ledger repository with reference-key dedup,
// mirroring the unique index the real schema enforces.
type memRepo struct {
	nextID uint
	rows   []models.CreditTransaction
	byRef  map[string]models.CreditTransaction
}

func newMemRepo() *memRepo {
	return &memRepo{byRef: make(map[string]models.CreditTransaction)}
}

func (r *memRepo) CreateIfAbsent(tx *models.CreditTransaction) (bool, *models.CreditTransaction, error) {
	if tx.ReferenceKey != nil {
		if existing, ok := r.byRef[*tx.ReferenceKey]; ok {
			cp := existing
			return false, &cp, nil
		}
	}
	if err := r.Create(tx); err != nil {
		return false, nil, err
	}
	cp := *tx
	return true, &cp, nil
}

func (r *memRepo) Create(tx *models.CreditTransaction) error {
	r.nextID++
	tx.ID = r.nextID
	tx.CreatedAt = time.Now().UTC()
	r.rows = append(r.rows, *tx)
	if tx.ReferenceKey != nil {
		r.byRef[*tx.ReferenceKey] = *tx
	}
	return nil
}

func (r *memRepo) SumActive(userID uint, now time.Time) (int64, error) {
	var total int64
	for _, tx := range r.rows {
		if tx.UserID != userID {
			continue
		}
		if tx.ExpireAt != nil && !tx.ExpireAt.After(now) {
			continue
		}
		total += tx.Amount
	}
	return total, nil
}

func (r *memRepo) ListByUser(userID uint, limit int) ([]models.CreditTransaction, error) {
	var out []models.CreditTransaction
	for i := len(r.rows) - 1; i >= 0; i-- {
		if r.rows[i].UserID == userID {
			out = append(out, r.rows[i])
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memRepo) ListExpiringBetween(userID uint, from, to time.Time) ([]models.CreditTransaction, error) {
	var out []models.CreditTransaction
	for _, tx := range r.rows {
		if tx.UserID != userID || tx.Amount <= 0 || tx.ExpireAt == nil {
			continue
		}
		if tx.ExpireAt.After(from) && !tx.ExpireAt.After(to) {
			out = append(out, tx)
		}
	}
	return out, nil
}

func TestAppendValidation(t *testing.T) {
	t.Parallel()

	svc := NewService(newMemRepo())
	ctx := context.Background()

	if _, _, err := svc.Append(ctx, AppendInput{Amount: 10, Type: models.CreditTxAdjustment}); err == nil {
		t.Fatal("expected error for missing user id")
	}
	if _, _, err := svc.Append(ctx, AppendInput{UserID: 1, Type: models.CreditTxAdjustment}); err == nil {
		t.Fatal("expected error for zero amount")
	}
	if _, _, err := svc.Append(ctx, AppendInput{UserID: 1, Amount: 10}); err == nil {
		t.Fatal("expected error for missing type")
	}
}

func TestBalanceDerivedFromLedger(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()
	svc := NewService(repo)
	ctx := context.Background()

	if _, _, err := svc.Append(ctx, AppendInput{UserID: 1, Amount: 100, Type: models.CreditTxSubscriptionGrant}); err != nil {
		t.Fatalf("grant: %v", err)
	}
	// 50 credits already past their expiry.
	expired := time.Now().UTC().Add(-time.Hour)
	if err := repo.Create(&models.CreditTransaction{UserID: 1, Amount: 50, Type: models.CreditTxPurchasePackage, ExpireAt: &expired}); err != nil {
		t.Fatalf("expired grant: %v", err)
	}
	if _, _, err := svc.Append(ctx, AppendInput{UserID: 1, Amount: -30, Type: models.CreditTxConsumption}); err != nil {
		t.Fatalf("consumption: %v", err)
	}

	balance, err := svc.Balance(ctx, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if balance != 70 {
		t.Fatalf("expected balance 70, got %d", balance)
	}
}

func TestAppendWithReferenceKeyIsIdempotent(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()
	svc := NewService(repo)
	ctx := context.Background()

	in := AppendInput{
		UserID:       1,
		Amount:       300,
		Type:         models.CreditTxSubscriptionGrant,
		ReferenceKey: "grant:sub:sub_1:1767225600",
	}

	created, first, err := svc.Append(ctx, in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Fatal("expected first append to create")
	}

	created, second, err := svc.Append(ctx, in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created {
		t.Fatal("expected retried append to be absorbed")
	}
	if second.ID != first.ID {
		t.Fatalf("expected the original row back, got id %d", second.ID)
	}

	balance, _ := svc.Balance(ctx, 1)
	if balance != 300 {
		t.Fatalf("expected a single grant of 300, got %d", balance)
	}
}

func TestAppendExpireDaysSetsExpiry(t *testing.T) {
	t.Parallel()

	svc := NewService(newMemRepo())
	ctx := context.Background()

	_, tx, err := svc.Append(ctx, AppendInput{
		UserID:     1,
		Amount:     500,
		Type:       models.CreditTxPurchasePackage,
		ExpireDays: 365,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tx.ExpireAt == nil {
		t.Fatal("expected expiry to be set")
	}
	want := time.Now().UTC().AddDate(0, 0, 365)
	if diff := tx.ExpireAt.Sub(want); diff < -time.Minute || diff > time.Minute {
		t.Fatalf("expected expiry near %v, got %v", want, tx.ExpireAt)
	}
}

func TestListExpiringSoon(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()
	svc := NewService(repo)
	ctx := context.Background()

	soon := time.Now().UTC().AddDate(0, 0, 10)
	far := time.Now().UTC().AddDate(0, 0, 90)
	repo.Create(&models.CreditTransaction{UserID: 1, Amount: 500, Type: models.CreditTxPurchasePackage, ExpireAt: &soon})
	repo.Create(&models.CreditTransaction{UserID: 1, Amount: 300, Type: models.CreditTxPurchasePackage, ExpireAt: &far})
	repo.Create(&models.CreditTransaction{UserID: 1, Amount: 100, Type: models.CreditTxSubscriptionGrant})

	expiring, err := svc.ListExpiringSoon(ctx, 1, 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(expiring) != 1 {
		t.Fatalf("expected one entry expiring within 30 days, got %d", len(expiring))
	}
	if expiring[0].Amount != 500 {
		t.Fatalf("expected the 500-credit entry, got %d", expiring[0].Amount)
	}
}

func TestHistoryNewestFirstWithLimit(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()
	svc := NewService(repo)
	ctx := context.Background()

	for i := int64(1); i <= 5; i++ {
		if _, _, err := svc.Append(ctx, AppendInput{UserID: 1, Amount: i, Type: models.CreditTxAdjustment}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	history, err := svc.History(ctx, 1, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(history))
	}
	if history[0].Amount != 5 {
		t.Fatalf("expected newest entry first, got amount %d", history[0].Amount)
	}
}
