package billing

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/scoutpost/ScoutPost/app/models"
	"github.com/scoutpost/ScoutPost/app/repository"
	"github.com/scoutpost/ScoutPost/internal/pkg/credits"
)

// Notifier delivers a fire-and-forget message after a successful one-time
// payment. Failures are logged by the implementation and never propagate
// into the payment path.
type Notifier func(email, subject, body string)

// Service is the reconciliation engine: it consumes verified webhook events
// and drives the payment record store and the credit ledger. Processing is
// idempotent under redelivery; the durable dedup points are the unique keys
// on payments (subscription_id, session_id) and on ledger reference keys.
type Service struct {
	repo          Repository
	ledger        *credits.Service
	users         repository.UserRepository
	provider      Provider
	catalog       *Catalog
	grantsEnabled bool
	notifier      Notifier
}

// NewService creates a reconciliation engine from injected collaborators.
func NewService(repo Repository, ledger *credits.Service, users repository.UserRepository, provider Provider, catalog *Catalog, grantsEnabled bool) *Service {
	return &Service{
		repo:          repo,
		ledger:        ledger,
		users:         users,
		provider:      provider,
		catalog:       catalog,
		grantsEnabled: grantsEnabled,
	}
}

// NewServiceFromDB creates a reconciliation engine from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, provider Provider, catalog *Catalog, grantsEnabled bool) *Service {
	return NewService(
		NewRepository(db),
		credits.NewServiceFromDB(db),
		repository.NewUserRepository(db),
		provider,
		catalog,
		grantsEnabled,
	)
}

// SetNotifier installs the post-payment notification hook.
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

// Provider exposes the configured payment provider.
func (s *Service) Provider() Provider {
	return s.provider
}

// Catalog exposes the static plan catalog.
func (s *Service) Catalog() *Catalog {
	return s.catalog
}

// RecordWebhookEvent persists an authenticated webhook payload idempotently.
// The returned bool is false when the provider event ID was seen before.
func (s *Service) RecordWebhookEvent(ctx context.Context, ev *Event, payload []byte) (bool, *models.BillingWebhookEvent, error) {
	_ = ctx
	stored := &models.BillingWebhookEvent{
		Provider:        s.provider.Name(),
		ProviderEventID: ev.ID,
		EventType:       ev.ProviderType,
		PayloadJSON:     string(payload),
	}
	return s.repo.CreateWebhookEventIfNotExists(stored)
}

// MarkWebhookProcessed marks an event as processed and stores an optional error.
func (s *Service) MarkWebhookProcessed(ctx context.Context, webhookEventID uint, processingErr error) error {
	_ = ctx
	if webhookEventID == 0 {
		return errors.New("webhook_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.repo.MarkWebhookProcessed(webhookEventID, errMsg)
}

// ProcessDelivery runs the full ingest path for one verified event: record
// it for dedup, process it, and mark the outcome. Only deliveries that were
// already applied cleanly are answered as duplicates without reprocessing;
// a redelivery of an event whose previous attempt failed (or is still
// unmarked) runs ProcessEvent again, which is idempotent by natural keys.
// The returned bool reports whether the delivery was a redelivery.
func (s *Service) ProcessDelivery(ctx context.Context, ev *Event, payload []byte) (bool, error) {
	created, stored, err := s.RecordWebhookEvent(ctx, ev, payload)
	if err != nil {
		return false, err
	}
	if !created {
		if stored.ProcessedAt != nil && stored.ProcessingError == "" {
			return true, nil
		}
		log.Printf("billing: reprocessing event %s after incomplete attempt", ev.ID)
	}

	procErr := s.ProcessEvent(ctx, ev)
	if err := s.MarkWebhookProcessed(ctx, stored.ID, procErr); err != nil {
		log.Printf("billing: marking event %d processed failed: %v", stored.ID, err)
	}
	return !created, procErr
}

// ProcessEvent applies one verified event to local state. A nil return
// means the event is fully applied or safely skipped; a non-nil return
// means nothing durable happened and the provider should redeliver.
func (s *Service) ProcessEvent(ctx context.Context, ev *Event) error {
	switch ev.Type {
	case EventSubscriptionCreated:
		return s.handleSubscriptionCreated(ctx, ev.Subscription)
	case EventSubscriptionUpdated:
		return s.handleSubscriptionUpdated(ctx, ev.Subscription)
	case EventSubscriptionDeleted:
		return s.handleSubscriptionDeleted(ctx, ev.Subscription)
	case EventCheckoutCompleted:
		return s.handleCheckoutCompleted(ctx, ev.Session)
	case EventIgnored:
		log.Printf("billing: ignoring provider event type %s", ev.ProviderType)
		return nil
	default:
		log.Printf("billing: unhandled event type %s", ev.Type)
		return nil
	}
}

func (s *Service) handleSubscriptionCreated(ctx context.Context, ev *SubscriptionEvent) error {
	if ev == nil || ev.SubscriptionID == "" {
		log.Print("billing: subscription.created without subscription payload, skipping")
		return nil
	}

	if _, err := s.repo.FindPaymentBySubscriptionID(ev.SubscriptionID); err == nil {
		// Redelivery of an already-applied created event.
		log.Printf("billing: subscription %s already recorded, skipping", ev.SubscriptionID)
		return nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	userID, ok := userIDFromMetadata(ev.Metadata)
	if !ok {
		// Metadata can be dropped when a subscription is created outside our
		// checkout flow; the customer link is the secondary identity channel.
		userID, ok = s.userIDFromCustomer(ev.CustomerID)
		if !ok {
			log.Printf("billing: subscription %s carries no user_id metadata and customer %q is unlinked, skipping", ev.SubscriptionID, ev.CustomerID)
			return nil
		}
	}

	plan, err := s.catalog.PlanByPriceID(ev.PriceID)
	if err != nil {
		// Fail closed on unrecognized prices instead of guessing a plan.
		log.Printf("billing: subscription %s references unknown price %s, skipping", ev.SubscriptionID, ev.PriceID)
		return nil
	}

	subID := ev.SubscriptionID
	payment := &models.Payment{
		PublicID:          uuid.NewString(),
		UserID:            userID,
		CustomerID:        ev.CustomerID,
		Type:              models.PaymentTypeSubscription,
		PriceID:           ev.PriceID,
		SubscriptionID:    &subID,
		Status:            mapStatusOrIncomplete(ev.SubscriptionID, ev.Status),
		BillingInterval:   normalizeInterval(ev.Interval),
		PeriodStart:       ev.PeriodStart,
		PeriodEnd:         ev.PeriodEnd,
		CancelAtPeriodEnd: ev.CancelAtPeriodEnd,
		TrialStart:        ev.TrialStart,
		TrialEnd:          ev.TrialEnd,
	}
	if err := s.repo.UpsertPaymentBySubscriptionID(payment); err != nil {
		return err
	}

	if s.grantsEnabled && plan.Credits > 0 {
		created, _, err := s.ledger.Append(ctx, credits.AppendInput{
			UserID:       userID,
			Amount:       plan.Credits,
			Type:         models.CreditTxSubscriptionGrant,
			Description:  fmt.Sprintf("%s plan credits", plan.Name),
			PaymentID:    &payment.ID,
			ReferenceKey: subscriptionGrantKey(ev.SubscriptionID, ev.PeriodStart),
		})
		if err != nil {
			return err
		}
		if !created {
			log.Printf("billing: credits for subscription %s already granted", ev.SubscriptionID)
		}
	}
	return nil
}

func (s *Service) handleSubscriptionUpdated(ctx context.Context, ev *SubscriptionEvent) error {
	if ev == nil || ev.SubscriptionID == "" {
		log.Print("billing: subscription.updated without subscription payload, skipping")
		return nil
	}

	prev, err := s.repo.FindPaymentBySubscriptionID(ev.SubscriptionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// An update for a subscription we never recorded is not actionable
		// locally. This also covers updated-before-created delivery gaps.
		log.Printf("billing: update for unknown subscription %s, skipping", ev.SubscriptionID)
		return nil
	}
	if err != nil {
		return err
	}

	if prev.PeriodStart != nil && ev.PeriodStart != nil && ev.PeriodStart.Before(*prev.PeriodStart) {
		// Stale retransmission of an older billing period; the stored state
		// is newer and wins.
		log.Printf("billing: stale update for subscription %s (period start %v behind stored %v), skipping", ev.SubscriptionID, ev.PeriodStart, prev.PeriodStart)
		return nil
	}

	newStatus := mapStatusOrIncomplete(ev.SubscriptionID, ev.Status)
	renewal := isRenewal(prev, newStatus, ev.PeriodStart)

	updated := *prev
	updated.PriceID = ev.PriceID
	updated.Status = newStatus
	updated.BillingInterval = normalizeInterval(ev.Interval)
	updated.PeriodStart = ev.PeriodStart
	updated.PeriodEnd = ev.PeriodEnd
	updated.CancelAtPeriodEnd = ev.CancelAtPeriodEnd
	updated.TrialStart = ev.TrialStart
	updated.TrialEnd = ev.TrialEnd
	if err := s.repo.UpsertPaymentBySubscriptionID(&updated); err != nil {
		return err
	}

	if renewal && s.grantsEnabled {
		plan, err := s.catalog.PlanByPriceID(ev.PriceID)
		if err != nil {
			log.Printf("billing: renewal of subscription %s references unknown price %s, skipping grant", ev.SubscriptionID, ev.PriceID)
			return nil
		}
		if plan.Credits > 0 {
			created, _, err := s.ledger.Append(ctx, credits.AppendInput{
				UserID:       prev.UserID,
				Amount:       plan.Credits,
				Type:         models.CreditTxSubscriptionGrant,
				Description:  fmt.Sprintf("%s plan renewal credits", plan.Name),
				PaymentID:    &prev.ID,
				ReferenceKey: subscriptionGrantKey(ev.SubscriptionID, ev.PeriodStart),
			})
			if err != nil {
				return err
			}
			if !created {
				log.Printf("billing: renewal credits for subscription %s period already granted", ev.SubscriptionID)
			}
		}
	}
	return nil
}

func (s *Service) handleSubscriptionDeleted(ctx context.Context, ev *SubscriptionEvent) error {
	_ = ctx
	if ev == nil || ev.SubscriptionID == "" {
		log.Print("billing: subscription.deleted without subscription payload, skipping")
		return nil
	}

	prev, err := s.repo.FindPaymentBySubscriptionID(ev.SubscriptionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		log.Printf("billing: deletion of unknown subscription %s, skipping", ev.SubscriptionID)
		return nil
	}
	if err != nil {
		return err
	}

	// Cancellation is a status transition, never a row deletion.
	updated := *prev
	updated.Status = models.PaymentStatusCanceled
	updated.CancelAtPeriodEnd = false
	return s.repo.UpsertPaymentBySubscriptionID(&updated)
}

func (s *Service) handleCheckoutCompleted(ctx context.Context, ev *CheckoutSessionEvent) error {
	if ev == nil || ev.SessionID == "" {
		log.Print("billing: checkout completion without session payload, skipping")
		return nil
	}
	if ev.Mode == CheckoutModeSubscription {
		// Subscription checkouts are reconciled through subscription events,
		// which carry the authoritative period and status data.
		return nil
	}
	if !ev.Paid {
		log.Printf("billing: checkout session %s completed unpaid, skipping", ev.SessionID)
		return nil
	}

	userID, ok := userIDFromMetadata(ev.Metadata)
	if !ok {
		log.Printf("billing: checkout session %s carries no user_id metadata, skipping", ev.SessionID)
		return nil
	}
	priceID := ev.Metadata[MetaPriceID]
	if priceID == "" {
		log.Printf("billing: checkout session %s carries no price_id metadata, skipping", ev.SessionID)
		return nil
	}

	if _, err := s.repo.FindPaymentBySessionID(ev.SessionID); err == nil {
		// Duplicate delivery of an already-applied session.
		log.Printf("billing: checkout session %s already recorded, skipping", ev.SessionID)
		return nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	if packageID, ok := ev.Metadata[MetaPackageID]; ok && packageID != "" {
		return s.applyCreditPurchase(ctx, ev, userID, priceID, packageID)
	}
	// Fall back to the price table when the package metadata was dropped.
	if pkg, err := s.catalog.PackageByPriceID(priceID); err == nil {
		return s.applyCreditPurchase(ctx, ev, userID, priceID, pkg.ID)
	}
	return s.applyLifetimePurchase(ctx, ev, userID, priceID)
}

func (s *Service) applyCreditPurchase(ctx context.Context, ev *CheckoutSessionEvent, userID uint, priceID, packageID string) error {
	pkg, err := s.catalog.PackageByID(packageID)
	if err != nil {
		log.Printf("billing: checkout session %s references unknown credit package %s, skipping", ev.SessionID, packageID)
		return nil
	}

	created, stored, err := s.createOneTimePayment(ev, userID, priceID)
	if err != nil {
		return err
	}
	if !created {
		return nil
	}

	_, _, err = s.ledger.Append(ctx, credits.AppendInput{
		UserID:       userID,
		Amount:       pkg.Credits,
		Type:         models.CreditTxPurchasePackage,
		Description:  fmt.Sprintf("%s credit package", pkg.Name),
		PaymentID:    &stored.ID,
		ReferenceKey: "purchase:" + ev.SessionID,
		ExpireDays:   pkg.ExpireDays,
	})
	if err != nil {
		return err
	}

	s.notifyPaymentAsync(userID, fmt.Sprintf("Your %s is ready", pkg.Name),
		fmt.Sprintf("We added %d credits to your account.", pkg.Credits))
	return nil
}

func (s *Service) applyLifetimePurchase(ctx context.Context, ev *CheckoutSessionEvent, userID uint, priceID string) error {
	plan, err := s.catalog.PlanByPriceID(priceID)
	if err != nil {
		log.Printf("billing: checkout session %s references unknown price %s, skipping", ev.SessionID, priceID)
		return nil
	}
	if plan.Type != PlanTypeLifetime {
		log.Printf("billing: checkout session %s paid for non-lifetime plan %s in payment mode, skipping", ev.SessionID, plan.ID)
		return nil
	}

	created, stored, err := s.createOneTimePayment(ev, userID, priceID)
	if err != nil {
		return err
	}
	if !created {
		return nil
	}

	if s.grantsEnabled && plan.Credits > 0 {
		_, _, err = s.ledger.Append(ctx, credits.AppendInput{
			UserID:       userID,
			Amount:       plan.Credits,
			Type:         models.CreditTxLifetimeGrant,
			Description:  fmt.Sprintf("%s plan credits", plan.Name),
			PaymentID:    &stored.ID,
			ReferenceKey: "grant:session:" + ev.SessionID,
		})
		if err != nil {
			return err
		}
	}

	s.notifyPaymentAsync(userID, fmt.Sprintf("Welcome to %s", plan.Name),
		"Your purchase is complete and your account has been upgraded.")
	return nil
}

func (s *Service) createOneTimePayment(ev *CheckoutSessionEvent, userID uint, priceID string) (bool, *models.Payment, error) {
	sessionID := ev.SessionID
	payment := &models.Payment{
		PublicID:   uuid.NewString(),
		UserID:     userID,
		CustomerID: ev.CustomerID,
		Type:       models.PaymentTypeOneTime,
		PriceID:    priceID,
		SessionID:  &sessionID,
		Status:     models.PaymentStatusCompleted,
	}
	created, stored, err := s.repo.CreatePaymentBySessionIDIfAbsent(payment)
	if err != nil {
		return false, nil, err
	}
	if !created {
		log.Printf("billing: checkout session %s lost creation race, skipping", ev.SessionID)
	}
	return created, stored, nil
}

// ResyncSubscriptions pulls the provider's current view of a user's
// subscriptions and replays it through the normal reconciliation paths.
// Used to repair local state after missed webhook deliveries; grants stay
// idempotent because replays derive the same ledger reference keys.
func (s *Service) ResyncSubscriptions(ctx context.Context, userID uint) (int, error) {
	user, err := s.users.GetByID(userID)
	if err != nil {
		return 0, err
	}
	if user.ProviderCustomerID == "" {
		return 0, nil
	}

	subs, err := s.provider.ListSubscriptions(ctx, user.ProviderCustomerID)
	if err != nil {
		return 0, err
	}

	applied := 0
	for i := range subs {
		sub := subs[i]
		_, err := s.repo.FindPaymentBySubscriptionID(sub.SubscriptionID)
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			err = s.handleSubscriptionCreated(ctx, &sub)
		case err == nil:
			err = s.handleSubscriptionUpdated(ctx, &sub)
		}
		if err != nil {
			return applied, err
		}
		applied++
	}
	return applied, nil
}

// ListUserPayments returns the user's payment records, newest first.
func (s *Service) ListUserPayments(ctx context.Context, userID uint) ([]models.Payment, error) {
	_ = ctx
	if userID == 0 {
		return nil, errors.New("user_id is required")
	}
	return s.repo.ListPaymentsByUser(userID)
}

// UserEntitled reports whether the user currently holds product access: a
// subscription in an entitling status, or a completed lifetime purchase.
func (s *Service) UserEntitled(ctx context.Context, userID uint) (bool, error) {
	payments, err := s.ListUserPayments(ctx, userID)
	if err != nil {
		return false, err
	}
	for i := range payments {
		p := &payments[i]
		if p.IsSubscription() {
			if isEntitlingStatus(p.Status) {
				return true, nil
			}
			continue
		}
		if p.Status != models.PaymentStatusCompleted {
			continue
		}
		if plan, err := s.catalog.PlanByPriceID(p.PriceID); err == nil && plan.Type == PlanTypeLifetime {
			return true, nil
		}
	}
	return false, nil
}

func (s *Service) userIDFromCustomer(customerID string) (uint, bool) {
	if customerID == "" {
		return 0, false
	}
	user, err := s.users.GetByProviderCustomerID(customerID)
	if err != nil {
		return 0, false
	}
	return user.ID, true
}

func (s *Service) notifyPaymentAsync(userID uint, subject, body string) {
	if s.notifier == nil {
		return
	}
	user, err := s.users.GetByID(userID)
	if err != nil {
		log.Printf("billing: notification lookup for user %d failed: %v", userID, err)
		return
	}
	go s.notifier(user.Email, subject, body)
}

func mapStatusOrIncomplete(subscriptionID, providerStatus string) string {
	mapped, ok := MapProviderStatus(providerStatus)
	if !ok {
		log.Printf("billing: subscription %s has unknown provider status %q, recording as incomplete", subscriptionID, providerStatus)
		return models.PaymentStatusIncomplete
	}
	return mapped
}

func userIDFromMetadata(meta map[string]string) (uint, bool) {
	raw, ok := meta[MetaUserID]
	if !ok || raw == "" {
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// subscriptionGrantKey derives the stable dedup key for one grant cycle.
// Keyed on the provider subscription ID rather than the local row so that
// two racing inserts can never both grant.
func subscriptionGrantKey(subscriptionID string, periodStart *time.Time) string {
	if periodStart == nil {
		return "grant:sub:" + subscriptionID + ":initial"
	}
	return fmt.Sprintf("grant:sub:%s:%d", subscriptionID, periodStart.Unix())
}
