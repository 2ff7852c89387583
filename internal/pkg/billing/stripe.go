package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/stripe/stripe-go/v78"
	portalsession "github.com/stripe/stripe-go/v78/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v78/checkout/session"
	"github.com/stripe/stripe-go/v78/customer"
	"github.com/stripe/stripe-go/v78/subscription"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/scoutpost/ScoutPost/app/models"
)

// StripeProvider implements Provider on the Stripe API.
type StripeProvider struct {
	webhookSecret string
}

// NewStripeProvider configures the Stripe client. The API key is global in
// the Stripe SDK, so the last configured key wins; callers construct one
// provider per process.
func NewStripeProvider(apiKey, webhookSecret string) *StripeProvider {
	stripe.Key = apiKey
	return &StripeProvider{webhookSecret: webhookSecret}
}

func (s *StripeProvider) Name() string {
	return models.BillingProviderStripe
}

// CreateCheckout builds a provider-hosted checkout for a plan and returns
// the redirect URL. The metadata embedded here is the only channel through
// which the webhook path later learns the local user identity.
func (s *StripeProvider) CreateCheckout(ctx context.Context, p CheckoutParams) (string, error) {
	if p.Plan == nil {
		return "", fmt.Errorf("plan is required")
	}

	mode := stripe.CheckoutSessionModeSubscription
	if p.Plan.Type == PlanTypeLifetime {
		mode = stripe.CheckoutSessionModePayment
	}

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(mode)),
		Customer:   stripe.String(p.CustomerID),
		SuccessURL: stripe.String(p.SuccessURL),
		CancelURL:  stripe.String(p.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(p.Plan.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
	}
	if p.AllowPromotionCodes {
		params.AllowPromotionCodes = stripe.Bool(true)
	}
	params.AddMetadata(MetaUserID, strconv.FormatUint(uint64(p.UserID), 10))
	params.AddMetadata(MetaPlanID, p.Plan.ID)
	params.AddMetadata(MetaPriceID, p.Plan.PriceID)

	if mode == stripe.CheckoutSessionModeSubscription {
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{
				MetaUserID:  strconv.FormatUint(uint64(p.UserID), 10),
				MetaPlanID:  p.Plan.ID,
				MetaPriceID: p.Plan.PriceID,
			},
		}
		if p.Plan.TrialDays > 0 {
			params.SubscriptionData.TrialPeriodDays = stripe.Int64(int64(p.Plan.TrialDays))
		}
	}

	params.Context = ctx
	sess, err := checkoutsession.New(params)
	if err != nil {
		return "", err
	}
	return sess.URL, nil
}

// CreateCreditCheckout builds a one-time checkout for a credit package.
func (s *StripeProvider) CreateCreditCheckout(ctx context.Context, p CreditCheckoutParams) (string, error) {
	if p.Package == nil {
		return "", fmt.Errorf("credit package is required")
	}

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		Customer:   stripe.String(p.CustomerID),
		SuccessURL: stripe.String(p.SuccessURL),
		CancelURL:  stripe.String(p.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(p.Package.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
	}
	params.AddMetadata(MetaUserID, strconv.FormatUint(uint64(p.UserID), 10))
	params.AddMetadata(MetaPackageID, p.Package.ID)
	params.AddMetadata(MetaPriceID, p.Package.PriceID)

	params.Context = ctx
	sess, err := checkoutsession.New(params)
	if err != nil {
		return "", err
	}
	return sess.URL, nil
}

// CreatePortal creates a billing-portal session and returns its URL.
func (s *StripeProvider) CreatePortal(ctx context.Context, customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx
	sess, err := portalsession.New(params)
	if err != nil {
		return "", err
	}
	return sess.URL, nil
}

// ListSubscriptions returns the customer's subscriptions in normalized form.
func (s *StripeProvider) ListSubscriptions(ctx context.Context, customerID string) ([]SubscriptionEvent, error) {
	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String("all"),
	}
	params.Context = ctx

	var out []SubscriptionEvent
	iter := subscription.List(params)
	for iter.Next() {
		out = append(out, normalizeSubscription(iter.Subscription()))
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// FindCustomerByEmail returns the first provider customer matching the
// email, or ErrCustomerNotFound.
func (s *StripeProvider) FindCustomerByEmail(ctx context.Context, email string) (string, error) {
	params := &stripe.CustomerListParams{Email: stripe.String(email)}
	params.Context = ctx
	params.Limit = stripe.Int64(1)

	iter := customer.List(params)
	for iter.Next() {
		return iter.Customer().ID, nil
	}
	if err := iter.Err(); err != nil {
		return "", err
	}
	return "", ErrCustomerNotFound
}

// CreateCustomer creates a provider customer and returns its identifier.
func (s *StripeProvider) CreateCustomer(ctx context.Context, email, name string) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
	}
	if name != "" {
		params.Name = stripe.String(name)
	}
	params.Context = ctx
	c, err := customer.New(params)
	if err != nil {
		return "", err
	}
	return c.ID, nil
}

// VerifyWebhook authenticates the payload with Stripe's timestamp-tolerant
// HMAC scheme and returns the typed event. No storage is touched here, so
// a forged payload can never mutate state.
func (s *StripeProvider) VerifyWebhook(payload []byte, signatureHeader string) (*Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, s.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	out := &Event{ID: event.ID, ProviderType: string(event.Type)}

	switch string(event.Type) {
	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("parse subscription payload: %w", err)
		}
		normalized := normalizeSubscription(&sub)
		out.Subscription = &normalized
		switch string(event.Type) {
		case "customer.subscription.created":
			out.Type = EventSubscriptionCreated
		case "customer.subscription.updated":
			out.Type = EventSubscriptionUpdated
		default:
			out.Type = EventSubscriptionDeleted
		}

	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return nil, fmt.Errorf("parse checkout session payload: %w", err)
		}
		se := &CheckoutSessionEvent{
			SessionID: sess.ID,
			Mode:      string(sess.Mode),
			Paid:      sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
			Metadata:  sess.Metadata,
		}
		if sess.Customer != nil {
			se.CustomerID = sess.Customer.ID
		}
		if sess.Subscription != nil {
			se.SubscriptionID = sess.Subscription.ID
		}
		out.Type = EventCheckoutCompleted
		out.Session = se

	default:
		out.Type = EventIgnored
	}

	return out, nil
}

func normalizeSubscription(sub *stripe.Subscription) SubscriptionEvent {
	ev := SubscriptionEvent{
		SubscriptionID:    sub.ID,
		Status:            string(sub.Status),
		PeriodStart:       unixToTime(sub.CurrentPeriodStart),
		PeriodEnd:         unixToTime(sub.CurrentPeriodEnd),
		TrialStart:        unixToTime(sub.TrialStart),
		TrialEnd:          unixToTime(sub.TrialEnd),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		Metadata:          sub.Metadata,
	}
	if sub.Customer != nil {
		ev.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		price := sub.Items.Data[0].Price
		ev.PriceID = price.ID
		if price.Recurring != nil {
			ev.Interval = string(price.Recurring.Interval)
		}
	}
	return ev
}

func unixToTime(ts int64) *time.Time {
	if ts <= 0 {
		return nil
	}
	t := time.Unix(ts, 0).UTC()
	return &t
}
