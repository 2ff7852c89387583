package billing

import "time"

// EventType is the normalized, provider-agnostic event discriminator.
type EventType string

const (
	EventSubscriptionCreated EventType = "subscription.created"
	EventSubscriptionUpdated EventType = "subscription.updated"
	EventSubscriptionDeleted EventType = "subscription.deleted"
	EventCheckoutCompleted   EventType = "checkout.completed"
	// EventIgnored marks provider event types this system does not act on.
	EventIgnored EventType = "ignored"
)

// Metadata keys embedded by the checkout session builder. These are the
// only channel through which webhook events carry the local user identity,
// so their presence is validated at the trust boundary.
const (
	MetaUserID    = "user_id"
	MetaPlanID    = "plan_id"
	MetaPackageID = "package_id"
	MetaPriceID   = "price_id"
)

// Event is the verified, typed envelope handed from webhook ingress to the
// reconciliation engine.
type Event struct {
	ID           string
	Type         EventType
	ProviderType string
	Subscription *SubscriptionEvent
	Session      *CheckoutSessionEvent
}

// SubscriptionEvent carries the subscription fields the engine reconciles.
type SubscriptionEvent struct {
	SubscriptionID    string
	CustomerID        string
	PriceID           string
	Status            string
	Interval          string
	PeriodStart       *time.Time
	PeriodEnd         *time.Time
	TrialStart        *time.Time
	TrialEnd          *time.Time
	CancelAtPeriodEnd bool
	Metadata          map[string]string
}

// CheckoutSessionEvent carries the completed-checkout fields the engine
// reconciles.
type CheckoutSessionEvent struct {
	SessionID      string
	CustomerID     string
	SubscriptionID string
	Mode           string
	Paid           bool
	Metadata       map[string]string
}

// Checkout session modes as reported by the provider.
const (
	CheckoutModeSubscription = "subscription"
	CheckoutModePayment      = "payment"
)
