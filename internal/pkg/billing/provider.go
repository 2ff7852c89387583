package billing

import "context"

// CheckoutParams describes an outbound subscription or lifetime checkout.
type CheckoutParams struct {
	CustomerID string
	UserID     uint
	Plan       *Plan
	SuccessURL string
	CancelURL  string
	// AllowPromotionCodes is passed through to the provider unchanged.
	AllowPromotionCodes bool
}

// CreditCheckoutParams describes an outbound one-time credit purchase.
type CreditCheckoutParams struct {
	CustomerID string
	UserID     uint
	Package    *CreditPackage
	SuccessURL string
	CancelURL  string
}

// Provider abstracts the external payment provider. The reconciliation
// engine only ever sees normalized events, so an alternate provider can be
// substituted without touching it.
type Provider interface {
	Name() string
	CreateCheckout(ctx context.Context, p CheckoutParams) (string, error)
	CreateCreditCheckout(ctx context.Context, p CreditCheckoutParams) (string, error)
	CreatePortal(ctx context.Context, customerID, returnURL string) (string, error)
	ListSubscriptions(ctx context.Context, customerID string) ([]SubscriptionEvent, error)
	FindCustomerByEmail(ctx context.Context, email string) (string, error)
	CreateCustomer(ctx context.Context, email, name string) (string, error)
	// VerifyWebhook authenticates the raw payload against the signature
	// header and returns the typed event. It must not touch storage.
	VerifyWebhook(payload []byte, signatureHeader string) (*Event, error)
}

// ErrCustomerNotFound is returned by FindCustomerByEmail when no provider
// customer matches the email.
var ErrCustomerNotFound = errSentinel("billing: customer not found")

// ErrInvalidSignature is returned by VerifyWebhook on authentication
// failure.
var ErrInvalidSignature = errSentinel("billing: invalid webhook signature")

type errSentinel string

func (e errSentinel) Error() string { return string(e) }
