package billing

import (
	"context"
	"errors"
)

// CreateCheckoutSession builds a provider checkout for a plan and returns
// the redirect URL. No local persistence happens here; the payment record
// is created only when the provider confirms the checkout via webhook.
func (s *Service) CreateCheckoutSession(ctx context.Context, userID uint, planID, successURL, cancelURL string) (string, error) {
	if userID == 0 {
		return "", errors.New("user_id is required")
	}
	plan, err := s.catalog.PlanByID(planID)
	if err != nil {
		return "", err
	}
	customerID, err := s.ResolveOrCreateCustomer(ctx, userID)
	if err != nil {
		return "", err
	}
	return s.provider.CreateCheckout(ctx, CheckoutParams{
		CustomerID:          customerID,
		UserID:              userID,
		Plan:                plan,
		SuccessURL:          successURL,
		CancelURL:           cancelURL,
		AllowPromotionCodes: true,
	})
}

// CreateCreditCheckoutSession builds a one-time checkout for a credit
// package and returns the redirect URL.
func (s *Service) CreateCreditCheckoutSession(ctx context.Context, userID uint, packageID, successURL, cancelURL string) (string, error) {
	if userID == 0 {
		return "", errors.New("user_id is required")
	}
	pkg, err := s.catalog.PackageByID(packageID)
	if err != nil {
		return "", err
	}
	customerID, err := s.ResolveOrCreateCustomer(ctx, userID)
	if err != nil {
		return "", err
	}
	return s.provider.CreateCreditCheckout(ctx, CreditCheckoutParams{
		CustomerID: customerID,
		UserID:     userID,
		Package:    pkg,
		SuccessURL: successURL,
		CancelURL:  cancelURL,
	})
}

// CreatePortalSession builds a provider self-service portal session for an
// already-linked customer.
func (s *Service) CreatePortalSession(ctx context.Context, userID uint, returnURL string) (string, error) {
	if userID == 0 {
		return "", errors.New("user_id is required")
	}
	user, err := s.users.GetByID(userID)
	if err != nil {
		return "", err
	}
	if user.ProviderCustomerID == "" {
		return "", errors.New("user has no billing customer")
	}
	return s.provider.CreatePortal(ctx, user.ProviderCustomerID, returnURL)
}
