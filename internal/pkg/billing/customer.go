package billing

import (
	"context"
	"errors"
	"log"
)

// ResolveOrCreateCustomer maps a local user to a provider customer,
// creating the provider customer on first checkout. A missing local link to
// an existing provider customer (e.g. after a user-table restore) is
// self-healed here.
func (s *Service) ResolveOrCreateCustomer(ctx context.Context, userID uint) (string, error) {
	user, err := s.users.GetByID(userID)
	if err != nil {
		return "", err
	}
	if user.ProviderCustomerID != "" {
		return user.ProviderCustomerID, nil
	}

	customerID, err := s.provider.FindCustomerByEmail(ctx, user.Email)
	if err != nil && !errors.Is(err, ErrCustomerNotFound) {
		return "", err
	}
	if errors.Is(err, ErrCustomerNotFound) {
		customerID, err = s.provider.CreateCustomer(ctx, user.Email, user.Name)
		if err != nil {
			return "", err
		}
	} else {
		log.Printf("billing: relinking user %d to existing provider customer %s", userID, customerID)
	}

	user.ProviderCustomerID = customerID
	if err := s.users.Update(user); err != nil {
		return "", err
	}
	return customerID, nil
}
