package billing

import (
	"fmt"

	"github.com/scoutpost/ScoutPost/app/models"
	"github.com/scoutpost/ScoutPost/internal/pkg/env"
)

const (
	PlanTypeSubscription = "subscription"
	PlanTypeLifetime     = "lifetime"
)

// Plan is a deploy-time catalog entry mapping a provider price to billing
// semantics. The catalog is read-only at runtime; an unrecognized price ID
// fails closed at the call sites.
type Plan struct {
	ID        string
	Name      string
	PriceID   string
	Type      string
	Interval  string
	TrialDays int
	// Credits granted per billing period (or once, for lifetime plans).
	Credits int64
}

// CreditPackage is a deploy-time catalog entry for one-time credit
// purchases.
type CreditPackage struct {
	ID         string
	Name       string
	PriceID    string
	Credits    int64
	ExpireDays int
}

// Catalog holds the static plan and credit-package tables.
type Catalog struct {
	plans    []Plan
	packages []CreditPackage
}

// NewCatalog builds a catalog from explicit tables.
func NewCatalog(plans []Plan, packages []CreditPackage) *Catalog {
	return &Catalog{plans: plans, packages: packages}
}

// NewCatalogFromEnv builds the deployment catalog. Provider price IDs come
// from the environment so staging and production can point at different
// price objects without a code change.
func NewCatalogFromEnv() *Catalog {
	plans := []Plan{
		{
			ID:       "scout",
			Name:     "Scout",
			PriceID:  env.GetEnv("BILLING_PRICE_SCOUT_MONTHLY", "price_scout_monthly"),
			Type:     PlanTypeSubscription,
			Interval: models.BillingIntervalMonth,
			Credits:  300,
		},
		{
			ID:        "pro",
			Name:      "Pro",
			PriceID:   env.GetEnv("BILLING_PRICE_PRO_MONTHLY", "price_pro_monthly"),
			Type:      PlanTypeSubscription,
			Interval:  models.BillingIntervalMonth,
			TrialDays: 7,
			Credits:   1500,
		},
		{
			ID:        "pro_yearly",
			Name:      "Pro (yearly)",
			PriceID:   env.GetEnv("BILLING_PRICE_PRO_YEARLY", "price_pro_yearly"),
			Type:      PlanTypeSubscription,
			Interval:  models.BillingIntervalYear,
			TrialDays: 7,
			Credits:   1500,
		},
		{
			ID:       "lifetime",
			Name:     "Lifetime",
			PriceID:  env.GetEnv("BILLING_PRICE_LIFETIME", "price_lifetime"),
			Type:     PlanTypeLifetime,
			Interval: models.BillingIntervalNone,
			Credits:  1500,
		},
	}
	packages := []CreditPackage{
		{
			ID:         "pack_s",
			Name:       "Starter pack",
			PriceID:    env.GetEnv("BILLING_PRICE_PACK_S", "price_pack_s"),
			Credits:    500,
			ExpireDays: 365,
		},
		{
			ID:         "pack_l",
			Name:       "Growth pack",
			PriceID:    env.GetEnv("BILLING_PRICE_PACK_L", "price_pack_l"),
			Credits:    3000,
			ExpireDays: 365,
		},
	}
	return NewCatalog(plans, packages)
}

// PlanByID resolves an internal plan identifier.
func (c *Catalog) PlanByID(id string) (*Plan, error) {
	for i := range c.plans {
		if c.plans[i].ID == id {
			return &c.plans[i], nil
		}
	}
	return nil, fmt.Errorf("unknown plan %q", id)
}

// PlanByPriceID resolves a provider price identifier to a plan.
func (c *Catalog) PlanByPriceID(priceID string) (*Plan, error) {
	for i := range c.plans {
		if c.plans[i].PriceID == priceID {
			return &c.plans[i], nil
		}
	}
	return nil, fmt.Errorf("unknown price %q", priceID)
}

// PackageByID resolves an internal credit-package identifier.
func (c *Catalog) PackageByID(id string) (*CreditPackage, error) {
	for i := range c.packages {
		if c.packages[i].ID == id {
			return &c.packages[i], nil
		}
	}
	return nil, fmt.Errorf("unknown credit package %q", id)
}

// PackageByPriceID resolves a provider price identifier to a credit package.
func (c *Catalog) PackageByPriceID(priceID string) (*CreditPackage, error) {
	for i := range c.packages {
		if c.packages[i].PriceID == priceID {
			return &c.packages[i], nil
		}
	}
	return nil, fmt.Errorf("unknown package price %q", priceID)
}

// Plans returns the plan table for listing endpoints.
func (c *Catalog) Plans() []Plan {
	return c.plans
}

// Packages returns the credit-package table for listing endpoints.
func (c *Catalog) Packages() []CreditPackage {
	return c.packages
}
