package constants

// API route paths
const (
	APIWebhookBillingPath = "/api/webhook/billing"

	APIBillingPlansPath          = "/billing/plans"
	APIBillingCheckoutPath       = "/billing/checkout"
	APIBillingCreditCheckoutPath = "/billing/credits/checkout"
	APIBillingPortalPath         = "/billing/portal"
	APIBillingPaymentsPath       = "/billing/payments"
	APIBillingSubscriptionPath   = "/billing/subscription"
	APICreditsBalancePath        = "/credits/balance"
	APICreditsHistoryPath        = "/credits/history"

	APIAdminSettingsPath      = "/admin/settings"
	APIAdminBillingResyncPath = "/admin/billing/resync"
)
