package controllers

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/scoutpost/ScoutPost/app/models"
	"github.com/scoutpost/ScoutPost/internal/pkg/billing"
	"github.com/scoutpost/ScoutPost/internal/pkg/credits"
	"github.com/scoutpost/ScoutPost/internal/pkg/database"
	"github.com/scoutpost/ScoutPost/internal/pkg/env"
	"github.com/scoutpost/ScoutPost/internal/pkg/mail"
	"github.com/scoutpost/ScoutPost/internal/pkg/usercontext"
)

const requestTimeout = 15 * time.Second

// getBillingService wires the reconciliation engine for a request. Provider
// credentials resolve settings-first so new keys take effect without a
// restart; the environment is the bootstrap fallback.
func getBillingService(ctx context.Context) *billing.Service {
	cfg := getSettingsService()
	apiKey := cfg.GetWithEnvFallback(ctx, models.SettingBillingAPIKey, "STRIPE_API_KEY")
	webhookSecret := cfg.GetWithEnvFallback(ctx, models.SettingBillingWebhookSecret, "STRIPE_WEBHOOK_SECRET")

	provider := billing.NewStripeProvider(apiKey, webhookSecret)
	grantsEnabled := env.GetEnv("BILLING_CREDITS_ENABLED", "true") != "false"

	svc := billing.NewServiceFromDB(database.GetDB(), provider, billing.NewCatalogFromEnv(), grantsEnabled)
	svc.SetNotifier(mail.SendPaymentNotification)
	return svc
}

// HandleBillingWebhook ingests provider webhook deliveries. The signature
// is verified before anything touches the database, so forged payloads can
// never mutate state. Non-2xx responses trigger provider-side retry.
func HandleBillingWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := strings.TrimSpace(c.Get("Stripe-Signature"))

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	svc := getBillingService(ctx)

	event, err := svc.Provider().VerifyWebhook(rawBody, signature)
	if err != nil {
		if errors.Is(err, billing.ErrInvalidSignature) {
			log.Printf("billing webhook rejected: %v", err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_signature"})
		}
		log.Printf("billing webhook payload rejected: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}

	duplicate, err := svc.ProcessDelivery(ctx, event, rawBody)
	if err != nil {
		// Non-2xx keeps the event in the provider's retry queue; the dedup
		// row marks the failure so the redelivery is reprocessed.
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "event_processing_failed"})
	}
	if duplicate {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}

// HandleListPlans returns the static plan and credit-package catalog.
func HandleListPlans(c *fiber.Ctx) error {
	catalog := billing.NewCatalogFromEnv()

	plans := make([]fiber.Map, 0)
	for _, p := range catalog.Plans() {
		plans = append(plans, fiber.Map{
			"id":         p.ID,
			"name":       p.Name,
			"type":       p.Type,
			"interval":   p.Interval,
			"trial_days": p.TrialDays,
			"credits":    p.Credits,
		})
	}
	packages := make([]fiber.Map, 0)
	for _, p := range catalog.Packages() {
		packages = append(packages, fiber.Map{
			"id":          p.ID,
			"name":        p.Name,
			"credits":     p.Credits,
			"expire_days": p.ExpireDays,
		})
	}

	return c.JSON(fiber.Map{"plans": plans, "packages": packages})
}

type checkoutRequest struct {
	PlanID     string `json:"plan_id"`
	PackageID  string `json:"package_id"`
	SuccessURL string `json:"success_url"`
	CancelURL  string `json:"cancel_url"`
}

// HandleCreateCheckout starts a subscription or lifetime checkout and
// returns the provider redirect URL.
func HandleCreateCheckout(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	var req checkoutRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request"})
	}
	if req.PlanID == "" || req.SuccessURL == "" || req.CancelURL == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "plan_id, success_url and cancel_url are required"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	svc := getBillingService(ctx)
	url, err := svc.CreateCheckoutSession(ctx, userCtx.UserID, req.PlanID, req.SuccessURL, req.CancelURL)
	if err != nil {
		log.Printf("checkout creation failed for user %d: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "checkout_failed"})
	}
	return c.JSON(fiber.Map{"url": url})
}

// HandleCreateCreditCheckout starts a one-time credit package checkout.
func HandleCreateCreditCheckout(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	var req checkoutRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request"})
	}
	if req.PackageID == "" || req.SuccessURL == "" || req.CancelURL == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "package_id, success_url and cancel_url are required"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	svc := getBillingService(ctx)
	url, err := svc.CreateCreditCheckoutSession(ctx, userCtx.UserID, req.PackageID, req.SuccessURL, req.CancelURL)
	if err != nil {
		log.Printf("credit checkout creation failed for user %d: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "checkout_failed"})
	}
	return c.JSON(fiber.Map{"url": url})
}

type portalRequest struct {
	ReturnURL string `json:"return_url"`
}

// HandleCreatePortal starts a provider self-service portal session.
func HandleCreatePortal(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	var req portalRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	returnURL := req.ReturnURL
	if returnURL == "" {
		returnURL = getSettingsService().GetWithEnvFallback(ctx, models.SettingBillingPortalReturn, "BILLING_PORTAL_RETURN_URL")
	}
	if returnURL == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "return_url is required"})
	}

	svc := getBillingService(ctx)
	url, err := svc.CreatePortalSession(ctx, userCtx.UserID, returnURL)
	if err != nil {
		log.Printf("portal creation failed for user %d: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "portal_failed"})
	}
	return c.JSON(fiber.Map{"url": url})
}

type resyncRequest struct {
	UserID uint `json:"user_id"`
}

// HandleAdminResyncSubscriptions replays the provider's current view of a
// user's subscriptions through the reconciliation engine. Admin-only repair
// path for missed webhook deliveries.
func HandleAdminResyncSubscriptions(c *fiber.Ctx) error {
	var req resyncRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request"})
	}
	if req.UserID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "user_id is required"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	svc := getBillingService(ctx)
	applied, err := svc.ResyncSubscriptions(ctx, req.UserID)
	if err != nil {
		log.Printf("subscription resync failed for user %d: %v", req.UserID, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "resync_failed", "applied": applied})
	}
	return c.JSON(fiber.Map{"ok": true, "applied": applied})
}

// HandleGetSubscription returns the user's most recent subscription record,
// or null when they never subscribed.
func HandleGetSubscription(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	svc := getBillingService(ctx)
	payments, err := svc.ListUserPayments(ctx, userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "payments_lookup_failed"})
	}
	entitled, err := svc.UserEntitled(ctx, userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "payments_lookup_failed"})
	}

	for _, p := range payments {
		if !p.IsSubscription() {
			continue
		}
		return c.JSON(fiber.Map{
			"entitled": entitled,
			"subscription": fiber.Map{
				"public_id":            p.PublicID,
				"status":               p.Status,
				"price_id":             p.PriceID,
				"billing_interval":     p.BillingInterval,
				"period_start":         formatTimePtr(p.PeriodStart),
				"period_end":           formatTimePtr(p.PeriodEnd),
				"trial_start":          formatTimePtr(p.TrialStart),
				"trial_end":            formatTimePtr(p.TrialEnd),
				"cancel_at_period_end": p.CancelAtPeriodEnd,
			},
		})
	}
	return c.JSON(fiber.Map{"entitled": entitled, "subscription": nil})
}

// HandleListPayments returns the user's payment records, newest first.
func HandleListPayments(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	svc := getBillingService(ctx)
	payments, err := svc.ListUserPayments(ctx, userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "payments_lookup_failed"})
	}
	return c.JSON(fiber.Map{"payments": payments})
}

// HandleGetCreditBalance returns the derived balance plus soon-expiring grants.
func HandleGetCreditBalance(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	ledger := credits.NewServiceFromDB(database.GetDB())
	balance, err := ledger.Balance(ctx, userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "balance_lookup_failed"})
	}

	expiring, err := ledger.ListExpiringSoon(ctx, userCtx.UserID, 30)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "balance_lookup_failed"})
	}
	expiringOut := make([]fiber.Map, 0, len(expiring))
	for _, tx := range expiring {
		expiringOut = append(expiringOut, fiber.Map{
			"amount":    tx.Amount,
			"expire_at": formatTimePtr(tx.ExpireAt),
		})
	}

	return c.JSON(fiber.Map{"balance": balance, "expiring_soon": expiringOut})
}

// HandleGetCreditHistory returns recent ledger entries, newest first.
func HandleGetCreditHistory(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	ledger := credits.NewServiceFromDB(database.GetDB())
	history, err := ledger.History(ctx, userCtx.UserID, 100)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "history_lookup_failed"})
	}
	return c.JSON(fiber.Map{"transactions": history})
}
