package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/scoutpost/ScoutPost/app/controllers"
	"github.com/scoutpost/ScoutPost/internal/pkg/constants"
	"github.com/scoutpost/ScoutPost/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	// Webhook ingress stays outside the rate limiter: the provider retries
	// on non-2xx and a burst of redeliveries must not be throttled into
	// further retries. Authentication is the payload signature itself.
	app.Post(constants.APIWebhookBillingPath, controllers.HandleBillingWebhook)

	api := app.Group("/api", limiter.New())
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group("/v1", middleware.APIKeyAuthMiddleware())

	v1.Get(constants.APIBillingPlansPath, controllers.HandleListPlans)
	v1.Post(constants.APIBillingCheckoutPath, controllers.HandleCreateCheckout)
	v1.Post(constants.APIBillingCreditCheckoutPath, controllers.HandleCreateCreditCheckout)
	v1.Post(constants.APIBillingPortalPath, controllers.HandleCreatePortal)
	v1.Get(constants.APIBillingSubscriptionPath, controllers.HandleGetSubscription)
	v1.Get(constants.APIBillingPaymentsPath, controllers.HandleListPayments)
	v1.Get(constants.APICreditsBalancePath, controllers.HandleGetCreditBalance)
	v1.Get(constants.APICreditsHistoryPath, controllers.HandleGetCreditHistory)

	admin := v1.Group("", middleware.RequireAdminMiddleware())
	admin.Get(constants.APIAdminSettingsPath, controllers.HandleAdminListSettings)
	admin.Put(constants.APIAdminSettingsPath, controllers.HandleAdminSetSetting)
	admin.Post(constants.APIAdminBillingResyncPath, controllers.HandleAdminResyncSubscriptions)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
