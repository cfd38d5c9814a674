package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/nanbonsmr/quickwriteai-sub001/app/controllers"
	"github.com/nanbonsmr/quickwriteai-sub001/internal/pkg/billing"
	"github.com/nanbonsmr/quickwriteai-sub001/internal/pkg/database"
	"github.com/nanbonsmr/quickwriteai-sub001/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api")
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group("/v1")

	// Provider webhooks are not rate limited: the provider retries failed
	// deliveries and a limiter would turn bursts into retry storms. CORS
	// answers the provider's preflight checks with 204.
	webhookController := controllers.NewBillingWebhookController(
		controllers.BillingWebhookConfigFromEnv(),
		billing.NewServiceFromDB(database.GetDB()),
	)
	billingGroup := v1.Group("/billing", cors.New(cors.Config{
		AllowMethods: "POST, OPTIONS",
		AllowHeaders: "Content-Type, webhook-id, webhook-timestamp, webhook-signature",
	}))
	billingGroup.Post("/webhook", webhookController.HandleWebhook)

	// Authenticated API surface, rate limited per client.
	authed := v1.Group("/", limiter.New(), middleware.APIKeyAuthMiddleware())
	authed.Post("/generate", controllers.HandleGenerate)
	authed.Get("/user/subscription", controllers.HandleGetUserSubscription)

	// Provisioning endpoints for the account backend.
	admin := v1.Group("/admin", middleware.AdminTokenMiddleware())
	admin.Post("/users/:user_id/apikey", controllers.HandleAdminIssueAPIKey)
	admin.Delete("/users/:user_id/apikey", controllers.HandleAdminRevokeAPIKey)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
