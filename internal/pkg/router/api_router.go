package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/marketly-hq/marketly/app/controllers"
	apiv1 "github.com/marketly-hq/marketly/internal/api/v1"
	"github.com/marketly-hq/marketly/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	// The webhook endpoint is registered outside the limited group: gateway
	// redeliveries must never be rate limited into missed payments.
	app.Post("/api/payment/webhook", controllers.HandlePaymentWebhook)

	api := app.Group("/api", limiter.New())
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// Auth
	api.Post("/auth/register", controllers.HandleRegister)
	api.Post("/auth/login", controllers.HandleLogin)
	api.Post("/auth/logout", controllers.HandleLogout)
	api.Get("/me", middleware.RequireAPISessionAuth, controllers.HandleMe)

	// Plan catalog is public; everything money-moving needs a session.
	api.Get("/plans", controllers.HandleListPlans)
	api.Post("/checkout/payu", middleware.RequireAPISessionAuth, controllers.HandleCheckoutPayU)
	api.Post("/checkout/cashfree", middleware.RequireAPISessionAuth, controllers.HandleCheckoutCashfree)
	api.Get("/payments", middleware.RequireAPISessionAuth, controllers.HandleListPayments)
	api.Get("/subscription", middleware.RequireAPISessionAuth, controllers.HandleGetSubscription)

	// Admin console (payments slice)
	admin := api.Group("/admin", middleware.RequireAPIAdmin)
	admin.Get("/payments", controllers.HandleAdminListPayments)
	admin.Get("/payments/stats", controllers.HandleAdminPaymentStats)
	admin.Post("/payments/reconcile", controllers.HandleAdminReconcileNow)

	// API v1 routes
	v1 := api.Group("/v1")
	apiServer := apiv1.NewAPIServer()
	apiv1.RegisterHandlers(v1, apiServer)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
