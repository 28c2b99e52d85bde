package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/marketly-hq/marketly/app/controllers"
	"github.com/marketly-hq/marketly/internal/pkg/middleware"
	"github.com/marketly-hq/marketly/internal/pkg/session"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// init session
	session.NewSessionStore()

	// Apply UserContext middleware globally as first middleware
	app.Use(middleware.UserContextMiddleware)

	h.registerPublicRoutes(app)
}

func (h HttpRouter) registerPublicRoutes(app *fiber.App) {
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"service": "marketly", "status": "ok"})
	})

	// Gateway return pages. PayU posts the browser back to surl/furl, so
	// both verbs are accepted.
	app.Get("/payment/success", controllers.HandlePaymentSuccess)
	app.Post("/payment/success", controllers.HandlePaymentSuccess)
	app.Get("/payment/failure", controllers.HandlePaymentFailure)
	app.Post("/payment/failure", controllers.HandlePaymentFailure)
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
