package apiv1

import (
	"github.com/gofiber/fiber/v2"

	// Delegate to existing controllers to keep behavior consistent
	"github.com/marketly-hq/marketly/app/controllers"
	"github.com/marketly-hq/marketly/internal/pkg/middleware"
)

// Pong is the ping endpoint response body.
type Pong struct {
	Ping string `json:"ping"`
}

// APIServer implements the versioned API surface
type APIServer struct{}

// NewAPIServer creates a new API server instance
func NewAPIServer() *APIServer {
	return &APIServer{}
}

// RegisterHandlers mounts the v1 routes on the given router group.
func RegisterHandlers(r fiber.Router, s *APIServer) {
	r.Get("/ping", s.GetPing)
	r.Get("/plans", s.GetPlans)
	r.Get("/payments", middleware.RequireAPISessionAuth, s.GetPayments)
	r.Get("/subscription", middleware.RequireAPISessionAuth, s.GetSubscription)
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	response := Pong{
		Ping: "pong",
	}

	return c.Status(fiber.StatusOK).JSON(response)
}

// GetPlans returns the purchasable plan catalog.
func (s *APIServer) GetPlans(c *fiber.Ctx) error {
	return controllers.HandleListPlans(c)
}

// GetPayments returns payment history for the authenticated user.
// Security is enforced via session middleware attached in the router.
func (s *APIServer) GetPayments(c *fiber.Ctx) error {
	return controllers.HandleListPayments(c)
}

// GetSubscription returns the authenticated user's current subscription.
func (s *APIServer) GetSubscription(c *fiber.Ctx) error {
	return controllers.HandleGetSubscription(c)
}
