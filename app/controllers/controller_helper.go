package controllers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/marketly-hq/marketly/internal/pkg/database"
	"github.com/marketly-hq/marketly/internal/pkg/payments"
	"github.com/marketly-hq/marketly/internal/pkg/usercontext"
)

func isLoggedIn(c *fiber.Ctx) bool {
	var fromProtected bool
	if protectedValue := c.Locals(usercontext.KeyFromProtected); protectedValue != nil {
		fromProtected = protectedValue.(bool)
	}

	return fromProtected
}

// ExtractUsername gets the username from Locals (set by middleware)
func ExtractUsername(c *fiber.Ctx) string {
	// Get from Locals (set by authentication middleware)
	if userNameValue := c.Locals(usercontext.KeyUsername); userNameValue != nil {
		if userName, ok := userNameValue.(string); ok {
			return userName
		}
	}

	return ""
}

// paymentService builds a request-scoped payment service on the shared DB.
func paymentService() *payments.Service {
	return payments.NewServiceFromDB(database.GetDB(), payments.NewConfigFromEnv())
}

// GetClientIP determines the actual client IP address considering proxies.
func GetClientIP(c *fiber.Ctx) string {
	// Cloudflare provides the original client IP in this header
	if cfIP := strings.TrimSpace(c.Get("CF-Connecting-IP")); cfIP != "" {
		return cfIP
	}

	// X-Forwarded-For can contain a list of IPs - the first one is the original client IP
	if xff := c.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if len(parts) > 0 {
			if ip := strings.TrimSpace(parts[0]); ip != "" {
				return ip
			}
		}
	}

	return c.IP()
}
