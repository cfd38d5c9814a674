package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/nanbonsmr/quickwriteai-sub001/internal/pkg/env"
)

// AdminTokenMiddleware guards provisioning endpoints with a shared token.
// With no token configured the endpoints are disabled entirely.
func AdminTokenMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		expected := strings.TrimSpace(env.GetEnv("ADMIN_API_TOKEN", ""))
		if expected == "" {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found"})
		}
		got := strings.TrimSpace(c.Get("X-Admin-Token"))
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid admin token"})
		}
		return c.Next()
	}
}
