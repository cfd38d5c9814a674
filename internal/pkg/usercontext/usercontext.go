package usercontext

import "github.com/gofiber/fiber/v2"

// UserContext represents the authenticated user for a request
type UserContext struct {
	ProfileID       uint   `json:"profile_id"`
	UserID          string `json:"user_id"`
	Plan            string `json:"plan"`
	WordsLimit      int    `json:"words_limit"`
	WordsUsed       int    `json:"words_used"`
	IsAuthenticated bool   `json:"is_authenticated"`
}

// GetUserContext retrieves the user context from fiber context
// Returns a default anonymous context if none is set
func GetUserContext(c *fiber.Ctx) UserContext {
	if ctx := c.Locals(KeyUserContext); ctx != nil {
		return ctx.(UserContext)
	}
	return UserContext{IsAuthenticated: false}
}

// IsAuthenticated checks if the current request carries a valid API key
func IsAuthenticated(c *fiber.Ctx) bool {
	return GetUserContext(c).IsAuthenticated
}

// GetUserID returns the current user's external ID, or empty string if anonymous
func GetUserID(c *fiber.Ctx) string {
	return GetUserContext(c).UserID
}

// GetPlan returns the current user's plan, or empty string if anonymous
func GetPlan(c *fiber.Ctx) string {
	return GetUserContext(c).Plan
}
