package middleware

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/nanbonsmr/quickwriteai-sub001/app/models"
	"github.com/nanbonsmr/quickwriteai-sub001/app/repository"
	"github.com/nanbonsmr/quickwriteai-sub001/internal/pkg/cache"
	"github.com/nanbonsmr/quickwriteai-sub001/internal/pkg/database"
	"github.com/nanbonsmr/quickwriteai-sub001/internal/pkg/usercontext"
)

// planCacheTTL bounds how long a cached plan can outlive its profile row if
// an invalidation is lost.
const planCacheTTL = 5 * time.Minute

// APIKeyAuthMiddleware authenticates requests carrying a user API key header.
func APIKeyAuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		apiKey := extractAPIKeyFromHeader(c)
		if apiKey == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing API key"})
		}

		db := database.GetDB()
		if db == nil {
			log.Print("api key middleware: database unavailable")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Database unavailable"})
		}

		hash := models.HashAPIKey(apiKey)
		repo := repository.GetGlobalFactory().GetProfileRepository()
		profile, err := repo.GetByAPIKeyHash(hash)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid API key"})
			}
			log.Printf("api key lookup failed: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "API key verification failed"})
		}

		// Refresh last-used timestamp best-effort.
		if err := repo.TouchAPIKeyUsage(profile.ID, time.Now()); err != nil {
			log.Printf("failed to update api key usage timestamp for user %s: %v", profile.UserID, err)
		}

		plan := effectivePlan(profile)
		userCtx := usercontext.UserContext{
			ProfileID:       profile.ID,
			UserID:          profile.UserID,
			Plan:            plan,
			WordsLimit:      profile.WordsLimit,
			WordsUsed:       profile.WordsUsed,
			IsAuthenticated: true,
		}
		c.Locals(usercontext.KeyUserContext, userCtx)
		c.Locals(usercontext.KeyUserID, profile.UserID)
		c.Locals(usercontext.KeyProfileID, profile.ID)
		c.Locals(usercontext.KeyPlan, plan)

		return c.Next()
	}
}

// effectivePlan resolves the user's plan through the cache with the profile
// row as fallback. The billing webhook deletes the key on every subscription
// write, so a hit is at most planCacheTTL behind a lost invalidation.
func effectivePlan(profile *models.UserProfile) string {
	key := cache.UserPlanKey(profile.UserID)
	if plan, err := cache.Get(key); err == nil && plan != "" {
		return plan
	}
	if err := cache.Set(key, profile.SubscriptionPlan, planCacheTTL); err != nil {
		log.Printf("failed to cache plan for user %s: %v", profile.UserID, err)
	}
	return profile.SubscriptionPlan
}

func extractAPIKeyFromHeader(c *fiber.Ctx) string {
	apiKey := strings.TrimSpace(c.Get("X-API-Key"))
	if apiKey != "" {
		return apiKey
	}
	auth := strings.TrimSpace(c.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
