package controllers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/nanbonsmr/quickwriteai-sub001/app/repository"
	"github.com/nanbonsmr/quickwriteai-sub001/internal/pkg/metrics/counter"
	"github.com/nanbonsmr/quickwriteai-sub001/internal/pkg/usercontext"
)

// HandleGetUserSubscription returns subscription and quota state for the
// authenticated user.
func HandleGetUserSubscription(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsAuthenticated {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	repo := repository.GetGlobalFactory().GetProfileRepository()
	profile, err := repo.GetByUserID(userCtx.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Profile not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load profile"})
	}

	wordsUsed := int64(profile.WordsUsed)
	if pending, err := counter.PendingWordsUsed(c.Context(), profile.UserID); err == nil {
		wordsUsed += pending
	} else {
		log.Warnf("pending usage lookup failed for user %s: %v", profile.UserID, err)
	}
	wordsRemaining := int64(profile.WordsLimit) - wordsUsed
	if wordsRemaining < 0 {
		wordsRemaining = 0
	}

	return c.JSON(fiber.Map{
		"user_id":             profile.UserID,
		"plan":                profile.SubscriptionPlan,
		"subscription_active": profile.SubscriptionActive(time.Now()),
		"words_limit":         profile.WordsLimit,
		"words_used":          wordsUsed,
		"words_remaining":     wordsRemaining,
		"subscription_start":  formatTimePtr(profile.SubscriptionStartDate),
		"subscription_end":    formatTimePtr(profile.SubscriptionEndDate),
	})
}
