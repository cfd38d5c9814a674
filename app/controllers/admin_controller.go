package controllers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/nanbonsmr/quickwriteai-sub001/app/repository"
)

// HandleAdminIssueAPIKey provisions (or rotates) the API key for a user.
// The raw key is returned exactly once; only its hash is stored.
func HandleAdminIssueAPIKey(c *fiber.Ctx) error {
	userID := strings.TrimSpace(c.Params("user_id"))
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "user_id is required"})
	}

	repo := repository.GetGlobalFactory().GetProfileRepository()
	profile, err := repo.GetOrCreateByUserID(userID)
	if err != nil {
		log.Errorf("failed to load profile for user %s: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load profile"})
	}

	rawKey, err := profile.IssueAPIKey()
	if err != nil {
		log.Errorf("failed to generate api key for user %s: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to generate API key"})
	}
	if err := repo.Update(profile); err != nil {
		log.Errorf("failed to persist api key for user %s: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to store API key"})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"user_id":        profile.UserID,
		"api_key":        rawKey,
		"api_key_prefix": profile.APIKeyPrefix,
	})
}

// HandleAdminRevokeAPIKey revokes a user's API key without deleting the profile.
func HandleAdminRevokeAPIKey(c *fiber.Ctx) error {
	userID := strings.TrimSpace(c.Params("user_id"))
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "user_id is required"})
	}

	repo := repository.GetGlobalFactory().GetProfileRepository()
	profile, err := repo.GetByUserID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Profile not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load profile"})
	}

	profile.RevokeAPIKey()
	if err := repo.Update(profile); err != nil {
		log.Errorf("failed to revoke api key for user %s: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to revoke API key"})
	}

	return c.JSON(fiber.Map{"user_id": profile.UserID, "revoked": true})
}
