package controllers

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/nanbonsmr/quickwriteai-sub001/app/models"
	"github.com/nanbonsmr/quickwriteai-sub001/app/repository"
	"github.com/nanbonsmr/quickwriteai-sub001/internal/pkg/generation"
	"github.com/nanbonsmr/quickwriteai-sub001/internal/pkg/metrics/counter"
	"github.com/nanbonsmr/quickwriteai-sub001/internal/pkg/usercontext"
)

var validate = validator.New()

var (
	generatorOnce sync.Once
	generator     generation.Generator
)

// SetGenerator overrides the default content generator. Used by tests.
func SetGenerator(g generation.Generator) {
	generatorOnce.Do(func() {})
	generator = g
}

func getGenerator() generation.Generator {
	generatorOnce.Do(func() {
		if generator == nil {
			generator = generation.NewOpenAIClientFromEnv()
		}
	})
	return generator
}

// GenerateRequest is the payload for content generation calls.
type GenerateRequest struct {
	ContentType string `json:"content_type" validate:"required,oneof=blog_post product_description social_media email"`
	Prompt      string `json:"prompt" validate:"required,min=3,max=4000"`
	Tone        string `json:"tone" validate:"omitempty,max=64"`
	MaxWords    int    `json:"max_words" validate:"omitempty,min=1,max=10000"`
}

// HandleGenerate produces content for the authenticated user and bills the
// generated words against their plan quota.
func HandleGenerate(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsAuthenticated {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	var req GenerateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Request body must be valid JSON"})
	}
	if err := validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": err.Error()})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	// Buffered increments from requests since the last flush count against
	// the quota too, so a burst cannot overrun the limit.
	pending, err := counter.PendingWordsUsed(ctx, userCtx.UserID)
	if err != nil {
		log.Warnf("pending usage lookup failed for user %s: %v", userCtx.UserID, err)
		pending = 0
	}
	remaining := int64(userCtx.WordsLimit) - int64(userCtx.WordsUsed) - pending
	if remaining <= 0 {
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error":       "quota_exceeded",
			"message":     "Word limit reached for the current period",
			"plan":        userCtx.Plan,
			"words_limit": userCtx.WordsLimit,
		})
	}

	start := time.Now()
	genResp, err := getGenerator().Generate(ctx, &generation.Request{
		ContentType: req.ContentType,
		Prompt:      strings.TrimSpace(req.Prompt),
		Tone:        req.Tone,
		MaxWords:    req.MaxWords,
	})
	if err != nil {
		log.Errorf("generation failed for user %s: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "generation_failed", "message": "Content generation failed"})
	}
	durationMs := time.Since(start).Milliseconds()

	requestID := uuid.New().String()
	record := &models.GenerationRecord{
		RequestID:      requestID,
		UserID:         userCtx.UserID,
		ContentType:    req.ContentType,
		Model:          genResp.Model,
		WordsGenerated: genResp.Words,
		DurationMs:     durationMs,
	}
	if err := repository.GetGlobalFactory().GetGenerationRepository().Create(record); err != nil {
		log.Errorf("failed to persist generation record %s: %v", requestID, err)
	}
	if err := counter.AddWordsUsed(ctx, userCtx.UserID, genResp.Words); err != nil {
		log.Errorf("failed to buffer usage for user %s: %v", userCtx.UserID, err)
	}

	wordsRemaining := remaining - int64(genResp.Words)
	if wordsRemaining < 0 {
		wordsRemaining = 0
	}

	return c.JSON(fiber.Map{
		"request_id":      requestID,
		"content":         genResp.Text,
		"model":           genResp.Model,
		"words_generated": genResp.Words,
		"words_remaining": wordsRemaining,
		"duration_ms":     durationMs,
	})
}
