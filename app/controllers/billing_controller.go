package controllers

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/nanbonsmr/quickwriteai-sub001/app/models"
	"github.com/nanbonsmr/quickwriteai-sub001/internal/pkg/billing"
	"github.com/nanbonsmr/quickwriteai-sub001/internal/pkg/cache"
	"github.com/nanbonsmr/quickwriteai-sub001/internal/pkg/env"
)

const defaultWebhookToleranceSeconds = 300

// BillingWebhookConfig is snapshotted from the environment at construction so
// handlers never read process state per request and tests can inject doubles.
type BillingWebhookConfig struct {
	Secret          string
	Tolerance       time.Duration
	AllowUnverified bool
}

// BillingWebhookConfigFromEnv reads the webhook settings once.
func BillingWebhookConfigFromEnv() BillingWebhookConfig {
	return BillingWebhookConfig{
		Secret:          env.GetEnv("DODO_WEBHOOK_SECRET", ""),
		Tolerance:       webhookToleranceFromEnv(),
		AllowUnverified: strings.EqualFold(strings.TrimSpace(env.GetEnv("BILLING_WEBHOOK_ALLOW_UNVERIFIED", "false")), "true"),
	}
}

// BillingWebhookController ingests payment provider callbacks and reconciles
// the affected user's subscription.
type BillingWebhookController struct {
	cfg BillingWebhookConfig
	svc *billing.Service
	now func() time.Time
}

func NewBillingWebhookController(cfg BillingWebhookConfig, svc *billing.Service) *BillingWebhookController {
	return &BillingWebhookController{cfg: cfg, svc: svc, now: time.Now}
}

// HandleWebhook is the provider callback endpoint. The provider retries on
// any non-2xx status, so transient store failures return 500 while
// permanently broken deliveries return 4xx to stop the retry loop.
func (ct *BillingWebhookController) HandleWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	webhookID := strings.TrimSpace(c.Get("webhook-id"))
	webhookTimestamp := strings.TrimSpace(c.Get("webhook-timestamp"))
	signature := strings.TrimSpace(c.Get("webhook-signature"))

	signatureValid := billing.VerifyWebhookSignature(rawBody, webhookID, webhookTimestamp, signature, ct.cfg.Secret) &&
		billing.TimestampWithinTolerance(webhookTimestamp, ct.cfg.Tolerance, ct.now())

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// Every delivery is persisted before any rejection so forged or
	// misconfigured deliveries still leave an audit row.
	eventType, _ := billing.PeekEventType(rawBody)
	created, storedID, err := ct.svc.RecordWebhookEvent(ctx, billing.WebhookEventInput{
		Provider:        models.BillingProviderDodo,
		ProviderEventID: webhookID,
		EventType:       eventType,
		PayloadJSON:     string(rawBody),
		SignatureValid:  signatureValid,
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}
	if !created {
		// Replayed delivery. Processing continues; reconciliation converges
		// on the same state, so reprocessing is harmless.
		log.Debugf("replayed webhook delivery %s", webhookID)
	}

	if !signatureValid && !ct.cfg.AllowUnverified {
		_ = ct.svc.MarkWebhookProcessed(ctx, storedID, errors.New("invalid webhook signature"))
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_signature"})
	}

	event, err := billing.ParsePaymentEvent(rawBody)
	if err != nil {
		_ = ct.svc.MarkWebhookProcessed(ctx, storedID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "invalid_payload"})
	}

	result, procErr := ct.svc.ProcessEvent(ctx, event)
	_ = ct.svc.MarkWebhookProcessed(ctx, storedID, procErr)
	if procErr != nil {
		status, code := mapProcessError(procErr)
		return c.Status(status).JSON(fiber.Map{"error": code})
	}

	if !result.Skipped && event.UserID != "" {
		// Best-effort cache invalidation so quota checks see the new plan.
		if err := cache.Delete(cache.UserPlanKey(event.UserID)); err != nil {
			log.Warnf("failed to invalidate plan cache for user %s: %v", event.UserID, err)
		}
	}

	return c.Status(fiber.StatusOK).JSON(webhookResponse(result))
}

// webhookResponse builds the acknowledgment body. Skipped events still
// acknowledge with 200 so the provider does not retry them.
func webhookResponse(result *billing.Result) fiber.Map {
	resp := fiber.Map{"received": true}
	if result.Skipped {
		resp["skipped"] = true
		resp["reason"] = result.Reason
	}
	return resp
}

// mapProcessError maps reconciliation errors to HTTP status codes. Missing
// metadata is permanently broken and returns 400 to stop retries. Unknown
// plans return 500: a catalog deploy may follow, and the provider's retry
// picks the event up afterwards. Store failures are retryable 500s.
func mapProcessError(err error) (int, string) {
	switch {
	case errors.Is(err, billing.ErrMissingMetadata):
		return fiber.StatusBadRequest, "missing_metadata"
	case errors.Is(err, billing.ErrUnknownPlan):
		return fiber.StatusInternalServerError, "unknown_plan"
	case errors.Is(err, billing.ErrStoreUpdateFailed):
		return fiber.StatusInternalServerError, "subscription_update_failed"
	default:
		return fiber.StatusInternalServerError, "processing_failed"
	}
}

func webhookToleranceFromEnv() time.Duration {
	raw := strings.TrimSpace(env.GetEnv("BILLING_WEBHOOK_TOLERANCE", ""))
	if raw == "" {
		return defaultWebhookToleranceSeconds * time.Second
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs < 0 {
		return defaultWebhookToleranceSeconds * time.Second
	}
	return time.Duration(secs) * time.Second
}
