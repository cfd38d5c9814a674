package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nanbonsmr/quickwriteai-sub001/app/models"
	"github.com/nanbonsmr/quickwriteai-sub001/internal/pkg/entitlements"
	"gorm.io/gorm"
)

// subscriptionTermDays is the fixed subscription term. No proration: every
// activation starts a fresh 30-day window.
const subscriptionTermDays = 30

// Service reconciles provider payment events into subscription state.
//
// Idempotency is by reconstruction: an activation recomputes the full target
// state (plan, limit, zeroed usage, fresh term) from its own payload, so
// replaying an event under at-least-once delivery converges instead of
// double-granting. There is no processed-event-ID gate.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a reconciler from an injected repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// NewServiceFromDB creates a reconciler from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(NewRepository(db))
}

// ProcessEvent applies one parsed payment event. Skipped no-ops come back in
// the Result; fatal conditions come back as errors the HTTP layer maps to
// status codes (ErrMissingMetadata -> 400, everything else -> 500 so the
// provider retries).
func (s *Service) ProcessEvent(ctx context.Context, ev *PaymentEvent) (*Result, error) {
	_ = ctx
	switch {
	case ev.IsActivation():
		return s.activate(ev)
	case ev.IsDeactivation():
		return s.deactivate(ev)
	default:
		return &Result{Skipped: true, Reason: fmt.Sprintf("Unhandled event type: %s", ev.RawType)}, nil
	}
}

// activate grants the entitlement for a paid event. The zero-amount guard
// runs before anything else: trial and sandbox callbacks carry amount 0 and
// must never upgrade a user.
func (s *Service) activate(ev *PaymentEvent) (*Result, error) {
	if ev.Amount <= 0 {
		return &Result{Skipped: true, Reason: "Zero amount payment"}, nil
	}
	if ev.UserID == "" || ev.PlanID == "" {
		return nil, fmt.Errorf("%w: activation event %q requires user_id and plan_id", ErrMissingMetadata, ev.RawType)
	}
	ent, ok := entitlements.Lookup(ev.PlanID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPlan, ev.PlanID)
	}

	now := s.now()
	end := now.AddDate(0, 0, subscriptionTermDays)
	update := SubscriptionUpdate{
		Plan:           strings.ToLower(ent.DisplayName),
		WordsLimit:     ent.WordsLimit,
		ResetWordsUsed: true,
		StartDate:      &now,
		EndDate:        &end,
	}
	if err := s.repo.UpdateSubscription(ev.UserID, update); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUpdateFailed, err)
	}
	return &Result{Plan: update.Plan}, nil
}

// deactivate downgrades to the free tier. Only the user id is needed: the
// free entitlement is fixed, and usage plus period dates stay untouched.
func (s *Service) deactivate(ev *PaymentEvent) (*Result, error) {
	if ev.UserID == "" {
		return nil, fmt.Errorf("%w: %q requires user_id", ErrMissingMetadata, ev.RawType)
	}
	update := SubscriptionUpdate{
		Plan:       string(entitlements.PlanFree),
		WordsLimit: entitlements.FreeWordsLimit,
	}
	if err := s.repo.UpdateSubscription(ev.UserID, update); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUpdateFailed, err)
	}
	return &Result{Plan: string(entitlements.PlanFree)}, nil
}

// RecordWebhookEvent persists webhook payloads idempotently. Deliveries
// without a provider event id are keyed by a payload hash.
func (s *Service) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, uint, error) {
	_ = ctx
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		return false, 0, errors.New("provider is required")
	}
	eventID := strings.TrimSpace(in.ProviderEventID)
	if eventID == "" {
		sum := sha256.Sum256([]byte(in.PayloadJSON))
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	event := &models.BillingWebhookEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       strings.TrimSpace(in.EventType),
		PayloadJSON:     in.PayloadJSON,
		SignatureValid:  in.SignatureValid,
	}
	created, stored, err := s.repo.CreateWebhookEventIfNotExists(event)
	if err != nil {
		return false, 0, err
	}
	return created, stored.ID, nil
}

// MarkWebhookProcessed marks an event as processed and stores an optional error.
func (s *Service) MarkWebhookProcessed(ctx context.Context, webhookEventID uint, processingErr error) error {
	_ = ctx
	if webhookEventID == 0 {
		return errors.New("webhook_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.repo.MarkWebhookProcessed(webhookEventID, errMsg)
}
