package billing

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PaymentEventType is the closed set of provider event kinds we act on.
// Anything else is acknowledged and ignored so the provider can add event
// types without breaking us.
type PaymentEventType string

const (
	EventPaymentSucceeded      PaymentEventType = "payment.succeeded"
	EventSubscriptionCreated   PaymentEventType = "subscription.created"
	EventSubscriptionActive    PaymentEventType = "subscription.active"
	EventSubscriptionCancelled PaymentEventType = "subscription.cancelled"
	EventRefundSucceeded       PaymentEventType = "refund.succeeded"
	EventUnknown               PaymentEventType = "unknown"
)

// PaymentEvent is the typed form of a verified webhook payload.
type PaymentEvent struct {
	Type    PaymentEventType
	RawType string
	UserID  string
	PlanID  string
	// Amount is in decimal currency units. Zero means "no amount present";
	// absence must never be read as paid.
	Amount float64
}

// IsActivation reports whether the event grants a paid entitlement.
func (e *PaymentEvent) IsActivation() bool {
	switch e.Type {
	case EventPaymentSucceeded, EventSubscriptionCreated, EventSubscriptionActive:
		return true
	default:
		return false
	}
}

// IsDeactivation reports whether the event revokes a paid entitlement.
func (e *PaymentEvent) IsDeactivation() bool {
	return e.Type == EventSubscriptionCancelled || e.Type == EventRefundSucceeded
}

type eventData struct {
	Metadata struct {
		UserID string `json:"user_id"`
		PlanID string `json:"plan_id"`
	} `json:"metadata"`
	TotalAmount           *float64 `json:"total_amount"`
	Amount                *float64 `json:"amount"`
	RecurringPreTaxAmount *float64 `json:"recurring_pre_tax_amount"`
}

type webhookPayload struct {
	Type string    `json:"type"`
	Data eventData `json:"data"`
}

// amountExtractors is the ordered fallback chain for the amount field, which
// the provider spells differently per event type. First present value wins.
var amountExtractors = []struct {
	field string
	get   func(d *eventData) *float64
}{
	{field: "total_amount", get: func(d *eventData) *float64 { return d.TotalAmount }},
	{field: "amount", get: func(d *eventData) *float64 { return d.Amount }},
	{field: "recurring_pre_tax_amount", get: func(d *eventData) *float64 { return d.RecurringPreTaxAmount }},
}

// ParsePaymentEvent decodes a webhook body into a typed event. Missing
// metadata fields become empty strings rather than errors because different
// event types populate different subsets; only a body that is not JSON or
// lacks a type is malformed.
func ParsePaymentEvent(raw []byte) (*PaymentEvent, error) {
	var payload webhookPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	rawType := strings.TrimSpace(payload.Type)
	if rawType == "" {
		return nil, fmt.Errorf("%w: missing event type", ErrMalformedPayload)
	}

	ev := &PaymentEvent{
		Type:    classifyEventType(rawType),
		RawType: rawType,
		UserID:  strings.TrimSpace(payload.Data.Metadata.UserID),
		PlanID:  strings.TrimSpace(payload.Data.Metadata.PlanID),
	}
	for _, ex := range amountExtractors {
		if v := ex.get(&payload.Data); v != nil {
			ev.Amount = *v
			break
		}
	}
	return ev, nil
}

// PeekEventType reads only the type field, for audit records of payloads
// that may not survive full parsing.
func PeekEventType(raw []byte) (string, error) {
	var payload struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return strings.TrimSpace(payload.Type), nil
}

func classifyEventType(rawType string) PaymentEventType {
	switch rawType {
	case "payment.succeeded":
		return EventPaymentSucceeded
	case "subscription.created":
		return EventSubscriptionCreated
	case "subscription.active":
		return EventSubscriptionActive
	case "subscription.cancelled", "subscription.canceled":
		// Both spellings appear in provider payloads.
		return EventSubscriptionCancelled
	case "refund.succeeded":
		return EventRefundSucceeded
	default:
		return EventUnknown
	}
}
