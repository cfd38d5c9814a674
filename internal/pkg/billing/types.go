package billing

import "time"

// SubscriptionUpdate is the single write shape the reconciler applies to the
// profile store. Nil pointer fields are left untouched; ResetWordsUsed zeroes
// usage only on (re)activation.
type SubscriptionUpdate struct {
	Plan           string
	WordsLimit     int
	ResetWordsUsed bool
	StartDate      *time.Time
	EndDate        *time.Time
}

// Result describes what processing a webhook event did, for the HTTP
// response and the audit trail.
type Result struct {
	Skipped bool
	Reason  string
	Plan    string
}

// WebhookEventInput is the normalized input for webhook event persistence.
type WebhookEventInput struct {
	Provider        string
	ProviderEventID string
	EventType       string
	PayloadJSON     string
	SignatureValid  bool
}
