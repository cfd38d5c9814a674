package billing

import "errors"

var (
	// ErrMalformedPayload is returned when a webhook body is not valid JSON
	// or lacks an event type.
	ErrMalformedPayload = errors.New("malformed webhook payload")

	// ErrMissingMetadata is returned when an activation event lacks the user
	// or plan identifier it needs.
	ErrMissingMetadata = errors.New("missing event metadata")

	// ErrUnknownPlan is returned when an activation event references a plan
	// that is not in the catalog. Never mapped to a default entitlement.
	ErrUnknownPlan = errors.New("unknown plan id")

	// ErrStoreUpdateFailed is returned when the profile store rejects a
	// subscription update. Retryable: activation writes are idempotent.
	ErrStoreUpdateFailed = errors.New("profile store update failed")
)
