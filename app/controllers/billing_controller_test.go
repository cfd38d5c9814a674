package controllers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nanbonsmr/quickwriteai-sub001/app/models"
	"github.com/nanbonsmr/quickwriteai-sub001/internal/pkg/billing"
)

const testWebhookSecret = "whsec_dGVzdHNlY3JldA=="

// stubBillingRepo implements billing.Repository in memory.
type stubBillingRepo struct {
	updates   []billing.SubscriptionUpdate
	updateIDs []string
	updateErr error

	events    []*models.BillingWebhookEvent
	processed map[uint]string
}

func newStubBillingRepo() *stubBillingRepo {
	return &stubBillingRepo{processed: map[uint]string{}}
}

func (s *stubBillingRepo) UpdateSubscription(userID string, update billing.SubscriptionUpdate) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	s.updateIDs = append(s.updateIDs, userID)
	s.updates = append(s.updates, update)
	return nil
}

func (s *stubBillingRepo) CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	for _, existing := range s.events {
		if existing.Provider == event.Provider && existing.ProviderEventID == event.ProviderEventID {
			return false, existing, nil
		}
	}
	event.ID = uint(len(s.events) + 1)
	s.events = append(s.events, event)
	return true, event, nil
}

func (s *stubBillingRepo) MarkWebhookProcessed(id uint, processingError string) error {
	s.processed[id] = processingError
	return nil
}

func newWebhookTestApp(repo *stubBillingRepo, cfg BillingWebhookConfig) *fiber.App {
	controller := NewBillingWebhookController(cfg, billing.NewService(repo))
	app := fiber.New()
	app.Post("/api/v1/billing/webhook", controller.HandleWebhook)
	return app
}

func defaultWebhookTestConfig() BillingWebhookConfig {
	return BillingWebhookConfig{Secret: testWebhookSecret, Tolerance: 5 * time.Minute}
}

func signWebhook(t *testing.T, id, timestamp, body string) string {
	t.Helper()
	key, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(testWebhookSecret, "whsec_"))
	require.NoError(t, err)
	mac := hmac.New(sha256.New, key)
	fmt.Fprintf(mac, "%s.%s.%s", id, timestamp, body)
	return "v1," + base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func postWebhook(t *testing.T, app *fiber.App, body string, sign bool) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, "/api/v1/billing/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if sign {
		id := "msg_" + strconv.FormatInt(time.Now().UnixNano(), 10)
		ts := strconv.FormatInt(time.Now().Unix(), 10)
		req.Header.Set("webhook-id", id)
		req.Header.Set("webhook-timestamp", ts)
		req.Header.Set("webhook-signature", signWebhook(t, id, ts, body))
	}
	resp, err := app.Test(req, 10000)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &decoded)
	}
	return resp.StatusCode, decoded
}

func TestHandleWebhookActivatesSubscription(t *testing.T) {
	repo := newStubBillingRepo()
	app := newWebhookTestApp(repo, defaultWebhookTestConfig())

	body := `{"type":"payment.succeeded","data":{"metadata":{"user_id":"u1","plan_id":"pro"},"total_amount":1999}}`
	status, resp := postWebhook(t, app, body, true)

	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, resp["received"])
	assert.NotContains(t, resp, "skipped")

	require.Len(t, repo.updates, 1)
	assert.Equal(t, "u1", repo.updateIDs[0])
	assert.Equal(t, "pro", repo.updates[0].Plan)
	assert.Equal(t, 100000, repo.updates[0].WordsLimit)
	assert.True(t, repo.updates[0].ResetWordsUsed)
}

func TestHandleWebhookSkipsZeroAmount(t *testing.T) {
	repo := newStubBillingRepo()
	app := newWebhookTestApp(repo, defaultWebhookTestConfig())

	body := `{"type":"payment.succeeded","data":{"metadata":{"user_id":"u1","plan_id":"pro"},"total_amount":0}}`
	status, resp := postWebhook(t, app, body, true)

	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, resp["received"])
	assert.Equal(t, true, resp["skipped"])
	assert.Equal(t, "Zero amount payment", resp["reason"])
	assert.Empty(t, repo.updates)
}

func TestHandleWebhookMissingMetadata(t *testing.T) {
	repo := newStubBillingRepo()
	app := newWebhookTestApp(repo, defaultWebhookTestConfig())

	body := `{"type":"payment.succeeded","data":{"total_amount":1999}}`
	status, resp := postWebhook(t, app, body, true)

	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "missing_metadata", resp["error"])
	assert.Empty(t, repo.updates)
}

func TestHandleWebhookUnknownPlan(t *testing.T) {
	repo := newStubBillingRepo()
	app := newWebhookTestApp(repo, defaultWebhookTestConfig())

	body := `{"type":"payment.succeeded","data":{"metadata":{"user_id":"u1","plan_id":"ultra"},"total_amount":4999}}`
	status, resp := postWebhook(t, app, body, true)

	assert.Equal(t, fiber.StatusInternalServerError, status)
	assert.Equal(t, "unknown_plan", resp["error"])
	assert.Empty(t, repo.updates)
}

func TestHandleWebhookMalformedPayload(t *testing.T) {
	repo := newStubBillingRepo()
	app := newWebhookTestApp(repo, defaultWebhookTestConfig())

	status, resp := postWebhook(t, app, `{"data":`, true)

	assert.Equal(t, fiber.StatusInternalServerError, status)
	assert.Equal(t, "invalid_payload", resp["error"])
}

func TestHandleWebhookStoreFailure(t *testing.T) {
	repo := newStubBillingRepo()
	repo.updateErr = assert.AnError
	app := newWebhookTestApp(repo, defaultWebhookTestConfig())

	body := `{"type":"payment.succeeded","data":{"metadata":{"user_id":"u1","plan_id":"pro"},"total_amount":1999}}`
	status, resp := postWebhook(t, app, body, true)

	assert.Equal(t, fiber.StatusInternalServerError, status)
	assert.Equal(t, "subscription_update_failed", resp["error"])
}

func TestHandleWebhookCancellationDowngrade(t *testing.T) {
	repo := newStubBillingRepo()
	app := newWebhookTestApp(repo, defaultWebhookTestConfig())

	body := `{"type":"subscription.cancelled","data":{"metadata":{"user_id":"u2"}}}`
	status, resp := postWebhook(t, app, body, true)

	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, resp["received"])
	require.Len(t, repo.updates, 1)
	assert.Equal(t, "free", repo.updates[0].Plan)
	assert.Equal(t, 500, repo.updates[0].WordsLimit)
	assert.False(t, repo.updates[0].ResetWordsUsed)
}

func TestHandleWebhookRejectsUnsignedDelivery(t *testing.T) {
	repo := newStubBillingRepo()
	app := newWebhookTestApp(repo, defaultWebhookTestConfig())

	body := `{"type":"payment.succeeded","data":{"metadata":{"user_id":"u1","plan_id":"pro"},"total_amount":1999}}`
	status, resp := postWebhook(t, app, body, false)

	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "invalid_signature", resp["error"])
	assert.Empty(t, repo.updates)

	// Rejected deliveries still leave an audit row, flagged unverified.
	require.Len(t, repo.events, 1)
	assert.False(t, repo.events[0].SignatureValid)
	assert.Equal(t, "invalid webhook signature", repo.processed[repo.events[0].ID])
}

func TestHandleWebhookNoSecretFailsClosed(t *testing.T) {
	repo := newStubBillingRepo()
	cfg := defaultWebhookTestConfig()
	cfg.Secret = ""
	app := newWebhookTestApp(repo, cfg)

	body := `{"type":"payment.succeeded","data":{"metadata":{"user_id":"u1","plan_id":"pro"},"total_amount":1999}}`
	status, resp := postWebhook(t, app, body, true)

	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "invalid_signature", resp["error"])
	assert.Empty(t, repo.updates)
}

func TestHandleWebhookRejectsTamperedBody(t *testing.T) {
	repo := newStubBillingRepo()
	app := newWebhookTestApp(repo, defaultWebhookTestConfig())

	body := `{"type":"payment.succeeded","data":{"metadata":{"user_id":"u1","plan_id":"pro"},"total_amount":1999}}`
	id := "msg_tampered"
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	req := httptest.NewRequest(fiber.MethodPost, "/api/v1/billing/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("webhook-id", id)
	req.Header.Set("webhook-timestamp", ts)
	req.Header.Set("webhook-signature", signWebhook(t, id, ts, `{"type":"payment.succeeded","data":{"metadata":{"user_id":"u1","plan_id":"pro"},"total_amount":1}}`))

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Empty(t, repo.updates)
	require.Len(t, repo.events, 1)
	assert.False(t, repo.events[0].SignatureValid)
}

func TestHandleWebhookRejectsStaleTimestamp(t *testing.T) {
	repo := newStubBillingRepo()
	app := newWebhookTestApp(repo, defaultWebhookTestConfig())

	body := `{"type":"payment.succeeded","data":{"metadata":{"user_id":"u1","plan_id":"pro"},"total_amount":1999}}`
	id := "msg_stale"
	ts := strconv.FormatInt(time.Now().Add(-time.Hour).Unix(), 10)
	req := httptest.NewRequest(fiber.MethodPost, "/api/v1/billing/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("webhook-id", id)
	req.Header.Set("webhook-timestamp", ts)
	req.Header.Set("webhook-signature", signWebhook(t, id, ts, body))

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestHandleWebhookUnverifiedModeProcessesAnyway(t *testing.T) {
	repo := newStubBillingRepo()
	cfg := defaultWebhookTestConfig()
	cfg.AllowUnverified = true
	app := newWebhookTestApp(repo, cfg)

	body := `{"type":"payment.succeeded","data":{"metadata":{"user_id":"u1","plan_id":"basic"},"total_amount":999}}`
	status, resp := postWebhook(t, app, body, false)

	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, resp["received"])
	require.Len(t, repo.events, 1)
	assert.False(t, repo.events[0].SignatureValid)
	require.Len(t, repo.updates, 1)
	assert.Equal(t, "basic", repo.updates[0].Plan)
}

func TestHandleWebhookReplayConverges(t *testing.T) {
	repo := newStubBillingRepo()
	app := newWebhookTestApp(repo, defaultWebhookTestConfig())

	body := `{"type":"payment.succeeded","data":{"metadata":{"user_id":"u1","plan_id":"pro"},"total_amount":1999}}`
	id := "msg_replayed"
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	sig := signWebhook(t, id, ts, body)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(fiber.MethodPost, "/api/v1/billing/webhook", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("webhook-id", id)
		req.Header.Set("webhook-timestamp", ts)
		req.Header.Set("webhook-signature", sig)
		resp, err := app.Test(req, 10000)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	}

	// One audit row, but both deliveries processed and convergent.
	assert.Len(t, repo.events, 1)
	require.Len(t, repo.updates, 2)
	assert.Equal(t, repo.updates[0].Plan, repo.updates[1].Plan)
	assert.Equal(t, repo.updates[0].WordsLimit, repo.updates[1].WordsLimit)
}

func TestWebhookResponse(t *testing.T) {
	resp := webhookResponse(&billing.Result{Plan: "pro"})
	assert.Equal(t, fiber.Map{"received": true}, resp)

	resp = webhookResponse(&billing.Result{Skipped: true, Reason: "Zero amount payment"})
	assert.Equal(t, true, resp["received"])
	assert.Equal(t, true, resp["skipped"])
	assert.Equal(t, "Zero amount payment", resp["reason"])
}

func TestMapProcessError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "missing metadata stops retries",
			err:        billing.ErrMissingMetadata,
			wantStatus: fiber.StatusBadRequest,
			wantCode:   "missing_metadata",
		},
		{
			name:       "unknown plan retries until catalog update",
			err:        billing.ErrUnknownPlan,
			wantStatus: fiber.StatusInternalServerError,
			wantCode:   "unknown_plan",
		},
		{
			name:       "store failure is retryable",
			err:        billing.ErrStoreUpdateFailed,
			wantStatus: fiber.StatusInternalServerError,
			wantCode:   "subscription_update_failed",
		},
		{
			name:       "unclassified errors are retryable",
			err:        assert.AnError,
			wantStatus: fiber.StatusInternalServerError,
			wantCode:   "processing_failed",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			status, code := mapProcessError(tc.err)
			assert.Equal(t, tc.wantStatus, status)
			assert.Equal(t, tc.wantCode, code)
		})
	}
}

func TestBillingWebhookConfigFromEnv(t *testing.T) {
	t.Setenv("DODO_WEBHOOK_SECRET", testWebhookSecret)
	t.Setenv("BILLING_WEBHOOK_TOLERANCE", "60")
	t.Setenv("BILLING_WEBHOOK_ALLOW_UNVERIFIED", "true")

	cfg := BillingWebhookConfigFromEnv()
	assert.Equal(t, testWebhookSecret, cfg.Secret)
	assert.Equal(t, 60*time.Second, cfg.Tolerance)
	assert.True(t, cfg.AllowUnverified)

	t.Setenv("BILLING_WEBHOOK_TOLERANCE", "not-a-number")
	t.Setenv("BILLING_WEBHOOK_ALLOW_UNVERIFIED", "")
	cfg = BillingWebhookConfigFromEnv()
	assert.Equal(t, 300*time.Second, cfg.Tolerance)
	assert.False(t, cfg.AllowUnverified)
}
