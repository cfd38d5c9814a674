package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// webhookSecretPrefix is the fixed prefix the provider puts on shared
// secrets; the remainder is the base64-encoded raw key.
const webhookSecretPrefix = "whsec_"

// signatureVersion is the only scheme version we accept.
const signatureVersion = "v1"

// VerifyWebhookSignature checks a Standard Webhooks style signature: the
// signed content is "{id}.{timestamp}.{payload}" and the header may carry
// several space-separated "{version},{base64sig}" candidates so the provider
// can rotate keys. Any decoding or crypto problem yields false, never an
// error; callers treat false as "unverified".
func VerifyWebhookSignature(payload []byte, webhookID, webhookTimestamp, signatureHeader, secret string) bool {
	key, err := decodeWebhookSecret(secret)
	if err != nil {
		return false
	}
	if strings.TrimSpace(signatureHeader) == "" {
		return false
	}

	signedContent := fmt.Sprintf("%s.%s.%s", webhookID, webhookTimestamp, payload)
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(signedContent))
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	for _, candidate := range strings.Fields(signatureHeader) {
		version, sig, ok := strings.Cut(candidate, ",")
		if !ok || version != signatureVersion {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(sig), []byte(expected)) == 1 {
			return true
		}
	}
	return false
}

// TimestampWithinTolerance reports whether a webhook-timestamp header (unix
// seconds) is within tolerance of now, in either direction. A tolerance of 0
// disables the check. Unparseable timestamps fail closed.
func TimestampWithinTolerance(webhookTimestamp string, tolerance time.Duration, now time.Time) bool {
	if tolerance <= 0 {
		return true
	}
	secs, err := strconv.ParseInt(strings.TrimSpace(webhookTimestamp), 10, 64)
	if err != nil {
		return false
	}
	ts := time.Unix(secs, 0)
	diff := now.Sub(ts)
	if diff < 0 {
		diff = -diff
	}
	return diff <= tolerance
}

func decodeWebhookSecret(secret string) ([]byte, error) {
	trimmed := strings.TrimSpace(secret)
	if trimmed == "" {
		return nil, errors.New("webhook secret is empty")
	}
	trimmed = strings.TrimPrefix(trimmed, webhookSecretPrefix)
	key, err := base64.StdEncoding.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("webhook secret is not valid base64: %w", err)
	}
	if len(key) == 0 {
		return nil, errors.New("webhook secret decodes to empty key")
	}
	return key, nil
}
