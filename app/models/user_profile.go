package models

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// UserProfile stores per-user subscription state and quota usage. Identity and
// sessions live in the auth provider; profiles are keyed by the opaque user id
// it hands us.
type UserProfile struct {
	ID                    uint           `gorm:"primaryKey" json:"id"`
	UserID                string         `gorm:"type:varchar(191);uniqueIndex;not null" json:"user_id"`
	Email                 string         `gorm:"type:varchar(200);default:''" json:"email"`
	SubscriptionPlan      string         `gorm:"type:varchar(50);default:'free';index" json:"subscription_plan"`
	WordsLimit            int            `gorm:"not null;default:500" json:"words_limit"`
	WordsUsed             int            `gorm:"not null;default:0" json:"words_used"`
	SubscriptionStartDate *time.Time     `gorm:"type:timestamp;default:null" json:"subscription_start_date,omitempty"`
	SubscriptionEndDate   *time.Time     `gorm:"type:timestamp;default:null" json:"subscription_end_date,omitempty"`
	APIKeyHash            string         `gorm:"type:char(64);default:''" json:"-"`
	APIKeyPrefix          string         `gorm:"type:varchar(20);default:''" json:"api_key_prefix"`
	APIKeyCreatedAt       *time.Time     `json:"api_key_created_at"`
	APIKeyLastUsedAt      *time.Time     `json:"api_key_last_used_at"`
	APIKeyRevokedAt       *time.Time     `json:"api_key_revoked_at"`
	CreatedAt             time.Time      `json:"created_at"`
	UpdatedAt             time.Time      `json:"updated_at"`
	DeletedAt             gorm.DeletedAt `gorm:"index" json:"-"`
}

var apiKeyEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

const apiKeyPrefix = "qwa_"

// GetOrCreateUserProfile returns the existing profile or creates one on the
// free tier. Profiles are created lazily on first contact; the reconciler
// only ever mutates existing rows through UpdateSubscription.
func GetOrCreateUserProfile(db *gorm.DB, userID string) (*UserProfile, error) {
	trimmed := strings.TrimSpace(userID)
	if trimmed == "" {
		return nil, fmt.Errorf("user id is required")
	}
	var profile UserProfile
	if err := db.Where("user_id = ?", trimmed).First(&profile).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			profile = UserProfile{UserID: trimmed, SubscriptionPlan: "free", WordsLimit: 500}
			if err := db.Create(&profile).Error; err != nil {
				return nil, err
			}
			return &profile, nil
		}
		return nil, err
	}
	return &profile, nil
}

// WordsRemaining returns how much of the word budget is left. Usage can
// overshoot the limit by one in-flight generation; never return negatives.
func (p *UserProfile) WordsRemaining() int {
	remaining := p.WordsLimit - p.WordsUsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// SubscriptionActive reports whether a paid period is currently running.
func (p *UserProfile) SubscriptionActive(now time.Time) bool {
	if p.SubscriptionPlan == "" || p.SubscriptionPlan == "free" {
		return false
	}
	if p.SubscriptionEndDate == nil {
		return false
	}
	return p.SubscriptionEndDate.After(now)
}

// HasActiveAPIKey reports whether the profile has an active API key configured
func (p *UserProfile) HasActiveAPIKey() bool {
	return p != nil && p.APIKeyHash != "" && p.APIKeyRevokedAt == nil
}

// IssueAPIKey generates a new API key, persists metadata on the struct, and returns the raw secret.
// Callers must persist the struct via the database after invoking this method.
func (p *UserProfile) IssueAPIKey() (string, error) {
	rawKey, prefix, hash, err := generateAPIKeyMaterial()
	if err != nil {
		return "", err
	}
	now := time.Now()
	p.APIKeyHash = hash
	p.APIKeyPrefix = prefix
	p.APIKeyCreatedAt = &now
	p.APIKeyRevokedAt = nil
	p.APIKeyLastUsedAt = nil
	return rawKey, nil
}

// RevokeAPIKey clears the stored API key metadata without deleting the record.
func (p *UserProfile) RevokeAPIKey() {
	p.APIKeyHash = ""
	p.APIKeyPrefix = ""
	now := time.Now()
	p.APIKeyRevokedAt = &now
	p.APIKeyLastUsedAt = nil
}

// TouchAPIKeyUsage updates the last-used timestamp metadata.
func (p *UserProfile) TouchAPIKeyUsage() {
	now := time.Now()
	p.APIKeyLastUsedAt = &now
}

// HashAPIKey returns the SHA-256 hash for the provided API key.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(raw)))
	return hex.EncodeToString(sum[:])
}

func generateAPIKeyMaterial() (string, string, string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", "", err
	}
	encoded := apiKeyEncoding.EncodeToString(b)
	encoded = strings.ToLower(encoded)
	rawKey := apiKeyPrefix + encoded
	if len(rawKey) < 12 {
		return "", "", "", fmt.Errorf("api key generation failed: key too short")
	}
	prefix := rawKey[:min(len(rawKey), 16)]
	hash := HashAPIKey(rawKey)
	return rawKey, prefix, hash, nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
