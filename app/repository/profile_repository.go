package repository

import (
	"strings"
	"time"

	"github.com/nanbonsmr/quickwriteai-sub001/app/models"
	"gorm.io/gorm"
)

// profileRepository implements the ProfileRepository interface
type profileRepository struct {
	db *gorm.DB
}

// NewProfileRepository creates a new profile repository instance
func NewProfileRepository(db *gorm.DB) ProfileRepository {
	return &profileRepository{db: db}
}

// Create creates a new user profile in the database
func (r *profileRepository) Create(profile *models.UserProfile) error {
	return r.db.Create(profile).Error
}

// GetByID retrieves a profile by its primary key
func (r *profileRepository) GetByID(id uint) (*models.UserProfile, error) {
	var profile models.UserProfile
	err := r.db.First(&profile, id).Error
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// GetByUserID retrieves a profile by the external user identifier
func (r *profileRepository) GetByUserID(userID string) (*models.UserProfile, error) {
	var profile models.UserProfile
	err := r.db.Where("user_id = ?", userID).First(&profile).Error
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// GetOrCreateByUserID retrieves a profile, creating a free-tier one if none exists
func (r *profileRepository) GetOrCreateByUserID(userID string) (*models.UserProfile, error) {
	return models.GetOrCreateUserProfile(r.db, userID)
}

// GetByAPIKeyHash resolves an active API key hash to its profile.
func (r *profileRepository) GetByAPIKeyHash(hash string) (*models.UserProfile, error) {
	trimmed := strings.TrimSpace(hash)
	if trimmed == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var profile models.UserProfile
	query := r.db.Where("api_key_hash = ? AND api_key_hash <> '' AND api_key_revoked_at IS NULL", trimmed)
	if err := query.First(&profile).Error; err != nil {
		return nil, err
	}
	return &profile, nil
}

// Update updates an existing profile in the database
func (r *profileRepository) Update(profile *models.UserProfile) error {
	return r.db.Save(profile).Error
}

// TouchAPIKeyUsage refreshes the last-used timestamp for the profile's API key
func (r *profileRepository) TouchAPIKeyUsage(profileID uint, usedAt time.Time) error {
	return r.db.Model(&models.UserProfile{}).
		Where("id = ?", profileID).
		Updates(map[string]any{"api_key_last_used_at": usedAt}).Error
}

// Count returns the total number of profiles
func (r *profileRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.UserProfile{}).Count(&count).Error
	return count, err
}
