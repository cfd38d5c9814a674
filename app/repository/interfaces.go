package repository

import (
	"time"

	"github.com/nanbonsmr/quickwriteai-sub001/app/models"
	"gorm.io/gorm"
)

// ProfileRepository defines the interface for user profile data access
type ProfileRepository interface {
	Create(profile *models.UserProfile) error
	GetByID(id uint) (*models.UserProfile, error)
	GetByUserID(userID string) (*models.UserProfile, error)
	GetOrCreateByUserID(userID string) (*models.UserProfile, error)
	GetByAPIKeyHash(hash string) (*models.UserProfile, error)
	Update(profile *models.UserProfile) error
	TouchAPIKeyUsage(profileID uint, usedAt time.Time) error
	Count() (int64, error)
}

// GenerationRepository defines the interface for generation record data access
type GenerationRepository interface {
	Create(record *models.GenerationRecord) error
	GetByRequestID(requestID string) (*models.GenerationRecord, error)
	ListByUserID(userID string, offset, limit int) ([]models.GenerationRecord, error)
	CountByUserID(userID string) (int64, error)
	SumWordsByUserIDSince(userID string, since time.Time) (int64, error)
}

// Repositories holds all repository instances
type Repositories struct {
	Profile    ProfileRepository
	Generation GenerationRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Profile:    NewProfileRepository(db),
		Generation: NewGenerationRepository(db),
	}
}
