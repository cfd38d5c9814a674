package repository

import (
	"time"

	"github.com/nanbonsmr/quickwriteai-sub001/app/models"
	"gorm.io/gorm"
)

// generationRepository implements the GenerationRepository interface
type generationRepository struct {
	db *gorm.DB
}

// NewGenerationRepository creates a new generation repository instance
func NewGenerationRepository(db *gorm.DB) GenerationRepository {
	return &generationRepository{db: db}
}

// Create creates a new generation record in the database
func (r *generationRepository) Create(record *models.GenerationRecord) error {
	return r.db.Create(record).Error
}

// GetByRequestID retrieves a generation record by its request ID
func (r *generationRepository) GetByRequestID(requestID string) (*models.GenerationRecord, error) {
	var record models.GenerationRecord
	err := r.db.Where("request_id = ?", requestID).First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// ListByUserID retrieves a paginated list of a user's generation records
func (r *generationRepository) ListByUserID(userID string, offset, limit int) ([]models.GenerationRecord, error) {
	var records []models.GenerationRecord
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC").Offset(offset).Limit(limit).Find(&records).Error
	return records, err
}

// CountByUserID returns the number of generation records for a user
func (r *generationRepository) CountByUserID(userID string) (int64, error) {
	var count int64
	err := r.db.Model(&models.GenerationRecord{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}

// SumWordsByUserIDSince sums generated words for a user from the given time
func (r *generationRepository) SumWordsByUserIDSince(userID string, since time.Time) (int64, error) {
	var total int64
	err := r.db.Model(&models.GenerationRecord{}).
		Where("user_id = ? AND created_at >= ?", userID, since).
		Select("COALESCE(SUM(words_generated), 0)").Row().Scan(&total)
	if err != nil {
		return 0, err
	}
	return total, nil
}
