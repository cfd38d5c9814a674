package billing

import (
	"time"

	"github.com/nanbonsmr/quickwriteai-sub001/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides the profile-store operations the reconciler consumes.
type Repository interface {
	UpdateSubscription(userID string, update SubscriptionUpdate) error
	CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error)
	MarkWebhookProcessed(id uint, processingError string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

// UpdateSubscription applies one subscription write. The profile row is
// created on the free tier first if the user has never been seen, so a
// provider webhook can never fail on a missing row.
func (r *gormRepository) UpdateSubscription(userID string, update SubscriptionUpdate) error {
	profile, err := models.GetOrCreateUserProfile(r.db, userID)
	if err != nil {
		return err
	}

	updates := map[string]interface{}{
		"subscription_plan": update.Plan,
		"words_limit":       update.WordsLimit,
	}
	if update.ResetWordsUsed {
		updates["words_used"] = 0
	}
	if update.StartDate != nil {
		updates["subscription_start_date"] = update.StartDate
	}
	if update.EndDate != nil {
		updates["subscription_end_date"] = update.EndDate
	}
	return r.db.Model(&models.UserProfile{}).Where("id = ?", profile.ID).Updates(updates).Error
}

func (r *gormRepository) CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.BillingWebhookEvent
	if err := r.db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.Model(&models.BillingWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}
