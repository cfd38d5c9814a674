package models

import "time"

// GenerationRecord logs one content-generation request for usage accounting.
// WordsGenerated feeds the quota counters; the generated text itself is not
// stored here.
type GenerationRecord struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	RequestID      string    `gorm:"type:char(36);uniqueIndex" json:"request_id"`
	UserID         string    `gorm:"type:varchar(191);not null;index" json:"user_id"`
	ContentType    string    `gorm:"type:varchar(50);not null" json:"content_type"`
	Model          string    `gorm:"type:varchar(100);default:''" json:"model"`
	WordsGenerated int       `gorm:"not null;default:0" json:"words_generated"`
	DurationMs     int64     `gorm:"not null;default:0" json:"duration_ms"`
	CreatedAt      time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}
