package models

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionPause records one pause window. ResumedAt stays null while the
// pause is open; at most one open pause exists per subscription.
type SubscriptionPause struct {
	ID             uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	SubscriptionID uuid.UUID  `gorm:"column:subscription_id;type:uuid;not null;index"`
	PausedAt       time.Time  `gorm:"column:paused_at;not null"`
	ResumedAt      *time.Time `gorm:"column:resumed_at"`
	Reason         string     `gorm:"column:reason"`
	CreatedAt      time.Time  `gorm:"column:created_at;autoCreateTime"`
}
