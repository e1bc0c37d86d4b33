package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/MVP-Lab-SA/dakkah-cityos-medusa-sub009/pkg/enums"
)

// SubscriptionEvent is an append-only audit record of a lifecycle or billing
// transition. Rows are never updated or deleted.
type SubscriptionEvent struct {
	ID             uuid.UUID                   `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	SubscriptionID uuid.UUID                   `gorm:"column:subscription_id;type:uuid;not null;index"`
	EventType      enums.SubscriptionEventType `gorm:"column:event_type;not null"`
	Metadata       json.RawMessage             `gorm:"column:metadata;type:jsonb"`
	CreatedAt      time.Time                   `gorm:"column:created_at;autoCreateTime"`
}
