package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/MVP-Lab-SA/dakkah-cityos-medusa-sub009/pkg/enums"
)

// SubscriptionAdjustment is a one-time proration credit or charge produced by
// a mid-period plan change. Historical totals are never rewritten; the
// adjustment carries the delta instead.
type SubscriptionAdjustment struct {
	ID             uuid.UUID            `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	SubscriptionID uuid.UUID            `gorm:"column:subscription_id;type:uuid;not null;index"`
	Type           enums.AdjustmentType `gorm:"column:type;type:adjustment_type;not null"`
	AmountCents    int64                `gorm:"column:amount_cents;not null"`
	CurrencyCode   string               `gorm:"column:currency_code;not null"`
	Description    string               `gorm:"column:description"`
	CreatedAt      time.Time            `gorm:"column:created_at;autoCreateTime"`
}
