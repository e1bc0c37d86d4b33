package models

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionItem is a priced line owned by a subscription. Items are
// immutable once a period is invoiced; plan changes replace them.
type SubscriptionItem struct {
	ID             uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	SubscriptionID uuid.UUID `gorm:"column:subscription_id;type:uuid;not null;index"`
	PriceRef       string    `gorm:"column:price_ref;not null"`
	Name           string    `gorm:"column:name;not null"`
	Quantity       int       `gorm:"column:quantity;not null;default:1"`
	UnitPriceCents int64     `gorm:"column:unit_price_cents;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}
