package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/MVP-Lab-SA/dakkah-cityos-medusa-sub009/pkg/enums"
)

// SubscriptionDiscount is a tenant-scoped redemption code. For percentage
// discounts Value is whole percentage points; for fixed discounts it is an
// amount in minor currency units.
type SubscriptionDiscount struct {
	ID                 uuid.UUID          `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	TenantID           uuid.UUID          `gorm:"column:tenant_id;type:uuid;not null;uniqueIndex:ux_discount_tenant_code"`
	Code               string             `gorm:"column:code;not null;uniqueIndex:ux_discount_tenant_code"`
	DiscountType       enums.DiscountType `gorm:"column:discount_type;type:discount_type;not null"`
	Value              int64              `gorm:"column:value;not null"`
	IsActive           bool               `gorm:"column:is_active;not null;default:true"`
	MaxRedemptions     *int               `gorm:"column:max_redemptions"`
	CurrentRedemptions int                `gorm:"column:current_redemptions;not null;default:0"`
	CreatedAt          time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

// Exhausted reports whether the redemption cap has been reached.
func (d SubscriptionDiscount) Exhausted() bool {
	return d.MaxRedemptions != nil && d.CurrentRedemptions >= *d.MaxRedemptions
}
