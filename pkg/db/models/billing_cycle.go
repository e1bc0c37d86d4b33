package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/MVP-Lab-SA/dakkah-cityos-medusa-sub009/pkg/enums"
)

// BillingCycle records one billing period's charge attempt for a subscription.
// A cycle only moves upcoming -> completed or upcoming -> failed; it never
// regresses from completed.
type BillingCycle struct {
	ID                uuid.UUID                `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	TenantID          uuid.UUID                `gorm:"column:tenant_id;type:uuid;not null;index"`
	SubscriptionID    uuid.UUID                `gorm:"column:subscription_id;type:uuid;not null;index"`
	BillingDate       time.Time                `gorm:"column:billing_date;not null;index"`
	Status            enums.BillingCycleStatus `gorm:"column:status;type:billing_cycle_status;not null;default:'upcoming'"`
	AttemptCount      int                      `gorm:"column:attempt_count;not null;default:0"`
	TotalCents        int64                    `gorm:"column:total_cents;not null"`
	CurrencyCode      string                   `gorm:"column:currency_code;not null"`
	LastFailureReason *string                  `gorm:"column:last_failure_reason"`
	CompletedAt       *time.Time               `gorm:"column:completed_at"`
	CreatedAt         time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
