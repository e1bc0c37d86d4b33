package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/MVP-Lab-SA/dakkah-cityos-medusa-sub009/pkg/enums"
)

// Subscription persists one customer's recurring commitment to a plan.
type Subscription struct {
	ID                 uuid.UUID                `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	TenantID           uuid.UUID                `gorm:"column:tenant_id;type:uuid;not null;index"`
	CustomerID         uuid.UUID                `gorm:"column:customer_id;type:uuid;not null;index"`
	PlanID             uuid.UUID                `gorm:"column:plan_id;type:uuid;not null"`
	Status             enums.SubscriptionStatus `gorm:"column:status;type:subscription_status;not null;default:'draft'"`
	Interval           enums.BillingInterval    `gorm:"column:interval;type:billing_interval;not null"`
	IntervalCount      int                      `gorm:"column:interval_count;not null;default:1"`
	CurrencyCode       string                   `gorm:"column:currency_code;not null"`
	SubtotalCents      int64                    `gorm:"column:subtotal_cents;not null;default:0"`
	DiscountCents      int64                    `gorm:"column:discount_cents;not null;default:0"`
	TotalCents         int64                    `gorm:"column:total_cents;not null;default:0"`
	CurrentPeriodStart *time.Time               `gorm:"column:current_period_start"`
	CurrentPeriodEnd   *time.Time               `gorm:"column:current_period_end"`
	TrialEnd           *time.Time               `gorm:"column:trial_end"`
	EndDate            *time.Time               `gorm:"column:end_date"`
	CanceledAt         *time.Time               `gorm:"column:canceled_at"`
	RetryCount         int                      `gorm:"column:retry_count;not null;default:0"`
	MaxRetryAttempts   int                      `gorm:"column:max_retry_attempts;not null;default:3"`
	Metadata           json.RawMessage          `gorm:"column:metadata;type:jsonb"`
	CreatedAt          time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
