package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/MVP-Lab-SA/dakkah-cityos-medusa-sub009/pkg/enums"
)

// BillingPlan is a catalog row a subscription is created from.
type BillingPlan struct {
	ID              uuid.UUID             `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	TenantID        uuid.UUID             `gorm:"column:tenant_id;type:uuid;not null;index"`
	Name            string                `gorm:"column:name;not null"`
	Status          enums.PlanStatus      `gorm:"column:status;type:plan_status;not null;default:'active'"`
	Interval        enums.BillingInterval `gorm:"column:interval;type:billing_interval;not null"`
	IntervalCount   int                   `gorm:"column:interval_count;not null;default:1"`
	PriceCents      int64                 `gorm:"column:price_cents;not null"`
	CurrencyCode    string                `gorm:"column:currency_code;not null"`
	TrialPeriodDays int                   `gorm:"column:trial_period_days;not null;default:0"`
	IsDefault       bool                  `gorm:"column:is_default;not null;default:false"`
	Features        pq.StringArray        `gorm:"column:features;type:text[];default:ARRAY[]::text[]"`
	CreatedAt       time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}
