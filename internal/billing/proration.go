package billing

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MVP-Lab-SA/dakkah-cityos-medusa-sub009/pkg/db/models"
	"github.com/MVP-Lab-SA/dakkah-cityos-medusa-sub009/pkg/enums"
)

var oneHundred = decimal.NewFromInt(100)

// DiscountAmount computes the discount a code takes off a subtotal, in minor
// currency units. Percentage values round half away from zero; the result is
// clamped to [0, subtotal] so a fixed discount can never push a total negative.
func DiscountAmount(subtotalCents int64, discount models.SubscriptionDiscount) int64 {
	if subtotalCents <= 0 {
		return 0
	}

	var amount int64
	switch discount.DiscountType {
	case enums.DiscountTypePercentage:
		amount = decimal.NewFromInt(subtotalCents).
			Mul(decimal.NewFromInt(discount.Value)).
			Div(oneHundred).
			Round(0).
			IntPart()
	case enums.DiscountTypeFixed:
		amount = discount.Value
	default:
		return 0
	}

	if amount < 0 {
		return 0
	}
	if amount > subtotalCents {
		return subtotalCents
	}
	return amount
}

// ProrationAdjustment computes the signed amount owed for switching plans
// mid-period: (new price - old price) scaled by the fraction of the period
// remaining. Positive means the customer owes a charge, negative a credit,
// zero means no adjustment is recorded.
func ProrationAdjustment(oldPriceCents, newPriceCents int64, daysRemaining, periodDays int) int64 {
	if periodDays <= 0 || daysRemaining <= 0 {
		return 0
	}
	if daysRemaining > periodDays {
		daysRemaining = periodDays
	}

	return decimal.NewFromInt(newPriceCents - oldPriceCents).
		Mul(decimal.NewFromInt(int64(daysRemaining))).
		Div(decimal.NewFromInt(int64(periodDays))).
		Round(0).
		IntPart()
}

// PeriodDays converts period bounds into the whole-day counts the proration
// formula expects. Partial days remaining round up, so a switch an hour
// before renewal still prorates one day.
func PeriodDays(periodStart, periodEnd, now time.Time) (daysRemaining, periodDays int) {
	if !periodEnd.After(periodStart) {
		return 0, 0
	}

	periodDays = int(math.Ceil(periodEnd.Sub(periodStart).Hours() / 24))
	if now.Before(periodStart) {
		now = periodStart
	}
	if remaining := periodEnd.Sub(now); remaining > 0 {
		daysRemaining = int(math.Ceil(remaining.Hours() / 24))
	}
	if daysRemaining > periodDays {
		daysRemaining = periodDays
	}
	return daysRemaining, periodDays
}
