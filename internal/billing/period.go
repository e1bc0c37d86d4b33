package billing

import (
	"fmt"
	"time"

	"github.com/MVP-Lab-SA/dakkah-cityos-medusa-sub009/pkg/enums"
	pkgerrors "github.com/MVP-Lab-SA/dakkah-cityos-medusa-sub009/pkg/errors"
)

// CalculatePeriodEnd returns the instant one billing period after start.
// Month-based intervals clamp to the last day of the target month, so a
// Jan 31 anchor lands on Feb 28 (Feb 29 in leap years) instead of spilling
// into March. An unknown interval or a non-positive count is rejected with
// CodeInvalidInterval. The result is always strictly after start.
func CalculatePeriodEnd(start time.Time, interval enums.BillingInterval, intervalCount int) (time.Time, error) {
	if intervalCount <= 0 {
		return time.Time{}, pkgerrors.New(pkgerrors.CodeInvalidInterval, fmt.Sprintf("interval count must be positive, got %d", intervalCount))
	}

	switch interval {
	case enums.BillingIntervalDay:
		return start.AddDate(0, 0, intervalCount), nil
	case enums.BillingIntervalWeek:
		return start.AddDate(0, 0, 7*intervalCount), nil
	case enums.BillingIntervalMonth:
		return addMonthsClamped(start, intervalCount), nil
	case enums.BillingIntervalQuarter:
		return addMonthsClamped(start, 3*intervalCount), nil
	case enums.BillingIntervalYear:
		return addMonthsClamped(start, 12*intervalCount), nil
	default:
		return time.Time{}, pkgerrors.New(pkgerrors.CodeInvalidInterval, fmt.Sprintf("unrecognized billing interval %q", interval))
	}
}

// addMonthsClamped advances by whole months without the normalization
// time.AddDate applies (Jan 31 + 1 month must not become Mar 3).
func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	hour, minute, second := t.Clock()

	// day 1 never overflows, so let time.Date normalize the month arithmetic
	anchor := time.Date(year, month+time.Month(months), 1, hour, minute, second, t.Nanosecond(), t.Location())
	if last := daysInMonth(anchor.Year(), anchor.Month()); day > last {
		day = last
	}
	return time.Date(anchor.Year(), anchor.Month(), day, hour, minute, second, t.Nanosecond(), t.Location())
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
