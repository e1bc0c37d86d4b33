package enums

import "fmt"

// BillingInterval is the unit a subscription's billing period advances by.
type BillingInterval string

const (
	BillingIntervalDay     BillingInterval = "day"
	BillingIntervalWeek    BillingInterval = "week"
	BillingIntervalMonth   BillingInterval = "month"
	BillingIntervalQuarter BillingInterval = "quarter"
	BillingIntervalYear    BillingInterval = "year"
)

var validBillingIntervals = []BillingInterval{
	BillingIntervalDay,
	BillingIntervalWeek,
	BillingIntervalMonth,
	BillingIntervalQuarter,
	BillingIntervalYear,
}

// String implements fmt.Stringer.
func (b BillingInterval) String() string {
	return string(b)
}

// IsValid reports whether the value is a known BillingInterval.
func (b BillingInterval) IsValid() bool {
	for _, candidate := range validBillingIntervals {
		if candidate == b {
			return true
		}
	}
	return false
}

// ParseBillingInterval converts raw input into a BillingInterval.
func ParseBillingInterval(value string) (BillingInterval, error) {
	for _, candidate := range validBillingIntervals {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid billing interval %q", value)
}
