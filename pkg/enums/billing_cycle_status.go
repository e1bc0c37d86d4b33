package enums

import "fmt"

// BillingCycleStatus tracks a single period's charge attempt record.
type BillingCycleStatus string

const (
	BillingCycleStatusUpcoming  BillingCycleStatus = "upcoming"
	BillingCycleStatusCompleted BillingCycleStatus = "completed"
	BillingCycleStatusFailed    BillingCycleStatus = "failed"
)

var validBillingCycleStatuses = []BillingCycleStatus{
	BillingCycleStatusUpcoming,
	BillingCycleStatusCompleted,
	BillingCycleStatusFailed,
}

// String implements fmt.Stringer.
func (s BillingCycleStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s BillingCycleStatus) IsValid() bool {
	for _, candidate := range validBillingCycleStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseBillingCycleStatus converts raw input into a BillingCycleStatus.
func ParseBillingCycleStatus(value string) (BillingCycleStatus, error) {
	for _, candidate := range validBillingCycleStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid billing cycle status %q", value)
}
