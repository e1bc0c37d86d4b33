package enums

import "fmt"

// SubscriptionEventType labels an append-only audit record.
type SubscriptionEventType string

const (
	EventSubscriptionCreated   SubscriptionEventType = "subscription.created"
	EventSubscriptionActivated SubscriptionEventType = "subscription.activated"
	EventSubscriptionPaused    SubscriptionEventType = "subscription.paused"
	EventSubscriptionResumed   SubscriptionEventType = "subscription.resumed"
	EventSubscriptionCanceled  SubscriptionEventType = "subscription.canceled"
	EventSubscriptionExpired   SubscriptionEventType = "subscription.expired"
	EventSubscriptionRenewed   SubscriptionEventType = "subscription.renewed"
	EventPlanChanged           SubscriptionEventType = "subscription.plan_changed"
	EventDiscountApplied       SubscriptionEventType = "subscription.discount_applied"
	EventBillingCycleCreated   SubscriptionEventType = "billing.cycle_created"
	EventBillingCycleCompleted SubscriptionEventType = "billing.cycle_completed"
	EventBillingPaymentFailed  SubscriptionEventType = "billing.payment_failed"
	EventBillingEscalated      SubscriptionEventType = "billing.escalated_past_due"
)

var validSubscriptionEventTypes = []SubscriptionEventType{
	EventSubscriptionCreated,
	EventSubscriptionActivated,
	EventSubscriptionPaused,
	EventSubscriptionResumed,
	EventSubscriptionCanceled,
	EventSubscriptionExpired,
	EventSubscriptionRenewed,
	EventPlanChanged,
	EventDiscountApplied,
	EventBillingCycleCreated,
	EventBillingCycleCompleted,
	EventBillingPaymentFailed,
	EventBillingEscalated,
}

// String implements fmt.Stringer.
func (e SubscriptionEventType) String() string {
	return string(e)
}

// IsValid reports whether the value is known.
func (e SubscriptionEventType) IsValid() bool {
	for _, candidate := range validSubscriptionEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseSubscriptionEventType converts raw input into a SubscriptionEventType.
func ParseSubscriptionEventType(value string) (SubscriptionEventType, error) {
	for _, candidate := range validSubscriptionEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid subscription event type %q", value)
}
