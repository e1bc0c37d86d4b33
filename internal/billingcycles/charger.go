package billingcycles

import (
	"context"

	"github.com/google/uuid"
)

// ChargeRequest describes one cycle's charge attempt.
type ChargeRequest struct {
	TenantID       uuid.UUID
	SubscriptionID uuid.UUID
	CycleID        uuid.UUID
	AmountCents    int64
	CurrencyCode   string
}

// ChargeResult reports the outcome of a charge attempt. A declined charge is
// not an error; errors are reserved for the charger itself failing.
type ChargeResult struct {
	Paid          bool
	FailureReason string
}

// Charger collects payment for a billing cycle.
type Charger interface {
	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
}

// ChargerFunc adapts a function to the Charger interface.
type ChargerFunc func(ctx context.Context, req ChargeRequest) (ChargeResult, error)

func (f ChargerFunc) Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	return f(ctx, req)
}

// AutoApproveCharger approves every charge. It stands in for a payment
// gateway in environments where collection happens out of band.
type AutoApproveCharger struct{}

func (AutoApproveCharger) Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	return ChargeResult{Paid: true}, nil
}
