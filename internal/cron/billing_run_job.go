package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/MVP-Lab-SA/dakkah-cityos-medusa-sub009/internal/billingcycles"
	"github.com/MVP-Lab-SA/dakkah-cityos-medusa-sub009/pkg/db/models"
	"github.com/MVP-Lab-SA/dakkah-cityos-medusa-sub009/pkg/logger"
	"github.com/MVP-Lab-SA/dakkah-cityos-medusa-sub009/pkg/metrics"
)

const defaultBillingRunLimit = 250

type cycleScheduler interface {
	ListDue(ctx context.Context, before time.Time, limit int) ([]models.BillingCycle, error)
	Process(ctx context.Context, cycleID uuid.UUID) error
	HandleFailure(ctx context.Context, cycleID uuid.UUID, reason string) (bool, error)
}

// BillingRunJobParams configures the recurring billing sweep.
type BillingRunJobParams struct {
	Logger  *logger.Logger
	Cycles  cycleScheduler
	Charger billingcycles.Charger
	Metrics *metrics.BillingSweepMetrics
	Limit   int
	Now     func() time.Time
}

// NewBillingRunJob builds the cron job that charges due billing cycles.
func NewBillingRunJob(params BillingRunJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Cycles == nil {
		return nil, fmt.Errorf("cycle service required")
	}
	if params.Charger == nil {
		return nil, fmt.Errorf("charger required")
	}
	if params.Limit <= 0 {
		params.Limit = defaultBillingRunLimit
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &billingRunJob{
		logg:    params.Logger,
		cycles:  params.Cycles,
		charger: params.Charger,
		metrics: params.Metrics,
		limit:   params.Limit,
		now:     params.Now,
	}, nil
}

type billingRunJob struct {
	logg    *logger.Logger
	cycles  cycleScheduler
	charger billingcycles.Charger
	metrics *metrics.BillingSweepMetrics
	limit   int
	now     func() time.Time
}

func (j *billingRunJob) Name() string { return "billing-cycle-run" }

// Run charges every due cycle oldest-first. One subscription's bad day never
// blocks the rest of the sweep; failures are collected and reported together.
func (j *billingRunJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	due, err := j.cycles.ListDue(ctx, now, j.limit)
	if err != nil {
		return fmt.Errorf("list due cycles: %w", err)
	}
	j.metrics.SetDueBacklog(len(due))

	var errs error
	charged, failed := 0, 0
	for _, cycle := range due {
		result, err := j.charger.Charge(ctx, billingcycles.ChargeRequest{
			TenantID:       cycle.TenantID,
			SubscriptionID: cycle.SubscriptionID,
			CycleID:        cycle.ID,
			AmountCents:    cycle.TotalCents,
			CurrencyCode:   cycle.CurrencyCode,
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("charge cycle %s: %w", cycle.ID, err))
			j.metrics.IncCycle("error")
			continue
		}

		if result.Paid {
			if err := j.cycles.Process(ctx, cycle.ID); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("process cycle %s: %w", cycle.ID, err))
				j.metrics.IncCycle("error")
				continue
			}
			j.metrics.IncCycle("completed")
			charged++
			continue
		}

		escalated, err := j.cycles.HandleFailure(ctx, cycle.ID, result.FailureReason)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("record failure for cycle %s: %w", cycle.ID, err))
			j.metrics.IncCycle("error")
			continue
		}
		j.metrics.IncCycle("failed")
		if escalated {
			j.metrics.IncEscalated()
		}
		failed++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"due":     len(due),
		"charged": charged,
		"failed":  failed,
	})
	j.logg.Info(logCtx, "billing sweep complete")
	return errs
}
