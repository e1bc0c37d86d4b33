package billingcycles

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/MVP-Lab-SA/dakkah-cityos-medusa-sub009/internal/billing"
	"github.com/MVP-Lab-SA/dakkah-cityos-medusa-sub009/pkg/db/models"
	"github.com/MVP-Lab-SA/dakkah-cityos-medusa-sub009/pkg/enums"
	pkgerrors "github.com/MVP-Lab-SA/dakkah-cityos-medusa-sub009/pkg/errors"
	"github.com/MVP-Lab-SA/dakkah-cityos-medusa-sub009/pkg/keymutex"
)

const defaultMaxRetryAttempts = 3

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service schedules billing cycles and settles charge outcomes. Completion,
// the retry counters, and the rolled-over period all commit in one
// transaction under the subscription's lock.
type Service interface {
	ListDue(ctx context.Context, before time.Time, limit int) ([]models.BillingCycle, error)
	CreateForSubscription(ctx context.Context, subscriptionID uuid.UUID) (*models.BillingCycle, error)
	Process(ctx context.Context, cycleID uuid.UUID) error
	HandleFailure(ctx context.Context, cycleID uuid.UUID, reason string) (escalated bool, err error)
	Renew(ctx context.Context, subscriptionID uuid.UUID) error
}

// ServiceParams groups dependencies for the cycle service.
type ServiceParams struct {
	Repo             billing.Repository
	Tx               txRunner
	Locks            *keymutex.KeyMutex
	MaxRetryAttempts int
	Now              func() time.Time
}

type service struct {
	repo        billing.Repository
	tx          txRunner
	locks       *keymutex.KeyMutex
	maxAttempts int
	now         func() time.Time
}

// NewService builds the billing cycle service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Locks == nil {
		params.Locks = keymutex.New()
	}
	if params.MaxRetryAttempts <= 0 {
		params.MaxRetryAttempts = defaultMaxRetryAttempts
	}
	if params.Now == nil {
		params.Now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:        params.Repo,
		tx:          params.Tx,
		locks:       params.Locks,
		maxAttempts: params.MaxRetryAttempts,
		now:         params.Now,
	}, nil
}

func (s *service) ListDue(ctx context.Context, before time.Time, limit int) ([]models.BillingCycle, error) {
	return s.repo.ListDueCycles(ctx, billing.ListDueCyclesQuery{Before: before, Limit: limit})
}

// CreateForSubscription schedules the charge for the subscription's current
// period. If an upcoming cycle already exists it is returned as-is, so a
// crashed-and-retried caller never double-schedules.
func (s *service) CreateForSubscription(ctx context.Context, subscriptionID uuid.UUID) (*models.BillingCycle, error) {
	s.locks.Lock(subscriptionID.String())
	defer s.locks.Unlock(subscriptionID.String())

	var result *models.BillingCycle
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		sub, err := loadSubscription(ctx, repo, subscriptionID)
		if err != nil {
			return err
		}
		existing, err := repo.FindUpcomingCycle(ctx, sub.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			result = existing
			return nil
		}
		if sub.CurrentPeriodEnd == nil {
			return pkgerrors.New(pkgerrors.CodeNoCurrentPeriod, "subscription has no period to schedule a cycle for")
		}

		cycle := &models.BillingCycle{
			TenantID:       sub.TenantID,
			SubscriptionID: sub.ID,
			BillingDate:    *sub.CurrentPeriodEnd,
			Status:         enums.BillingCycleStatusUpcoming,
			TotalCents:     sub.TotalCents,
			CurrencyCode:   sub.CurrencyCode,
		}
		if err := repo.CreateBillingCycle(ctx, cycle); err != nil {
			return err
		}
		if err := appendEvent(ctx, repo, sub.ID, enums.EventBillingCycleCreated, map[string]any{
			"billing_date": cycle.BillingDate,
			"total_cents":  cycle.TotalCents,
		}); err != nil {
			return err
		}
		result = cycle
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Process settles a successfully charged cycle: it completes the cycle,
// clears the retry counters, restores a past_due subscription to active, and
// rolls the period forward.
func (s *service) Process(ctx context.Context, cycleID uuid.UUID) error {
	subscriptionID, err := s.subscriptionForCycle(ctx, cycleID)
	if err != nil {
		return err
	}

	s.locks.Lock(subscriptionID.String())
	defer s.locks.Unlock(subscriptionID.String())

	now := s.now()
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		cycle, err := loadCycle(ctx, repo, cycleID)
		if err != nil {
			return err
		}
		if cycle.Status != enums.BillingCycleStatusUpcoming {
			return pkgerrors.New(pkgerrors.CodeInvalidCycleState, fmt.Sprintf("cycle is %s, only upcoming cycles are processable", cycle.Status))
		}
		sub, err := loadSubscription(ctx, repo, cycle.SubscriptionID)
		if err != nil {
			return err
		}
		if sub.Status == enums.SubscriptionStatusPaused {
			return pkgerrors.New(pkgerrors.CodeInvalidCycleState, "subscription is paused, cycle stays parked until resume")
		}

		completedAt := now
		cycle.Status = enums.BillingCycleStatusCompleted
		cycle.AttemptCount++
		cycle.CompletedAt = &completedAt
		if err := repo.UpdateBillingCycle(ctx, cycle); err != nil {
			return err
		}
		if err := appendEvent(ctx, repo, sub.ID, enums.EventBillingCycleCompleted, map[string]any{
			"cycle_id":    cycle.ID,
			"total_cents": cycle.TotalCents,
			"attempts":    cycle.AttemptCount,
		}); err != nil {
			return err
		}

		sub.RetryCount = 0
		if sub.Status == enums.SubscriptionStatusPastDue {
			sub.Status = enums.SubscriptionStatusActive
		}
		return s.renew(ctx, repo, sub)
	})
}

// HandleFailure records a failed charge attempt. The cycle stays upcoming so
// the next sweep retries it; once the subscription's retry budget is spent
// the subscription escalates to past_due as a signal, still leaving the cycle
// open for one more recovery window.
func (s *service) HandleFailure(ctx context.Context, cycleID uuid.UUID, reason string) (bool, error) {
	subscriptionID, err := s.subscriptionForCycle(ctx, cycleID)
	if err != nil {
		return false, err
	}

	s.locks.Lock(subscriptionID.String())
	defer s.locks.Unlock(subscriptionID.String())

	escalated := false
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		cycle, err := loadCycle(ctx, repo, cycleID)
		if err != nil {
			return err
		}
		if cycle.Status != enums.BillingCycleStatusUpcoming {
			return pkgerrors.New(pkgerrors.CodeInvalidCycleState, fmt.Sprintf("cycle is %s, cannot record a failure", cycle.Status))
		}
		sub, err := loadSubscription(ctx, repo, cycle.SubscriptionID)
		if err != nil {
			return err
		}
		if sub.Status == enums.SubscriptionStatusPaused {
			return pkgerrors.New(pkgerrors.CodeInvalidCycleState, "subscription is paused, cycle stays parked until resume")
		}

		cycle.AttemptCount++
		cycle.LastFailureReason = &reason
		if err := repo.UpdateBillingCycle(ctx, cycle); err != nil {
			return err
		}

		sub.RetryCount++
		if err := appendEvent(ctx, repo, sub.ID, enums.EventBillingPaymentFailed, map[string]any{
			"cycle_id": cycle.ID,
			"attempt":  cycle.AttemptCount,
			"reason":   reason,
		}); err != nil {
			return err
		}

		if sub.RetryCount >= s.maxAttemptsFor(sub) && sub.Status == enums.SubscriptionStatusActive {
			sub.Status = enums.SubscriptionStatusPastDue
			escalated = true
			if err := appendEvent(ctx, repo, sub.ID, enums.EventBillingEscalated, map[string]any{
				"cycle_id": cycle.ID,
				"attempts": sub.RetryCount,
			}); err != nil {
				return err
			}
		}
		return repo.UpdateSubscription(ctx, sub)
	})
	if err != nil {
		return false, err
	}
	return escalated, nil
}

// Renew rolls an active subscription into its next period and schedules the
// next charge.
func (s *service) Renew(ctx context.Context, subscriptionID uuid.UUID) error {
	s.locks.Lock(subscriptionID.String())
	defer s.locks.Unlock(subscriptionID.String())

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		sub, err := loadSubscription(ctx, repo, subscriptionID)
		if err != nil {
			return err
		}
		if existing, err := repo.FindUpcomingCycle(ctx, sub.ID); err != nil {
			return err
		} else if existing != nil {
			return pkgerrors.New(pkgerrors.CodeInvalidCycleState, "a cycle is already scheduled for this subscription")
		}
		return s.renew(ctx, repo, sub)
	})
}

// renew advances the period so the new start is exactly the old end, keeping
// the billing timeline gapless. A subscription past its end date is left for
// the finalizer sweep instead of being rolled over.
func (s *service) renew(ctx context.Context, repo billing.Repository, sub *models.Subscription) error {
	if sub.CurrentPeriodEnd == nil {
		return pkgerrors.New(pkgerrors.CodeNoCurrentPeriod, "subscription has no current period to renew")
	}

	newStart := *sub.CurrentPeriodEnd
	if sub.EndDate != nil && !sub.EndDate.After(newStart) {
		return repo.UpdateSubscription(ctx, sub)
	}

	newEnd, err := billing.CalculatePeriodEnd(newStart, sub.Interval, sub.IntervalCount)
	if err != nil {
		return err
	}
	sub.CurrentPeriodStart = &newStart
	sub.CurrentPeriodEnd = &newEnd
	if err := repo.UpdateSubscription(ctx, sub); err != nil {
		return err
	}

	cycle := &models.BillingCycle{
		TenantID:       sub.TenantID,
		SubscriptionID: sub.ID,
		BillingDate:    newEnd,
		Status:         enums.BillingCycleStatusUpcoming,
		TotalCents:     sub.TotalCents,
		CurrencyCode:   sub.CurrencyCode,
	}
	if err := repo.CreateBillingCycle(ctx, cycle); err != nil {
		return err
	}
	if err := appendEvent(ctx, repo, sub.ID, enums.EventSubscriptionRenewed, map[string]any{
		"period_start": newStart,
		"period_end":   newEnd,
	}); err != nil {
		return err
	}
	return appendEvent(ctx, repo, sub.ID, enums.EventBillingCycleCreated, map[string]any{
		"billing_date": cycle.BillingDate,
		"total_cents":  cycle.TotalCents,
	})
}

func (s *service) maxAttemptsFor(sub *models.Subscription) int {
	if sub.MaxRetryAttempts > 0 {
		return sub.MaxRetryAttempts
	}
	return s.maxAttempts
}

func (s *service) subscriptionForCycle(ctx context.Context, cycleID uuid.UUID) (uuid.UUID, error) {
	cycle, err := loadCycle(ctx, s.repo, cycleID)
	if err != nil {
		return uuid.Nil, err
	}
	return cycle.SubscriptionID, nil
}

func loadCycle(ctx context.Context, repo billing.Repository, id uuid.UUID) (*models.BillingCycle, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cycle id required")
	}
	cycle, err := repo.FindBillingCycleByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cycle == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "billing cycle not found")
	}
	return cycle, nil
}

func loadSubscription(ctx context.Context, repo billing.Repository, id uuid.UUID) (*models.Subscription, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subscription id required")
	}
	sub, err := repo.FindSubscriptionByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
	}
	return sub, nil
}

func appendEvent(ctx context.Context, repo billing.Repository, subscriptionID uuid.UUID, eventType enums.SubscriptionEventType, metadata any) error {
	event := &models.SubscriptionEvent{
		SubscriptionID: subscriptionID,
		EventType:      eventType,
	}
	if metadata != nil {
		raw, err := json.Marshal(metadata)
		if err != nil {
			return err
		}
		event.Metadata = raw
	}
	return repo.AppendEvent(ctx, event)
}
