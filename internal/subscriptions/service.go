package subscriptions

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/MVP-Lab-SA/dakkah-cityos-medusa-sub009/internal/billing"
	"github.com/MVP-Lab-SA/dakkah-cityos-medusa-sub009/pkg/db/models"
	"github.com/MVP-Lab-SA/dakkah-cityos-medusa-sub009/pkg/enums"
	pkgerrors "github.com/MVP-Lab-SA/dakkah-cityos-medusa-sub009/pkg/errors"
	"github.com/MVP-Lab-SA/dakkah-cityos-medusa-sub009/pkg/keymutex"
	"github.com/MVP-Lab-SA/dakkah-cityos-medusa-sub009/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service drives the subscription lifecycle. Every transition is guarded by a
// per-subscription lock, runs in a transaction, and appends an audit event in
// the same transaction as the state it records.
type Service interface {
	CreateFromPlan(ctx context.Context, input CreateInput) (*models.Subscription, error)
	Activate(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	Pause(ctx context.Context, id uuid.UUID, reason string) error
	Resume(ctx context.Context, id uuid.UUID) error
	Cancel(ctx context.Context, id uuid.UUID, input CancelInput) error
	ChangePlan(ctx context.Context, id, planID uuid.UUID) (*models.Subscription, error)
	ApplyDiscount(ctx context.Context, id uuid.UUID, code string) error
	Get(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	ListEvents(ctx context.Context, id uuid.UUID, params pagination.Params) ([]models.SubscriptionEvent, *pagination.Cursor, error)
	FinalizeEndedSubscriptions(ctx context.Context, before time.Time, limit int) (int, error)
	ActivateMaturedTrials(ctx context.Context, before time.Time, limit int) (int, error)
}

// CreateInput configures subscription creation. A nil PlanID selects the
// tenant's default plan.
type CreateInput struct {
	TenantID     uuid.UUID
	CustomerID   uuid.UUID
	PlanID       uuid.UUID
	StartTrial   bool
	DiscountCode string
	Metadata     json.RawMessage
}

// CancelInput selects between immediate cancellation and cancellation at the
// end of the current period.
type CancelInput struct {
	Immediately bool
	Reason      string
}

// ServiceParams groups dependencies for the subscription service.
type ServiceParams struct {
	Repo  billing.Repository
	Tx    txRunner
	Locks *keymutex.KeyMutex
	Now   func() time.Time
}

type service struct {
	repo  billing.Repository
	tx    txRunner
	locks *keymutex.KeyMutex
	now   func() time.Time
}

// NewService builds the subscription lifecycle service.
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
	if params.Now == nil {
		params.Now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:  params.Repo,
		tx:    params.Tx,
		locks: params.Locks,
		now:   params.Now,
	}, nil
}

func (s *service) CreateFromPlan(ctx context.Context, input CreateInput) (*models.Subscription, error) {
	if input.TenantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant id required")
	}
	if input.CustomerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}

	now := s.now()
	var result *models.Subscription
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		plan, err := s.loadPlan(ctx, repo, input.TenantID, input.PlanID)
		if err != nil {
			return err
		}

		sub := &models.Subscription{
			TenantID:      input.TenantID,
			CustomerID:    input.CustomerID,
			PlanID:        plan.ID,
			Status:        enums.SubscriptionStatusActive,
			Interval:      plan.Interval,
			IntervalCount: plan.IntervalCount,
			CurrencyCode:  plan.CurrencyCode,
			SubtotalCents: plan.PriceCents,
			TotalCents:    plan.PriceCents,
			Metadata:      input.Metadata,
		}
		if input.StartTrial && plan.TrialPeriodDays > 0 {
			trialEnd := now.AddDate(0, 0, plan.TrialPeriodDays)
			sub.Status = enums.SubscriptionStatusDraft
			sub.TrialEnd = &trialEnd
		}
		if err := repo.CreateSubscription(ctx, sub); err != nil {
			return err
		}
		if err := repo.CreateSubscriptionItems(ctx, []models.SubscriptionItem{planItem(sub.ID, plan)}); err != nil {
			return err
		}
		if err := appendEvent(ctx, repo, sub.ID, enums.EventSubscriptionCreated, map[string]any{
			"plan_id": plan.ID,
			"status":  sub.Status,
			"trial":   sub.TrialEnd != nil,
		}); err != nil {
			return err
		}

		if input.DiscountCode != "" {
			if err := s.redeemDiscount(ctx, repo, sub, input.DiscountCode); err != nil {
				return err
			}
		}

		if sub.Status == enums.SubscriptionStatusActive {
			if err := s.beginPeriod(ctx, repo, sub, now); err != nil {
				return err
			}
		}
		if err := repo.UpdateSubscription(ctx, sub); err != nil {
			return err
		}
		result = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) Activate(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	s.locks.Lock(id.String())
	defer s.locks.Unlock(id.String())

	now := s.now()
	var result *models.Subscription
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		sub, err := s.loadSubscription(ctx, repo, id)
		if err != nil {
			return err
		}
		if err := requireStatus(sub, enums.SubscriptionStatusDraft); err != nil {
			return err
		}

		sub.Status = enums.SubscriptionStatusActive
		if err := s.beginPeriod(ctx, repo, sub, now); err != nil {
			return err
		}
		if err := repo.UpdateSubscription(ctx, sub); err != nil {
			return err
		}
		if err := appendEvent(ctx, repo, sub.ID, enums.EventSubscriptionActivated, nil); err != nil {
			return err
		}
		result = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) Pause(ctx context.Context, id uuid.UUID, reason string) error {
	s.locks.Lock(id.String())
	defer s.locks.Unlock(id.String())

	now := s.now()
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		sub, err := s.loadSubscription(ctx, repo, id)
		if err != nil {
			return err
		}
		if err := requireStatus(sub, enums.SubscriptionStatusActive); err != nil {
			return err
		}

		if err := repo.CreatePause(ctx, &models.SubscriptionPause{
			SubscriptionID: sub.ID,
			PausedAt:       now,
			Reason:         reason,
		}); err != nil {
			return err
		}
		sub.Status = enums.SubscriptionStatusPaused
		if err := repo.UpdateSubscription(ctx, sub); err != nil {
			return err
		}
		return appendEvent(ctx, repo, sub.ID, enums.EventSubscriptionPaused, map[string]any{"reason": reason})
	})
}

// Resume reopens a paused subscription. The current period keeps its original
// boundaries; paused time is not credited back.
func (s *service) Resume(ctx context.Context, id uuid.UUID) error {
	s.locks.Lock(id.String())
	defer s.locks.Unlock(id.String())

	now := s.now()
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		sub, err := s.loadSubscription(ctx, repo, id)
		if err != nil {
			return err
		}
		if err := requireStatus(sub, enums.SubscriptionStatusPaused); err != nil {
			return err
		}

		pause, err := repo.FindOpenPause(ctx, sub.ID)
		if err != nil {
			return err
		}
		if pause != nil {
			resumedAt := now
			pause.ResumedAt = &resumedAt
			if err := repo.UpdatePause(ctx, pause); err != nil {
				return err
			}
		}

		sub.Status = enums.SubscriptionStatusActive
		if err := repo.UpdateSubscription(ctx, sub); err != nil {
			return err
		}
		return appendEvent(ctx, repo, sub.ID, enums.EventSubscriptionResumed, nil)
	})
}

func (s *service) Cancel(ctx context.Context, id uuid.UUID, input CancelInput) error {
	s.locks.Lock(id.String())
	defer s.locks.Unlock(id.String())

	now := s.now()
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		sub, err := s.loadSubscription(ctx, repo, id)
		if err != nil {
			return err
		}
		if sub.Status.IsTerminal() {
			return pkgerrors.New(pkgerrors.CodeAlreadyTerminal, fmt.Sprintf("subscription is already %s", sub.Status))
		}

		if input.Immediately {
			canceledAt := now
			sub.Status = enums.SubscriptionStatusCanceled
			sub.CanceledAt = &canceledAt
			sub.EndDate = &canceledAt
			if err := repo.UpdateSubscription(ctx, sub); err != nil {
				return err
			}
			if err := failOpenCycle(ctx, repo, sub.ID, "subscription canceled"); err != nil {
				return err
			}
			return appendEvent(ctx, repo, sub.ID, enums.EventSubscriptionCanceled, map[string]any{"reason": input.Reason})
		}

		if sub.CurrentPeriodEnd == nil {
			return pkgerrors.New(pkgerrors.CodeNoCurrentPeriod, "subscription has no current period to cancel at")
		}
		canceledAt := now
		sub.CanceledAt = &canceledAt
		sub.EndDate = sub.CurrentPeriodEnd
		if err := repo.UpdateSubscription(ctx, sub); err != nil {
			return err
		}
		return appendEvent(ctx, repo, sub.ID, enums.EventSubscriptionCanceled, map[string]any{
			"reason":        input.Reason,
			"at_period_end": true,
			"effective_at":  sub.EndDate,
		})
	})
}

// ChangePlan switches an active subscription to another plan mid-period. The
// period boundaries stay put; the price difference for the remaining days is
// recorded as a one-time credit or charge instead of rewriting history.
func (s *service) ChangePlan(ctx context.Context, id, planID uuid.UUID) (*models.Subscription, error) {
	s.locks.Lock(id.String())
	defer s.locks.Unlock(id.String())

	now := s.now()
	var result *models.Subscription
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		sub, err := s.loadSubscription(ctx, repo, id)
		if err != nil {
			return err
		}
		if err := requireStatus(sub, enums.SubscriptionStatusActive); err != nil {
			return err
		}
		plan, err := s.loadPlan(ctx, repo, sub.TenantID, planID)
		if err != nil {
			return err
		}
		if sub.CurrentPeriodStart == nil || sub.CurrentPeriodEnd == nil {
			return pkgerrors.New(pkgerrors.CodeNoCurrentPeriod, "subscription has no current period to prorate against")
		}

		daysRemaining, periodDays := billing.PeriodDays(*sub.CurrentPeriodStart, *sub.CurrentPeriodEnd, now)
		delta := billing.ProrationAdjustment(sub.SubtotalCents, plan.PriceCents, daysRemaining, periodDays)
		if delta != 0 {
			adjustment := &models.SubscriptionAdjustment{
				SubscriptionID: sub.ID,
				Type:           enums.AdjustmentTypeCharge,
				AmountCents:    delta,
				CurrencyCode:   plan.CurrencyCode,
				Description:    fmt.Sprintf("plan change to %s", plan.Name),
			}
			if delta < 0 {
				adjustment.Type = enums.AdjustmentTypeCredit
				adjustment.AmountCents = -delta
			}
			if err := repo.CreateAdjustment(ctx, adjustment); err != nil {
				return err
			}
		}

		if err := repo.ReplaceSubscriptionItems(ctx, sub.ID, []models.SubscriptionItem{planItem(sub.ID, plan)}); err != nil {
			return err
		}

		previousPlanID := sub.PlanID
		sub.PlanID = plan.ID
		sub.Interval = plan.Interval
		sub.IntervalCount = plan.IntervalCount
		sub.CurrencyCode = plan.CurrencyCode
		sub.SubtotalCents = plan.PriceCents
		if sub.DiscountCents > sub.SubtotalCents {
			sub.DiscountCents = sub.SubtotalCents
		}
		sub.TotalCents = sub.SubtotalCents - sub.DiscountCents
		if err := repo.UpdateSubscription(ctx, sub); err != nil {
			return err
		}
		if err := syncUpcomingCycleTotal(ctx, repo, sub); err != nil {
			return err
		}
		if err := appendEvent(ctx, repo, sub.ID, enums.EventPlanChanged, map[string]any{
			"from_plan_id":     previousPlanID,
			"to_plan_id":       plan.ID,
			"adjustment_cents": delta,
		}); err != nil {
			return err
		}
		result = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ApplyDiscount validates and redeems a discount code against a subscription.
// The redemption increment and the subscription totals commit atomically, so
// a capped code can never be over-redeemed by concurrent appliers.
func (s *service) ApplyDiscount(ctx context.Context, id uuid.UUID, code string) error {
	s.locks.Lock(id.String())
	defer s.locks.Unlock(id.String())

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		sub, err := s.loadSubscription(ctx, repo, id)
		if err != nil {
			return err
		}
		if sub.Status.IsTerminal() {
			return pkgerrors.New(pkgerrors.CodeAlreadyTerminal, fmt.Sprintf("subscription is already %s", sub.Status))
		}
		if err := s.redeemDiscount(ctx, repo, sub, code); err != nil {
			return err
		}
		if err := repo.UpdateSubscription(ctx, sub); err != nil {
			return err
		}
		return syncUpcomingCycleTotal(ctx, repo, sub)
	})
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	return s.loadSubscription(ctx, s.repo, id)
}

func (s *service) ListEvents(ctx context.Context, id uuid.UUID, params pagination.Params) ([]models.SubscriptionEvent, *pagination.Cursor, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	return s.repo.ListEvents(ctx, billing.ListEventsQuery{
		SubscriptionID: id,
		Limit:          params.Limit,
		Cursor:         cursor,
	})
}

// FinalizeEndedSubscriptions terminates active subscriptions whose end date
// has passed. Subscriptions with a recorded cancellation request become
// canceled; the rest ran out their fixed term and become expired.
func (s *service) FinalizeEndedSubscriptions(ctx context.Context, before time.Time, limit int) (int, error) {
	subs, err := s.repo.ListSubscriptionsPastEndDate(ctx, before, limit)
	if err != nil {
		return 0, err
	}

	finalized := 0
	var errs error
	for i := range subs {
		if err := s.finalizeEnded(ctx, subs[i].ID, before); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("finalize subscription %s: %w", subs[i].ID, err))
			continue
		}
		finalized++
	}
	return finalized, errs
}

func (s *service) finalizeEnded(ctx context.Context, id uuid.UUID, before time.Time) error {
	s.locks.Lock(id.String())
	defer s.locks.Unlock(id.String())

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		sub, err := s.loadSubscription(ctx, repo, id)
		if err != nil {
			return err
		}
		// re-check under the lock; another worker may have beaten us here
		if sub.Status != enums.SubscriptionStatusActive || sub.EndDate == nil || sub.EndDate.After(before) {
			return nil
		}

		eventType := enums.EventSubscriptionExpired
		if sub.CanceledAt != nil {
			sub.Status = enums.SubscriptionStatusCanceled
			eventType = enums.EventSubscriptionCanceled
		} else {
			sub.Status = enums.SubscriptionStatusExpired
		}
		if err := repo.UpdateSubscription(ctx, sub); err != nil {
			return err
		}
		if err := failOpenCycle(ctx, repo, sub.ID, "subscription ended"); err != nil {
			return err
		}
		return appendEvent(ctx, repo, sub.ID, eventType, map[string]any{"finalized": true})
	})
}

// ActivateMaturedTrials promotes draft subscriptions whose trial window has
// closed.
func (s *service) ActivateMaturedTrials(ctx context.Context, before time.Time, limit int) (int, error) {
	subs, err := s.repo.ListSubscriptionsPastTrialEnd(ctx, before, limit)
	if err != nil {
		return 0, err
	}

	activated := 0
	var errs error
	for i := range subs {
		if _, err := s.Activate(ctx, subs[i].ID); err != nil {
			if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeInvalidTransition {
				continue // another worker got here first
			}
			errs = multierr.Append(errs, fmt.Errorf("activate subscription %s: %w", subs[i].ID, err))
			continue
		}
		activated++
	}
	return activated, errs
}

func (s *service) loadSubscription(ctx context.Context, repo billing.Repository, id uuid.UUID) (*models.Subscription, error) {
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

func (s *service) loadPlan(ctx context.Context, repo billing.Repository, tenantID, planID uuid.UUID) (*models.BillingPlan, error) {
	var (
		plan *models.BillingPlan
		err  error
	)
	if planID == uuid.Nil {
		plan, err = repo.FindDefaultBillingPlan(ctx, tenantID)
	} else {
		plan, err = repo.FindBillingPlanByID(ctx, planID)
	}
	if err != nil {
		return nil, err
	}
	if plan == nil || plan.TenantID != tenantID || plan.Status != enums.PlanStatusActive {
		return nil, pkgerrors.New(pkgerrors.CodePlanNotFound, "billing plan not found")
	}
	return plan, nil
}

// beginPeriod anchors a fresh billing period at start and schedules its
// charge.
func (s *service) beginPeriod(ctx context.Context, repo billing.Repository, sub *models.Subscription, start time.Time) error {
	end, err := billing.CalculatePeriodEnd(start, sub.Interval, sub.IntervalCount)
	if err != nil {
		return err
	}
	sub.CurrentPeriodStart = &start
	sub.CurrentPeriodEnd = &end

	cycle := &models.BillingCycle{
		TenantID:       sub.TenantID,
		SubscriptionID: sub.ID,
		BillingDate:    end,
		Status:         enums.BillingCycleStatusUpcoming,
		TotalCents:     sub.TotalCents,
		CurrencyCode:   sub.CurrencyCode,
	}
	if err := repo.CreateBillingCycle(ctx, cycle); err != nil {
		return err
	}
	return appendEvent(ctx, repo, sub.ID, enums.EventBillingCycleCreated, map[string]any{
		"billing_date": cycle.BillingDate,
		"total_cents":  cycle.TotalCents,
	})
}

func (s *service) redeemDiscount(ctx context.Context, repo billing.Repository, sub *models.Subscription, code string) error {
	discount, err := repo.FindDiscountByCode(ctx, sub.TenantID, code)
	if err != nil {
		return err
	}
	if discount == nil || !discount.IsActive {
		return pkgerrors.New(pkgerrors.CodeDiscountNotFound, fmt.Sprintf("discount code %q not found", code))
	}
	if discount.Exhausted() {
		return pkgerrors.New(pkgerrors.CodeDiscountExhausted, fmt.Sprintf("discount code %q has no redemptions left", code))
	}

	discount.CurrentRedemptions++
	if err := repo.UpdateDiscount(ctx, discount); err != nil {
		return err
	}
	sub.DiscountCents = billing.DiscountAmount(sub.SubtotalCents, *discount)
	sub.TotalCents = sub.SubtotalCents - sub.DiscountCents
	return appendEvent(ctx, repo, sub.ID, enums.EventDiscountApplied, map[string]any{
		"code":           discount.Code,
		"discount_cents": sub.DiscountCents,
	})
}

// requireStatus guards a transition on its entry state. Terminal states report
// CodeAlreadyTerminal only from Cancel and ApplyDiscount; everywhere else a
// wrong state, terminal or not, is an invalid transition.
func requireStatus(sub *models.Subscription, expected enums.SubscriptionStatus) error {
	if sub.Status == expected {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("subscription is %s, expected %s", sub.Status, expected))
}

func planItem(subscriptionID uuid.UUID, plan *models.BillingPlan) models.SubscriptionItem {
	return models.SubscriptionItem{
		SubscriptionID: subscriptionID,
		PriceRef:       plan.ID.String(),
		Name:           plan.Name,
		Quantity:       1,
		UnitPriceCents: plan.PriceCents,
	}
}

// syncUpcomingCycleTotal keeps the scheduled charge aligned with the
// subscription's current total after a price-affecting change.
func syncUpcomingCycleTotal(ctx context.Context, repo billing.Repository, sub *models.Subscription) error {
	cycle, err := repo.FindUpcomingCycle(ctx, sub.ID)
	if err != nil || cycle == nil {
		return err
	}
	cycle.TotalCents = sub.TotalCents
	cycle.CurrencyCode = sub.CurrencyCode
	return repo.UpdateBillingCycle(ctx, cycle)
}

func failOpenCycle(ctx context.Context, repo billing.Repository, subscriptionID uuid.UUID, reason string) error {
	cycle, err := repo.FindUpcomingCycle(ctx, subscriptionID)
	if err != nil || cycle == nil {
		return err
	}
	cycle.Status = enums.BillingCycleStatusFailed
	cycle.LastFailureReason = &reason
	return repo.UpdateBillingCycle(ctx, cycle)
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
