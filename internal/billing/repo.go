package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/MVP-Lab-SA/dakkah-cityos-medusa-sub009/pkg/db/models"
	"github.com/MVP-Lab-SA/dakkah-cityos-medusa-sub009/pkg/enums"
	"github.com/MVP-Lab-SA/dakkah-cityos-medusa-sub009/pkg/pagination"
)

// Repository handles billing persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateSubscription(ctx context.Context, subscription *models.Subscription) error
	UpdateSubscription(ctx context.Context, subscription *models.Subscription) error
	FindSubscriptionByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	ListSubscriptionsPastEndDate(ctx context.Context, before time.Time, limit int) ([]models.Subscription, error)
	ListSubscriptionsPastTrialEnd(ctx context.Context, before time.Time, limit int) ([]models.Subscription, error)

	CreateSubscriptionItems(ctx context.Context, items []models.SubscriptionItem) error
	ReplaceSubscriptionItems(ctx context.Context, subscriptionID uuid.UUID, items []models.SubscriptionItem) error
	ListSubscriptionItems(ctx context.Context, subscriptionID uuid.UUID) ([]models.SubscriptionItem, error)

	CreateBillingCycle(ctx context.Context, cycle *models.BillingCycle) error
	UpdateBillingCycle(ctx context.Context, cycle *models.BillingCycle) error
	FindBillingCycleByID(ctx context.Context, id uuid.UUID) (*models.BillingCycle, error)
	FindUpcomingCycle(ctx context.Context, subscriptionID uuid.UUID) (*models.BillingCycle, error)
	ListDueCycles(ctx context.Context, params ListDueCyclesQuery) ([]models.BillingCycle, error)

	CreatePause(ctx context.Context, pause *models.SubscriptionPause) error
	UpdatePause(ctx context.Context, pause *models.SubscriptionPause) error
	FindOpenPause(ctx context.Context, subscriptionID uuid.UUID) (*models.SubscriptionPause, error)

	FindDiscountByCode(ctx context.Context, tenantID uuid.UUID, code string) (*models.SubscriptionDiscount, error)
	UpdateDiscount(ctx context.Context, discount *models.SubscriptionDiscount) error

	AppendEvent(ctx context.Context, event *models.SubscriptionEvent) error
	ListEvents(ctx context.Context, params ListEventsQuery) ([]models.SubscriptionEvent, *pagination.Cursor, error)

	FindBillingPlanByID(ctx context.Context, id uuid.UUID) (*models.BillingPlan, error)
	FindDefaultBillingPlan(ctx context.Context, tenantID uuid.UUID) (*models.BillingPlan, error)

	CreateAdjustment(ctx context.Context, adjustment *models.SubscriptionAdjustment) error
	ListAdjustments(ctx context.Context, subscriptionID uuid.UUID) ([]models.SubscriptionAdjustment, error)
}

// ListDueCyclesQuery selects upcoming cycles whose billing date has arrived.
type ListDueCyclesQuery struct {
	Before time.Time
	Limit  int
}

// billableStatuses are the subscription states the sweep may charge. Paused
// subscriptions keep their parked cycle but are never picked up.
var billableStatuses = []enums.SubscriptionStatus{
	enums.SubscriptionStatusActive,
	enums.SubscriptionStatusPastDue,
}

// ListEventsQuery configures cursor-paginated event reads for one subscription.
type ListEventsQuery struct {
	SubscriptionID uuid.UUID
	Limit          int
	Cursor         *pagination.Cursor
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a billing repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateSubscription(ctx context.Context, subscription *models.Subscription) error {
	return r.db.WithContext(ctx).Create(subscription).Error
}

func (r *repository) UpdateSubscription(ctx context.Context, subscription *models.Subscription) error {
	return r.db.WithContext(ctx).Save(subscription).Error
}

func (r *repository) FindSubscriptionByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&sub).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (r *repository) ListSubscriptionsPastEndDate(ctx context.Context, before time.Time, limit int) ([]models.Subscription, error) {
	if limit <= 0 {
		limit = 250
	}
	var subs []models.Subscription
	if err := r.db.WithContext(ctx).
		Where("status = ?", enums.SubscriptionStatusActive).
		Where("end_date IS NOT NULL AND end_date <= ?", before).
		Order("end_date ASC").
		Limit(limit).
		Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *repository) ListSubscriptionsPastTrialEnd(ctx context.Context, before time.Time, limit int) ([]models.Subscription, error) {
	if limit <= 0 {
		limit = 250
	}
	var subs []models.Subscription
	if err := r.db.WithContext(ctx).
		Where("status = ?", enums.SubscriptionStatusDraft).
		Where("trial_end IS NOT NULL AND trial_end <= ?", before).
		Order("trial_end ASC").
		Limit(limit).
		Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *repository) CreateSubscriptionItems(ctx context.Context, items []models.SubscriptionItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *repository) ReplaceSubscriptionItems(ctx context.Context, subscriptionID uuid.UUID, items []models.SubscriptionItem) error {
	if err := r.db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Delete(&models.SubscriptionItem{}).Error; err != nil {
		return err
	}
	return r.CreateSubscriptionItems(ctx, items)
}

func (r *repository) ListSubscriptionItems(ctx context.Context, subscriptionID uuid.UUID) ([]models.SubscriptionItem, error) {
	var items []models.SubscriptionItem
	if err := r.db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("created_at ASC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) CreateBillingCycle(ctx context.Context, cycle *models.BillingCycle) error {
	return r.db.WithContext(ctx).Create(cycle).Error
}

func (r *repository) UpdateBillingCycle(ctx context.Context, cycle *models.BillingCycle) error {
	return r.db.WithContext(ctx).Save(cycle).Error
}

func (r *repository) FindBillingCycleByID(ctx context.Context, id uuid.UUID) (*models.BillingCycle, error) {
	var cycle models.BillingCycle
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&cycle).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &cycle, nil
}

func (r *repository) FindUpcomingCycle(ctx context.Context, subscriptionID uuid.UUID) (*models.BillingCycle, error) {
	var cycle models.BillingCycle
	if err := r.db.WithContext(ctx).
		Where("subscription_id = ? AND status = ?", subscriptionID, enums.BillingCycleStatusUpcoming).
		First(&cycle).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &cycle, nil
}

func (r *repository) ListDueCycles(ctx context.Context, params ListDueCyclesQuery) ([]models.BillingCycle, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = 250
	}
	var cycles []models.BillingCycle
	if err := r.db.WithContext(ctx).
		Model(&models.BillingCycle{}).
		Select("billing_cycles.*").
		Joins("JOIN subscriptions ON subscriptions.id = billing_cycles.subscription_id").
		Where("billing_cycles.status = ? AND billing_cycles.billing_date <= ?", enums.BillingCycleStatusUpcoming, params.Before).
		Where("subscriptions.status IN ?", billableStatuses).
		Order("billing_cycles.billing_date ASC").
		Limit(limit).
		Find(&cycles).Error; err != nil {
		return nil, err
	}
	return cycles, nil
}

func (r *repository) CreatePause(ctx context.Context, pause *models.SubscriptionPause) error {
	return r.db.WithContext(ctx).Create(pause).Error
}

func (r *repository) UpdatePause(ctx context.Context, pause *models.SubscriptionPause) error {
	return r.db.WithContext(ctx).Save(pause).Error
}

func (r *repository) FindOpenPause(ctx context.Context, subscriptionID uuid.UUID) (*models.SubscriptionPause, error) {
	var pause models.SubscriptionPause
	if err := r.db.WithContext(ctx).
		Where("subscription_id = ? AND resumed_at IS NULL", subscriptionID).
		First(&pause).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &pause, nil
}

func (r *repository) FindDiscountByCode(ctx context.Context, tenantID uuid.UUID, code string) (*models.SubscriptionDiscount, error) {
	if code == "" {
		return nil, nil
	}
	var discount models.SubscriptionDiscount
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND code = ?", tenantID, code).
		First(&discount).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &discount, nil
}

func (r *repository) UpdateDiscount(ctx context.Context, discount *models.SubscriptionDiscount) error {
	return r.db.WithContext(ctx).Save(discount).Error
}

func (r *repository) AppendEvent(ctx context.Context, event *models.SubscriptionEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) ListEvents(ctx context.Context, params ListEventsQuery) ([]models.SubscriptionEvent, *pagination.Cursor, error) {
	limit := pagination.NormalizeLimit(params.Limit)
	query := r.db.WithContext(ctx).
		Model(&models.SubscriptionEvent{}).
		Where("subscription_id = ?", params.SubscriptionID)
	if params.Cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var events []models.SubscriptionEvent
	if err := query.Order("created_at DESC, id DESC").Limit(pagination.LimitWithBuffer(limit)).Find(&events).Error; err != nil {
		return nil, nil, err
	}

	if len(events) > limit {
		next := events[limit]
		events = events[:limit]
		return events, &pagination.Cursor{
			CreatedAt: next.CreatedAt,
			ID:        next.ID,
		}, nil
	}

	return events, nil, nil
}

func (r *repository) FindBillingPlanByID(ctx context.Context, id uuid.UUID) (*models.BillingPlan, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var plan models.BillingPlan
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&plan).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &plan, nil
}

func (r *repository) FindDefaultBillingPlan(ctx context.Context, tenantID uuid.UUID) (*models.BillingPlan, error) {
	var plan models.BillingPlan
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND is_default = ?", tenantID, true).
		Where("status = ?", enums.PlanStatusActive).
		Order("updated_at DESC").
		First(&plan).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &plan, nil
}

func (r *repository) CreateAdjustment(ctx context.Context, adjustment *models.SubscriptionAdjustment) error {
	return r.db.WithContext(ctx).Create(adjustment).Error
}

func (r *repository) ListAdjustments(ctx context.Context, subscriptionID uuid.UUID) ([]models.SubscriptionAdjustment, error) {
	var adjustments []models.SubscriptionAdjustment
	if err := r.db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("created_at DESC").
		Find(&adjustments).Error; err != nil {
		return nil, err
	}
	return adjustments, nil
}
