package billing

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/MVP-Lab-SA/dakkah-cityos-medusa-sub009/pkg/db/models"
	"github.com/MVP-Lab-SA/dakkah-cityos-medusa-sub009/pkg/enums"
)

func setupBillingTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	schemas := []string{`
CREATE TABLE IF NOT EXISTS billing_plans (
  id TEXT PRIMARY KEY,
  tenant_id TEXT NOT NULL,
  name TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'active',
  interval TEXT NOT NULL,
  interval_count INTEGER NOT NULL DEFAULT 1,
  price_cents INTEGER NOT NULL,
  currency_code TEXT NOT NULL,
  trial_period_days INTEGER NOT NULL DEFAULT 0,
  is_default INTEGER NOT NULL DEFAULT 0,
  features TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS subscriptions (
  id TEXT PRIMARY KEY,
  tenant_id TEXT NOT NULL,
  customer_id TEXT NOT NULL,
  plan_id TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'draft',
  interval TEXT NOT NULL,
  interval_count INTEGER NOT NULL DEFAULT 1,
  currency_code TEXT NOT NULL,
  subtotal_cents INTEGER NOT NULL DEFAULT 0,
  discount_cents INTEGER NOT NULL DEFAULT 0,
  total_cents INTEGER NOT NULL DEFAULT 0,
  current_period_start DATETIME,
  current_period_end DATETIME,
  trial_end DATETIME,
  end_date DATETIME,
  canceled_at DATETIME,
  retry_count INTEGER NOT NULL DEFAULT 0,
  max_retry_attempts INTEGER NOT NULL DEFAULT 3,
  metadata TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS subscription_items (
  id TEXT PRIMARY KEY,
  subscription_id TEXT NOT NULL,
  price_ref TEXT NOT NULL,
  name TEXT NOT NULL,
  quantity INTEGER NOT NULL DEFAULT 1,
  unit_price_cents INTEGER NOT NULL,
  created_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS billing_cycles (
  id TEXT PRIMARY KEY,
  tenant_id TEXT NOT NULL,
  subscription_id TEXT NOT NULL,
  billing_date DATETIME NOT NULL,
  status TEXT NOT NULL DEFAULT 'upcoming',
  attempt_count INTEGER NOT NULL DEFAULT 0,
  total_cents INTEGER NOT NULL,
  currency_code TEXT NOT NULL,
  last_failure_reason TEXT,
  completed_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE UNIQUE INDEX IF NOT EXISTS ux_billing_cycles_upcoming ON billing_cycles (subscription_id)
  WHERE status = 'upcoming';`, `
CREATE TABLE IF NOT EXISTS subscription_pauses (
  id TEXT PRIMARY KEY,
  subscription_id TEXT NOT NULL,
  paused_at DATETIME NOT NULL,
  resumed_at DATETIME,
  reason TEXT,
  created_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS subscription_discounts (
  id TEXT PRIMARY KEY,
  tenant_id TEXT NOT NULL,
  code TEXT NOT NULL,
  discount_type TEXT NOT NULL,
  value INTEGER NOT NULL,
  is_active INTEGER NOT NULL DEFAULT 1,
  max_redemptions INTEGER,
  current_redemptions INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE UNIQUE INDEX IF NOT EXISTS ux_discount_tenant_code ON subscription_discounts (tenant_id, code);`, `
CREATE TABLE IF NOT EXISTS subscription_events (
  id TEXT PRIMARY KEY,
  subscription_id TEXT NOT NULL,
  event_type TEXT NOT NULL,
  metadata TEXT,
  created_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS subscription_adjustments (
  id TEXT PRIMARY KEY,
  subscription_id TEXT NOT NULL,
  type TEXT NOT NULL,
  amount_cents INTEGER NOT NULL,
  currency_code TEXT NOT NULL,
  description TEXT,
  created_at DATETIME
);`}
	for _, schema := range schemas {
		require.NoError(t, db.Exec(schema).Error)
	}
	return db
}

func newTestSubscription(t *testing.T, db *gorm.DB, status enums.SubscriptionStatus) *models.Subscription {
	t.Helper()

	sub := &models.Subscription{
		ID:            uuid.New(),
		TenantID:      uuid.New(),
		CustomerID:    uuid.New(),
		PlanID:        uuid.New(),
		Status:        status,
		Interval:      enums.BillingIntervalMonth,
		IntervalCount: 1,
		CurrencyCode:  "USD",
		SubtotalCents: 10000,
		TotalCents:    10000,
	}
	require.NoError(t, db.Create(sub).Error)
	return sub
}

func TestFindSubscriptionByIDMissing(t *testing.T) {
	db := setupBillingTestDB(t)
	repo := NewRepository(db)

	sub, err := repo.FindSubscriptionByID(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, sub)
}

func TestListDueCyclesOrdersAndFilters(t *testing.T) {
	db := setupBillingTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	later := newTestSubscription(t, db, enums.SubscriptionStatusActive)
	earlier := newTestSubscription(t, db, enums.SubscriptionStatusActive)
	future := newTestSubscription(t, db, enums.SubscriptionStatusActive)
	done := newTestSubscription(t, db, enums.SubscriptionStatusActive)
	paused := newTestSubscription(t, db, enums.SubscriptionStatusPaused)
	delinquent := newTestSubscription(t, db, enums.SubscriptionStatusPastDue)

	mk := func(sub *models.Subscription, due time.Time, status enums.BillingCycleStatus) *models.BillingCycle {
		cycle := &models.BillingCycle{
			ID:             uuid.New(),
			TenantID:       sub.TenantID,
			SubscriptionID: sub.ID,
			BillingDate:    due,
			Status:         status,
			TotalCents:     sub.TotalCents,
			CurrencyCode:   sub.CurrencyCode,
		}
		require.NoError(t, repo.CreateBillingCycle(ctx, cycle))
		return cycle
	}

	second := mk(later, now.Add(-time.Hour), enums.BillingCycleStatusUpcoming)
	first := mk(earlier, now.Add(-48*time.Hour), enums.BillingCycleStatusUpcoming)
	mk(future, now.Add(72*time.Hour), enums.BillingCycleStatusUpcoming)
	mk(done, now.Add(-time.Hour), enums.BillingCycleStatusCompleted)
	// a paused subscription's cycle stays parked, a past_due one stays billable
	mk(paused, now.Add(-24*time.Hour), enums.BillingCycleStatusUpcoming)
	third := mk(delinquent, now.Add(-time.Minute), enums.BillingCycleStatusUpcoming)

	cycles, err := repo.ListDueCycles(ctx, ListDueCyclesQuery{Before: now, Limit: 10})
	require.NoError(t, err)
	require.Len(t, cycles, 3)
	assert.Equal(t, first.ID, cycles[0].ID)
	assert.Equal(t, second.ID, cycles[1].ID)
	assert.Equal(t, third.ID, cycles[2].ID)

	cycles, err = repo.ListDueCycles(ctx, ListDueCyclesQuery{Before: now, Limit: 1})
	require.NoError(t, err)
	require.Len(t, cycles, 1)
	assert.Equal(t, first.ID, cycles[0].ID)
}

func TestUpcomingCycleUniquePerSubscription(t *testing.T) {
	db := setupBillingTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	sub := newTestSubscription(t, db, enums.SubscriptionStatusActive)
	first := &models.BillingCycle{
		ID:             uuid.New(),
		TenantID:       sub.TenantID,
		SubscriptionID: sub.ID,
		BillingDate:    time.Now().UTC(),
		Status:         enums.BillingCycleStatusUpcoming,
		TotalCents:     sub.TotalCents,
		CurrencyCode:   sub.CurrencyCode,
	}
	require.NoError(t, repo.CreateBillingCycle(ctx, first))

	dup := &models.BillingCycle{
		ID:             uuid.New(),
		TenantID:       sub.TenantID,
		SubscriptionID: sub.ID,
		BillingDate:    time.Now().UTC().Add(time.Hour),
		Status:         enums.BillingCycleStatusUpcoming,
		TotalCents:     sub.TotalCents,
		CurrencyCode:   sub.CurrencyCode,
	}
	assert.Error(t, repo.CreateBillingCycle(ctx, dup))

	found, err := repo.FindUpcomingCycle(ctx, sub.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, first.ID, found.ID)
}

func TestFindOpenPause(t *testing.T) {
	db := setupBillingTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	sub := newTestSubscription(t, db, enums.SubscriptionStatusPaused)
	closedAt := now.Add(-time.Hour)
	require.NoError(t, repo.CreatePause(ctx, &models.SubscriptionPause{
		ID:             uuid.New(),
		SubscriptionID: sub.ID,
		PausedAt:       now.Add(-48 * time.Hour),
		ResumedAt:      &closedAt,
	}))
	open := &models.SubscriptionPause{
		ID:             uuid.New(),
		SubscriptionID: sub.ID,
		PausedAt:       now,
	}
	require.NoError(t, repo.CreatePause(ctx, open))

	found, err := repo.FindOpenPause(ctx, sub.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, open.ID, found.ID)

	resumed := now.Add(time.Minute)
	found.ResumedAt = &resumed
	require.NoError(t, repo.UpdatePause(ctx, found))

	found, err = repo.FindOpenPause(ctx, sub.ID)
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestFindDiscountByCodeScopedToTenant(t *testing.T) {
	db := setupBillingTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	tenantA := uuid.New()
	tenantB := uuid.New()
	discount := &models.SubscriptionDiscount{
		ID:           uuid.New(),
		TenantID:     tenantA,
		Code:         "SAVE10",
		DiscountType: enums.DiscountTypePercentage,
		Value:        10,
		IsActive:     true,
	}
	require.NoError(t, db.Create(discount).Error)

	found, err := repo.FindDiscountByCode(ctx, tenantA, "SAVE10")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, discount.ID, found.ID)

	found, err = repo.FindDiscountByCode(ctx, tenantB, "SAVE10")
	require.NoError(t, err)
	assert.Nil(t, found)

	found, err = repo.FindDiscountByCode(ctx, tenantA, "")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestListEventsPaginates(t *testing.T) {
	db := setupBillingTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	sub := newTestSubscription(t, db, enums.SubscriptionStatusActive)
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.AppendEvent(ctx, &models.SubscriptionEvent{
			ID:             uuid.New(),
			SubscriptionID: sub.ID,
			EventType:      enums.EventSubscriptionRenewed,
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
		}))
	}

	events, cursor, err := repo.ListEvents(ctx, ListEventsQuery{SubscriptionID: sub.ID, Limit: 3})
	require.NoError(t, err)
	require.Len(t, events, 3)
	require.NotNil(t, cursor)
	// newest first
	assert.True(t, events[0].CreatedAt.After(events[1].CreatedAt))

	rest, cursor, err := repo.ListEvents(ctx, ListEventsQuery{SubscriptionID: sub.ID, Limit: 3, Cursor: cursor})
	require.NoError(t, err)
	require.Len(t, rest, 2)
	assert.Nil(t, cursor)
	assert.True(t, events[2].CreatedAt.After(rest[0].CreatedAt))
}

func TestReplaceSubscriptionItems(t *testing.T) {
	db := setupBillingTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	sub := newTestSubscription(t, db, enums.SubscriptionStatusActive)
	require.NoError(t, repo.CreateSubscriptionItems(ctx, []models.SubscriptionItem{{
		ID:             uuid.New(),
		SubscriptionID: sub.ID,
		PriceRef:       "plan-basic",
		Name:           "Basic",
		Quantity:       1,
		UnitPriceCents: 10000,
	}}))

	require.NoError(t, repo.ReplaceSubscriptionItems(ctx, sub.ID, []models.SubscriptionItem{{
		ID:             uuid.New(),
		SubscriptionID: sub.ID,
		PriceRef:       "plan-pro",
		Name:           "Pro",
		Quantity:       1,
		UnitPriceCents: 25000,
	}}))

	items, err := repo.ListSubscriptionItems(ctx, sub.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "plan-pro", items[0].PriceRef)
}

func TestSweepListsScopeByStatusAndDate(t *testing.T) {
	db := setupBillingTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	ended := newTestSubscription(t, db, enums.SubscriptionStatusActive)
	ended.EndDate = &past
	require.NoError(t, repo.UpdateSubscription(ctx, ended))

	notYet := newTestSubscription(t, db, enums.SubscriptionStatusActive)
	notYet.EndDate = &future
	require.NoError(t, repo.UpdateSubscription(ctx, notYet))

	trialDone := newTestSubscription(t, db, enums.SubscriptionStatusDraft)
	trialDone.TrialEnd = &past
	require.NoError(t, repo.UpdateSubscription(ctx, trialDone))

	subs, err := repo.ListSubscriptionsPastEndDate(ctx, now, 0)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, ended.ID, subs[0].ID)

	subs, err = repo.ListSubscriptionsPastTrialEnd(ctx, now, 0)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, trialDone.ID, subs[0].ID)
}
