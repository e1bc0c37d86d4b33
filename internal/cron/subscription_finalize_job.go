package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/MVP-Lab-SA/dakkah-cityos-medusa-sub009/pkg/logger"
)

const defaultFinalizeLimit = 250

type lifecycleSweeper interface {
	FinalizeEndedSubscriptions(ctx context.Context, before time.Time, limit int) (int, error)
	ActivateMaturedTrials(ctx context.Context, before time.Time, limit int) (int, error)
}

// SubscriptionFinalizeJobParams configures the end-of-term sweep.
type SubscriptionFinalizeJobParams struct {
	Logger        *logger.Logger
	Subscriptions lifecycleSweeper
	Limit         int
	Now           func() time.Time
}

// NewSubscriptionFinalizeJob builds the cron job that terminates
// subscriptions whose end date has passed.
func NewSubscriptionFinalizeJob(params SubscriptionFinalizeJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Subscriptions == nil {
		return nil, fmt.Errorf("subscription service required")
	}
	if params.Limit <= 0 {
		params.Limit = defaultFinalizeLimit
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &subscriptionFinalizeJob{
		logg:  params.Logger,
		subs:  params.Subscriptions,
		limit: params.Limit,
		now:   params.Now,
	}, nil
}

type subscriptionFinalizeJob struct {
	logg  *logger.Logger
	subs  lifecycleSweeper
	limit int
	now   func() time.Time
}

func (j *subscriptionFinalizeJob) Name() string { return "subscription-finalize" }

func (j *subscriptionFinalizeJob) Run(ctx context.Context) error {
	finalized, err := j.subs.FinalizeEndedSubscriptions(ctx, j.now().UTC(), j.limit)
	logCtx := j.logg.WithField(ctx, "finalized", finalized)
	j.logg.Info(logCtx, "subscription finalize sweep complete")
	return err
}

// TrialMaturityJobParams configures the trial activation sweep.
type TrialMaturityJobParams struct {
	Logger        *logger.Logger
	Subscriptions lifecycleSweeper
	Limit         int
	Now           func() time.Time
}

// NewTrialMaturityJob builds the cron job that activates draft subscriptions
// whose trial window has closed.
func NewTrialMaturityJob(params TrialMaturityJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Subscriptions == nil {
		return nil, fmt.Errorf("subscription service required")
	}
	if params.Limit <= 0 {
		params.Limit = defaultFinalizeLimit
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &trialMaturityJob{
		logg:  params.Logger,
		subs:  params.Subscriptions,
		limit: params.Limit,
		now:   params.Now,
	}, nil
}

type trialMaturityJob struct {
	logg  *logger.Logger
	subs  lifecycleSweeper
	limit int
	now   func() time.Time
}

func (j *trialMaturityJob) Name() string { return "trial-maturity" }

func (j *trialMaturityJob) Run(ctx context.Context) error {
	activated, err := j.subs.ActivateMaturedTrials(ctx, j.now().UTC(), j.limit)
	logCtx := j.logg.WithField(ctx, "activated", activated)
	j.logg.Info(logCtx, "trial maturity sweep complete")
	return err
}
