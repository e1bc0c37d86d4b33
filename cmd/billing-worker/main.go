package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/MVP-Lab-SA/dakkah-cityos-medusa-sub009/internal/billing"
	"github.com/MVP-Lab-SA/dakkah-cityos-medusa-sub009/internal/billingcycles"
	"github.com/MVP-Lab-SA/dakkah-cityos-medusa-sub009/internal/cron"
	"github.com/MVP-Lab-SA/dakkah-cityos-medusa-sub009/internal/subscriptions"
	"github.com/MVP-Lab-SA/dakkah-cityos-medusa-sub009/pkg/config"
	"github.com/MVP-Lab-SA/dakkah-cityos-medusa-sub009/pkg/db"
	"github.com/MVP-Lab-SA/dakkah-cityos-medusa-sub009/pkg/keymutex"
	"github.com/MVP-Lab-SA/dakkah-cityos-medusa-sub009/pkg/logger"
	"github.com/MVP-Lab-SA/dakkah-cityos-medusa-sub009/pkg/metrics"
	"github.com/MVP-Lab-SA/dakkah-cityos-medusa-sub009/pkg/migrate"
	"github.com/MVP-Lab-SA/dakkah-cityos-medusa-sub009/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "billing-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "billing-worker"

	logg = logger.New(logger.Options{
		ServiceName: "billing-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	locks := keymutex.New()
	billingRepo := billing.NewRepository(dbClient.DB())

	subscriptionSvc, err := subscriptions.NewService(subscriptions.ServiceParams{
		Repo:  billingRepo,
		Tx:    dbClient,
		Locks: locks,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create subscription service", err)
		os.Exit(1)
	}

	cycleSvc, err := billingcycles.NewService(billingcycles.ServiceParams{
		Repo:             billingRepo,
		Tx:               dbClient,
		Locks:            locks,
		MaxRetryAttempts: cfg.Billing.MaxRetryAttempts,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create billing cycle service", err)
		os.Exit(1)
	}

	sweepMetrics := metrics.NewBillingSweepMetrics(prometheus.DefaultRegisterer)
	billingJob, err := cron.NewBillingRunJob(cron.BillingRunJobParams{
		Logger:  logg,
		Cycles:  cycleSvc,
		Charger: billingcycles.AutoApproveCharger{},
		Metrics: sweepMetrics,
		Limit:   cfg.Billing.DueBatchLimit,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create billing run job", err)
		os.Exit(1)
	}
	finalizeJob, err := cron.NewSubscriptionFinalizeJob(cron.SubscriptionFinalizeJobParams{
		Logger:        logg,
		Subscriptions: subscriptionSvc,
		Limit:         cfg.Billing.DueBatchLimit,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create finalize job", err)
		os.Exit(1)
	}
	trialJob, err := cron.NewTrialMaturityJob(cron.TrialMaturityJobParams{
		Logger:        logg,
		Subscriptions: subscriptionSvc,
		Limit:         cfg.Billing.DueBatchLimit,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create trial maturity job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockScope(cfg.App.Env)), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create worker lock", err)
		os.Exit(1)
	}

	cronMetrics := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(billingJob, trialJob, finalizeJob),
		Lock:     lock,
		Metrics:  cronMetrics,
		Interval: cfg.Billing.SweepInterval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})

	ops := startOpsServer(ctx, logg, cfg.Metrics.Addr, dbClient, redisClient)
	defer ops.shutdown()

	logg.Info(ctx, "starting billing worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "billing worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "billing worker shutting down gracefully")
}

func lockScope(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf("billing-worker:%s", env)
}
