package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/storefront-backend/internal/app"
	"github.com/angelmondragon/storefront-backend/internal/cron"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

func main() {
	cfg, logg, err := app.Boot("cron-worker")
	if err != nil {
		logg.Error(context.Background(), "failed to boot", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg, logg)
	stop()
	if err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	infra, err := app.OpenInfra(ctx, cfg, logg, app.InfraNeeds{Redis: true, GCS: true})
	if err != nil {
		return err
	}
	defer infra.Close()

	services, err := app.BuildServices(ctx, cfg, logg, app.Deps{
		DB:         infra.DB,
		GCS:        infra.GCS,
		Registerer: prometheus.DefaultRegisterer,
	})
	if err != nil {
		return fmt.Errorf("wire services: %w", err)
	}
	registry, err := buildRegistry(cfg, logg, infra.DB, services)
	if err != nil {
		return fmt.Errorf("register cron jobs: %w", err)
	}
	lock, err := cron.NewRedisLock(infra.Redis, infra.Redis.LockKey(lockName(cfg.App.Env)), 0)
	if err != nil {
		return fmt.Errorf("create cron lock: %w", err)
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Workflow.CronInterval,
	})
	if err != nil {
		return fmt.Errorf("create cron service: %w", err)
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"interval": cfg.Workflow.CronInterval.String(),
		"jobs":     len(registry.Jobs()),
	})
	logg.Info(ctx, "starting cron worker")
	return service.Run(ctx)
}

func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, services *app.Services) (*cron.Registry, error) {
	refundJob, err := cron.NewRefundRetryJob(cron.RefundRetryJobParams{
		Logger:  logg,
		Refunds: services.Refunds,
	})
	if err != nil {
		return nil, err
	}
	reconcileJob, err := cron.NewPaymentReconciliationJob(cron.PaymentReconciliationJobParams{
		Logger:   logg,
		Checkout: services.Checkout,
	})
	if err != nil {
		return nil, err
	}
	expiryJob, err := cron.NewIntentExpiryJob(cron.IntentExpiryJobParams{
		Logger:   logg,
		Checkout: services.Checkout,
	})
	if err != nil {
		return nil, err
	}
	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:           logg,
		DB:               dbClient,
		Repository:       services.OutboxRepo,
		TerminalAttempts: cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		return nil, err
	}

	registry := cron.NewRegistry()
	for _, job := range []cron.Job{refundJob, reconcileJob, expiryJob, retentionJob} {
		if err := registry.Register(job); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func lockName(env string) string {
	if env == "" {
		env = "local"
	}
	return "cron-worker:" + env
}
