package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/storefront-backend/api/routes"
	"github.com/angelmondragon/storefront-backend/internal/app"
	razorpaywebhook "github.com/angelmondragon/storefront-backend/internal/webhooks/razorpay"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	webhookIdempotencyScope = "razorpay-webhook"
	shutdownTimeout         = 15 * time.Second
)

func main() {
	cfg, logg, err := app.Boot("api")
	if err != nil {
		logg.Error(context.Background(), "failed to boot", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		stop()
		os.Exit(1)
	}
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
	webhookService, err := razorpaywebhook.NewService(razorpaywebhook.ServiceParams{
		Checkout: services.Checkout,
		Logger:   logg,
	})
	if err != nil {
		return fmt.Errorf("create webhook service: %w", err)
	}
	webhookGuard, err := razorpaywebhook.NewDeliveryGuard(infra.Redis, cfg.Workflow.WebhookIdempotencyTTL, webhookIdempotencyScope)
	if err != nil {
		return fmt.Errorf("create webhook guard: %w", err)
	}

	addr := ":" + envOr("PORT", cfg.App.Port)
	logCtx := logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": envOr("DYNO", "local"),
	})
	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Params{
			Config:         cfg,
			Logger:         logg,
			Gatherer:       prometheus.DefaultGatherer,
			DB:             infra.DB,
			Redis:          infra.Redis,
			GCS:            infra.GCS,
			Checkout:       services.Checkout,
			Orders:         services.Orders,
			Cancellations:  services.Cancellations,
			Refunds:        services.Refunds,
			Gateway:        services.Gateway,
			WebhookService: webhookService,
			WebhookGuard:   webhookGuard,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logg.Info(logCtx, "starting api server")

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logg.Info(logCtx, "api server stopped")
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
