// Package app assembles the workflow services shared by the API and the cron worker.
package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/storefront-backend/internal/addresses"
	"github.com/angelmondragon/storefront-backend/internal/cancellations"
	"github.com/angelmondragon/storefront-backend/internal/catalog"
	"github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/evidence"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/internal/refunds"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/razorpay"
	"github.com/angelmondragon/storefront-backend/pkg/storage/gcs"
)

// Services is the wired workflow layer.
type Services struct {
	Gateway       payments.Gateway
	Outbox        *outbox.Service
	OutboxRepo    *outbox.Repository
	Orders        orders.Service
	Refunds       refunds.Service
	Cancellations cancellations.Service
	Checkout      checkout.Service
}

// Deps are the infrastructure clients the services are built on.
type Deps struct {
	DB         *db.Client
	GCS        gcs.Uploader
	Registerer prometheus.Registerer
}

// BuildServices constructs every workflow service from cfg and deps.
func BuildServices(ctx context.Context, cfg *config.Config, logg *logger.Logger, deps Deps) (*Services, error) {
	if deps.DB == nil {
		return nil, fmt.Errorf("database client required")
	}
	if deps.GCS == nil {
		return nil, fmt.Errorf("gcs uploader required")
	}
	conn := deps.DB.DB()

	rzp, err := razorpay.NewClient(ctx, cfg.Razorpay, logg)
	if err != nil {
		return nil, fmt.Errorf("razorpay client: %w", err)
	}
	gateway, err := payments.NewRazorpayGateway(rzp, logg)
	if err != nil {
		return nil, fmt.Errorf("payment gateway: %w", err)
	}

	outboxRepo := outbox.NewRepository(conn)
	emitter := outbox.NewService(outboxRepo, logg)
	workflowMetrics := metrics.NewWorkflowMetrics(deps.Registerer)

	orderSvc, err := orders.NewService(orders.NewRepository(conn), deps.DB, emitter, logg, workflowMetrics)
	if err != nil {
		return nil, fmt.Errorf("orders service: %w", err)
	}

	refundSvc, err := refunds.NewService(refunds.NewRepository(conn), deps.DB, gateway, emitter, logg, workflowMetrics, cfg.Workflow.RefundMaxAttempts)
	if err != nil {
		return nil, fmt.Errorf("refunds service: %w", err)
	}

	evidenceStore, err := evidence.NewStore(deps.GCS, int64(cfg.GCS.MaxVideoMB)<<20, logg)
	if err != nil {
		return nil, fmt.Errorf("evidence store: %w", err)
	}

	cancellationSvc, err := cancellations.NewService(cancellations.ServiceParams{
		Repo:            cancellations.NewRepository(conn),
		Tx:              deps.DB,
		Orders:          orderSvc,
		Refunds:         refundSvc,
		Evidence:        evidenceStore,
		Outbox:          emitter,
		Logger:          logg,
		Metrics:         workflowMetrics,
		MinReasonLength: cfg.Workflow.MinReasonLength,
	})
	if err != nil {
		return nil, fmt.Errorf("cancellations service: %w", err)
	}

	catalogSvc, err := catalog.NewService(catalog.NewRepository(conn))
	if err != nil {
		return nil, fmt.Errorf("catalog service: %w", err)
	}
	addressSvc, err := addresses.NewService(addresses.NewRepository(conn))
	if err != nil {
		return nil, fmt.Errorf("address service: %w", err)
	}

	checkoutSvc, err := checkout.NewService(checkout.ServiceParams{
		Repo:      checkout.NewRepository(conn),
		Tx:        deps.DB,
		Catalog:   catalogSvc,
		Addresses: addressSvc,
		Orders:    orderSvc,
		Gateway:   gateway,
		Outbox:    emitter,
		Logger:    logg,
		IntentTTL: cfg.Workflow.CheckoutIntentTTL,
		Currency:  enums.Currency(cfg.Razorpay.Currency),
	})
	if err != nil {
		return nil, fmt.Errorf("checkout service: %w", err)
	}

	return &Services{
		Gateway:       gateway,
		Outbox:        emitter,
		OutboxRepo:    outboxRepo,
		Orders:        orderSvc,
		Refunds:       refundSvc,
		Cancellations: cancellationSvc,
		Checkout:      checkoutSvc,
	}, nil
}
