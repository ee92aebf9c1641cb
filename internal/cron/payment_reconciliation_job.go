package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const defaultReconciliationBatch = 100

type paymentReverifier interface {
	Reverify(ctx context.Context, limit int) (checkout.ReverifySummary, error)
}

type PaymentReconciliationJobParams struct {
	Logger    *logger.Logger
	Checkout  paymentReverifier
	BatchSize int
}

func NewPaymentReconciliationJob(params PaymentReconciliationJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Checkout == nil {
		return nil, fmt.Errorf("checkout service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultReconciliationBatch
	}
	return &paymentReconciliationJob{logg: params.Logger, checkout: params.Checkout, batch: batch}, nil
}

type paymentReconciliationJob struct {
	logg     *logger.Logger
	checkout paymentReverifier
	batch    int
}

func (j *paymentReconciliationJob) Name() string { return "payment-reconciliation" }

func (j *paymentReconciliationJob) Run(ctx context.Context) error {
	summary, err := j.checkout.Reverify(ctx, j.batch)
	if err != nil {
		return fmt.Errorf("payment reconciliation: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"checked":     summary.Checked,
		"verified":    summary.Verified,
		"failed":      summary.Failed,
		"unreachable": summary.Unreachable,
		"outstanding": summary.Outstanding,
	})
	if summary.Outstanding > 0 {
		j.logg.Warn(logCtx, "orders awaiting payment reconciliation")
		return nil
	}
	j.logg.Info(logCtx, "payment reconciliation pass complete")
	return nil
}
