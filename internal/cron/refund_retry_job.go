package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/storefront-backend/internal/refunds"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const defaultRefundRetryBatch = 50

type refundRetrier interface {
	RetryFailed(ctx context.Context, limit int) (refunds.RetrySummary, error)
}

type RefundRetryJobParams struct {
	Logger    *logger.Logger
	Refunds   refundRetrier
	BatchSize int
}

// NewRefundRetryJob re-dispatches failed refunds that are still under the
// attempt ceiling.
func NewRefundRetryJob(params RefundRetryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Refunds == nil {
		return nil, fmt.Errorf("refund service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultRefundRetryBatch
	}
	return &refundRetryJob{logg: params.Logger, refunds: params.Refunds, batch: batch}, nil
}

type refundRetryJob struct {
	logg    *logger.Logger
	refunds refundRetrier
	batch   int
}

func (j *refundRetryJob) Name() string { return "refund-retry" }

func (j *refundRetryJob) Run(ctx context.Context) error {
	summary, err := j.refunds.RetryFailed(ctx, j.batch)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"released":  summary.Released,
		"attempted": summary.Attempted,
		"initiated": summary.Initiated,
		"failed":    summary.Failed,
	})
	if err != nil {
		return fmt.Errorf("refund retry: %w", err)
	}
	j.logg.Info(logCtx, "refund retry pass complete")
	return nil
}
