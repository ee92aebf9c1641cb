package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type intentExpirer interface {
	ExpireIntents(ctx context.Context) (int64, error)
}

type IntentExpiryJobParams struct {
	Logger   *logger.Logger
	Checkout intentExpirer
}

func NewIntentExpiryJob(params IntentExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Checkout == nil {
		return nil, fmt.Errorf("checkout service required")
	}
	return &intentExpiryJob{logg: params.Logger, checkout: params.Checkout}, nil
}

type intentExpiryJob struct {
	logg     *logger.Logger
	checkout intentExpirer
}

func (j *intentExpiryJob) Name() string { return "checkout-intent-expiry" }

func (j *intentExpiryJob) Run(ctx context.Context) error {
	expired, err := j.checkout.ExpireIntents(ctx)
	if err != nil {
		return fmt.Errorf("expire checkout intents: %w", err)
	}
	j.logg.Info(j.logg.WithField(ctx, "expired", expired), "checkout intents expired")
	return nil
}
