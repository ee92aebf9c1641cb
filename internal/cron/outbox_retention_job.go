package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	defaultOutboxRetention = 30 * 24 * time.Hour
	// rows with this many attempts were dead-lettered and are prunable too
	outboxTerminalAttempts = 10
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPruner interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error)
}

type OutboxRetentionJobParams struct {
	Logger           *logger.Logger
	DB               txRunner
	Repository       outboxPruner
	Retention        time.Duration
	TerminalAttempts int
}

type outboxRetentionJob struct {
	OutboxRetentionJobParams
	now func() time.Time
}

// NewOutboxRetentionJob deletes outbox rows that are settled, either published
// or terminal, once they are older than the retention window.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.DB == nil:
		return nil, errors.New("db runner required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository required")
	}
	if params.Retention <= 0 {
		params.Retention = defaultOutboxRetention
	}
	if params.TerminalAttempts <= 0 {
		params.TerminalAttempts = outboxTerminalAttempts
	}
	return &outboxRetentionJob{OutboxRetentionJobParams: params, now: time.Now}, nil
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.Retention)

	var deleted int64
	if err := j.DB.WithTx(ctx, func(tx *gorm.DB) (err error) {
		deleted, err = j.Repository.DeletePublishedBefore(ctx, tx, cutoff, j.TerminalAttempts)
		return err
	}); err != nil {
		return fmt.Errorf("prune outbox before %s: %w", cutoff.Format(time.RFC3339), err)
	}

	j.Logger.Info(j.Logger.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": deleted,
	}), "outbox retention cleanup complete")
	return nil
}
