package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/stockbook/internal/jobs"
)

// KeyPurger drops idempotency keys older than a retention window.
type KeyPurger interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// PurgeJob removes expired idempotency keys.
type PurgeJob struct {
	Purger    KeyPurger
	Retention time.Duration
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewPurgeJob initialises the purge handler.
func NewPurgeJob(purger KeyPurger, retention time.Duration, logger *slog.Logger, metrics *jobmetrics.Metrics) *PurgeJob {
	return &PurgeJob{Purger: purger, Retention: retention, Logger: logger, Metrics: metrics}
}

// Handle executes the purge task.
func (j *PurgeJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Purger == nil {
		return errors.New("idempotency purge: purger not configured")
	}
	if j.Retention <= 0 {
		return fmt.Errorf("idempotency purge: retention %s: %w", j.Retention, asynq.SkipRetry)
	}
	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	tracker := metrics.Track(TaskIdempotencyPurge)

	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("job", TaskIdempotencyPurge))

	err := j.Purger.Cleanup(ctx, j.Retention)
	if err != nil {
		logger.Error("idempotency purge failed", slog.Any("error", err))
		return tracker.End(fmt.Errorf("idempotency purge: %w", err))
	}
	logger.Info("idempotency keys purged", slog.Duration("retention", j.Retention))
	return tracker.End(nil)
}
