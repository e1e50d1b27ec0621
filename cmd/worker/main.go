package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/stockbook/internal/app"
	jobmetrics "github.com/odyssey-erp/stockbook/internal/jobs"
	"github.com/odyssey-erp/stockbook/internal/observability"
	"github.com/odyssey-erp/stockbook/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		return 1
	}
	logger := app.NewLogger(cfg).With(slog.String("process", "worker"))

	metrics := observability.NewMetrics()
	rt, err := app.NewRuntime(ctx, cfg, logger, metrics)
	if err != nil {
		logger.Error("init runtime", slog.Any("error", err))
		return 1
	}
	defer rt.Close()

	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())
	integrity := jobs.NewIntegrityJob(rt.Coordinator, rt.Tenants, logger, jobMetrics)
	purge := jobs.NewPurgeJob(rt.Idempotency, cfg.IdempotencyRetention, logger, jobMetrics)

	cron, err := schedule(cfg)
	if err != nil {
		logger.Error("build schedule", slog.Any("error", err))
		return 1
	}
	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskIntegrityCheck, Handler: integrity.Handle},
			{Type: jobs.TaskIdempotencyPurge, Handler: purge.Handle},
		},
		Cron: cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		return 1
	}

	logger.Info("worker started", slog.Int("concurrency", cfg.WorkerConcurrency), slog.Int("cron_entries", len(cron)))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		return 1
	}
	logger.Info("worker stopped")
	return 0
}

// schedule turns the configured cron expressions into registrations. An
// empty expression leaves that job to manual triggers.
func schedule(cfg *app.Config) ([]jobs.CronRegistration, error) {
	var out []jobs.CronRegistration
	if cfg.IntegrityCron != "" {
		task, err := jobs.NewIntegrityCheckTask(0)
		if err != nil {
			return nil, err
		}
		out = append(out, jobs.CronRegistration{Spec: cfg.IntegrityCron, Task: task, Options: []asynq.Option{asynq.MaxRetry(3)}})
	}
	if cfg.IdempotencyPurgeCron != "" {
		out = append(out, jobs.CronRegistration{
			Spec:    cfg.IdempotencyPurgeCron,
			Task:    jobs.NewIdempotencyPurgeTask(),
			Options: []asynq.Option{asynq.MaxRetry(1)},
		})
	}
	return out, nil
}
