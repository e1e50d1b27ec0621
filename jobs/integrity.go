package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/stockbook/internal/coordinator"
	jobmetrics "github.com/odyssey-erp/stockbook/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// IntegrityChecker verifies one tenant.
type IntegrityChecker interface {
	CheckIntegrity(ctx context.Context, tenantID int64) (coordinator.IntegrityReport, error)
}

// TenantLister enumerates the tenants owning data.
type TenantLister interface {
	ListTenantIDs(ctx context.Context) ([]int64, error)
}

// IntegrityJob runs the integrity check over one or every tenant.
type IntegrityJob struct {
	Checker IntegrityChecker
	Tenants TenantLister
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewIntegrityJob initialises the integrity check handler.
func NewIntegrityJob(checker IntegrityChecker, tenants TenantLister, logger *slog.Logger, metrics *jobmetrics.Metrics) *IntegrityJob {
	return &IntegrityJob{Checker: checker, Tenants: tenants, Logger: logger, Metrics: metrics}
}

// Handle executes the integrity check task.
func (j *IntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("integrity check: handler not configured")
	}
	var payload IntegrityCheckPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	_, err := j.Run(ctx, payload.TenantID)
	return err
}

// Run checks tenantID, or every tenant when it is zero, and returns the
// reports of the tenants checked.
func (j *IntegrityJob) Run(ctx context.Context, tenantID int64) (reports []coordinator.IntegrityReport, resultErr error) {
	if j.Checker == nil {
		return nil, errors.New("integrity check: checker not configured")
	}
	tracker := j.metrics().Track(TaskIntegrityCheck)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()
	start := time.Now()
	logger := j.logger()

	tenants := []int64{tenantID}
	if tenantID == 0 {
		if j.Tenants == nil {
			return nil, errors.New("integrity check: tenant lister not configured")
		}
		ids, err := j.Tenants.ListTenantIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("integrity check: list tenants: %w", err)
		}
		tenants = ids
	}
	logger.Info("starting integrity check", slog.Int("tenants", len(tenants)))

	violations := 0
	for _, id := range tenants {
		report, err := j.Checker.CheckIntegrity(ctx, id)
		if err != nil {
			logger.Error("integrity check failed", slog.Int64("tenant_id", id), slog.Any("error", err))
			return reports, fmt.Errorf("integrity check: tenant %d: %w", id, err)
		}
		reports = append(reports, report)
		violations += report.Violations()
		j.record(logger, report)
	}

	logger.Info("completed integrity check",
		slog.Int("tenants", len(tenants)),
		slog.Int("violations", violations),
		slog.Duration("duration", time.Since(start)),
	)
	return reports, nil
}

func (j *IntegrityJob) record(logger *slog.Logger, report coordinator.IntegrityReport) {
	if report.OK() {
		return
	}
	logger = logger.With(slog.Int64("tenant_id", report.TenantID))
	if report.RankError != "" {
		logger.Warn("vendor ranks are not dense", slog.String("detail", report.RankError))
		j.metrics().AddViolations("rank", report.TenantID, 1)
	}
	for _, m := range report.Mismatches {
		logger.Warn("stock not conserved",
			slog.Int64("product_id", m.ProductID),
			slog.Int64("current_stock", m.CurrentStock),
			slog.Int64("vendor_sum", m.VendorSum))
	}
	j.metrics().AddViolations("stock", report.TenantID, len(report.Mismatches))
	for _, h := range report.BrokenHolders {
		logger.Warn("ledger chain broken",
			slog.String("entity_type", string(h.EntityType)),
			slog.Int64("entity_id", h.EntityID),
			slog.String("balance", h.Balance.String()))
	}
	j.metrics().AddViolations("ledger", report.TenantID, len(report.BrokenHolders))
}

func (j *IntegrityJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskIntegrityCheck))
	}
	return slog.Default().With(slog.String("job", TaskIntegrityCheck))
}

func (j *IntegrityJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
