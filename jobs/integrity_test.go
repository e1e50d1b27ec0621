package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockbook/internal/coordinator"
	jobmetrics "github.com/odyssey-erp/stockbook/internal/jobs"
	"github.com/odyssey-erp/stockbook/internal/ledger"
	"github.com/odyssey-erp/stockbook/internal/stock"
)

type stubChecker struct {
	reports map[int64]coordinator.IntegrityReport
	err     error
	checked []int64
}

func (s *stubChecker) CheckIntegrity(_ context.Context, tenantID int64) (coordinator.IntegrityReport, error) {
	s.checked = append(s.checked, tenantID)
	if s.err != nil {
		return coordinator.IntegrityReport{}, s.err
	}
	if r, ok := s.reports[tenantID]; ok {
		return r, nil
	}
	return coordinator.IntegrityReport{TenantID: tenantID}, nil
}

type stubTenants []int64

func (s stubTenants) ListTenantIDs(context.Context) ([]int64, error) { return s, nil }

func newTestJob(checker IntegrityChecker, tenants TenantLister) (*IntegrityJob, *jobmetrics.Metrics, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewIntegrityJob(checker, tenants, logger, metrics), metrics, reg
}

func TestIntegrityJobChecksEveryTenant(t *testing.T) {
	checker := &stubChecker{reports: map[int64]coordinator.IntegrityReport{
		2: {
			TenantID:      2,
			RankError:     "priorities not dense",
			Mismatches:    []stock.Mismatch{{ProductID: 9, CurrentStock: 4, VendorSum: 3}},
			BrokenHolders: []ledger.Holder{{TenantID: 2, EntityType: ledger.EntityVendor, EntityID: 5, Balance: decimal.NewFromInt(10)}},
		},
	}}
	job, _, reg := newTestJob(checker, stubTenants{1, 2})

	task, err := NewIntegrityCheckTask(0)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, []int64{1, 2}, checker.checked)

	count, err := testutil.GatherAndCount(reg, "stockbook_integrity_violations_total")
	require.NoError(t, err)
	require.Equal(t, 3, count)
	count, err = testutil.GatherAndCount(reg, "stockbook_jobs_total")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestIntegrityJobSingleTenant(t *testing.T) {
	checker := &stubChecker{}
	job, _, _ := newTestJob(checker, nil)

	reports, err := job.Run(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	require.True(t, reports[0].OK())
	require.Equal(t, []int64{7}, checker.checked)
}

func TestIntegrityJobFailureIsTracked(t *testing.T) {
	checker := &stubChecker{err: errors.New("db down")}
	job, _, reg := newTestJob(checker, stubTenants{1})

	_, err := job.Run(context.Background(), 0)
	require.Error(t, err)

	count, err := testutil.GatherAndCount(reg, "stockbook_jobs_failures_total")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestIntegrityJobRejectsBadPayload(t *testing.T) {
	job, _, _ := newTestJob(&stubChecker{}, stubTenants{})
	err := job.Handle(context.Background(), asynq.NewTask(TaskIntegrityCheck, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestNewWorkerRejectsBadCron(t *testing.T) {
	task, err := NewIntegrityCheckTask(0)
	require.NoError(t, err)
	_, err = NewWorker(WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:0"},
		Cron:      []CronRegistration{{Spec: "not a cron", Task: task}},
	})
	require.Error(t, err)
}
