package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockbook/internal/shared"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	require.NoError(t, m.Track("integrity:check").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("integrity:check").End(boom), boom)
	conflict := shared.Wrap(shared.KindTransientConflict, "store", errors.New("40001"))
	require.ErrorIs(t, m.Track("integrity:check").End(conflict), shared.ErrTransientConflict)

	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("integrity:check", StatusSuccess)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("integrity:check", StatusFailure)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("integrity:check", StatusRetry)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("integrity:check")))
	require.Positive(t, testutil.ToFloat64(m.lastSuccess.WithLabelValues("integrity:check")))
}

func TestAddViolations(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.AddViolations("stock", 7, 2)
	m.AddViolations("stock", 7, 0)
	m.AddViolations("ledger", 0, 1)

	require.Equal(t, 2.0, testutil.ToFloat64(m.violations.WithLabelValues("stock", "7")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.violations.WithLabelValues("ledger", "0")))

	var nilMetrics *Metrics
	nilMetrics.AddViolations("stock", 1, 1)
	require.NoError(t, nilMetrics.Track("x").End(nil))
}
