package coordinator

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockbook/internal/shared"
	"github.com/odyssey-erp/stockbook/internal/stock"
)

func TestOutcomeLabel(t *testing.T) {
	conflict := shared.E(shared.KindTransientConflict, "x", "busy")
	require.Equal(t, "applied", outcomeLabel(opCreateVendor, nil))
	require.Equal(t, "conflict", outcomeLabel(opChangeVendorPriority, conflict))
	require.Equal(t, "not_found", outcomeLabel(opDeleteVendor, shared.ErrNotFound))
	require.Equal(t, "transient_conflict", outcomeLabel(opRecordSale, conflict))
	require.Equal(t, "applied", outcomeLabel(opRecordSale, nil))
	require.Equal(t, "error", outcomeLabel(opRecordSale, errors.New("boom")))
}

func TestMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.observe(opRecordSale, "applied", 0)
	m.observe(opRecordSale, "applied", 0)
	m.observe(opRecordSale, "insufficient_stock", 0)
	require.Equal(t, 2.0, testutil.ToFloat64(m.operations.WithLabelValues(opRecordSale, "applied")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues(opRecordSale, "insufficient_stock")))

	var nilMetrics *Metrics
	nilMetrics.observe(opRecordSale, "applied", 0)
	nilMetrics.retry(opRecordSale)
}

func TestTakeSplitsPool(t *testing.T) {
	pool := []stock.Allocation{{VendorID: 1, Quantity: 3}, {VendorID: 2, Quantity: 4}}
	first, rest := take(pool, 5)
	require.Equal(t, []stock.Allocation{{VendorID: 1, Quantity: 3}, {VendorID: 2, Quantity: 2}}, first)
	require.Equal(t, []stock.Allocation{{VendorID: 2, Quantity: 2}}, rest)
	second, rest := take(rest, 2)
	require.Equal(t, []stock.Allocation{{VendorID: 2, Quantity: 2}}, second)
	require.Empty(t, rest)
}
