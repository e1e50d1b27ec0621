package coordinator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/odyssey-erp/stockbook/internal/shared"
	"github.com/odyssey-erp/stockbook/internal/vendors"
)

// Metrics exposes Prometheus collectors for engine operations.
type Metrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	retries    *prometheus.CounterVec
}

// NewMetrics registers the operation metrics against registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stockbook_operations_total",
		Help: "Engine operations partitioned by operation and outcome.",
	}, []string{"operation", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stockbook_operation_duration_seconds",
		Help:    "Duration of engine operations including retries.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stockbook_operation_retries_total",
		Help: "Transient conflicts retried per operation.",
	}, []string{"operation"})
	registerer.MustRegister(operations, duration, retries)
	return &Metrics{operations: operations, duration: duration, retries: retries}
}

func (m *Metrics) observe(op, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, outcome).Inc()
	m.duration.WithLabelValues(op).Observe(d.Seconds())
}

func (m *Metrics) retry(op string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(op).Inc()
}

var rankOps = map[string]bool{
	opCreateVendor:         true,
	opChangeVendorPriority: true,
	opDeleteVendor:         true,
}

func outcomeLabel(op string, err error) string {
	if rankOps[op] {
		if o := vendors.OutcomeOf(err); o != "" {
			return string(o)
		}
	}
	if err == nil {
		return string(vendors.OutcomeApplied)
	}
	if kind := shared.KindOf(err); kind != "" {
		return string(kind)
	}
	return "error"
}
