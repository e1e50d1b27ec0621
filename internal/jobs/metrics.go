package jobmetrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/odyssey-erp/stockbook/internal/shared"
)

// Run outcomes recorded on stockbook_jobs_total.
const (
	StatusSuccess = "success"
	StatusRetry   = "retry"
	StatusFailure = "failure"
)

// Metrics holds the background job collectors.
type Metrics struct {
	runs        *prometheus.CounterVec
	failures    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
	violations  *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the collectors on registerer, or once on the
// default registerer when it is nil.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer != nil {
		return register(registerer)
	}
	defaultOnce.Do(func() { defaultMetrics = register(prometheus.DefaultRegisterer) })
	return defaultMetrics
}

// Tracker times one job run.
type Tracker struct {
	m     *Metrics
	job   string
	start time.Time
}

// Track starts timing job. A nil Metrics yields a no-op tracker.
func (m *Metrics) Track(job string) *Tracker {
	return &Tracker{m: m, job: job, start: time.Now()}
}

// End records the outcome of the run and returns err unchanged. Transient
// conflicts count as retries, not failures.
func (t *Tracker) End(err error) error {
	if t == nil || t.m == nil || t.job == "" {
		return err
	}
	status := outcome(err)
	t.m.runs.WithLabelValues(t.job, status).Inc()
	t.m.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	switch status {
	case StatusFailure:
		t.m.failures.WithLabelValues(t.job).Inc()
	case StatusSuccess:
		t.m.lastSuccess.WithLabelValues(t.job).SetToCurrentTime()
	}
	return err
}

func outcome(err error) string {
	switch {
	case err == nil:
		return StatusSuccess
	case shared.IsRetryable(err):
		return StatusRetry
	default:
		return StatusFailure
	}
}

// AddViolations counts integrity findings of one kind for a tenant.
func (m *Metrics) AddViolations(kind string, tenantID int64, count int) {
	if m == nil || count <= 0 {
		return
	}
	if tenantID < 0 {
		tenantID = 0
	}
	m.violations.WithLabelValues(kind, strconv.FormatInt(tenantID, 10)).Add(float64(count))
}

func register(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stockbook",
			Name:      "jobs_total",
			Help:      "Job runs by job name and outcome.",
		}, []string{"job", "status"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stockbook",
			Name:      "jobs_failures_total",
			Help:      "Job runs that ended in a non-retryable error.",
		}, []string{"job"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "stockbook",
			Name:      "job_duration_seconds",
			Help:      "Job run duration.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"job"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "stockbook",
			Name:      "job_last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run.",
		}, []string{"job"}),
		violations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stockbook",
			Name:      "integrity_violations_total",
			Help:      "Integrity findings by kind and tenant.",
		}, []string{"kind", "tenant"}),
	}
	registerer.MustRegister(m.runs, m.failures, m.duration, m.lastSuccess, m.violations)
	return m
}
