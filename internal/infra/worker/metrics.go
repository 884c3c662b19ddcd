package worker

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"social-relay/internal/pkg/config"
)

// WorkerMetrics are the process-level metrics of the worker. Queue and
// transport metrics live in their own packages.
type WorkerMetrics struct {
	*config.ConfigMetrics

	// Ready is 1 while /health/ready reports ready.
	Ready prometheus.Gauge

	// StartTimestamp is the Unix time the queue was started.
	StartTimestamp prometheus.Gauge

	// ShutdownDurationSeconds is how long draining in-flight jobs took.
	ShutdownDurationSeconds prometheus.Histogram

	// ReadinessChecksFailedTotal counts failed readiness checks by name.
	ReadinessChecksFailedTotal *prometheus.CounterVec
}

// NewWorkerMetrics registers the worker metrics. Call it once per process.
func NewWorkerMetrics() *WorkerMetrics {
	return newWorkerMetrics("worker")
}

func newWorkerMetrics(prefix string) *WorkerMetrics {
	return &WorkerMetrics{
		ConfigMetrics: config.NewConfigMetrics(prefix),

		Ready: promauto.NewGauge(prometheus.GaugeOpts{
			Name: prefix + "_ready",
			Help: "1 if the worker is ready to accept jobs, 0 otherwise",
		}),

		StartTimestamp: promauto.NewGauge(prometheus.GaugeOpts{
			Name: prefix + "_start_timestamp",
			Help: "Unix timestamp of the last queue start",
		}),

		ShutdownDurationSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    prefix + "_shutdown_duration_seconds",
			Help:    "Time spent draining in-flight jobs on shutdown",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60},
		}),

		ReadinessChecksFailedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "_readiness_checks_failed_total",
			Help: "Total number of failed readiness checks by check name",
		}, []string{"check"}),
	}
}

// RecordReady sets the readiness gauge.
func (m *WorkerMetrics) RecordReady(ready bool) {
	if ready {
		m.Ready.Set(1)
		return
	}
	m.Ready.Set(0)
}

// RecordStart marks the queue start time.
func (m *WorkerMetrics) RecordStart() {
	m.StartTimestamp.SetToCurrentTime()
}

// RecordShutdown observes the drain duration.
func (m *WorkerMetrics) RecordShutdown(d time.Duration) {
	m.ShutdownDurationSeconds.Observe(d.Seconds())
}

// RecordCheckFailed counts a failed readiness check.
func (m *WorkerMetrics) RecordCheckFailed(check string) {
	m.ReadinessChecksFailedTotal.WithLabelValues(check).Inc()
}
