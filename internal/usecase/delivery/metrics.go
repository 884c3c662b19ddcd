package delivery

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"social-relay/internal/domain/entity"
)

var (
	// jobsEnqueuedTotal tracks accepted jobs per platform
	jobsEnqueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_jobs_enqueued_total",
			Help: "Total number of delivery jobs accepted",
		},
		[]string{"platform"},
	)

	// jobOutcomesTotal tracks attempt outcomes per platform
	jobOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_job_outcomes_total",
			Help: "Total number of publish attempt outcomes",
		},
		[]string{"platform", "outcome", "code"}, // outcome: published|retry|failed
	)

	// jobsCancelledTotal tracks cancelled jobs
	jobsCancelledTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "delivery_jobs_cancelled_total",
			Help: "Total number of delivery jobs cancelled",
		},
	)

	// attemptDuration tracks one publish attempt
	attemptDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "delivery_attempt_duration_seconds",
			Help:    "Publish attempt duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 300},
		},
		[]string{"platform"},
	)

	// jobsInStatus tracks the job count per status after each dispatch pass
	jobsInStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "delivery_jobs",
			Help: "Current number of delivery jobs per status",
		},
		[]string{"status"},
	)

	// hookPanicsTotal tracks recovered hook panics
	hookPanicsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_hook_panics_total",
			Help: "Total number of panics recovered from delivery hooks",
		},
		[]string{"outcome"},
	)

	// jobsCleanedTotal tracks terminal jobs removed by the sweep
	jobsCleanedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "delivery_jobs_cleaned_total",
			Help: "Total number of terminal jobs removed by cleanup",
		},
	)
)

// RecordEnqueued records an accepted job.
func RecordEnqueued(platform entity.Platform) {
	jobsEnqueuedTotal.WithLabelValues(string(platform)).Inc()
}

// RecordOutcome records the outcome of one attempt and its duration.
func RecordOutcome(platform entity.Platform, outcome Outcome, duration time.Duration) {
	code := ""
	if outcome.Err != nil {
		code = string(outcome.Err.Code)
	}
	jobOutcomesTotal.WithLabelValues(string(platform), outcome.Kind.String(), code).Inc()
	attemptDuration.WithLabelValues(string(platform)).Observe(duration.Seconds())
}

// RecordCancelled records a cancelled job.
func RecordCancelled() {
	jobsCancelledTotal.Inc()
}

// RecordStats publishes per-status gauges.
func RecordStats(s Stats) {
	jobsInStatus.WithLabelValues(string(entity.StatusQueued)).Set(float64(s.Queued))
	jobsInStatus.WithLabelValues(string(entity.StatusProcessing)).Set(float64(s.Processing))
	jobsInStatus.WithLabelValues(string(entity.StatusPublished)).Set(float64(s.Published))
	jobsInStatus.WithLabelValues(string(entity.StatusFailed)).Set(float64(s.Failed))
	jobsInStatus.WithLabelValues(string(entity.StatusCancelled)).Set(float64(s.Cancelled))
}

// RecordHookPanic records a recovered hook panic.
func RecordHookPanic(outcome string) {
	hookPanicsTotal.WithLabelValues(outcome).Inc()
}

// RecordCleaned records jobs removed by the cleanup sweep.
func RecordCleaned(n int) {
	jobsCleanedTotal.Add(float64(n))
}
