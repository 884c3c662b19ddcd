package transport

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// requestsTotal counts outbound calls by service and outcome code.
	// Code is "OK" for 2xx responses.
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transport_requests_total",
			Help: "Total number of outbound platform API requests",
		},
		[]string{"service", "code"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "transport_request_duration_seconds",
			Help:    "Duration of outbound platform API requests",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"service"},
	)

	retriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transport_retries_total",
			Help: "Total number of in-call retries",
		},
		[]string{"service"},
	)

	rateLimitRemaining = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "transport_rate_limit_remaining",
			Help: "Remaining requests in the current platform rate-limit window",
		},
		[]string{"service"},
	)
)

// RecordRequest records one finished attempt.
func RecordRequest(service, code string, d time.Duration) {
	requestsTotal.WithLabelValues(service, code).Inc()
	requestDuration.WithLabelValues(service).Observe(d.Seconds())
}

// RecordRetry records an in-call retry.
func RecordRetry(service string) {
	retriesTotal.WithLabelValues(service).Inc()
}

// RecordRateLimit publishes the remaining quota.
func RecordRateLimit(service string, remaining int) {
	rateLimitRemaining.WithLabelValues(service).Set(float64(remaining))
}
