package auth

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Authorization outcomes used as the "result" label.
const (
	resultAllowed      = "allowed"
	resultMissingToken = "missing_token"
	resultInvalidToken = "invalid_token"
	resultForbidden    = "forbidden"
)

var (
	apiAuthDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "api_auth_duration_seconds",
			Help:    "Time spent validating API bearer tokens",
			Buckets: []float64{0.00005, 0.0001, 0.0005, 0.001, 0.005},
		},
	)

	apiAuthResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_auth_results_total",
			Help: "API authorization decisions by result",
		},
		[]string{"result"},
	)
)

func recordAuth(result string, took time.Duration) {
	apiAuthDuration.Observe(took.Seconds())
	apiAuthResults.WithLabelValues(result).Inc()
}
