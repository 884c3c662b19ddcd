package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// Buckets cover fast reads (5ms) up to slow verify calls (10s).
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Current number of HTTP requests being served",
		},
	)

	httpRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_size_bytes",
			Help:    "HTTP request size in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 6),
		},
		[]string{"method", "path"},
	)

	httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "HTTP response size in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 6),
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware records request count, latency and sizes. Paths are
// collapsed to their route so job ids do not become label values.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		path := NormalizePath(r.URL.Path)
		if r.ContentLength > 0 {
			httpRequestSize.WithLabelValues(r.Method, path).Observe(float64(r.ContentLength))
		}

		sw := newStatusWriter(w)
		start := time.Now()
		next.ServeHTTP(sw, r)
		duration := time.Since(start).Seconds()

		status := strconv.Itoa(sw.status)
		httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path, status).Observe(duration)
		httpResponseSize.WithLabelValues(r.Method, path).Observe(float64(sw.bytes))
	})
}

// MetricsHandler serves the Prometheus scrape endpoint.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// NormalizePath maps a request path onto the route it would match.
// Unknown paths collapse to "other".
//
//	/jobs/7f3c...        -> /jobs/{id}
//	/jobs/7f3c.../retry  -> /jobs/{id}/retry
//	/platforms/x/verify  -> /platforms/{platform}/verify
func NormalizePath(path string) string {
	segs := strings.Split(strings.Trim(path, "/"), "/")
	switch {
	case len(segs) == 1 && isStaticRoute(segs[0]):
		return "/" + segs[0]
	case len(segs) == 2 && segs[0] == "health" && segs[1] == "ready":
		return "/health/ready"
	case len(segs) == 2 && segs[0] == "jobs":
		return "/jobs/{id}"
	case len(segs) == 3 && segs[0] == "jobs" && (segs[2] == "cancel" || segs[2] == "retry"):
		return "/jobs/{id}/" + segs[2]
	case len(segs) == 3 && segs[0] == "platforms" && segs[2] == "verify":
		return "/platforms/{platform}/verify"
	}
	return "other"
}

func isStaticRoute(seg string) bool {
	switch seg {
	case "jobs", "stats", "platforms", "health", "metrics":
		return true
	}
	return false
}
