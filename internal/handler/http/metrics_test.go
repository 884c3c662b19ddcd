package http

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/jobs", "/jobs"},
		{"/jobs/", "/jobs"},
		{"/jobs/0b6c1a4e-8f1d-4f25-9d1e-6f7a2b3c4d5e", "/jobs/{id}"},
		{"/jobs/abc/cancel", "/jobs/{id}/cancel"},
		{"/jobs/abc/retry", "/jobs/{id}/retry"},
		{"/jobs/abc/delete", "other"},
		{"/stats", "/stats"},
		{"/platforms", "/platforms"},
		{"/platforms/twitter/verify", "/platforms/{platform}/verify"},
		{"/health", "/health"},
		{"/health/ready", "/health/ready"},
		{"/metrics", "/metrics"},
		{"/", "other"},
		{"/wp-admin/setup.php", "other"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizePath(tt.path))
		})
	}
}

func TestMetricsMiddleware_RecordsNormalizedPath(t *testing.T) {
	httpRequestsTotal.Reset()
	httpRequestDuration.Reset()
	httpResponseSize.Reset()

	handler := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}))

	for _, id := range []string{"a", "b", "c"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/jobs/"+id, nil))
	}

	assert.Equal(t, 3.0, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/jobs/{id}", "200")))
	assert.Equal(t, 1, testutil.CollectAndCount(httpRequestsTotal))
	assert.Equal(t, 1, testutil.CollectAndCount(httpRequestDuration))
}

func TestMetricsMiddleware_StatusAndSize(t *testing.T) {
	httpRequestsTotal.Reset()
	httpRequestSize.Reset()

	handler := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusAccepted)
	}))

	req := httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(`{"platform":"twitter","message":"hi"}`))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, 1.0, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("POST", "/jobs", "202")))
	assert.Equal(t, 1, testutil.CollectAndCount(httpRequestSize))
}

func TestMetricsMiddleware_InFlight(t *testing.T) {
	var during float64
	handler := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		during = testutil.ToFloat64(httpRequestsInFlight)
	}))

	before := testutil.ToFloat64(httpRequestsInFlight)
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/stats", nil))

	assert.Equal(t, before+1, during)
	assert.Equal(t, before, testutil.ToFloat64(httpRequestsInFlight))
}

func TestMetricsHandler(t *testing.T) {
	httpRequestsTotal.WithLabelValues("GET", "/stats", "200").Inc()

	rr := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "http_requests_total")
}
