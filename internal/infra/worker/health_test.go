package worker

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func probe(t *testing.T, h http.Handler, path string) (int, healthResponse) {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	var resp healthResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	return rr.Code, resp
}

func TestHealthServer_Liveness(t *testing.T) {
	h := NewHealthServer(":0", discardLogger(), nil, nil)

	code, resp := probe(t, h.Handler(), "/health")

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", resp.Status)
}

func TestHealthServer_Readiness(t *testing.T) {
	h := NewHealthServer(":0", discardLogger(), testMetrics, nil)

	code, resp := probe(t, h.Handler(), "/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "not ready", resp.Status)

	h.SetReady(true)
	code, _ = probe(t, h.Handler(), "/health/ready")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1.0, testutil.ToFloat64(testMetrics.Ready))

	h.SetReady(false)
	code, _ = probe(t, h.Handler(), "/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, 0.0, testutil.ToFloat64(testMetrics.Ready))
}

func TestHealthServer_ReadinessChecks(t *testing.T) {
	storeErr := errors.New("connection refused")
	var sawDeadline bool
	checks := map[string]Check{
		"store": func(ctx context.Context) error {
			_, sawDeadline = ctx.Deadline()
			return storeErr
		},
		"queue": func(context.Context) error { return nil },
	}
	h := NewHealthServer(":0", discardLogger(), testMetrics, checks)
	h.SetReady(true)
	before := testutil.ToFloat64(testMetrics.ReadinessChecksFailedTotal.WithLabelValues("store"))

	code, resp := probe(t, h.Handler(), "/health/ready")

	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "not ready", resp.Status)
	assert.Equal(t, map[string]string{"store": "connection refused", "queue": "ok"}, resp.Checks)
	assert.True(t, sawDeadline)
	assert.Equal(t, before+1, testutil.ToFloat64(testMetrics.ReadinessChecksFailedTotal.WithLabelValues("store")))

	storeErr = nil
	code, resp = probe(t, h.Handler(), "/health/ready")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", resp.Checks["store"])
}

func TestHealthServer_MethodNotAllowed(t *testing.T) {
	h := NewHealthServer(":0", discardLogger(), nil, nil)
	rr := httptest.NewRecorder()
	h.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestHealthServer_StartAndShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	h := NewHealthServer(addr, discardLogger(), nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Start(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/health")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, http.ErrServerClosed)
	case <-time.After(6 * time.Second):
		t.Fatal("health server did not stop")
	}
}
