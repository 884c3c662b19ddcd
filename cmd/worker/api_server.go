package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	httpSwagger "github.com/swaggo/http-swagger/v2"

	hhttp "social-relay/internal/handler/http"
	"social-relay/internal/handler/http/auth"
	hdelivery "social-relay/internal/handler/http/delivery"
	"social-relay/internal/handler/http/requestid"
	"social-relay/internal/infra/publisher"
	workerPkg "social-relay/internal/infra/worker"
	"social-relay/internal/observability/tracing"
	"social-relay/internal/usecase/delivery"
)

type apiServerConfig struct {
	Port      int
	Secret    []byte
	RateLimit int
	Window    time.Duration
}

// newAPIServer builds the delivery API. Probes, /metrics and the swagger UI
// are public, every other route requires a bearer token.
func newAPIServer(logger *slog.Logger, cfg apiServerConfig, queue *delivery.Queue, registry *publisher.Registry, health *workerPkg.HealthServer) *http.Server {
	mux := http.NewServeMux()
	probes := health.Handler()
	mux.Handle("GET /health", probes)
	mux.Handle("GET /health/ready", probes)
	mux.Handle("GET /metrics", hhttp.MetricsHandler())
	mux.Handle("GET /swagger/", httpSwagger.WrapHandler)
	hdelivery.Register(mux, queue, registry, auth.Authz(cfg.Secret), logger)

	limiter := hhttp.NewRateLimiter(cfg.RateLimit, cfg.Window)
	logger.Info("api rate limiting initialized",
		slog.Int("limit", cfg.RateLimit),
		slog.Duration("window", cfg.Window))

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           applyMiddleware(logger, mux, limiter),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// applyMiddleware wraps the handler with the middleware chain.
// Order: Request ID → Recovery → Logging → Input Validation → Rate Limit → Metrics → Tracing.
// Tracing wraps the mux directly so the matched route pattern is visible.
func applyMiddleware(logger *slog.Logger, handler http.Handler, limiter *hhttp.RateLimiter) http.Handler {
	chain := tracing.Middleware(handler)
	chain = hhttp.MetricsMiddleware(chain)
	chain = limiter.Limit(chain)
	chain = hhttp.InputValidation()(chain)
	chain = hhttp.Logging(logger)(chain)
	chain = hhttp.Recover(logger)(chain)
	return requestid.Middleware(chain)
}

// runServer serves srv until ctx is cancelled, then shuts it down within
// 10 seconds. Requests in flight finish on their own contexts.
func runServer(ctx context.Context, logger *slog.Logger, name string, srv *http.Server) error {
	srv.BaseContext = func(net.Listener) context.Context { return context.WithoutCancel(ctx) }

	errChan := make(chan error, 1)
	go func() {
		logger.Info(name+" server starting", slog.String("addr", srv.Addr))
		errChan <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		logger.Info(name + " server shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error(name+" server shutdown failed", slog.Any("error", err))
			return err
		}
		logger.Info(name + " server stopped")
		return http.ErrServerClosed

	case err := <-errChan:
		return err
	}
}
