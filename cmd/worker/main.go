// Command worker runs the social-relay delivery queue together with its
// HTTP API, the health probe server and the Prometheus metrics server.
//
//go:generate swag init -g main.go -o ../../docs
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"golang.org/x/sync/errgroup"

	_ "social-relay/docs" // swagger docs
	"social-relay/internal/config"
	"social-relay/internal/domain/entity"
	"social-relay/internal/handler/http/auth"
	"social-relay/internal/infra/adapter/persistence/memory"
	pgRepo "social-relay/internal/infra/adapter/persistence/postgres"
	sqliteRepo "social-relay/internal/infra/adapter/persistence/sqlite"
	"social-relay/internal/infra/db"
	"social-relay/internal/infra/notifier"
	"social-relay/internal/infra/publisher"
	workerPkg "social-relay/internal/infra/worker"
	"social-relay/internal/observability/logging"
	"social-relay/internal/observability/tracing"
	loader "social-relay/internal/pkg/config"
	"social-relay/internal/repository"
	"social-relay/internal/usecase/delivery"
	pkgconfig "social-relay/pkg/config"
)

const (
	// drainTimeout bounds how long shutdown waits for in-flight deliveries.
	drainTimeout = 30 * time.Second

	// alertTimeout bounds one failure alert including webhook retries.
	alertTimeout = time.Minute
)

// @title           Social Relay API
// @version         1.0
// @description     Queue posts for delivery to Twitter and LinkedIn and inspect their state.

// @license.name  MIT
// @license.url   https://opensource.org/licenses/MIT

// @host      localhost:8080
// @BasePath  /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description HS256 JWT. Send "Bearer {token}".

func main() {
	logger := logging.NewLogger()
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("worker exited with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Fail-open: invalid values fall back to defaults, only inconsistent
	// combinations abort startup.
	workerMetrics := workerPkg.NewWorkerMetrics()
	workerConfig, err := workerPkg.LoadConfigFromEnv(logger, workerMetrics)
	if err != nil {
		return fmt.Errorf("load worker configuration: %w", err)
	}

	secret := os.Getenv("JWT_SECRET")
	if err := auth.ValidateSecret(secret); err != nil {
		return fmt.Errorf("invalid JWT_SECRET: %w", err)
	}

	shutdownTracing := tracing.InitProvider("social-relay", getVersion(), traceSampleRatio(logger))
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("tracer provider shutdown failed", slog.Any("error", err))
		}
	}()

	store, database, err := initStore(ctx, logger, workerConfig.Store)
	if err != nil {
		return err
	}
	if database != nil {
		defer func() {
			if err := database.Close(); err != nil {
				logger.Error("failed to close database", slog.Any("error", err))
			}
		}()
	}

	registry, err := initPublishers(logger)
	if err != nil {
		return err
	}

	alerts, err := notifier.New(notifier.LoadConfigFromEnv(), logger)
	if err != nil {
		return fmt.Errorf("configure failure alerts: %w", err)
	}
	pendingAlerts := &alertSender{}

	queue := delivery.NewQueue(store, registry, workerConfig.QueueConfig(),
		delivery.WithLogger(logger),
		delivery.WithHooks(deliveryHooks(logger, alerts, pendingAlerts)))

	checks := map[string]workerPkg.Check{
		"queue": func(context.Context) error {
			if !queue.Running() {
				return errors.New("delivery queue is not running")
			}
			return nil
		},
	}
	if database != nil {
		checks["store"] = database.PingContext
	}
	healthServer := workerPkg.NewHealthServer(
		fmt.Sprintf(":%d", workerConfig.HealthPort), logger, workerMetrics, checks)

	apiServer := newAPIServer(logger, apiServerConfig{
		Port:      workerConfig.APIPort,
		Secret:    []byte(secret),
		RateLimit: pkgconfig.GetEnvInt("API_RATE_LIMIT", 100),
		Window:    pkgconfig.GetEnvDuration("API_RATE_WINDOW", time.Minute),
	}, queue, registry, healthServer)

	if err := queue.Start(ctx); err != nil {
		return fmt.Errorf("start delivery queue: %w", err)
	}
	workerMetrics.RecordStart()
	healthServer.SetReady(true)
	workerPkg.NotifySystemd(logger, workerPkg.SystemdReady)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ignoreClosed(healthServer.Start(gctx)) })
	g.Go(func() error { return watchCredentials(gctx, logger, registry) })
	g.Go(func() error { return ignoreClosed(runServer(gctx, logger, "api", apiServer)) })
	g.Go(func() error {
		return ignoreClosed(runServer(gctx, logger, "metrics", newMetricsServer(workerConfig.MetricsPort)))
	})

	<-gctx.Done()
	logger.Info("shutdown signal received, draining delivery queue")
	healthServer.SetReady(false)
	workerPkg.NotifySystemd(logger, workerPkg.SystemdStopping)

	start := time.Now()
	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := queue.Stop(drainCtx); err != nil {
		logger.Warn("delivery queue did not drain in time", slog.Any("error", err))
	}
	pendingAlerts.closeAndWait()
	workerMetrics.RecordShutdown(time.Since(start))

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("worker stopped", slog.Duration("shutdown_duration", time.Since(start)))
	return nil
}

// initStore returns the job store selected by DELIVERY_STORE. The database
// handle is nil for the memory store.
func initStore(ctx context.Context, logger *slog.Logger, kind string) (repository.JobStore, *sql.DB, error) {
	switch kind {
	case workerPkg.StorePostgres:
		database, err := db.Open(ctx, pkgconfig.GetEnvString("DATABASE_URL", ""))
		if err != nil {
			return nil, nil, fmt.Errorf("open job store: %w", err)
		}
		if err := db.Migrate(ctx, database); err != nil {
			_ = database.Close()
			return nil, nil, fmt.Errorf("migrate job store: %w", err)
		}
		logger.Info("using postgres job store")
		return pgRepo.NewJobStore(database), database, nil

	case workerPkg.StoreSQLite:
		path := pkgconfig.GetEnvString("SQLITE_PATH", "social-relay.db")
		database, err := db.OpenSQLite(ctx, path)
		if err != nil {
			return nil, nil, fmt.Errorf("open job store: %w", err)
		}
		if err := db.MigrateSQLite(ctx, database); err != nil {
			_ = database.Close()
			return nil, nil, fmt.Errorf("migrate job store: %w", err)
		}
		logger.Info("using sqlite job store", slog.String("path", path))
		return sqliteRepo.NewJobStore(database), database, nil

	default:
		logger.Warn("using in-memory job store; jobs are lost on restart")
		return memory.NewJobStore(), nil, nil
	}
}

// initPublishers loads credentials from PLATFORMS_CONFIG when set, otherwise
// from the environment, and narrows them to PLATFORMS_ENABLED.
func initPublishers(logger *slog.Logger) (*publisher.Registry, error) {
	var (
		platforms *config.PlatformsConfig
		err       error
	)
	if path := pkgconfig.GetEnvString("PLATFORMS_CONFIG", ""); path != "" {
		platforms, err = config.LoadPlatformsConfig(path)
	} else {
		platforms, err = config.PlatformsFromEnv()
	}
	if err != nil {
		return nil, fmt.Errorf("load platform credentials: %w", err)
	}

	pubs, err := buildPublishers(logger, platforms)
	if err != nil {
		return nil, err
	}
	registry := publisher.NewRegistry(pubs...)
	logConfigured(logger, registry)
	return registry, nil
}

func buildPublishers(logger *slog.Logger, platforms *config.PlatformsConfig) ([]publisher.Publisher, error) {
	if err := platforms.Restrict(pkgconfig.GetEnvStringList("PLATFORMS_ENABLED", nil)); err != nil {
		return nil, fmt.Errorf("restrict platforms: %w", err)
	}
	pubs, err := platforms.Publishers(publisher.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("build publishers: %w", err)
	}
	return pubs, nil
}

// watchCredentials swaps the registry's publishers whenever the credentials
// file changes. A watcher that cannot start only disables hot reload.
func watchCredentials(ctx context.Context, logger *slog.Logger, registry *publisher.Registry) error {
	path := pkgconfig.GetEnvString("PLATFORMS_CONFIG", "")
	if path == "" {
		return nil
	}
	err := config.WatchPlatformsConfig(ctx, path, logger, func(platforms *config.PlatformsConfig) error {
		pubs, err := buildPublishers(logger, platforms)
		if err != nil {
			return err
		}
		registry.Replace(pubs...)
		logConfigured(logger, registry)
		return nil
	})
	if err != nil {
		logger.Warn("platform credentials hot reload disabled", slog.Any("error", err))
	}
	return nil
}

func logConfigured(logger *slog.Logger, registry *publisher.Registry) {
	names := make([]string, 0, 2)
	for _, p := range registry.Configured() {
		names = append(names, string(p))
	}
	logger.Info("publishers initialized", slog.Any("platforms", names))
}

// alertSender runs failure alerts in the background until shutdown. Once
// closed, late alerts from deliveries that outlived the drain run inline so
// the WaitGroup is never grown while closeAndWait is blocked on it.
type alertSender struct {
	mu      sync.Mutex
	closed  bool
	pending sync.WaitGroup
}

func (s *alertSender) send(fn func()) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		fn()
		return
	}
	s.pending.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.pending.Done()
		fn()
	}()
}

func (s *alertSender) closeAndWait() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.pending.Wait()
}

// deliveryHooks logs every outcome. Permanent failures are also sent to the
// alert channels through sender.
func deliveryHooks(logger *slog.Logger, alerts notifier.Notifier, sender *alertSender) delivery.Hooks {
	return delivery.Hooks{
		OnSuccess: func(_ context.Context, job *entity.Job, result *entity.PublishResult) {
			logging.WithJob(logger, job).Info("post published",
				slog.String("post_id", result.PostID),
				slog.String("post_url", result.PostURL))
		},
		OnFailure: func(ctx context.Context, job *entity.Job, err *entity.ServiceError) {
			logging.WithJob(logger, job).Error("delivery failed permanently",
				slog.String("code", string(err.Code)),
				slog.String("error", err.Message))

			alert := notifier.NewAlert(job, err)
			sender.send(func() {
				alertCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), alertTimeout)
				defer cancel()
				_ = alerts.NotifyFailure(alertCtx, alert)
			})
		},
		OnRetry: func(_ context.Context, job *entity.Job, err *entity.ServiceError, delay time.Duration) {
			logging.WithJob(logger, job).Info("delivery scheduled for retry",
				slog.String("code", string(err.Code)),
				slog.Duration("delay", delay))
		},
	}
}

// traceSampleRatio reads TRACE_SAMPLE_RATIO, a fraction between 0 and 1.
func traceSampleRatio(logger *slog.Logger) float64 {
	res := loader.LoadEnvFloat("TRACE_SAMPLE_RATIO", 1.0, func(v float64) error {
		return loader.InRange(v, 0, 1)
	})
	for _, w := range res.Warnings {
		logger.Warn(w)
	}
	return res.Value
}

// getVersion returns the application version from environment or default.
func getVersion() string {
	return pkgconfig.GetEnvString("VERSION", "dev")
}

func ignoreClosed(err error) error {
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
