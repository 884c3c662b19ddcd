package delivery

import (
	"context"
	"log/slog"
	"net/http"

	"social-relay/internal/common/pagination"
	"social-relay/internal/domain/entity"
	deliveryUC "social-relay/internal/usecase/delivery"
)

// JobService is the part of the delivery queue the API drives.
// *delivery.Queue satisfies it.
type JobService interface {
	AddJob(ctx context.Context, spec entity.JobSpec) (string, error)
	GetJob(ctx context.Context, id string) (*entity.Job, error)
	ListJobs(ctx context.Context, status entity.JobStatus) ([]*entity.Job, error)
	CancelJob(ctx context.Context, id string) (bool, error)
	RetryJob(ctx context.Context, id string) (bool, error)
	Stats(ctx context.Context) (deliveryUC.Stats, error)
}

// Verifier checks platform credentials. *publisher.Registry satisfies it.
type Verifier interface {
	VerifyCredentials(ctx context.Context, platform entity.Platform) error
	Configured() []entity.Platform
}

// Register registers the delivery API on mux. Every route is wrapped with
// protect, which is expected to enforce authentication.
func Register(mux *http.ServeMux, svc JobService, verifier Verifier, protect func(http.Handler) http.Handler, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	mux.Handle("POST /jobs", protect(CreateHandler{Svc: svc, Logger: logger}))
	mux.Handle("GET /jobs", protect(ListHandler{Svc: svc, Page: pagination.LoadFromEnv()}))
	mux.Handle("GET /jobs/{id}", protect(GetHandler{Svc: svc}))
	mux.Handle("POST /jobs/{id}/cancel", protect(CancelHandler{Svc: svc}))
	mux.Handle("POST /jobs/{id}/retry", protect(RetryHandler{Svc: svc}))
	mux.Handle("GET /stats", protect(StatsHandler{Svc: svc}))

	mux.Handle("GET /platforms", protect(PlatformsHandler{Verifier: verifier}))
	mux.Handle("POST /platforms/{platform}/verify", protect(VerifyHandler{Verifier: verifier, Logger: logger}))
}
