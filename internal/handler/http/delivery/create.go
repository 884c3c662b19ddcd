package delivery

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"social-relay/internal/domain/entity"
	"social-relay/internal/handler/http/auth"
	"social-relay/internal/handler/http/requestid"
	"social-relay/internal/handler/http/respond"
)

// CreateHandler enqueues a new delivery job.
type CreateHandler struct {
	Svc    JobService
	Logger *slog.Logger
}

// ServeHTTP handles POST /jobs. It answers 202 with the job id; publishing
// happens asynchronously.
// @Summary      Enqueue a delivery job
// @Description  Validates the message against the platform limits and queues it for publishing.
// @Tags         jobs
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request body CreateRequest true "Job to enqueue"
// @Success      202 {object} CreateResponse "Job accepted" headers(Location=string)
// @Failure      400 {object} respond.ErrorBody "Invalid body, unknown platform or message rejected"
// @Failure      401 {object} respond.ErrorBody "Missing or invalid token"
// @Failure      403 {object} respond.ErrorBody "Role may not enqueue jobs"
// @Failure      429 {object} respond.ErrorBody "Too many requests" headers(Retry-After=integer)
// @Router       /jobs [post]
func (h CreateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}

	platform, err := entity.ParsePlatform(req.Platform)
	if err != nil {
		writeError(w, err)
		return
	}

	id, err := h.Svc.AddJob(r.Context(), req.spec(platform))
	if err != nil {
		writeError(w, err)
		return
	}

	user, _ := auth.UserFromContext(r.Context())
	h.Logger.Info("job accepted",
		slog.String("request_id", requestid.FromContext(r.Context())),
		slog.String("job_id", id),
		slog.String("platform", string(platform)),
		slog.String("sub", user.Subject))

	w.Header().Set("Location", "/jobs/"+id)
	respond.JSON(w, http.StatusAccepted, CreateResponse{ID: id, Status: string(entity.StatusQueued)})
}
