package delivery

import (
	"fmt"
	"net/http"

	"social-relay/internal/handler/http/respond"
)

// CancelHandler cancels a queued job.
type CancelHandler struct{ Svc JobService }

// ServeHTTP handles POST /jobs/{id}/cancel. A job that exists but is no
// longer queued answers 409 with its current state.
// @Summary      Cancel a queued job
// @Tags         jobs
// @Security     BearerAuth
// @Produce      json
// @Param        id path string true "Job ID"
// @Success      200 {object} JobDTO
// @Failure      403 {object} respond.ErrorBody "Role may not cancel jobs"
// @Failure      404 {object} respond.ErrorBody "Job not found"
// @Failure      409 {object} respond.ErrorBody "Job is no longer queued"
// @Router       /jobs/{id}/cancel [post]
func (h CancelHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ok, err := h.Svc.CancelJob(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	respondTransition(w, r, h.Svc, id, ok, "only queued jobs can be cancelled")
}

// RetryHandler re-queues a failed job.
type RetryHandler struct{ Svc JobService }

// ServeHTTP handles POST /jobs/{id}/retry. Jobs that are not failed answer 409.
// @Summary      Retry a failed job
// @Description  Resets the attempt counter and queues the job again.
// @Tags         jobs
// @Security     BearerAuth
// @Produce      json
// @Param        id path string true "Job ID"
// @Success      200 {object} JobDTO
// @Failure      403 {object} respond.ErrorBody "Role may not retry jobs"
// @Failure      404 {object} respond.ErrorBody "Job not found"
// @Failure      409 {object} respond.ErrorBody "Job is not failed"
// @Router       /jobs/{id}/retry [post]
func (h RetryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ok, err := h.Svc.RetryJob(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	respondTransition(w, r, h.Svc, id, ok, "only failed jobs can be retried")
}

// respondTransition writes the job after a cancel or retry. A rejected
// transition reads the job again to tell 404 from 409.
func respondTransition(w http.ResponseWriter, r *http.Request, svc JobService, id string, applied bool, conflict string) {
	job, err := svc.GetJob(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !applied {
		respond.Error(w, http.StatusConflict, fmt.Errorf("%s (status: %s)", conflict, job.Status))
		return
	}
	respond.JSON(w, http.StatusOK, toDTO(job))
}
