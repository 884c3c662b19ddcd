package delivery

import (
	"net/http"

	"social-relay/internal/common/pagination"
	"social-relay/internal/domain/entity"
	"social-relay/internal/handler/http/respond"
	deliveryUC "social-relay/internal/usecase/delivery"
)

// GetHandler returns one job.
type GetHandler struct{ Svc JobService }

// @Summary      Get a delivery job
// @Tags         jobs
// @Security     BearerAuth
// @Produce      json
// @Param        id path string true "Job ID"
// @Success      200 {object} JobDTO
// @Failure      401 {object} respond.ErrorBody "Missing or invalid token"
// @Failure      404 {object} respond.ErrorBody "Job not found"
// @Router       /jobs/{id} [get]
func (h GetHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	job, err := h.Svc.GetJob(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, toDTO(job))
}

// ListHandler lists jobs, optionally filtered by ?status=, one page at a
// time (?page=, ?limit=).
type ListHandler struct {
	Svc  JobService
	Page pagination.Config
}

// @Summary      List delivery jobs
// @Tags         jobs
// @Security     BearerAuth
// @Produce      json
// @Param        status query string false "Filter by status" Enums(queued, processing, published, failed, cancelled)
// @Param        page   query int    false "Page number" minimum(1)
// @Param        limit  query int    false "Page size" minimum(1) maximum(100)
// @Success      200 {object} ListResponse
// @Failure      400 {object} respond.ErrorBody "Invalid pagination parameters"
// @Failure      401 {object} respond.ErrorBody "Missing or invalid token"
// @Router       /jobs [get]
func (h ListHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	params, err := pagination.ParseQueryParams(r, h.Page)
	if err != nil {
		respond.Error(w, http.StatusBadRequest, err)
		return
	}

	status := entity.JobStatus(r.URL.Query().Get("status"))
	jobs, err := h.Svc.ListJobs(r.Context(), status)
	if err != nil {
		writeError(w, err)
		return
	}

	page, meta := pagination.Slice(jobs, params)
	out := ListResponse{Jobs: make([]JobDTO, 0, len(page)), Count: len(page), Pagination: meta}
	for _, j := range page {
		out.Jobs = append(out.Jobs, toDTO(j))
	}
	respond.JSON(w, http.StatusOK, out)
}

// StatsHandler returns job counts per status.
type StatsHandler struct{ Svc JobService }

// @Summary      Job counts per status
// @Tags         jobs
// @Security     BearerAuth
// @Produce      json
// @Success      200 {object} deliveryUC.Stats
// @Failure      401 {object} respond.ErrorBody "Missing or invalid token"
// @Router       /stats [get]
func (h StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var (
		stats deliveryUC.Stats
		err   error
	)
	if stats, err = h.Svc.Stats(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, stats)
}
