package delivery

import (
	"log/slog"
	"net/http"
	"slices"

	"social-relay/internal/domain/entity"
	"social-relay/internal/handler/http/requestid"
	"social-relay/internal/handler/http/respond"
)

// VerifyHandler checks the configured credentials of one platform.
type VerifyHandler struct {
	Verifier Verifier
	Logger   *slog.Logger
}

// ServeHTTP handles POST /platforms/{platform}/verify. Rejected credentials
// answer with the platform error mapped through the error taxonomy.
// @Summary      Verify platform credentials
// @Tags         platforms
// @Security     BearerAuth
// @Produce      json
// @Param        platform path string true "Platform" Enums(twitter, linkedin)
// @Success      200 {object} VerifyResponse
// @Failure      400 {object} respond.ErrorBody "Unknown or unconfigured platform"
// @Failure      401 {object} respond.ErrorBody "Credentials rejected by the platform"
// @Failure      403 {object} respond.ErrorBody "Role may not verify credentials"
// @Router       /platforms/{platform}/verify [post]
func (h VerifyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	platform, err := entity.ParsePlatform(r.PathValue("platform"))
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.Verifier.VerifyCredentials(r.Context(), platform); err != nil {
		se := entity.AsServiceError(string(platform), err)
		h.Logger.Warn("credential verification failed",
			slog.String("request_id", requestid.FromContext(r.Context())),
			slog.String("platform", string(platform)),
			slog.String("code", string(se.Code)))
		respond.ServiceError(w, se)
		return
	}
	respond.JSON(w, http.StatusOK, VerifyResponse{Platform: string(platform), Valid: true})
}

// PlatformsHandler lists supported platforms and whether each is configured.
type PlatformsHandler struct{ Verifier Verifier }

// @Summary      List supported platforms
// @Tags         platforms
// @Security     BearerAuth
// @Produce      json
// @Success      200 {array} PlatformDTO
// @Router       /platforms [get]
func (h PlatformsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	configured := h.Verifier.Configured()
	out := make([]PlatformDTO, 0, len(entity.Platforms()))
	for _, p := range entity.Platforms() {
		limits := p.Limits()
		out = append(out, PlatformDTO{
			Name:          string(p),
			Configured:    slices.Contains(configured, p),
			MaxCharacters: limits.MaxCharacters,
			MaxMedia:      limits.MaxMedia,
		})
	}
	respond.JSON(w, http.StatusOK, out)
}
