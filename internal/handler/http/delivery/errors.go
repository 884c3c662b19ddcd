package delivery

import (
	"errors"
	"net/http"

	"social-relay/internal/domain/entity"
	"social-relay/internal/handler/http/respond"
	deliveryUC "social-relay/internal/usecase/delivery"
)

// writeError maps use case errors to responses.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, deliveryUC.ErrJobNotFound):
		respond.Error(w, http.StatusNotFound, deliveryUC.ErrJobNotFound)
	case errors.Is(err, entity.ErrValidationFailed):
		respond.SafeError(w, http.StatusBadRequest, err)
	default:
		respond.SafeError(w, http.StatusInternalServerError, err)
	}
}
