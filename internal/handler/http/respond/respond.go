// Package respond writes JSON responses and maps domain errors to HTTP
// status codes without leaking internal details.
package respond

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"social-relay/internal/domain/entity"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error     string         `json:"error"`
	Code      string         `json:"code,omitempty"`
	Field     string         `json:"field,omitempty"`
	Retryable bool           `json:"retryable,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// JSON writes v as JSON with the given status code.
func JSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// headers are already sent
		slog.Default().Error("failed to encode JSON response",
			slog.Int("status_code", code),
			slog.Any("error", err))
	}
}

// Error writes err's message verbatim. Use it only for messages built by the handler.
func Error(w http.ResponseWriter, code int, err error) {
	JSON(w, code, ErrorBody{Error: err.Error()})
}

// SafeError writes err as a JSON error response. Validation and service
// errors keep their message; anything else is logged and replaced by a
// generic message.
func SafeError(w http.ResponseWriter, code int, err error) {
	if err == nil {
		return
	}

	var ve *entity.ValidationError
	if errors.As(err, &ve) && code < 500 {
		JSON(w, code, ErrorBody{
			Error: ve.Message,
			Code:  string(entity.CodeValidationError),
			Field: ve.Field,
		})
		return
	}

	var se *entity.ServiceError
	if errors.As(err, &se) {
		ServiceError(w, se)
		return
	}

	if code < 500 {
		JSON(w, code, ErrorBody{Error: err.Error()})
		return
	}

	slog.Default().Error("internal server error",
		slog.Int("code", code),
		slog.String("error", SanitizeError(err)))
	JSON(w, code, ErrorBody{Error: "internal server error"})
}

// ServiceError writes a platform error with the status derived from its code.
func ServiceError(w http.ResponseWriter, se *entity.ServiceError) {
	status := StatusForCode(se.Code)
	if status >= 500 {
		slog.Default().Warn("platform error",
			slog.String("service", se.Service),
			slog.String("code", string(se.Code)),
			slog.Int("platform_status", se.StatusCode),
			slog.String("error", SanitizeError(se)))
	}
	JSON(w, status, ErrorBody{
		Error:     se.UserMessage(),
		Code:      string(se.Code),
		Retryable: se.Retryable(),
		Details:   se.Details,
	})
}

// StatusForCode maps a taxonomy code to the status returned to API callers.
func StatusForCode(code entity.ErrorCode) int {
	switch code {
	case entity.CodeValidationError, entity.CodeContentTooLong, entity.CodeBadRequest:
		return http.StatusBadRequest
	case entity.CodeAuthenticationFailed, entity.CodeInvalidToken:
		return http.StatusUnauthorized
	case entity.CodeForbidden:
		return http.StatusForbidden
	case entity.CodeNotFound:
		return http.StatusNotFound
	case entity.CodeDuplicateContent:
		return http.StatusConflict
	case entity.CodeRateLimited:
		return http.StatusTooManyRequests
	case entity.CodeTimeout:
		return http.StatusGatewayTimeout
	case entity.CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	case entity.CodeNetworkError, entity.CodeConnectionFailed, entity.CodeServerError,
		entity.CodeMediaUploadFailed:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
