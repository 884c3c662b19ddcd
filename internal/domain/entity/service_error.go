package entity

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode identifies one member of the closed delivery error taxonomy.
type ErrorCode string

const (
	CodeAuthenticationFailed ErrorCode = "AUTHENTICATION_FAILED"
	CodeInvalidToken         ErrorCode = "INVALID_TOKEN"
	CodeForbidden            ErrorCode = "FORBIDDEN"
	CodeRateLimited          ErrorCode = "RATE_LIMITED"
	CodeContentTooLong       ErrorCode = "CONTENT_TOO_LONG"
	CodeDuplicateContent     ErrorCode = "DUPLICATE_CONTENT"
	CodeMediaUploadFailed    ErrorCode = "MEDIA_UPLOAD_FAILED"
	CodeNetworkError         ErrorCode = "NETWORK_ERROR"
	CodeConnectionFailed     ErrorCode = "CONNECTION_FAILED"
	CodeTimeout              ErrorCode = "TIMEOUT"
	CodeServerError          ErrorCode = "SERVER_ERROR"
	CodeServiceUnavailable   ErrorCode = "SERVICE_UNAVAILABLE"
	CodeValidationError      ErrorCode = "VALIDATION_ERROR"
	CodeBadRequest           ErrorCode = "BAD_REQUEST"
	CodeNotFound             ErrorCode = "NOT_FOUND"
	CodeSigningFailed        ErrorCode = "SIGNING_FAILED"
	CodeUnknown              ErrorCode = "UNKNOWN"
)

// retryableCodes is the complete allow list. Any code not listed here,
// including the hard-deny codes (auth, token, forbidden, too long,
// duplicate, validation), can never succeed on resubmission.
var retryableCodes = map[ErrorCode]bool{
	CodeRateLimited:        true,
	CodeNetworkError:       true,
	CodeConnectionFailed:   true,
	CodeTimeout:            true,
	CodeServerError:        true,
	CodeServiceUnavailable: true,
}

var knownCodes = map[ErrorCode]string{
	CodeAuthenticationFailed: "Check the platform credentials and reconnect the account.",
	CodeInvalidToken:         "The access token is invalid or expired; re-authorize the account.",
	CodeForbidden:            "The account lacks permission for this action; check app scopes.",
	CodeRateLimited:          "The platform rate limit was reached; the post will be retried later.",
	CodeContentTooLong:       "Shorten the message to fit the platform character limit.",
	CodeDuplicateContent:     "The platform rejected the post as a duplicate; change the text.",
	CodeMediaUploadFailed:    "Check that the media files are reachable and in a supported format.",
	CodeNetworkError:         "A network error occurred; the post will be retried.",
	CodeConnectionFailed:     "Could not connect to the platform; the post will be retried.",
	CodeTimeout:              "The platform did not respond in time; the post will be retried.",
	CodeServerError:          "The platform returned a server error; the post will be retried.",
	CodeServiceUnavailable:   "The platform is temporarily unavailable; the post will be retried.",
	CodeValidationError:      "Fix the request fields and submit again.",
	CodeBadRequest:           "The platform rejected the request; check the message and media.",
	CodeNotFound:             "The platform resource was not found; check the account configuration.",
	CodeSigningFailed:        "The request could not be signed; check the OAuth credentials.",
	CodeUnknown:              "An unexpected error occurred; check the logs for details.",
}

// IsRetryableCode reports whether errors carrying code may succeed when resubmitted.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}

// Valid reports whether code belongs to the taxonomy.
func (c ErrorCode) Valid() bool {
	_, ok := knownCodes[c]
	return ok
}

// Hint returns the remediation hint shown to users for code.
func (c ErrorCode) Hint() string {
	if hint, ok := knownCodes[c]; ok {
		return hint
	}
	return knownCodes[CodeUnknown]
}

// ServiceError is the structured error carried from the transport layer up
// to job state and caller hooks.
//
// The retry decision is fixed when the error is constructed and cannot be
// changed afterwards; callers must use Retryable() rather than inspecting Code.
type ServiceError struct {
	Code       ErrorCode      `json:"code"`
	Message    string         `json:"message"`
	StatusCode int            `json:"status_code,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	Service    string         `json:"service,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`

	retryable bool
	cause     error
}

// ServiceErrorOption customizes a ServiceError at construction time.
type ServiceErrorOption func(*ServiceError)

// WithStatus records the HTTP status code that produced the error.
func WithStatus(status int) ServiceErrorOption {
	return func(e *ServiceError) { e.StatusCode = status }
}

// WithDetail adds a structured detail entry.
func WithDetail(key string, value any) ServiceErrorOption {
	return func(e *ServiceError) {
		if e.Details == nil {
			e.Details = make(map[string]any)
		}
		e.Details[key] = value
	}
}

// WithCause attaches the underlying error for errors.Is / errors.As.
func WithCause(err error) ServiceErrorOption {
	return func(e *ServiceError) { e.cause = err }
}

// NewServiceError creates a ServiceError. Unknown codes are normalized to CodeUnknown.
func NewServiceError(service string, code ErrorCode, message string, opts ...ServiceErrorOption) *ServiceError {
	if !code.Valid() {
		code = CodeUnknown
	}
	e := &ServiceError{
		Code:      code,
		Message:   message,
		Service:   service,
		Timestamp: time.Now(),
		retryable: IsRetryableCode(code),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (%s, HTTP %d)", e.Service, e.Message, e.Code, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Service, e.Message, e.Code)
}

// Unwrap returns the underlying cause, if any.
func (e *ServiceError) Unwrap() error {
	return e.cause
}

// Retryable reports whether the failed operation may be resubmitted.
func (e *ServiceError) Retryable() bool {
	return e.retryable
}

// UserMessage returns the platform message followed by a remediation hint.
func (e *ServiceError) UserMessage() string {
	if e.Message == "" {
		return e.Code.Hint()
	}
	return e.Message + ". " + e.Code.Hint()
}

// Reclassify returns a copy of e with a different code. The copy derives its
// own retry flag from the new code; e itself is left untouched.
func (e *ServiceError) Reclassify(code ErrorCode, message string) *ServiceError {
	if message == "" {
		message = e.Message
	}
	out := NewServiceError(e.Service, code, message, WithStatus(e.StatusCode), WithCause(e.cause))
	for k, v := range e.Details {
		WithDetail(k, v)(out)
	}
	return out
}

// AsServiceError converts any error into a *ServiceError. Errors that are not
// already part of the taxonomy become non-retryable CodeUnknown errors.
func AsServiceError(service string, err error) *ServiceError {
	if err == nil {
		return nil
	}
	var se *ServiceError
	if errors.As(err, &se) {
		return se
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return NewServiceError(service, CodeValidationError, ve.Error(), WithCause(err),
			WithDetail("field", ve.Field))
	}
	return NewServiceError(service, CodeUnknown, err.Error(), WithCause(err))
}
