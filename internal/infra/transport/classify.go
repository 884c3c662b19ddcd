package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"syscall"

	"social-relay/internal/domain/entity"
)

// ErrorClassifier lets a platform adapter refine the status-based
// classification using the response body. It returns se unchanged when it
// has nothing to add.
type ErrorClassifier func(se *entity.ServiceError, resp *Response) *entity.ServiceError

// ClassifyStatus maps an HTTP status code to an error code.
func ClassifyStatus(status int) entity.ErrorCode {
	switch status {
	case http.StatusBadRequest:
		return entity.CodeBadRequest
	case http.StatusUnauthorized:
		return entity.CodeAuthenticationFailed
	case http.StatusForbidden:
		return entity.CodeForbidden
	case http.StatusNotFound:
		return entity.CodeNotFound
	case http.StatusRequestTimeout:
		return entity.CodeTimeout
	case http.StatusTooManyRequests:
		return entity.CodeRateLimited
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusGatewayTimeout:
		return entity.CodeServerError
	case http.StatusServiceUnavailable:
		return entity.CodeServiceUnavailable
	}
	if status >= 500 {
		return entity.CodeServerError
	}
	return entity.CodeUnknown
}

// classifyNetworkError converts a failed round trip into a ServiceError.
func classifyNetworkError(service string, err error) *entity.ServiceError {
	if errors.Is(err, context.DeadlineExceeded) {
		return entity.NewServiceError(service, entity.CodeTimeout, "request timed out", entity.WithCause(err))
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return entity.NewServiceError(service, entity.CodeTimeout, "request timed out", entity.WithCause(err))
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) || errors.Is(err, syscall.ECONNREFUSED) {
		return entity.NewServiceError(service, entity.CodeConnectionFailed, "could not connect", entity.WithCause(err))
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return entity.NewServiceError(service, entity.CodeConnectionFailed, "could not connect", entity.WithCause(err))
	}

	return entity.NewServiceError(service, entity.CodeNetworkError, "network error: "+err.Error(), entity.WithCause(err))
}

// errorMessage extracts a human-readable message from an error body. JSON
// bodies are optional; anything unparsable falls back to the status text.
func errorMessage(status int, body []byte) string {
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err == nil {
		for _, key := range []string{"detail", "message", "error_description", "title", "error"} {
			if s, ok := doc[key].(string); ok && strings.TrimSpace(s) != "" {
				return s
			}
		}
		if errs, ok := doc["errors"].([]any); ok && len(errs) > 0 {
			if first, ok := errs[0].(map[string]any); ok {
				if s, ok := first["message"].(string); ok && s != "" {
					return s
				}
			}
		}
	}

	text := strings.TrimSpace(string(body))
	if text != "" && len(text) <= 200 && !strings.HasPrefix(text, "<") && !strings.HasPrefix(text, "{") {
		return text
	}
	if st := http.StatusText(status); st != "" {
		return st
	}
	return "unexpected response"
}

// BreakerSuccess reports whether err should count as a success for the
// circuit breaker. Only failures that point at platform health trip it;
// client errors such as duplicates or bad credentials do not.
func BreakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	var se *entity.ServiceError
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code {
	case entity.CodeServerError, entity.CodeServiceUnavailable, entity.CodeTimeout,
		entity.CodeNetworkError, entity.CodeConnectionFailed:
		return false
	}
	return true
}
