// Package signer produces Authorization headers for outbound publishing calls.
//
// Two schemes are supported:
//   - OAuth1Signer: OAuth 1.0a HMAC-SHA1 request signatures (keyed-HMAC)
//   - BearerSigner: a static bearer token
//
// Signers never return an empty header without an error: a request that
// cannot be signed fails with a non-retryable SIGNING_FAILED ServiceError.
package signer

import (
	"net/url"

	"social-relay/internal/domain/entity"
)

// Request describes the parts of an HTTP request that take part in signing.
type Request struct {
	Method string
	URL    string
	// FormParams holds the body parameters of an
	// application/x-www-form-urlencoded request. Nil for any other body.
	FormParams url.Values
}

// Signer computes the Authorization header value for a request.
type Signer interface {
	Authorization(req Request) (string, error)
}

// Func adapts a function to the Signer interface.
type Func func(req Request) (string, error)

// Authorization calls f(req).
func (f Func) Authorization(req Request) (string, error) {
	return f(req)
}

func signingError(service, message string, cause error) *entity.ServiceError {
	opts := []entity.ServiceErrorOption{}
	if cause != nil {
		opts = append(opts, entity.WithCause(cause))
	}
	return entity.NewServiceError(service, entity.CodeSigningFailed, message, opts...)
}
