package signer

import "strings"

// BearerSigner presents a static token verbatim.
type BearerSigner struct {
	service string
	token   string
}

// NewBearerSigner creates a signer that emits "Bearer <token>".
func NewBearerSigner(service, token string) *BearerSigner {
	return &BearerSigner{service: service, token: strings.TrimSpace(token)}
}

// Authorization implements Signer.
func (b *BearerSigner) Authorization(_ Request) (string, error) {
	if b.token == "" {
		return "", signingError(b.service, "bearer token is not configured", nil)
	}
	return "Bearer " + b.token, nil
}
