package entity

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServiceError_RetryableDerivedFromCode(t *testing.T) {
	tests := []struct {
		code      ErrorCode
		retryable bool
	}{
		{CodeRateLimited, true},
		{CodeNetworkError, true},
		{CodeConnectionFailed, true},
		{CodeTimeout, true},
		{CodeServerError, true},
		{CodeServiceUnavailable, true},
		{CodeAuthenticationFailed, false},
		{CodeInvalidToken, false},
		{CodeForbidden, false},
		{CodeContentTooLong, false},
		{CodeDuplicateContent, false},
		{CodeValidationError, false},
		{CodeBadRequest, false},
		{CodeNotFound, false},
		{CodeSigningFailed, false},
		{CodeMediaUploadFailed, false},
		{CodeUnknown, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			err := NewServiceError("twitter", tt.code, "msg")
			assert.Equal(t, tt.retryable, err.Retryable())
			assert.Equal(t, tt.code, err.Code)
			assert.False(t, err.Timestamp.IsZero())
		})
	}
}

func TestNewServiceError_UnknownCodeNormalized(t *testing.T) {
	err := NewServiceError("linkedin", ErrorCode("SOMETHING_NEW"), "msg")
	assert.Equal(t, CodeUnknown, err.Code)
	assert.False(t, err.Retryable())
}

func TestServiceError_ErrorString(t *testing.T) {
	err := NewServiceError("twitter", CodeRateLimited, "Too Many Requests", WithStatus(429))
	assert.Equal(t, "twitter: Too Many Requests (RATE_LIMITED, HTTP 429)", err.Error())

	err = NewServiceError("twitter", CodeTimeout, "deadline exceeded")
	assert.Equal(t, "twitter: deadline exceeded (TIMEOUT)", err.Error())
}

func TestServiceError_UserMessageIncludesHint(t *testing.T) {
	err := NewServiceError("twitter", CodeAuthenticationFailed, "Could not authenticate you")
	msg := err.UserMessage()
	assert.True(t, strings.HasPrefix(msg, "Could not authenticate you"))
	assert.Contains(t, msg, "credentials")
}

func TestServiceError_ReclassifyLeavesOriginal(t *testing.T) {
	orig := NewServiceError("twitter", CodeBadRequest, "Status is a duplicate", WithStatus(403), WithDetail("api_code", 187))
	out := orig.Reclassify(CodeDuplicateContent, "")

	assert.Equal(t, CodeBadRequest, orig.Code)
	assert.Equal(t, CodeDuplicateContent, out.Code)
	assert.Equal(t, "Status is a duplicate", out.Message)
	assert.Equal(t, 403, out.StatusCode)
	assert.Equal(t, 187, out.Details["api_code"])
	assert.False(t, out.Retryable())

	flipped := out.Reclassify(CodeServerError, "upstream")
	assert.True(t, flipped.Retryable())
	assert.False(t, out.Retryable())
}

func TestAsServiceError(t *testing.T) {
	assert.Nil(t, AsServiceError("x", nil))

	se := NewServiceError("twitter", CodeTimeout, "slow")
	wrapped := fmt.Errorf("publish: %w", se)
	assert.Same(t, se, AsServiceError("twitter", wrapped))

	ve := AsServiceError("queue", &ValidationError{Field: "message", Message: "required"})
	assert.Equal(t, CodeValidationError, ve.Code)
	assert.Equal(t, "message", ve.Details["field"])

	plain := errors.New("boom")
	unknown := AsServiceError("twitter", plain)
	require.Equal(t, CodeUnknown, unknown.Code)
	assert.False(t, unknown.Retryable())
	assert.ErrorIs(t, unknown, plain)
}
