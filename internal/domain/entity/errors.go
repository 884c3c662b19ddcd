package entity

import (
	"errors"
	"fmt"
)

// ErrValidationFailed matches every *ValidationError via errors.Is, so callers
// can map bad input to a 400 without knowing which field failed.
var ErrValidationFailed = errors.New("validation failed")

// ValidationError reports a rejected PostSpec or query field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid " + e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Is reports whether target is ErrValidationFailed.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}
