package auth

import (
	"fmt"
	"strings"
)

// minSecretLength is the minimum JWT_SECRET length in bytes.
const minSecretLength = 32

// weakSecrets are placeholder values that must never sign tokens.
var weakSecrets = []string{
	"secret",
	"changeme",
	"password",
	"jwt-secret",
	"your-secret-key",
	"test",
}

// ValidateSecret checks the signing secret at startup.
func ValidateSecret(secret string) error {
	if secret == "" {
		return fmt.Errorf("JWT_SECRET must not be empty")
	}
	if len(secret) < minSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d bytes (current length: %d)", minSecretLength, len(secret))
	}
	if isRepeatedChar(secret) {
		return fmt.Errorf("JWT_SECRET must not be a single repeated character")
	}
	lower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if strings.HasPrefix(lower, weak) && isRepeatedChar(strings.TrimPrefix(lower, weak)) {
			return fmt.Errorf("JWT_SECRET must not be based on a placeholder value")
		}
	}
	return nil
}

// isRepeatedChar reports whether s consists of one repeated byte.
func isRepeatedChar(s string) bool {
	if s == "" {
		return true
	}
	for i := 1; i < len(s); i++ {
		if s[i] != s[0] {
			return false
		}
	}
	return true
}
