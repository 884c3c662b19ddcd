package entity

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"social-relay/internal/utils/text"
)

// maxURLLength defines the maximum allowed length for media URLs.
const maxURLLength = 2048

// ValidateJobSpec checks a job request against the target platform's ceilings.
// Character counts are measured in runes, not bytes.
func ValidateJobSpec(spec JobSpec, now time.Time) error {
	if !spec.Platform.Valid() {
		return &ValidationError{Field: "platform", Message: fmt.Sprintf("unsupported platform %q", spec.Platform)}
	}
	limits := spec.Platform.Limits()

	if strings.TrimSpace(spec.Message) == "" {
		return &ValidationError{Field: "message", Message: "message is required"}
	}
	if n := text.CountRunes(spec.Message); n > limits.MaxCharacters {
		return &ValidationError{
			Field:   "message",
			Message: fmt.Sprintf("message is too long: %d characters, %s allows %d", n, spec.Platform, limits.MaxCharacters),
		}
	}

	if len(spec.MediaURLs) > limits.MaxMedia {
		return &ValidationError{
			Field:   "media_urls",
			Message: fmt.Sprintf("too many media items: %d, %s allows %d", len(spec.MediaURLs), spec.Platform, limits.MaxMedia),
		}
	}
	for _, raw := range spec.MediaURLs {
		if err := ValidateURL(raw); err != nil {
			return err
		}
	}

	if spec.ScheduledAt != nil && spec.ScheduledAt.Before(now) {
		return &ValidationError{Field: "scheduled_at", Message: "scheduled time must be in the future"}
	}
	if spec.MaxAttempts < 0 {
		return &ValidationError{Field: "max_attempts", Message: "max attempts cannot be negative"}
	}
	return nil
}

// ValidateURL validates the format of a media URL.
// It checks that the URL is well-formed, uses HTTP/HTTPS scheme, and has a valid host.
// Literal private IP addresses are rejected to prevent SSRF through media fetches.
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return &ValidationError{Field: "url", Message: "URL is required"}
	}

	if len(rawURL) > maxURLLength {
		return &ValidationError{
			Field:   "url",
			Message: fmt.Sprintf("url must not exceed %d characters", maxURLLength),
		}
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return &ValidationError{Field: "url", Message: fmt.Sprintf("invalid URL: %v", err)}
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return &ValidationError{Field: "url", Message: "URL must use http or https scheme"}
	}

	if parsedURL.Host == "" {
		return &ValidationError{Field: "url", Message: "URL must have a valid host"}
	}

	if ip := net.ParseIP(parsedURL.Hostname()); ip != nil && isPrivateIP(ip) {
		return &ValidationError{Field: "url", Message: "url cannot point to private network"}
	}

	return nil
}

// isPrivateIP checks if an IP address is loopback, link-local or in a private range.
func isPrivateIP(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsPrivate() || ip.IsUnspecified()
}
