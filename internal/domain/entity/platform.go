package entity

import (
	"fmt"
	"strings"
)

// Platform identifies a remote publishing API. The set is closed: every
// switch over Platform must handle PlatformTwitter and PlatformLinkedIn.
type Platform string

const (
	// PlatformTwitter is the microblogging API (OAuth 1.0a signed).
	PlatformTwitter Platform = "twitter"
	// PlatformLinkedIn is the professional-network API (bearer token).
	PlatformLinkedIn Platform = "linkedin"
)

// Platforms lists every supported platform in a stable order.
func Platforms() []Platform {
	return []Platform{PlatformTwitter, PlatformLinkedIn}
}

// PlatformLimits describes the content ceilings enforced before a job is queued.
type PlatformLimits struct {
	MaxCharacters int
	MaxMedia      int
}

// Limits returns the content ceilings for p.
func (p Platform) Limits() PlatformLimits {
	switch p {
	case PlatformTwitter:
		return PlatformLimits{MaxCharacters: 280, MaxMedia: 4}
	case PlatformLinkedIn:
		return PlatformLimits{MaxCharacters: 3000, MaxMedia: 9}
	}
	return PlatformLimits{}
}

// Valid reports whether p is a supported platform.
func (p Platform) Valid() bool {
	switch p {
	case PlatformTwitter, PlatformLinkedIn:
		return true
	}
	return false
}

// ParsePlatform converts a user supplied string to a Platform.
// "x" is accepted as an alias for twitter.
func ParsePlatform(s string) (Platform, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "twitter", "x":
		return PlatformTwitter, nil
	case "linkedin":
		return PlatformLinkedIn, nil
	}
	return "", &ValidationError{Field: "platform", Message: fmt.Sprintf("unsupported platform %q", s)}
}
