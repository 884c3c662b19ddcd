package transport

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// lowQuotaThreshold is the remaining-quota level below which every response logs a warning.
const lowQuotaThreshold = 10

// RateLimitInfo is the most recent quota snapshot reported by a platform.
type RateLimitInfo struct {
	Remaining int
	Limit     int
	// Reset is the epoch second at which the window resets. Zero when unknown.
	Reset int64
}

// Known reports whether any rate-limit header was seen.
func (r RateLimitInfo) Known() bool {
	return r.Limit > 0 || r.Reset > 0
}

// Exhausted reports whether the quota is used up and the reset time is known.
func (r RateLimitInfo) Exhausted() bool {
	return r.Known() && r.Remaining == 0 && r.Reset > 0
}

// ResetTime returns Reset as a time.Time.
func (r RateLimitInfo) ResetTime() time.Time {
	return time.Unix(r.Reset, 0)
}

// RateLimitHeaders names the response headers a platform uses for its quota.
type RateLimitHeaders struct {
	Remaining string
	Limit     string
	Reset     string
}

// TwitterRateLimitHeaders are the x-rate-limit-* headers.
var TwitterRateLimitHeaders = RateLimitHeaders{
	Remaining: "x-rate-limit-remaining",
	Limit:     "x-rate-limit-limit",
	Reset:     "x-rate-limit-reset",
}

// LinkedInRateLimitHeaders are the X-RateLimit-* headers.
var LinkedInRateLimitHeaders = RateLimitHeaders{
	Remaining: "X-RateLimit-Remaining",
	Limit:     "X-RateLimit-Limit",
	Reset:     "X-RateLimit-Reset",
}

// parseRateLimit reads the quota headers from h. It returns false when the
// response carried none of them.
func parseRateLimit(h http.Header, names RateLimitHeaders) (RateLimitInfo, bool) {
	if names.Remaining == "" {
		return RateLimitInfo{}, false
	}

	remaining, okRemaining := headerInt(h, names.Remaining)
	if !okRemaining {
		return RateLimitInfo{}, false
	}

	info := RateLimitInfo{Remaining: int(remaining)}
	if limit, ok := headerInt(h, names.Limit); ok {
		info.Limit = int(limit)
	}
	if reset, ok := headerInt(h, names.Reset); ok {
		info.Reset = reset
	}
	return info, true
}

// retryAfter parses a Retry-After header given in seconds.
func retryAfter(h http.Header, now time.Time) (int64, bool) {
	secs, ok := headerInt(h, "Retry-After")
	if !ok || secs <= 0 {
		return 0, false
	}
	return now.Add(time.Duration(secs) * time.Second).Unix(), true
}

func headerInt(h http.Header, name string) (int64, bool) {
	if name == "" {
		return 0, false
	}
	raw := strings.TrimSpace(h.Get(name))
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}
