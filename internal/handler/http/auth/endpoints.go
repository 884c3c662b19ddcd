package auth

import "strings"

// publicPaths are served without a token: orchestration probes and the
// Prometheus scrape target.
var publicPaths = map[string]struct{}{
	"/health":       {},
	"/health/ready": {},
	"/metrics":      {},
}

// swaggerPrefix covers the API documentation UI and its assets.
const swaggerPrefix = "/swagger/"

// IsPublicEndpoint reports whether path is served without authentication.
// One trailing slash is tolerated; subpaths such as /health/detail are not
// public. Everything under /swagger/ is.
func IsPublicEndpoint(path string) bool {
	if strings.HasPrefix(path, swaggerPrefix) {
		return true
	}
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	_, ok := publicPaths[path]
	return ok
}
