// Package pagination provides page/limit parsing and offset slicing for
// list endpoints.
package pagination

import (
	"fmt"
	"net/http"
	"strconv"

	pkgconfig "social-relay/pkg/config"
)

// Config holds pagination configuration settings.
type Config struct {
	DefaultPage  int // Default page number (typically 1)
	DefaultLimit int // Default items per page (typically 20)
	MaxLimit     int // Maximum allowed items per page (typically 100)
}

// DefaultConfig returns page=1, limit=20, max=100.
func DefaultConfig() Config {
	return Config{
		DefaultPage:  1,
		DefaultLimit: 20,
		MaxLimit:     100,
	}
}

// LoadFromEnv reads PAGINATION_DEFAULT_LIMIT and PAGINATION_MAX_LIMIT.
// Non-positive values or a default above the maximum fall back to DefaultConfig.
func LoadFromEnv() Config {
	def := DefaultConfig()
	cfg := Config{
		DefaultPage:  def.DefaultPage,
		DefaultLimit: pkgconfig.GetEnvInt("PAGINATION_DEFAULT_LIMIT", def.DefaultLimit),
		MaxLimit:     pkgconfig.GetEnvInt("PAGINATION_MAX_LIMIT", def.MaxLimit),
	}
	if cfg.DefaultLimit < 1 || cfg.MaxLimit < 1 || cfg.DefaultLimit > cfg.MaxLimit {
		return def
	}
	return cfg
}

// Params represents pagination query parameters from an HTTP request.
type Params struct {
	Page  int // 1-based page number
	Limit int // Items per page
}

// Offset returns the index of the first item on the page.
func (p Params) Offset() int {
	return (p.Page - 1) * p.Limit
}

// ParseQueryParams reads ?page= and ?limit=. Missing values take the
// configured defaults; invalid values are an error.
func ParseQueryParams(r *http.Request, config Config) (Params, error) {
	params := Params{
		Page:  config.DefaultPage,
		Limit: config.DefaultLimit,
	}

	if pageStr := r.URL.Query().Get("page"); pageStr != "" {
		page, err := strconv.Atoi(pageStr)
		if err != nil || page < 1 {
			return params, fmt.Errorf("invalid query parameter: page must be a positive integer")
		}
		params.Page = page
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 || limit > config.MaxLimit {
			return params, fmt.Errorf("invalid query parameter: limit must be between 1 and %d", config.MaxLimit)
		}
		params.Limit = limit
	}

	return params, nil
}

// Metadata contains pagination metadata included in API responses.
type Metadata struct {
	Total      int `json:"total"`       // Total number of items across all pages
	Page       int `json:"page"`        // Current page number (1-based)
	Limit      int `json:"limit"`       // Items per page
	TotalPages int `json:"total_pages"` // At least 1, even when Total is 0
}

// Slice returns the items on the requested page and the page metadata.
// A page past the end yields an empty slice.
func Slice[T any](items []T, p Params) ([]T, Metadata) {
	meta := Metadata{
		Total:      len(items),
		Page:       p.Page,
		Limit:      p.Limit,
		TotalPages: 1,
	}
	if len(items) > 0 {
		meta.TotalPages = (len(items) + p.Limit - 1) / p.Limit
	}

	start := p.Offset()
	if start >= len(items) {
		return []T{}, meta
	}
	end := min(start+p.Limit, len(items))
	return items[start:end], meta
}
