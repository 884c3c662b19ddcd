package publisher

import (
	"context"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"social-relay/internal/domain/entity"
	"social-relay/internal/infra/transport"
)

const (
	defaultMaxMediaBytes = 64 << 20
	mediaService         = "media"
)

// Media is a downloaded attachment ready for upload.
type Media struct {
	URL         string
	Filename    string
	ContentType string
	Data        []byte
}

// IsVideo reports whether the media is a video.
func (m *Media) IsVideo() bool {
	return strings.HasPrefix(m.ContentType, "video/")
}

// IsGIF reports whether the media is an animated GIF candidate.
func (m *Media) IsGIF() bool {
	return m.ContentType == "image/gif"
}

// MediaFetcherConfig contains configuration for downloading media.
type MediaFetcherConfig struct {
	// Timeout is the per-download deadline
	Timeout time.Duration

	// MaxBytes caps the size of a single attachment
	MaxBytes int64

	// MaxRetries is the number of extra download attempts on transient failures
	MaxRetries int

	// AllowPrivate disables the private-address check, for tests against local servers
	AllowPrivate bool
}

// DefaultMediaFetcherConfig returns the production defaults.
func DefaultMediaFetcherConfig() MediaFetcherConfig {
	return MediaFetcherConfig{
		Timeout:    60 * time.Second,
		MaxBytes:   defaultMaxMediaBytes,
		MaxRetries: 2,
	}
}

// MediaFetcher downloads media URLs through an unsigned transport client.
type MediaFetcher struct {
	cfg    MediaFetcherConfig
	client *transport.Client
}

// NewMediaFetcher creates a MediaFetcher.
func NewMediaFetcher(cfg MediaFetcherConfig, opts ...Option) *MediaFetcher {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = defaultMaxMediaBytes
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &MediaFetcher{
		cfg: cfg,
		client: transport.NewClient(transport.Config{
			Service:      mediaService,
			Timeout:      cfg.Timeout,
			Policy:       o.policy,
			MaxBodyBytes: cfg.MaxBytes + 1,
			HTTPClient:   o.httpClient,
			Logger:       o.logger,
		}),
	}
}

// Fetch downloads rawURL. Retryable download errors keep their code; every
// other failure is reported as MEDIA_UPLOAD_FAILED.
func (f *MediaFetcher) Fetch(ctx context.Context, rawURL string) (*Media, error) {
	if !f.cfg.AllowPrivate {
		if err := entity.ValidateURL(rawURL); err != nil {
			return nil, mediaFailure(mediaService, "invalid media url: "+err.Error(), err)
		}
	}

	resp, err := f.client.Send(ctx, rawURL, transport.Request{
		Method:     http.MethodGet,
		MaxRetries: f.cfg.MaxRetries,
	})
	if err != nil {
		// A timeout or 5xx from the media host may clear up; keep it retryable.
		if se := entity.AsServiceError(mediaService, err); se.Retryable() {
			return nil, se
		}
		return nil, mediaFailure(mediaService, "download "+rawURL+": "+err.Error(), err)
	}
	if len(resp.Body) == 0 {
		return nil, mediaFailure(mediaService, "download "+rawURL+": empty body", nil)
	}
	if int64(len(resp.Body)) > f.cfg.MaxBytes {
		return nil, mediaFailure(mediaService, "download "+rawURL+": file exceeds size limit", nil)
	}

	contentType := sniffContentType(resp.Header.Get("Content-Type"), resp.Body)
	if !strings.HasPrefix(contentType, "image/") && !strings.HasPrefix(contentType, "video/") {
		return nil, mediaFailure(mediaService, "unsupported media type "+contentType, nil)
	}

	return &Media{
		URL:         rawURL,
		Filename:    filename(rawURL, contentType),
		ContentType: contentType,
		Data:        resp.Body,
	}, nil
}

// FetchAll downloads every URL in order.
func (f *MediaFetcher) FetchAll(ctx context.Context, urls []string) ([]*Media, error) {
	out := make([]*Media, 0, len(urls))
	for _, u := range urls {
		m, err := f.Fetch(ctx, u)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// sniffContentType trusts a specific declared type and sniffs the body otherwise.
func sniffContentType(declared string, body []byte) string {
	if declared != "" {
		if mt, _, err := mime.ParseMediaType(declared); err == nil && mt != "application/octet-stream" && mt != "binary/octet-stream" {
			return mt
		}
	}
	mt, _, _ := mime.ParseMediaType(http.DetectContentType(body))
	return mt
}

func filename(rawURL, contentType string) string {
	name := path.Base(strings.SplitN(rawURL, "?", 2)[0])
	if name == "" || name == "." || name == "/" {
		name = "media"
	}
	if path.Ext(name) == "" {
		if exts, _ := mime.ExtensionsByType(contentType); len(exts) > 0 {
			name += exts[0]
		}
	}
	return name
}

func mediaFailure(service, message string, cause error) *entity.ServiceError {
	opts := []entity.ServiceErrorOption{}
	if cause != nil {
		opts = append(opts, entity.WithCause(cause))
	}
	return entity.NewServiceError(service, entity.CodeMediaUploadFailed, message, opts...)
}

// asMediaError turns a terminal upload failure into MEDIA_UPLOAD_FAILED.
// Retryable and credential failures keep their code.
func asMediaError(service string, err error) *entity.ServiceError {
	se := entity.AsServiceError(service, err)
	if se.Retryable() || isAuthFailure(se) {
		return se
	}
	switch se.Code {
	case entity.CodeSigningFailed, entity.CodeMediaUploadFailed:
		return se
	}
	return se.Reclassify(entity.CodeMediaUploadFailed, "media upload rejected: "+se.Message)
}
