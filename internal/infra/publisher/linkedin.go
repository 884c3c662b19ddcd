package publisher

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"social-relay/internal/domain/entity"
	"social-relay/internal/infra/signer"
	"social-relay/internal/infra/transport"
)

const (
	defaultLinkedInBaseURL = "https://api.linkedin.com"
	linkedInFeedURL        = "https://www.linkedin.com/feed/update/"
	restliProtocolVersion  = "2.0.0"
	linkedInService        = string(entity.PlatformLinkedIn)

	// linkedInExpiredTokenCode is the serviceErrorCode sent for revoked or expired tokens.
	linkedInExpiredTokenCode = 65600
)

// LinkedInConfig contains configuration for the linkedin publisher.
type LinkedInConfig struct {
	// BaseURL is the API origin
	BaseURL string

	// AccessToken is the member or organization OAuth 2.0 token
	AccessToken string

	// AuthorURN posts as this member or organization. Empty resolves the
	// token's member through /v2/userinfo.
	AuthorURN string

	// Visibility is PUBLIC or CONNECTIONS. Default PUBLIC.
	Visibility string

	// Timeout is the per-call deadline
	Timeout time.Duration

	// MaxRetries is the number of extra attempts per call on transient failures
	MaxRetries int

	// RequestsPerSecond paces calls client-side. Zero disables pacing.
	RequestsPerSecond float64
}

// LinkedIn publishes to the professional-network API.
type LinkedIn struct {
	cfg    LinkedInConfig
	client *transport.Client
	media  *MediaFetcher
	bearer signer.Signer
	logger *slog.Logger

	mu     sync.Mutex
	author string
}

// NewLinkedIn creates a linkedin publisher. media may be nil when jobs never carry attachments.
func NewLinkedIn(cfg LinkedInConfig, media *MediaFetcher, opts ...Option) *LinkedIn {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultLinkedInBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Visibility == "" {
		cfg.Visibility = "PUBLIC"
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	return &LinkedIn{
		cfg:   cfg,
		media: media,
		client: transport.NewClient(transport.Config{
			Service:           linkedInService,
			RateLimitHeaders:  transport.LinkedInRateLimitHeaders,
			Classifier:        ClassifyLinkedInError,
			Timeout:           cfg.Timeout,
			Policy:            o.policy,
			RequestsPerSecond: cfg.RequestsPerSecond,
			Burst:             1,
			Breaker:           o.newBreaker(entity.PlatformLinkedIn, transport.BreakerSuccess),
			HTTPClient:        o.httpClient,
			Logger:            o.logger,
		}),
		bearer: signer.NewBearerSigner(linkedInService, cfg.AccessToken),
		logger: o.logger.With(slog.String("platform", linkedInService)),
		author: cfg.AuthorURN,
	}
}

// Platform implements Publisher.
func (l *LinkedIn) Platform() entity.Platform {
	return entity.PlatformLinkedIn
}

// RateLimit returns the last quota snapshot observed from the API.
func (l *LinkedIn) RateLimit() transport.RateLimitInfo {
	return l.client.RateLimit()
}

func (l *LinkedIn) headers() map[string]string {
	return map[string]string{"X-Restli-Protocol-Version": restliProtocolVersion}
}

type userInfo struct {
	Sub   string `json:"sub"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// VerifyCredentials calls GET /v2/userinfo.
func (l *LinkedIn) VerifyCredentials(ctx context.Context) error {
	_, err := l.userInfo(ctx)
	return err
}

func (l *LinkedIn) userInfo(ctx context.Context) (*userInfo, error) {
	resp, err := l.client.Send(ctx, l.cfg.BaseURL+"/v2/userinfo", transport.Request{
		Method:     http.MethodGet,
		Headers:    l.headers(),
		MaxRetries: l.cfg.MaxRetries,
		Signer:     l.bearer,
	})
	if err != nil {
		return nil, err
	}
	var info userInfo
	if err := resp.JSON(&info); err != nil || info.Sub == "" {
		return nil, entity.NewServiceError(linkedInService, entity.CodeAuthenticationFailed,
			"userinfo response carried no member id", entity.WithStatus(resp.StatusCode))
	}
	return &info, nil
}

// authorURN returns the configured author or resolves it once from userinfo.
func (l *LinkedIn) authorURN(ctx context.Context) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.author != "" {
		return l.author, nil
	}
	info, err := l.userInfo(ctx)
	if err != nil {
		return "", err
	}
	l.author = "urn:li:person:" + info.Sub
	return l.author, nil
}

type ugcPost struct {
	Author          string            `json:"author"`
	LifecycleState  string            `json:"lifecycleState"`
	SpecificContent ugcContent        `json:"specificContent"`
	Visibility      map[string]string `json:"visibility"`
}

type ugcContent struct {
	ShareContent ugcShareContent `json:"com.linkedin.ugc.ShareContent"`
}

type ugcShareContent struct {
	ShareCommentary    ugcText    `json:"shareCommentary"`
	ShareMediaCategory string     `json:"shareMediaCategory"`
	Media              []ugcMedia `json:"media,omitempty"`
}

type ugcText struct {
	Text string `json:"text"`
}

type ugcMedia struct {
	Status string `json:"status"`
	Media  string `json:"media"`
}

type ugcPostResponse struct {
	ID string `json:"id"`
}

// Publish uploads the job's media and creates the share.
func (l *LinkedIn) Publish(ctx context.Context, job *entity.Job) (*entity.PublishResult, error) {
	author, err := l.authorURN(ctx)
	if err != nil {
		return nil, err
	}

	content := ugcShareContent{
		ShareCommentary:    ugcText{Text: job.Message},
		ShareMediaCategory: "NONE",
	}
	if len(job.MediaURLs) > 0 {
		assets, category, err := l.uploadAll(ctx, author, job.MediaURLs)
		if err != nil {
			return nil, err
		}
		content.ShareMediaCategory = category
		for _, asset := range assets {
			content.Media = append(content.Media, ugcMedia{Status: "READY", Media: asset})
		}
	}

	body, err := json.Marshal(ugcPost{
		Author:          author,
		LifecycleState:  "PUBLISHED",
		SpecificContent: ugcContent{ShareContent: content},
		Visibility:      map[string]string{"com.linkedin.ugc.MemberNetworkVisibility": l.cfg.Visibility},
	})
	if err != nil {
		return nil, entity.NewServiceError(linkedInService, entity.CodeUnknown,
			"marshal share: "+err.Error(), entity.WithCause(err))
	}

	resp, err := l.client.Send(ctx, l.cfg.BaseURL+"/v2/ugcPosts", transport.Request{
		Method:      http.MethodPost,
		Headers:     l.headers(),
		Body:        body,
		ContentType: "application/json",
		MaxRetries:  l.cfg.MaxRetries,
		Signer:      l.bearer,
	})
	if err != nil {
		return nil, err
	}

	postID := resp.Header.Get("X-RestLi-Id")
	if postID == "" {
		var out ugcPostResponse
		if err := resp.JSON(&out); err == nil {
			postID = out.ID
		}
	}
	if postID == "" {
		return nil, entity.NewServiceError(linkedInService, entity.CodeUnknown,
			"share created but response carried no id", entity.WithStatus(resp.StatusCode))
	}

	l.logger.Info("share published",
		slog.String("job_id", job.ID),
		slog.String("post_id", postID),
		slog.Int("media", len(job.MediaURLs)))

	return &entity.PublishResult{
		PostID:  postID,
		PostURL: linkedInFeedURL + postID,
	}, nil
}

type registerUploadRequest struct {
	RegisterUploadRequest struct {
		Recipes              []string              `json:"recipes"`
		Owner                string                `json:"owner"`
		ServiceRelationships []serviceRelationship `json:"serviceRelationships"`
	} `json:"registerUploadRequest"`
}

type serviceRelationship struct {
	RelationshipType string `json:"relationshipType"`
	Identifier       string `json:"identifier"`
}

type registerUploadResponse struct {
	Value struct {
		UploadMechanism map[string]struct {
			UploadURL string            `json:"uploadUrl"`
			Headers   map[string]string `json:"headers"`
		} `json:"uploadMechanism"`
		Asset string `json:"asset"`
	} `json:"value"`
}

const linkedInUploadMechanism = "com.linkedin.digitalmedia.uploading.MediaUploadHttpRequest"

// uploadAll registers and uploads every attachment. LinkedIn shares carry
// one media category, so a video anywhere makes the share a VIDEO share.
func (l *LinkedIn) uploadAll(ctx context.Context, author string, urls []string) ([]string, string, error) {
	if l.media == nil {
		return nil, "", entity.NewServiceError(linkedInService, entity.CodeMediaUploadFailed,
			"media attachments are not enabled")
	}

	media, err := l.media.FetchAll(ctx, urls)
	if err != nil {
		return nil, "", err
	}

	category := "IMAGE"
	for _, m := range media {
		if m.IsVideo() {
			category = "VIDEO"
		}
	}

	assets := make([]string, 0, len(media))
	for _, m := range media {
		asset, err := l.uploadMedia(ctx, author, m)
		if err != nil {
			return nil, "", err
		}
		assets = append(assets, asset)
	}
	return assets, category, nil
}

func (l *LinkedIn) uploadMedia(ctx context.Context, author string, m *Media) (string, error) {
	recipe := "urn:li:digitalmediaRecipe:feedshare-image"
	if m.IsVideo() {
		recipe = "urn:li:digitalmediaRecipe:feedshare-video"
	}

	var reg registerUploadRequest
	reg.RegisterUploadRequest.Recipes = []string{recipe}
	reg.RegisterUploadRequest.Owner = author
	reg.RegisterUploadRequest.ServiceRelationships = []serviceRelationship{
		{RelationshipType: "OWNER", Identifier: "urn:li:userGeneratedContent"},
	}
	body, err := json.Marshal(reg)
	if err != nil {
		return "", mediaFailure(linkedInService, "marshal registerUpload: "+err.Error(), err)
	}

	resp, err := l.client.Send(ctx, l.cfg.BaseURL+"/v2/assets?action=registerUpload", transport.Request{
		Method:      http.MethodPost,
		Headers:     l.headers(),
		Body:        body,
		ContentType: "application/json",
		MaxRetries:  l.cfg.MaxRetries,
		Signer:      l.bearer,
	})
	if err != nil {
		return "", asMediaError(linkedInService, err)
	}

	var out registerUploadResponse
	if err := resp.JSON(&out); err != nil {
		return "", mediaFailure(linkedInService, "registerUpload: "+err.Error(), err)
	}
	mech, ok := out.Value.UploadMechanism[linkedInUploadMechanism]
	if !ok || mech.UploadURL == "" || out.Value.Asset == "" {
		return "", mediaFailure(linkedInService, "registerUpload returned no upload url", nil)
	}

	_, err = l.client.Send(ctx, mech.UploadURL, transport.Request{
		Method:      http.MethodPut,
		Headers:     mech.Headers,
		Body:        m.Data,
		ContentType: m.ContentType,
		MaxRetries:  l.cfg.MaxRetries,
		Signer:      l.bearer,
	})
	if err != nil {
		return "", asMediaError(linkedInService, err)
	}

	l.logger.Debug("media uploaded",
		slog.String("asset", out.Value.Asset),
		slog.String("content_type", m.ContentType),
		slog.Int("bytes", len(m.Data)))
	return out.Value.Asset, nil
}

type linkedInErrorBody struct {
	Message          string `json:"message"`
	Status           int    `json:"status"`
	ServiceErrorCode int    `json:"serviceErrorCode"`
	Code             string `json:"code"`
}

// ClassifyLinkedInError refines a status-based classification using the
// REST.li error body.
func ClassifyLinkedInError(se *entity.ServiceError, resp *transport.Response) *entity.ServiceError {
	var body linkedInErrorBody
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return se
	}
	msg := strings.ToLower(body.Message)

	switch {
	case body.ServiceErrorCode == linkedInExpiredTokenCode:
		return withServiceCode(se.Reclassify(entity.CodeInvalidToken, body.Message), body.ServiceErrorCode)
	case resp.StatusCode == http.StatusUnauthorized && (strings.Contains(msg, "expired") || body.Code == "EXPIRED_ACCESS_TOKEN"):
		return se.Reclassify(entity.CodeInvalidToken, body.Message)
	case resp.StatusCode == http.StatusUnprocessableEntity && strings.Contains(msg, "duplicate"):
		return se.Reclassify(entity.CodeDuplicateContent, body.Message)
	case resp.StatusCode == http.StatusUnprocessableEntity && (strings.Contains(msg, "too long") || strings.Contains(msg, "length")):
		return se.Reclassify(entity.CodeContentTooLong, body.Message)
	}
	return se
}

func withServiceCode(se *entity.ServiceError, code int) *entity.ServiceError {
	entity.WithDetail("service_error_code", code)(se)
	return se
}
