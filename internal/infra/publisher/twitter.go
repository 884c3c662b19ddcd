package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"social-relay/internal/domain/entity"
	"social-relay/internal/infra/signer"
	"social-relay/internal/infra/transport"
)

const (
	defaultTwitterBaseURL   = "https://api.twitter.com"
	defaultTwitterUploadURL = "https://upload.twitter.com"
	twitterStatusURL        = "https://twitter.com/i/web/status/"

	twitterService = string(entity.PlatformTwitter)

	twitterChunkSize      = 1 << 20
	twitterMaxStatusPolls = 30
)

// TwitterConfig contains configuration for the twitter publisher.
type TwitterConfig struct {
	// BaseURL is the v2 API origin
	BaseURL string

	// UploadURL is the media upload origin
	UploadURL string

	// Credentials are the user-context OAuth 1.0a secrets used for writes
	Credentials signer.OAuth1Credentials

	// BearerToken is an optional app-only token tried first for read-only calls
	BearerToken string

	// Timeout is the per-call deadline
	Timeout time.Duration

	// MaxRetries is the number of extra attempts per call on transient failures
	MaxRetries int

	// RequestsPerSecond paces calls client-side. Zero disables pacing.
	RequestsPerSecond float64
}

// Twitter publishes to the microblogging API.
type Twitter struct {
	cfg       TwitterConfig
	client    *transport.Client
	media     *MediaFetcher
	oauth     signer.Signer
	bearer    signer.Signer
	logger    *slog.Logger
	sleep     func(ctx context.Context, d time.Duration) error
	chunkSize int
}

// NewTwitter creates a twitter publisher. media may be nil when jobs never carry attachments.
func NewTwitter(cfg TwitterConfig, media *MediaFetcher, opts ...Option) *Twitter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultTwitterBaseURL
	}
	if cfg.UploadURL == "" {
		cfg.UploadURL = defaultTwitterUploadURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.UploadURL = strings.TrimRight(cfg.UploadURL, "/")

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	t := &Twitter{
		cfg:   cfg,
		media: media,
		oauth: signer.NewOAuth1Signer(twitterService, cfg.Credentials),
		client: transport.NewClient(transport.Config{
			Service:           twitterService,
			RateLimitHeaders:  transport.TwitterRateLimitHeaders,
			Classifier:        ClassifyTwitterError,
			Timeout:           cfg.Timeout,
			Policy:            o.policy,
			RequestsPerSecond: cfg.RequestsPerSecond,
			Burst:             1,
			Breaker:           o.newBreaker(entity.PlatformTwitter, transport.BreakerSuccess),
			HTTPClient:        o.httpClient,
			Logger:            o.logger,
		}),
		logger:    o.logger.With(slog.String("platform", twitterService)),
		sleep:     o.sleep,
		chunkSize: twitterChunkSize,
	}
	if cfg.BearerToken != "" {
		t.bearer = signer.NewBearerSigner(twitterService, cfg.BearerToken)
	}
	return t
}

// Platform implements Publisher.
func (t *Twitter) Platform() entity.Platform {
	return entity.PlatformTwitter
}

// RateLimit returns the last quota snapshot observed from the API.
func (t *Twitter) RateLimit() transport.RateLimitInfo {
	return t.client.RateLimit()
}

type tweetRequest struct {
	Text         string      `json:"text"`
	Media        *tweetMedia `json:"media,omitempty"`
	Reply        *tweetReply `json:"reply,omitempty"`
	QuoteTweetID string      `json:"quote_tweet_id,omitempty"`
}

type tweetMedia struct {
	MediaIDs []string `json:"media_ids"`
}

type tweetReply struct {
	InReplyToTweetID string `json:"in_reply_to_tweet_id"`
}

type tweetResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

// Publish uploads the job's media and creates the post.
func (t *Twitter) Publish(ctx context.Context, job *entity.Job) (*entity.PublishResult, error) {
	payload := tweetRequest{Text: job.Message, QuoteTweetID: job.QuoteID}
	if job.ReplyToID != "" {
		payload.Reply = &tweetReply{InReplyToTweetID: job.ReplyToID}
	}

	if len(job.MediaURLs) > 0 {
		ids, err := t.uploadAll(ctx, job.MediaURLs)
		if err != nil {
			return nil, err
		}
		payload.Media = &tweetMedia{MediaIDs: ids}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, entity.NewServiceError(twitterService, entity.CodeUnknown,
			"marshal tweet: "+err.Error(), entity.WithCause(err))
	}

	resp, err := t.client.Send(ctx, t.cfg.BaseURL+"/2/tweets", transport.Request{
		Method:      http.MethodPost,
		Body:        body,
		ContentType: "application/json",
		MaxRetries:  t.cfg.MaxRetries,
		Signer:      t.oauth,
	})
	if err != nil {
		return nil, err
	}

	var out tweetResponse
	if err := resp.JSON(&out); err != nil || out.Data.ID == "" {
		return nil, entity.NewServiceError(twitterService, entity.CodeUnknown,
			"post created but response carried no id", entity.WithStatus(resp.StatusCode))
	}

	t.logger.Info("tweet published",
		slog.String("job_id", job.ID),
		slog.String("post_id", out.Data.ID),
		slog.Int("media", len(job.MediaURLs)))

	return &entity.PublishResult{
		PostID:  out.Data.ID,
		PostURL: twitterStatusURL + out.Data.ID,
	}, nil
}

// VerifyCredentials calls GET /2/users/me. When an app bearer token is
// configured it is tried first; an auth failure falls back to OAuth 1.0a.
func (t *Twitter) VerifyCredentials(ctx context.Context) error {
	endpoint := t.cfg.BaseURL + "/2/users/me"

	if t.bearer != nil {
		_, err := t.client.Send(ctx, endpoint, transport.Request{
			Method:     http.MethodGet,
			MaxRetries: t.cfg.MaxRetries,
			Signer:     t.bearer,
		})
		if err == nil {
			return nil
		}
		if !isAuthFailure(err) {
			return err
		}
		t.logger.Debug("bearer token rejected, retrying with user context",
			slog.Any("error", err))
	}

	_, err := t.client.Send(ctx, endpoint, transport.Request{
		Method:     http.MethodGet,
		MaxRetries: t.cfg.MaxRetries,
		Signer:     t.oauth,
	})
	return err
}

func (t *Twitter) uploadAll(ctx context.Context, urls []string) ([]string, error) {
	if t.media == nil {
		return nil, entity.NewServiceError(twitterService, entity.CodeMediaUploadFailed,
			"media attachments are not enabled")
	}

	ids := make([]string, 0, len(urls))
	for _, u := range urls {
		m, err := t.media.Fetch(ctx, u)
		if err != nil {
			return nil, err
		}
		id, err := t.uploadMedia(ctx, m)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

type uploadResponse struct {
	MediaIDString  string          `json:"media_id_string"`
	ProcessingInfo *processingInfo `json:"processing_info,omitempty"`
}

type processingInfo struct {
	State          string `json:"state"`
	CheckAfterSecs int    `json:"check_after_secs"`
	Error          *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// uploadMedia runs the chunked INIT, APPEND, FINALIZE, STATUS sequence.
func (t *Twitter) uploadMedia(ctx context.Context, m *Media) (string, error) {
	endpoint := t.cfg.UploadURL + "/1.1/media/upload.json"

	started, err := t.uploadCommand(ctx, endpoint, url.Values{
		"command":        {"INIT"},
		"total_bytes":    {strconv.Itoa(len(m.Data))},
		"media_type":     {m.ContentType},
		"media_category": {mediaCategory(m)},
	})
	if err != nil {
		return "", err
	}
	if started.MediaIDString == "" {
		return "", mediaFailure(twitterService, "INIT returned no media id", nil)
	}
	mediaID := started.MediaIDString

	for index, offset := 0, 0; offset < len(m.Data); index, offset = index+1, offset+t.chunkSize {
		end := offset + t.chunkSize
		if end > len(m.Data) {
			end = len(m.Data)
		}
		if err := t.appendChunk(ctx, endpoint, mediaID, index, m, m.Data[offset:end]); err != nil {
			return "", err
		}
	}

	final, err := t.uploadCommand(ctx, endpoint, url.Values{
		"command":  {"FINALIZE"},
		"media_id": {mediaID},
	})
	if err != nil {
		return "", err
	}

	if err := t.awaitProcessing(ctx, endpoint, mediaID, final.ProcessingInfo); err != nil {
		return "", err
	}

	t.logger.Debug("media uploaded",
		slog.String("media_id", mediaID),
		slog.String("content_type", m.ContentType),
		slog.Int("bytes", len(m.Data)))
	return mediaID, nil
}

func (t *Twitter) uploadCommand(ctx context.Context, endpoint string, form url.Values) (*uploadResponse, error) {
	resp, err := t.client.Send(ctx, endpoint, transport.Request{
		Method:     http.MethodPost,
		Form:       form,
		MaxRetries: t.cfg.MaxRetries,
		Signer:     t.oauth,
	})
	if err != nil {
		return nil, asMediaError(twitterService, err)
	}
	var out uploadResponse
	if len(resp.Body) > 0 {
		if err := resp.JSON(&out); err != nil {
			return nil, mediaFailure(twitterService, form.Get("command")+": "+err.Error(), err)
		}
	}
	return &out, nil
}

func (t *Twitter) appendChunk(ctx context.Context, endpoint, mediaID string, index int, m *Media, chunk []byte) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	_ = w.WriteField("command", "APPEND")
	_ = w.WriteField("media_id", mediaID)
	_ = w.WriteField("segment_index", strconv.Itoa(index))
	part, err := w.CreateFormFile("media", m.Filename)
	if err != nil {
		return mediaFailure(twitterService, "build APPEND body: "+err.Error(), err)
	}
	if _, err := part.Write(chunk); err != nil {
		return mediaFailure(twitterService, "build APPEND body: "+err.Error(), err)
	}
	if err := w.Close(); err != nil {
		return mediaFailure(twitterService, "build APPEND body: "+err.Error(), err)
	}

	_, err = t.client.Send(ctx, endpoint, transport.Request{
		Method:      http.MethodPost,
		Body:        buf.Bytes(),
		ContentType: w.FormDataContentType(),
		MaxRetries:  t.cfg.MaxRetries,
		Signer:      t.oauth,
	})
	if err != nil {
		return asMediaError(twitterService, err)
	}
	return nil
}

// awaitProcessing polls STATUS until the upload succeeds or fails,
// honoring check_after_secs.
func (t *Twitter) awaitProcessing(ctx context.Context, endpoint, mediaID string, info *processingInfo) error {
	for poll := 0; info != nil; poll++ {
		switch info.State {
		case "succeeded":
			return nil
		case "failed":
			msg := "media processing failed"
			if info.Error != nil && info.Error.Message != "" {
				msg += ": " + info.Error.Message
			}
			return mediaFailure(twitterService, msg, nil)
		}
		if poll >= twitterMaxStatusPolls {
			return mediaFailure(twitterService, "media processing did not finish in time", nil)
		}

		wait := time.Duration(info.CheckAfterSecs) * time.Second
		if wait <= 0 {
			wait = time.Second
		}
		if err := t.sleep(ctx, wait); err != nil {
			return entity.NewServiceError(twitterService, entity.CodeTimeout,
				"media status polling interrupted", entity.WithCause(err))
		}

		q := url.Values{"command": {"STATUS"}, "media_id": {mediaID}}
		resp, err := t.client.Send(ctx, endpoint+"?"+q.Encode(), transport.Request{
			Method:     http.MethodGet,
			MaxRetries: t.cfg.MaxRetries,
			Signer:     t.oauth,
		})
		if err != nil {
			return asMediaError(twitterService, err)
		}
		var status uploadResponse
		if err := resp.JSON(&status); err != nil {
			return mediaFailure(twitterService, "STATUS: "+err.Error(), err)
		}
		info = status.ProcessingInfo
	}
	return nil
}

func mediaCategory(m *Media) string {
	switch {
	case m.IsVideo():
		return "tweet_video"
	case m.IsGIF():
		return "tweet_gif"
	default:
		return "tweet_image"
	}
}

type twitterErrorBody struct {
	Errors []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
	Detail string `json:"detail"`
	Title  string `json:"title"`
}

// twitterAPICodes maps platform error codes to the taxonomy.
var twitterAPICodes = map[int]entity.ErrorCode{
	32:  entity.CodeAuthenticationFailed,
	89:  entity.CodeInvalidToken,
	88:  entity.CodeRateLimited,
	186: entity.CodeContentTooLong,
	187: entity.CodeDuplicateContent,
	324: entity.CodeMediaUploadFailed,
}

// ClassifyTwitterError refines a status-based classification using the
// API error codes and v2 problem details in the response body.
func ClassifyTwitterError(se *entity.ServiceError, resp *transport.Response) *entity.ServiceError {
	var body twitterErrorBody
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return se
	}

	for _, e := range body.Errors {
		if code, ok := twitterAPICodes[e.Code]; ok {
			out := se.Reclassify(code, e.Message)
			entity.WithDetail("api_code", e.Code)(out)
			return out
		}
	}

	if strings.Contains(strings.ToLower(body.Detail), "duplicate") {
		return se.Reclassify(entity.CodeDuplicateContent, body.Detail)
	}
	return se
}

func isAuthFailure(err error) bool {
	se := entity.AsServiceError("", err)
	switch se.Code {
	case entity.CodeAuthenticationFailed, entity.CodeInvalidToken, entity.CodeForbidden:
		return true
	}
	return false
}
