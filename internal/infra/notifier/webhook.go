package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"social-relay/internal/domain/entity"
	"social-relay/internal/resilience/retry"
)

// maxErrorBody bounds how much of a webhook error response is kept.
const maxErrorBody = 4 << 10

// defaultRetryAfter applies when a 429 carries no usable retry hint.
const defaultRetryAfter = 5 * time.Second

// alertPolicy keeps webhook retries short; an alert that cannot be sent
// within a few seconds is only logged.
func alertPolicy() retry.Policy {
	return retry.Policy{
		RetryDelay:       5 * time.Second,
		Multiplier:       2.0,
		MaxDelay:         30 * time.Second,
		RateLimitFloor:   defaultRetryAfter,
		UnavailableFloor: 5 * time.Second,
	}
}

// Option customizes a webhook notifier.
type Option func(*webhook)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(w *webhook) { w.client = c }
}

// WithRetryPolicy replaces the retry policy.
func WithRetryPolicy(p retry.Policy) Option {
	return func(w *webhook) { w.policy = p }
}

// WithLogger sets the logger. Default slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(w *webhook) { w.logger = l }
}

// webhook posts JSON payloads to one incoming-webhook URL.
type webhook struct {
	service     string
	url         string
	client      *http.Client
	limiter     *rate.Limiter
	policy      retry.Policy
	maxAttempts int
	logger      *slog.Logger
}

func newWebhook(service, url string, timeout time.Duration, limit rate.Limit, burst int, opts []Option) *webhook {
	w := &webhook{
		service:     service,
		url:         url,
		client:      &http.Client{Timeout: timeout},
		limiter:     rate.NewLimiter(limit, burst),
		policy:      alertPolicy(),
		maxAttempts: 2,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// post waits for the rate limiter, then sends payload with retries.
func (w *webhook) post(ctx context.Context, jobID string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	if err := w.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter error: %w", err)
	}

	requestID := uuid.NewString()
	logger := w.logger.With(
		slog.String("channel", w.service),
		slog.String("request_id", requestID),
		slog.String("job_id", jobID))

	err = retry.WithBackoff(ctx, w.policy, w.maxAttempts, func() error {
		return w.send(ctx, requestID, body)
	})
	if err != nil {
		RecordAlert(w.service, "failure")
		logger.Error("failure alert not delivered", slog.Any("error", err))
		return err
	}
	RecordAlert(w.service, "success")
	logger.Info("failure alert delivered")
	return nil
}

// send performs one POST and classifies the outcome:
// 429 is RATE_LIMITED, 5xx SERVER_ERROR, other 4xx BAD_REQUEST and
// transport failures NETWORK_ERROR.
func (w *webhook) send(ctx context.Context, requestID string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", requestID)

	resp, err := w.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return entity.NewServiceError(w.service, entity.CodeNetworkError, "webhook request failed",
			entity.WithCause(err))
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		reset := time.Now().Add(extractRetryAfter(resp, respBody))
		return entity.NewServiceError(w.service, entity.CodeRateLimited, "webhook rate limit exceeded",
			entity.WithStatus(resp.StatusCode),
			entity.WithDetail(retry.DetailRateLimitReset, reset.Unix()))
	case resp.StatusCode >= 500:
		return entity.NewServiceError(w.service, entity.CodeServerError,
			fmt.Sprintf("webhook server error: %s", respBody),
			entity.WithStatus(resp.StatusCode))
	default:
		return entity.NewServiceError(w.service, entity.CodeBadRequest,
			fmt.Sprintf("webhook rejected alert: %s", respBody),
			entity.WithStatus(resp.StatusCode))
	}
}

// extractRetryAfter reads Discord's retry_after body field (seconds, may be
// fractional), then the Retry-After header.
func extractRetryAfter(resp *http.Response, body []byte) time.Duration {
	var payload struct {
		RetryAfter float64 `json:"retry_after"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.RetryAfter > 0 {
		return time.Duration(payload.RetryAfter * float64(time.Second))
	}
	if h := resp.Header.Get("Retry-After"); h != "" {
		if seconds, err := strconv.Atoi(h); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultRetryAfter
}
