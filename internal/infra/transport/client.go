// Package transport sends authenticated requests to publishing APIs.
//
// Every failure returned by Client.Send is a *entity.ServiceError whose
// retry flag was decided by the status table in ClassifyStatus, optionally
// refined by the platform's ErrorClassifier. The client also tracks the
// platform's rate-limit headers and retries retryable failures in-call.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"social-relay/internal/domain/entity"
	"social-relay/internal/infra/signer"
	"social-relay/internal/observability/tracing"
	"social-relay/internal/resilience/circuitbreaker"
	"social-relay/internal/resilience/retry"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultMaxBodyBytes = 10 << 20
	contentTypeKey      = "Content-Type"
	formURLEncoded      = "application/x-www-form-urlencoded"
)

// Config contains configuration for a transport client.
type Config struct {
	// Service labels errors, logs and metrics, e.g. "twitter"
	Service string

	// RateLimitHeaders names the quota headers of the platform
	RateLimitHeaders RateLimitHeaders

	// Classifier refines status-based classification. Optional.
	Classifier ErrorClassifier

	// Timeout is the per-call deadline when a request does not set one
	Timeout time.Duration

	// Policy sizes the delay between in-call retries
	Policy retry.Policy

	// RequestsPerSecond paces outbound calls client-side. Zero disables pacing.
	RequestsPerSecond float64

	// Burst is the limiter bucket size
	Burst int

	// MaxBodyBytes caps how much of a response body is read. Default 10 MiB.
	MaxBodyBytes int64

	// Breaker wraps every round trip. Nil disables the circuit breaker.
	Breaker *circuitbreaker.CircuitBreaker

	// HTTPClient overrides the default client
	HTTPClient *http.Client

	// Logger overrides slog.Default()
	Logger *slog.Logger
}

// Request describes one logical call. The client may execute it several times.
type Request struct {
	Method  string
	Headers map[string]string
	Body    []byte
	// Form is encoded as the body with application/x-www-form-urlencoded
	// and included in OAuth signatures. Body is ignored when Form is set.
	Form        url.Values
	ContentType string
	// Timeout overrides Config.Timeout for each attempt
	Timeout time.Duration
	// MaxRetries is the number of extra attempts after the first
	MaxRetries int
	// Signer produces the Authorization header. Nil sends the request unsigned.
	Signer signer.Signer
}

// Response is a successful (2xx) response with its body fully read.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// JSON decodes the body into v.
func (r *Response) JSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}

// Client executes requests for one platform.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu        sync.RWMutex
	rateLimit RateLimitInfo
}

// NewClient creates a transport client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Policy.RetryDelay <= 0 {
		cfg.Policy = retry.TransportPolicy()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		limiter:    limiter,
		logger:     logger.With(slog.String("service", cfg.Service)),
		now:        time.Now,
		sleep:      retry.Sleep,
	}
}

// Service returns the service label.
func (c *Client) Service() string {
	return c.cfg.Service
}

// RateLimit returns the last quota snapshot.
func (c *Client) RateLimit() RateLimitInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rateLimit
}

// Send executes req against rawURL, retrying retryable failures up to
// req.MaxRetries extra times. The returned error is always a *entity.ServiceError.
func (c *Client) Send(ctx context.Context, rawURL string, req Request) (*Response, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}

	ctx, span := tracing.GetTracer().Start(ctx, "transport.Send",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("service", c.cfg.Service),
			attribute.String("http.method", req.Method),
			attribute.String("http.url", redactURL(rawURL)),
		),
	)
	defer span.End()

	var lastErr *entity.ServiceError
	for attempt := 0; attempt <= req.MaxRetries; attempt++ {
		resp, se := c.attempt(ctx, rawURL, req)
		if se == nil {
			span.SetAttributes(
				attribute.Int("http.status_code", resp.StatusCode),
				attribute.Int("attempts", attempt+1),
			)
			return resp, nil
		}
		lastErr = se

		if !se.Retryable() || attempt == req.MaxRetries || ctx.Err() != nil {
			break
		}

		delay, ok := c.retryDelay(attempt+1, se)
		if !ok {
			c.logger.Warn("rate limit reset beyond in-call retry window, giving up",
				slog.Int64("reset", c.RateLimit().Reset))
			break
		}

		c.logger.Warn("request failed, retrying",
			slog.String("url", redactURL(rawURL)),
			slog.String("code", string(se.Code)),
			slog.Int("attempt", attempt+1),
			slog.Int("max_retries", req.MaxRetries),
			slog.Duration("delay", delay))
		RecordRetry(c.cfg.Service)

		if err := c.sleep(ctx, delay); err != nil {
			break
		}
	}

	tracing.FailSpan(span, lastErr)
	return nil, lastErr
}

// retryDelay returns the wait before the next attempt. When the failed
// response reported a reset the wait extends to it; ok is false if that lies
// beyond the policy cap, leaving the wait to the caller.
func (c *Client) retryDelay(attempt int, se *entity.ServiceError) (time.Duration, bool) {
	delay := c.cfg.Policy.Delay(attempt, se)

	if reset, ok := retry.ResetTime(se); ok {
		wait := reset.Sub(c.now())
		if c.cfg.Policy.MaxDelay > 0 && wait > c.cfg.Policy.MaxDelay {
			return 0, false
		}
		if wait > delay {
			delay = wait
		}
	}
	return delay, true
}

// attempt performs a single signed round trip.
func (c *Client) attempt(ctx context.Context, rawURL string, req Request) (*Response, *entity.ServiceError) {
	body := req.Body
	contentType := req.ContentType
	if req.Form != nil {
		body = []byte(req.Form.Encode())
		contentType = formURLEncoded
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, rawURL, nil)
	if err != nil {
		return nil, entity.NewServiceError(c.cfg.Service, entity.CodeBadRequest,
			"build request: "+err.Error(), entity.WithCause(err))
	}

	if req.Signer != nil {
		auth, err := req.Signer.Authorization(signer.Request{
			Method:     req.Method,
			URL:        rawURL,
			FormParams: req.Form,
		})
		if err != nil {
			se := entity.AsServiceError(c.cfg.Service, err)
			if se.Code != entity.CodeSigningFailed {
				se = entity.NewServiceError(c.cfg.Service, entity.CodeSigningFailed, err.Error(), entity.WithCause(err))
			}
			return nil, se
		}
		httpReq.Header.Set("Authorization", auth)
	}

	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if contentType != "" {
		httpReq.Header.Set(contentTypeKey, contentType)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, entity.NewServiceError(c.cfg.Service, entity.CodeRateLimited,
				"client-side pacing: "+err.Error(), entity.WithCause(err))
		}
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.cfg.Timeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	httpReq = httpReq.WithContext(callCtx)
	if body != nil {
		httpReq.Body = io.NopCloser(bytes.NewReader(body))
		httpReq.ContentLength = int64(len(body))
		httpReq.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
	}

	start := time.Now()
	resp, se := c.execute(httpReq)
	code := "OK"
	if se != nil {
		code = string(se.Code)
	}
	RecordRequest(c.cfg.Service, code, time.Since(start))
	return resp, se
}

// execute runs the round trip through the circuit breaker when one is configured.
func (c *Client) execute(httpReq *http.Request) (*Response, *entity.ServiceError) {
	if c.cfg.Breaker == nil {
		return c.roundTrip(httpReq)
	}

	result, err := c.cfg.Breaker.Execute(func() (interface{}, error) {
		resp, se := c.roundTrip(httpReq)
		if se != nil {
			return nil, se
		}
		return resp, nil
	})
	if err != nil {
		if circuitbreaker.IsRejection(err) {
			return nil, entity.NewServiceError(c.cfg.Service, entity.CodeServiceUnavailable,
				"circuit breaker "+c.cfg.Breaker.Name()+" is open", entity.WithCause(err))
		}
		return nil, entity.AsServiceError(c.cfg.Service, err)
	}
	return result.(*Response), nil
}

func (c *Client) roundTrip(httpReq *http.Request) (*Response, *entity.ServiceError) {
	resp, err := c.httpClient.Do(httpReq) // #nosec G107 -- URLs are built from configured API base URLs
	if err != nil {
		return nil, classifyNetworkError(c.cfg.Service, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxBodyBytes))
	if err != nil {
		return nil, classifyNetworkError(c.cfg.Service, err)
	}

	c.observeRateLimit(resp.Header)

	out := &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return out, nil
	}
	return nil, c.classifyResponse(out)
}

// classifyResponse builds the ServiceError for a non-2xx response.
func (c *Client) classifyResponse(resp *Response) *entity.ServiceError {
	code := ClassifyStatus(resp.StatusCode)
	opts := []entity.ServiceErrorOption{entity.WithStatus(resp.StatusCode)}

	// Only this response's headers count; the shared snapshot may be stale.
	if code == entity.CodeRateLimited {
		if info, ok := parseRateLimit(resp.Header, c.cfg.RateLimitHeaders); ok && info.Reset > 0 {
			opts = append(opts, entity.WithDetail(retry.DetailRateLimitReset, info.Reset))
		} else if reset, ok := retryAfter(resp.Header, c.now()); ok {
			opts = append(opts, entity.WithDetail(retry.DetailRateLimitReset, reset))
		}
	}

	se := entity.NewServiceError(c.cfg.Service, code, errorMessage(resp.StatusCode, resp.Body), opts...)
	if c.cfg.Classifier != nil {
		if refined := c.cfg.Classifier(se, resp); refined != nil {
			se = refined
		}
	}
	return se
}

func (c *Client) observeRateLimit(h http.Header) {
	info, ok := parseRateLimit(h, c.cfg.RateLimitHeaders)
	if !ok {
		return
	}

	c.mu.Lock()
	c.rateLimit = info
	c.mu.Unlock()

	RecordRateLimit(c.cfg.Service, info.Remaining)
	if info.Remaining < lowQuotaThreshold {
		c.logger.Warn("rate limit nearly exhausted",
			slog.Int("remaining", info.Remaining),
			slog.Int("limit", info.Limit),
			slog.String("reset", strconv.FormatInt(info.Reset, 10)))
	}
}

// redactURL drops the query string, which may carry tokens.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "invalid-url"
	}
	u.RawQuery = ""
	u.User = nil
	return u.String()
}
