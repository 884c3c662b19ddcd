package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"social-relay/internal/domain/entity"
	"social-relay/internal/resilience/retry"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fastRetry keeps retry waits in the millisecond range.
func fastRetry() Option {
	return WithRetryPolicy(retry.Policy{
		RetryDelay:       time.Millisecond,
		Multiplier:       1,
		MaxDelay:         5 * time.Millisecond,
		RateLimitFloor:   time.Millisecond,
		UnavailableFloor: time.Millisecond,
	})
}

func sampleAlert() Alert {
	return Alert{
		JobID:     "job-1",
		Platform:  "twitter",
		ContentID: "post-42",
		Attempts:  3,
		Code:      entity.CodeAuthenticationFailed,
		Message:   "Could not authenticate you",
		Hint:      entity.CodeAuthenticationFailed.Hint(),
		FailedAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

type recordingNotifier struct {
	name   string
	err    error
	alerts []Alert
}

func (r *recordingNotifier) Name() string { return r.name }

func (r *recordingNotifier) NotifyFailure(_ context.Context, a Alert) error {
	r.alerts = append(r.alerts, a)
	return r.err
}

func TestNewAlert(t *testing.T) {
	job := &entity.Job{ID: "job-9", Platform: entity.PlatformLinkedIn, ContentID: "c-9", Attempt: 2}
	se := entity.NewServiceError("linkedin", entity.CodeDuplicateContent, "Content is a duplicate")

	a := NewAlert(job, se)

	assert.Equal(t, "job-9", a.JobID)
	assert.Equal(t, "linkedin", a.Platform)
	assert.Equal(t, 2, a.Attempts)
	assert.Equal(t, entity.CodeDuplicateContent, a.Code)
	assert.Equal(t, "Content is a duplicate", a.Message)
	assert.Equal(t, entity.CodeDuplicateContent.Hint(), a.Hint)
	assert.Equal(t, se.Timestamp.UTC(), a.FailedAt)
}

func TestMulti_SendsToAllAndJoinsErrors(t *testing.T) {
	failing := &recordingNotifier{name: "a", err: errors.New("boom")}
	ok := &recordingNotifier{name: "b"}

	err := Multi{failing, ok}.NotifyFailure(context.Background(), sampleAlert())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Len(t, failing.alerts, 1)
	assert.Len(t, ok.alerts, 1)
}

func TestNoOp(t *testing.T) {
	assert.NoError(t, NoOp{}.NotifyFailure(context.Background(), sampleAlert()))
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		want    string
		wantErr string
	}{
		{name: "none", cfg: Config{Timeout: time.Second}, want: "noop"},
		{name: "slack", cfg: Config{SlackWebhookURL: "https://hooks.slack.com/services/x", Timeout: time.Second}, want: "slack"},
		{name: "discord", cfg: Config{DiscordWebhookURL: "https://discord.com/api/webhooks/1/x", Timeout: time.Second}, want: "discord"},
		{
			name: "both",
			cfg: Config{
				SlackWebhookURL:   "https://hooks.slack.com/services/x",
				DiscordWebhookURL: "https://discord.com/api/webhooks/1/x",
				Timeout:           time.Second,
			},
			want: "multi",
		},
		{name: "relative url", cfg: Config{SlackWebhookURL: "/hooks", Timeout: time.Second}, wantErr: "slack webhook URL"},
		{name: "zero timeout", cfg: Config{}, wantErr: "alert timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := New(tt.cfg, discardLogger())
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, n.Name())
		})
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("SLACK_WEBHOOK_URL", "https://hooks.slack.com/services/x")
	t.Setenv("ALERT_TIMEOUT", "3s")

	cfg := LoadConfigFromEnv()

	assert.Equal(t, "https://hooks.slack.com/services/x", cfg.SlackWebhookURL)
	assert.Empty(t, cfg.DiscordWebhookURL)
	assert.Equal(t, 3*time.Second, cfg.Timeout)
}

func TestSlackNotifier_Payload(t *testing.T) {
	var got SlackWebhookPayload
	var requestID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		requestID = r.Header.Get("X-Request-ID")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	before := testutil.ToFloat64(alertsTotal.WithLabelValues("slack", "success"))
	n := NewSlackNotifier(srv.URL, time.Second, WithLogger(discardLogger()))

	require.NoError(t, n.NotifyFailure(context.Background(), sampleAlert()))

	assert.NotEmpty(t, requestID)
	assert.Equal(t, "twitter delivery failed: AUTHENTICATION_FAILED", got.Text)
	require.Len(t, got.Blocks, 2)
	assert.Equal(t, "section", got.Blocks[0].Type)
	assert.Contains(t, got.Blocks[0].Text.Text, "Could not authenticate you")
	assert.Contains(t, got.Blocks[1].Elements[0].Text, "job job-1")
	assert.Contains(t, got.Blocks[1].Elements[0].Text, "2026-03-01T12:00:00Z")
	assert.Equal(t, before+1, testutil.ToFloat64(alertsTotal.WithLabelValues("slack", "success")))
}

func TestDiscordNotifier_Payload(t *testing.T) {
	var got DiscordWebhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewDiscordNotifier(srv.URL, time.Second, WithLogger(discardLogger()))

	require.NoError(t, n.NotifyFailure(context.Background(), sampleAlert()))

	require.Len(t, got.Embeds, 1)
	embed := got.Embeds[0]
	assert.Equal(t, "twitter delivery failed", embed.Title)
	assert.Equal(t, discordRedColor, embed.Color)
	assert.Equal(t, "job job-1", embed.Footer.Text)
	assert.Equal(t, "2026-03-01T12:00:00Z", embed.Timestamp)
	assert.Equal(t, []DiscordEmbedField{
		{Name: "Code", Value: "AUTHENTICATION_FAILED", Inline: true},
		{Name: "Attempts", Value: "3", Inline: true},
		{Name: "Content", Value: "post-42", Inline: true},
	}, embed.Fields)
}

func TestDiscordNotifier_LongMessageTruncated(t *testing.T) {
	a := sampleAlert()
	a.Message = string(make([]rune, 5000))
	payload := buildDiscordPayload(a)

	assert.LessOrEqual(t, len([]rune(payload.Embeds[0].Description)), maxDescriptionLength)
}

func TestWebhook_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewSlackNotifier(srv.URL, time.Second, WithLogger(discardLogger()), fastRetry())

	require.NoError(t, n.NotifyFailure(context.Background(), sampleAlert()))
	assert.Equal(t, int32(2), calls.Load())
}

func TestWebhook_RateLimitedThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"message":"You are being rate limited.","retry_after":0.01}`))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewDiscordNotifier(srv.URL, time.Second, WithLogger(discardLogger()), fastRetry())

	require.NoError(t, n.NotifyFailure(context.Background(), sampleAlert()))
	assert.Equal(t, int32(2), calls.Load())
}

func TestWebhook_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("no_service"))
	}))
	defer srv.Close()

	before := testutil.ToFloat64(alertsTotal.WithLabelValues("slack", "failure"))
	n := NewSlackNotifier(srv.URL, time.Second, WithLogger(discardLogger()), fastRetry())

	err := n.NotifyFailure(context.Background(), sampleAlert())

	var se *entity.ServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, entity.CodeBadRequest, se.Code)
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
	assert.Contains(t, se.Message, "no_service")
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, before+1, testutil.ToFloat64(alertsTotal.WithLabelValues("slack", "failure")))
}

func TestWebhook_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	n := NewSlackNotifier(srv.URL, time.Second, WithLogger(discardLogger()), fastRetry())

	err := n.NotifyFailure(context.Background(), sampleAlert())

	assert.ErrorContains(t, err, "max retry attempts (2) exceeded")
	assert.Equal(t, int32(2), calls.Load())
}

func TestExtractRetryAfter(t *testing.T) {
	header := func(v string) *http.Response {
		return &http.Response{Header: http.Header{"Retry-After": []string{v}}}
	}

	assert.Equal(t, 1500*time.Millisecond, extractRetryAfter(header(""), []byte(`{"retry_after":1.5}`)))
	assert.Equal(t, 7*time.Second, extractRetryAfter(header("7"), nil))
	assert.Equal(t, defaultRetryAfter, extractRetryAfter(header("soon"), []byte("rate limited")))
}
