package main

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"social-relay/internal/domain/entity"
	"social-relay/internal/infra/notifier"
)

type captureNotifier struct {
	mu     sync.Mutex
	alerts []notifier.Alert
}

func (c *captureNotifier) Name() string { return "capture" }

func (c *captureNotifier) NotifyFailure(_ context.Context, a notifier.Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = append(c.alerts, a)
	return nil
}

func TestDeliveryHooks_FailureSendsAlert(t *testing.T) {
	capture := &captureNotifier{}
	sender := &alertSender{}
	hooks := deliveryHooks(slog.New(slog.NewTextHandler(io.Discard, nil)), capture, sender)

	job := &entity.Job{ID: "job-1", Platform: entity.PlatformTwitter, ContentID: "c1", Attempt: 3}
	hooks.OnFailure(context.Background(), job,
		entity.NewServiceError("twitter", entity.CodeForbidden, "app lacks write scope"))
	hooks.OnSuccess(context.Background(), job, &entity.PublishResult{PostID: "1"})
	sender.closeAndWait()

	require.Len(t, capture.alerts, 1)
	assert.Equal(t, "job-1", capture.alerts[0].JobID)
	assert.Equal(t, entity.CodeForbidden, capture.alerts[0].Code)
	assert.Equal(t, 3, capture.alerts[0].Attempts)
}

func TestDeliveryHooks_FailureAfterShutdownRunsInline(t *testing.T) {
	capture := &captureNotifier{}
	sender := &alertSender{}
	hooks := deliveryHooks(slog.New(slog.NewTextHandler(io.Discard, nil)), capture, sender)
	sender.closeAndWait()

	job := &entity.Job{ID: "job-late", Platform: entity.PlatformLinkedIn, ContentID: "c2", Attempt: 1}
	hooks.OnFailure(context.Background(), job,
		entity.NewServiceError("linkedin", entity.CodeInvalidToken, "token revoked"))

	// Delivered before OnFailure returned, with nothing left pending.
	require.Len(t, capture.alerts, 1)
	assert.Equal(t, "job-late", capture.alerts[0].JobID)
	sender.closeAndWait()
}

func TestAlertSender_ConcurrentSendAndClose(t *testing.T) {
	sender := &alertSender{}
	var (
		mu   sync.Mutex
		sent int
		wg   sync.WaitGroup
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sender.send(func() {
				mu.Lock()
				sent++
				mu.Unlock()
			})
		}()
	}
	sender.closeAndWait()
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 50, sent)
}
