package notifier

import (
	"context"
	"fmt"
	"time"

	"social-relay/internal/utils/text"
)

// Slack Block Kit limits.
const (
	maxSectionTextLength = 3000
	maxFallbackLength    = 150
)

// SlackNotifier posts alerts to a Slack incoming webhook. Slack allows
// about one message per second per webhook.
type SlackNotifier struct {
	hook *webhook
}

// NewSlackNotifier creates a notifier for webhookURL.
func NewSlackNotifier(webhookURL string, timeout time.Duration, opts ...Option) *SlackNotifier {
	return &SlackNotifier{hook: newWebhook("slack", webhookURL, timeout, 1, 1, opts)}
}

// SlackWebhookPayload is the JSON body sent to the webhook.
type SlackWebhookPayload struct {
	Text   string       `json:"text"`
	Blocks []SlackBlock `json:"blocks"`
}

// SlackBlock is a Block Kit block.
type SlackBlock struct {
	Type     string            `json:"type"`
	Text     *SlackTextObject  `json:"text,omitempty"`
	Elements []SlackTextObject `json:"elements,omitempty"`
}

// SlackTextObject is a Block Kit text object.
type SlackTextObject struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Name implements Notifier.
func (s *SlackNotifier) Name() string { return "slack" }

// NotifyFailure implements Notifier.
func (s *SlackNotifier) NotifyFailure(ctx context.Context, alert Alert) error {
	return s.hook.post(ctx, alert.JobID, buildSlackPayload(alert))
}

func buildSlackPayload(a Alert) SlackWebhookPayload {
	fallback := text.HardTruncate(
		fmt.Sprintf("%s delivery failed: %s", a.Platform, a.Code), maxFallbackLength)

	section := fmt.Sprintf("*%s delivery failed* `%s`\n%s\n_%s_", a.Platform, a.Code, a.Message, a.Hint)
	footer := fmt.Sprintf("job %s • content %s • %d attempt(s) • %s",
		a.JobID, a.ContentID, a.Attempts, a.FailedAt.Format(time.RFC3339))

	return SlackWebhookPayload{
		Text: fallback,
		Blocks: []SlackBlock{
			{
				Type: "section",
				Text: &SlackTextObject{Type: "mrkdwn", Text: text.HardTruncate(section, maxSectionTextLength)},
			},
			{
				Type:     "context",
				Elements: []SlackTextObject{{Type: "mrkdwn", Text: footer}},
			},
		},
	}
}
