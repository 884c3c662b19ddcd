package notifier

import (
	"context"
	"strconv"
	"time"

	"social-relay/internal/utils/text"
)

// Discord embed limits.
const (
	maxTitleLength       = 256
	maxDescriptionLength = 4096
	maxFieldValueLength  = 1024

	// discordRedColor is #ED4245.
	discordRedColor = 15548997
)

// DiscordNotifier posts alerts to a Discord webhook. Discord allows 30
// requests per minute per webhook.
type DiscordNotifier struct {
	hook *webhook
}

// NewDiscordNotifier creates a notifier for webhookURL.
func NewDiscordNotifier(webhookURL string, timeout time.Duration, opts ...Option) *DiscordNotifier {
	return &DiscordNotifier{hook: newWebhook("discord", webhookURL, timeout, 0.5, 3, opts)}
}

// DiscordWebhookPayload is the JSON body sent to the webhook.
type DiscordWebhookPayload struct {
	Embeds []DiscordEmbed `json:"embeds"`
}

// DiscordEmbed is one rich embed.
type DiscordEmbed struct {
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Color       int                 `json:"color"`
	Fields      []DiscordEmbedField `json:"fields,omitempty"`
	Footer      DiscordEmbedFooter  `json:"footer"`
	Timestamp   string              `json:"timestamp"`
}

// DiscordEmbedField is an inline name/value pair.
type DiscordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// DiscordEmbedFooter is the embed footer.
type DiscordEmbedFooter struct {
	Text string `json:"text"`
}

// Name implements Notifier.
func (d *DiscordNotifier) Name() string { return "discord" }

// NotifyFailure implements Notifier.
func (d *DiscordNotifier) NotifyFailure(ctx context.Context, alert Alert) error {
	return d.hook.post(ctx, alert.JobID, buildDiscordPayload(alert))
}

func buildDiscordPayload(a Alert) DiscordWebhookPayload {
	description := a.Message
	if a.Hint != "" {
		description += "\n\n" + a.Hint
	}

	return DiscordWebhookPayload{
		Embeds: []DiscordEmbed{{
			Title:       text.HardTruncate(a.Platform+" delivery failed", maxTitleLength),
			Description: text.HardTruncate(description, maxDescriptionLength),
			Color:       discordRedColor,
			Fields: []DiscordEmbedField{
				{Name: "Code", Value: string(a.Code), Inline: true},
				{Name: "Attempts", Value: strconv.Itoa(a.Attempts), Inline: true},
				{Name: "Content", Value: text.HardTruncate(a.ContentID, maxFieldValueLength), Inline: true},
			},
			Footer:    DiscordEmbedFooter{Text: "job " + a.JobID},
			Timestamp: a.FailedAt.Format(time.RFC3339),
		}},
	}
}
