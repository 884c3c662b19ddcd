package notifier

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	pkgconfig "social-relay/pkg/config"
)

// Config selects the alert channels. An empty URL disables its channel.
type Config struct {
	// SlackWebhookURL is the Slack incoming webhook (SLACK_WEBHOOK_URL)
	SlackWebhookURL string

	// DiscordWebhookURL is the Discord webhook (DISCORD_WEBHOOK_URL)
	DiscordWebhookURL string

	// Timeout bounds each webhook request (ALERT_TIMEOUT, default 10s)
	Timeout time.Duration
}

// LoadConfigFromEnv reads the alert configuration.
func LoadConfigFromEnv() Config {
	return Config{
		SlackWebhookURL:   pkgconfig.GetEnvString("SLACK_WEBHOOK_URL", ""),
		DiscordWebhookURL: pkgconfig.GetEnvString("DISCORD_WEBHOOK_URL", ""),
		Timeout:           pkgconfig.GetEnvDuration("ALERT_TIMEOUT", 10*time.Second),
	}
}

// Validate checks that every configured URL is absolute http(s).
func (c Config) Validate() error {
	var errs []error
	hooks := []struct{ name, raw string }{
		{"slack", c.SlackWebhookURL},
		{"discord", c.DiscordWebhookURL},
	}
	for _, h := range hooks {
		if h.raw == "" {
			continue
		}
		u, err := url.Parse(h.raw)
		if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
			errs = append(errs, fmt.Errorf("%s webhook URL must be an absolute http(s) URL", h.name))
		}
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("alert timeout must be positive, got %v", c.Timeout))
	}
	return errors.Join(errs...)
}

// New returns the notifier for cfg: NoOp when no channel is configured,
// otherwise the configured channels.
func New(cfg Config, logger *slog.Logger, opts ...Option) (Notifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts = append([]Option{WithLogger(logger)}, opts...)

	var channels Multi
	if cfg.SlackWebhookURL != "" {
		channels = append(channels, NewSlackNotifier(cfg.SlackWebhookURL, cfg.Timeout, opts...))
	}
	if cfg.DiscordWebhookURL != "" {
		channels = append(channels, NewDiscordNotifier(cfg.DiscordWebhookURL, cfg.Timeout, opts...))
	}

	switch len(channels) {
	case 0:
		logger.Info("failure alerts disabled")
		return NoOp{}, nil
	case 1:
		logger.Info("failure alerts enabled", slog.String("channel", channels[0].Name()))
		return channels[0], nil
	default:
		logger.Info("failure alerts enabled", slog.String("channel", channels.Name()))
		return channels, nil
	}
}
