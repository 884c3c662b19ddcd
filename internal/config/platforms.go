// Package config loads the platform credentials used by the publishers.
//
// Credentials come from a YAML file named by PLATFORMS_CONFIG. ${VAR}
// references in the file are expanded from the environment before parsing,
// so secrets can stay out of the file itself. Without a file the same
// settings are read from TWITTER_* and LINKEDIN_* variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"social-relay/internal/domain/entity"
	"social-relay/internal/infra/publisher"
	"social-relay/internal/infra/signer"
)

// PlatformsConfig is the root of the credentials file.
type PlatformsConfig struct {
	Twitter  *TwitterSettings  `yaml:"twitter"`
	LinkedIn *LinkedInSettings `yaml:"linkedin"`
	Media    MediaSettings     `yaml:"media"`
}

// TwitterSettings configures the twitter publisher.
type TwitterSettings struct {
	BaseURL     string                   `yaml:"base_url"`
	UploadURL   string                   `yaml:"upload_url"`
	Credentials signer.OAuth1Credentials `yaml:",inline"`
	// BearerToken is optional and only used for read-only calls.
	BearerToken       string        `yaml:"bearer_token"`
	Timeout           time.Duration `yaml:"timeout"`
	MaxRetries        int           `yaml:"max_retries"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
}

// LinkedInSettings configures the linkedin publisher.
type LinkedInSettings struct {
	BaseURL           string        `yaml:"base_url"`
	AccessToken       string        `yaml:"access_token"`
	AuthorURN         string        `yaml:"author_urn"`
	Visibility        string        `yaml:"visibility"`
	Timeout           time.Duration `yaml:"timeout"`
	MaxRetries        int           `yaml:"max_retries"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
}

// MediaSettings configures attachment downloads.
type MediaSettings struct {
	Timeout      time.Duration `yaml:"timeout"`
	MaxBytes     int64         `yaml:"max_bytes"`
	MaxRetries   int           `yaml:"max_retries"`
	AllowPrivate bool          `yaml:"allow_private"`
}

// ErrNoPlatforms is returned when neither platform has credentials.
var ErrNoPlatforms = errors.New("no platform credentials configured")

// maxRetries bounds the per-call retry count accepted from configuration.
const maxRetries = 10

// LoadPlatformsConfig reads and validates the credentials file at path.
func LoadPlatformsConfig(path string) (*PlatformsConfig, error) {
	// #nosec G304 -- path comes from PLATFORMS_CONFIG, set by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read platforms config: %w", err)
	}
	return ParsePlatformsConfig(data)
}

// ParsePlatformsConfig expands ${VAR} references in data and decodes it.
// Unknown keys are rejected so typos do not silently drop a credential.
func ParsePlatformsConfig(data []byte) (*PlatformsConfig, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg PlatformsConfig
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse platforms config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("platforms config validation failed: %w", err)
	}
	return &cfg, nil
}

// PlatformsFromEnv builds the configuration from environment variables.
// A platform is configured only when its credentials are present.
func PlatformsFromEnv() (*PlatformsConfig, error) {
	cfg := &PlatformsConfig{}

	creds := signer.OAuth1Credentials{
		ConsumerKey:    os.Getenv("TWITTER_CONSUMER_KEY"),
		ConsumerSecret: os.Getenv("TWITTER_CONSUMER_SECRET"),
		Token:          os.Getenv("TWITTER_ACCESS_TOKEN"),
		TokenSecret:    os.Getenv("TWITTER_ACCESS_TOKEN_SECRET"),
	}
	if creds != (signer.OAuth1Credentials{}) {
		cfg.Twitter = &TwitterSettings{
			Credentials: creds,
			BearerToken: os.Getenv("TWITTER_BEARER_TOKEN"),
		}
	}

	if token := os.Getenv("LINKEDIN_ACCESS_TOKEN"); token != "" {
		cfg.LinkedIn = &LinkedInSettings{
			AccessToken: token,
			AuthorURN:   os.Getenv("LINKEDIN_AUTHOR_URN"),
			Visibility:  os.Getenv("LINKEDIN_VISIBILITY"),
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("platforms environment validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks that every configured platform has usable credentials.
func (c *PlatformsConfig) Validate() error {
	var errs []error

	if t := c.Twitter; t != nil {
		var missing []string
		for _, f := range []struct{ name, value string }{
			{"consumer_key", t.Credentials.ConsumerKey},
			{"consumer_secret", t.Credentials.ConsumerSecret},
			{"access_token", t.Credentials.Token},
			{"access_token_secret", t.Credentials.TokenSecret},
		} {
			if f.value == "" {
				missing = append(missing, f.name)
			}
		}
		if len(missing) > 0 {
			errs = append(errs, fmt.Errorf("twitter: missing %s", strings.Join(missing, ", ")))
		}
		errs = append(errs, validateCall("twitter", t.Timeout, t.MaxRetries, t.RequestsPerSecond))
	}

	if l := c.LinkedIn; l != nil {
		if l.AccessToken == "" {
			errs = append(errs, errors.New("linkedin: missing access_token"))
		}
		switch strings.ToUpper(l.Visibility) {
		case "", "PUBLIC", "CONNECTIONS":
		default:
			errs = append(errs, fmt.Errorf("linkedin: visibility must be PUBLIC or CONNECTIONS, got %q", l.Visibility))
		}
		if l.AuthorURN != "" && !strings.HasPrefix(l.AuthorURN, "urn:li:") {
			errs = append(errs, fmt.Errorf("linkedin: author_urn must start with urn:li:, got %q", l.AuthorURN))
		}
		errs = append(errs, validateCall("linkedin", l.Timeout, l.MaxRetries, l.RequestsPerSecond))
	}

	if c.Media.Timeout < 0 {
		errs = append(errs, fmt.Errorf("media: timeout must not be negative, got %v", c.Media.Timeout))
	}
	if c.Media.MaxBytes < 0 {
		errs = append(errs, fmt.Errorf("media: max_bytes must not be negative, got %d", c.Media.MaxBytes))
	}

	return errors.Join(errs...)
}

// Configured lists the platforms that have credentials, in enum order.
func (c *PlatformsConfig) Configured() []entity.Platform {
	var out []entity.Platform
	if c.Twitter != nil {
		out = append(out, entity.PlatformTwitter)
	}
	if c.LinkedIn != nil {
		out = append(out, entity.PlatformLinkedIn)
	}
	return out
}

// Restrict drops every platform not named in enabled. An empty list keeps all.
func (c *PlatformsConfig) Restrict(enabled []string) error {
	if len(enabled) == 0 {
		return nil
	}
	keep := map[entity.Platform]bool{}
	for _, name := range enabled {
		p, err := entity.ParsePlatform(name)
		if err != nil {
			return err
		}
		keep[p] = true
	}
	if !keep[entity.PlatformTwitter] {
		c.Twitter = nil
	}
	if !keep[entity.PlatformLinkedIn] {
		c.LinkedIn = nil
	}
	return nil
}

// Publishers builds one publisher per configured platform.
func (c *PlatformsConfig) Publishers(opts ...publisher.Option) ([]publisher.Publisher, error) {
	if len(c.Configured()) == 0 {
		return nil, ErrNoPlatforms
	}

	mediaCfg := publisher.DefaultMediaFetcherConfig()
	if c.Media.Timeout > 0 {
		mediaCfg.Timeout = c.Media.Timeout
	}
	if c.Media.MaxBytes > 0 {
		mediaCfg.MaxBytes = c.Media.MaxBytes
	}
	if c.Media.MaxRetries > 0 {
		mediaCfg.MaxRetries = c.Media.MaxRetries
	}
	mediaCfg.AllowPrivate = c.Media.AllowPrivate
	media := publisher.NewMediaFetcher(mediaCfg, opts...)

	var out []publisher.Publisher
	if t := c.Twitter; t != nil {
		out = append(out, publisher.NewTwitter(publisher.TwitterConfig{
			BaseURL:           t.BaseURL,
			UploadURL:         t.UploadURL,
			Credentials:       t.Credentials,
			BearerToken:       t.BearerToken,
			Timeout:           t.Timeout,
			MaxRetries:        t.MaxRetries,
			RequestsPerSecond: t.RequestsPerSecond,
		}, media, opts...))
	}
	if l := c.LinkedIn; l != nil {
		out = append(out, publisher.NewLinkedIn(publisher.LinkedInConfig{
			BaseURL:           l.BaseURL,
			AccessToken:       l.AccessToken,
			AuthorURN:         l.AuthorURN,
			Visibility:        strings.ToUpper(l.Visibility),
			Timeout:           l.Timeout,
			MaxRetries:        l.MaxRetries,
			RequestsPerSecond: l.RequestsPerSecond,
		}, media, opts...))
	}
	return out, nil
}

func validateCall(platform string, timeout time.Duration, retries int, rps float64) error {
	var errs []error
	if timeout < 0 {
		errs = append(errs, fmt.Errorf("%s: timeout must not be negative, got %v", platform, timeout))
	}
	if retries < 0 || retries > maxRetries {
		errs = append(errs, fmt.Errorf("%s: max_retries must be between 0 and %d, got %d", platform, maxRetries, retries))
	}
	if rps < 0 {
		errs = append(errs, fmt.Errorf("%s: requests_per_second must not be negative, got %g", platform, rps))
	}
	return errors.Join(errs...)
}
