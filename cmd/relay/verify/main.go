// Package main provides a CLI command that checks platform credentials.
// Usage: relay-verify [--platform twitter|linkedin] [--output json]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"social-relay/internal/config"
	"social-relay/internal/domain/entity"
	"social-relay/internal/infra/publisher"
	"social-relay/internal/observability/logging"
	pkgconfig "social-relay/pkg/config"
)

// VerifyOutput is the JSON output for one platform.
type VerifyOutput struct {
	Platform string `json:"platform"`
	Valid    bool   `json:"valid"`
	Code     string `json:"code,omitempty"`
	Error    string `json:"error,omitempty"`
}

func main() {
	var (
		only         string
		outputFormat string
	)

	flag.StringVar(&only, "platform", "", "Verify only this platform")
	flag.StringVar(&outputFormat, "output", "text", "Output format: text or json")
	flag.Parse()

	logger := logging.New(os.Stderr, os.Getenv("LOG_LEVEL"), "json")
	slog.SetDefault(logger)

	var (
		platforms *config.PlatformsConfig
		err       error
	)
	if path := pkgconfig.GetEnvString("PLATFORMS_CONFIG", ""); path != "" {
		platforms, err = config.LoadPlatformsConfig(path)
	} else {
		platforms, err = config.PlatformsFromEnv()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to load platform credentials: %v\n", err)
		os.Exit(1)
	}
	if only != "" {
		if err := platforms.Restrict([]string{only}); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	pubs, err := platforms.Publishers(publisher.WithLogger(logger), publisher.WithoutCircuitBreaker())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	registry := publisher.NewRegistry(pubs...)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	results := make([]VerifyOutput, 0, len(registry.Configured()))
	allValid := true
	for _, p := range registry.Configured() {
		results = append(results, verify(ctx, registry, p))
		allValid = allValid && results[len(results)-1].Valid
	}

	if outputFormat == "json" {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(results); err != nil {
			fmt.Fprintf(os.Stderr, "Error: Failed to encode JSON: %v\n", err)
			os.Exit(1)
		}
	} else {
		for _, r := range results {
			if r.Valid {
				fmt.Printf("%-10s ok\n", r.Platform)
				continue
			}
			fmt.Printf("%-10s %s: %s\n", r.Platform, r.Code, r.Error)
		}
	}

	if !allValid {
		os.Exit(2)
	}
}

func verify(ctx context.Context, registry *publisher.Registry, platform entity.Platform) VerifyOutput {
	out := VerifyOutput{Platform: string(platform), Valid: true}
	if err := registry.VerifyCredentials(ctx, platform); err != nil {
		se := entity.AsServiceError(string(platform), err)
		out.Valid = false
		out.Code = string(se.Code)
		out.Error = se.Message
	}
	return out
}
