// Package main provides a CLI command that mints API tokens.
// Usage: relay-token --sub NAME [--role admin|viewer] [--ttl 24h]
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"social-relay/internal/handler/http/auth"
)

func main() {
	var (
		subject string
		role    string
		ttl     time.Duration
	)

	flag.StringVar(&subject, "sub", "", "Token subject, usually the caller's name")
	flag.StringVar(&role, "role", auth.RoleViewer, "Role claim: admin or viewer")
	flag.DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	flag.Parse()

	if subject == "" {
		fmt.Fprintln(os.Stderr, "Error: --sub is required")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Usage: relay-token --sub NAME [--role admin|viewer] [--ttl 24h]")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Examples:")
		fmt.Fprintln(os.Stderr, "  relay-token --sub publisher-bot --role admin --ttl 720h")
		fmt.Fprintln(os.Stderr, "  relay-token --sub dashboard")
		os.Exit(1)
	}

	secret := os.Getenv("JWT_SECRET")
	if err := auth.ValidateSecret(secret); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid JWT_SECRET: %v\n", err)
		os.Exit(1)
	}

	token, err := auth.IssueToken([]byte(secret), subject, role, ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
