package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/supaseed/supaseed/internal/cli/supaseedctl"
)

func main() {
	timeout := parseDurationWithDefault(strings.TrimSpace(os.Getenv("SUPASEED_CLI_TIMEOUT")), 10*time.Second)
	options := supaseedctl.Options{
		BaseURL:   envOr("SUPASEED_API_URL", "http://localhost:8080"),
		APIKey:    strings.TrimSpace(os.Getenv("SUPASEED_API_KEY")),
		ClientID:  strings.TrimSpace(os.Getenv("SUPASEED_CLIENT_ID")),
		OpenAIKey: strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		Timeout:   timeout,
		Stdout:    os.Stdout,
		Stderr:    os.Stderr,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := supaseedctl.Run(ctx, os.Args[1:], options)
	stop()
	os.Exit(code)
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseDurationWithDefault(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid SUPASEED_CLI_TIMEOUT %q; using %s\n", raw, fallback)
		return fallback
	}
	return parsed
}
