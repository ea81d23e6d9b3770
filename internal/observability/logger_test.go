package observability

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/supaseed/supaseed/internal/config"
)

func TestNewLoggerRedactsCredentials(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Config{Profile: config.ProfileDev}
	cfg.Service.Name = "supaseed-api"
	cfg.Observability.LogJSON = true
	cfg.Observability.LogLevel = slog.LevelDebug

	NewLogger(cfg, &buf).Info("seed_requested",
		slog.String("access_key", "anon-secret"),
		slog.String("openai_key", "sk-secret"),
		slog.String("endpoint_url", "https://abc.supabase.co"),
	)

	if strings.Contains(buf.String(), "anon-secret") || strings.Contains(buf.String(), "sk-secret") {
		t.Fatalf("log leaked credentials: %s", buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log entry: %v", err)
	}
	if entry["access_key"] != redacted || entry["openai_key"] != redacted {
		t.Fatalf("entry = %#v", entry)
	}
	if entry["endpoint_url"] != "https://abc.supabase.co" || entry["service"] != "supaseed-api" {
		t.Fatalf("entry = %#v", entry)
	}
}
