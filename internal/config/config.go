package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

const (
	SettingsStoreMemory   = "memory"
	SettingsStorePostgres = "postgres"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	Schema        SchemaConfig
	Generation    GenerationConfig
	Settings      SettingsConfig
	Archive       ArchiveConfig
	UI            UIConfig
	Observability ObservabilityConfig
	Auth          AuthConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// SchemaConfig controls the PostgREST schema fetch. A zero Timeout leaves the
// deadline to the HTTP client defaults.
type SchemaConfig struct {
	RestPath string
	Timeout  time.Duration
}

type GenerationConfig struct {
	BaseURL       string
	DefaultModel  string
	AllowedModels []string
}

type SettingsConfig struct {
	Store           string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

type ArchiveConfig struct {
	Enabled          bool
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

type UIConfig struct {
	Enabled bool
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

// AuthConfig controls API key checks on the seed, settings and archive
// routes. When Required is false the owner of saved settings and archived
// seeds is whatever the caller sends in X-Client-ID, so any caller can read
// or clear another owner's data. Keep it true wherever those stores persist.
type AuthConfig struct {
	Required   bool
	StaticKeys string
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("SUPASEED_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid SUPASEED_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	if err := applyString(lookup, "SUPASEED_SERVICE_NAME", &cfg.Service.Name); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SUPASEED_HTTP_ADDR", &cfg.HTTP.Address); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "SUPASEED_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "SUPASEED_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "SUPASEED_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SUPASEED_SCHEMA_REST_PATH", &cfg.Schema.RestPath); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "SUPASEED_SCHEMA_TIMEOUT", &cfg.Schema.Timeout); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SUPASEED_OPENAI_BASE_URL", &cfg.Generation.BaseURL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SUPASEED_DEFAULT_MODEL", &cfg.Generation.DefaultModel); err != nil {
		return Config{}, err
	}
	if err := applyList(lookup, "SUPASEED_ALLOWED_MODELS", &cfg.Generation.AllowedModels); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SUPASEED_SETTINGS_STORE", &cfg.Settings.Store); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SUPASEED_SETTINGS_DSN", &cfg.Settings.DSN); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "SUPASEED_SETTINGS_MAX_OPEN_CONNS", &cfg.Settings.MaxOpenConns); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "SUPASEED_SETTINGS_MAX_IDLE_CONNS", &cfg.Settings.MaxIdleConns); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "SUPASEED_SETTINGS_CONN_MAX_IDLE_TIME", &cfg.Settings.ConnMaxIdleTime); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "SUPASEED_SETTINGS_CONN_MAX_LIFETIME", &cfg.Settings.ConnMaxLifetime); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "SUPASEED_ARCHIVE_ENABLED", &cfg.Archive.Enabled); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SUPASEED_ARCHIVE_ENDPOINT", &cfg.Archive.Endpoint); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SUPASEED_ARCHIVE_REGION", &cfg.Archive.Region); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SUPASEED_ARCHIVE_BUCKET", &cfg.Archive.Bucket); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SUPASEED_ARCHIVE_ACCESS_KEY", &cfg.Archive.AccessKeyID); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SUPASEED_ARCHIVE_SECRET_KEY", &cfg.Archive.SecretAccessKey); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "SUPASEED_ARCHIVE_USE_SSL", &cfg.Archive.UseSSL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SUPASEED_ARCHIVE_PREFIX", &cfg.Archive.Prefix); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "SUPASEED_ARCHIVE_AUTO_CREATE_BUCKET", &cfg.Archive.AutoCreateBucket); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "SUPASEED_UI_ENABLED", &cfg.UI.Enabled); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "SUPASEED_LOG_JSON", &cfg.Observability.LogJSON); err != nil {
		return Config{}, err
	}
	if err := applyLogLevel(lookup, "SUPASEED_LOG_LEVEL", &cfg.Observability.LogLevel); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "SUPASEED_AUTH_REQUIRED", &cfg.Auth.Required); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SUPASEED_AUTH_STATIC_KEYS", &cfg.Auth.StaticKeys); err != nil {
		return Config{}, err
	}

	if cfg.Service.Name == "" {
		return Config{}, fmt.Errorf("service name is required")
	}
	if cfg.HTTP.Address == "" {
		return Config{}, fmt.Errorf("http address is required")
	}
	if err := cfg.validateGeneration(); err != nil {
		return Config{}, err
	}
	switch cfg.Settings.Store {
	case SettingsStoreMemory:
	case SettingsStorePostgres:
		if cfg.Settings.DSN == "" {
			return Config{}, fmt.Errorf("SUPASEED_SETTINGS_DSN is required for the postgres settings store")
		}
	default:
		return Config{}, fmt.Errorf("invalid SUPASEED_SETTINGS_STORE: %q", cfg.Settings.Store)
	}
	if cfg.Archive.Enabled && (cfg.Archive.Endpoint == "" || cfg.Archive.Bucket == "") {
		return Config{}, fmt.Errorf("archive endpoint and bucket are required when the archive is enabled")
	}
	return cfg, nil
}

// Warnings lists settings that load but leave owner data exposed.
func (c Config) Warnings() []string {
	if c.Auth.Required {
		return nil
	}
	var warnings []string
	if c.Settings.Store == SettingsStorePostgres {
		warnings = append(warnings, "postgres settings store is enabled without SUPASEED_AUTH_REQUIRED; saved settings, including access keys, are readable by any caller that sends the owner's X-Client-ID")
	}
	if c.Archive.Enabled {
		warnings = append(warnings, "seed archive is enabled without SUPASEED_AUTH_REQUIRED; archived seeds are readable by any caller that sends the owner's X-Client-ID")
	}
	return warnings
}

func (c Config) validateGeneration() error {
	if c.Generation.BaseURL == "" {
		return fmt.Errorf("openai base url is required")
	}
	if len(c.Generation.AllowedModels) == 0 {
		return fmt.Errorf("at least one allowed model is required")
	}
	for _, model := range c.Generation.AllowedModels {
		if model == c.Generation.DefaultModel {
			return nil
		}
	}
	return fmt.Errorf("default model %q is not in the allowed model list", c.Generation.DefaultModel)
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "supaseed-api"},
		HTTP: HTTPConfig{
			Address:     ":8080",
			ReadTimeout: 5 * time.Second,
			// Streams stay open for the length of a completion.
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
		Schema: SchemaConfig{
			RestPath: "/rest/v1/",
			Timeout:  0,
		},
		Generation: GenerationConfig{
			BaseURL:       "https://api.openai.com/v1",
			DefaultModel:  "gpt-4o-mini",
			AllowedModels: []string{"gpt-4o-mini", "gpt-4o", "gpt-3.5-turbo"},
		},
		Settings: SettingsConfig{
			Store:           SettingsStoreMemory,
			DSN:             "",
			MaxOpenConns:    10,
			MaxIdleConns:    10,
			ConnMaxIdleTime: 5 * time.Minute,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Archive: ArchiveConfig{
			Enabled:          false,
			Endpoint:         "localhost:9000",
			Region:           "us-east-1",
			Bucket:           "supaseed",
			AccessKeyID:      "minio",
			SecretAccessKey:  "miniostorage",
			UseSSL:           false,
			Prefix:           "",
			AutoCreateBucket: true,
		},
		UI: UIConfig{
			Enabled: true,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  true,
		},
		Auth: AuthConfig{
			Required:   false,
			StaticKeys: "",
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18080"
		cfg.Observability.LogLevel = slog.LevelWarn
		cfg.Auth.Required = false
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.Auth.Required = true
		cfg.Archive.UseSSL = true
		cfg.Archive.AutoCreateBucket = false
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

// applyList reads a comma separated value, dropping blank entries.
func applyList(lookup LookupFunc, key string, dst *[]string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	values := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		values = append(values, part)
	}
	if len(values) == 0 {
		return fmt.Errorf("invalid %s: at least one value is required", key)
	}
	*dst = values
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level := strings.ToLower(strings.TrimSpace(raw))
	switch level {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}
