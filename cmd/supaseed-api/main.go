package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/supaseed/supaseed/internal/api"
	"github.com/supaseed/supaseed/internal/api/uistatic"
	"github.com/supaseed/supaseed/internal/archive"
	"github.com/supaseed/supaseed/internal/auth"
	"github.com/supaseed/supaseed/internal/config"
	"github.com/supaseed/supaseed/internal/observability"
	"github.com/supaseed/supaseed/internal/schema"
	"github.com/supaseed/supaseed/internal/seedgen"
	"github.com/supaseed/supaseed/internal/settings"
	settingspostgres "github.com/supaseed/supaseed/internal/settings/postgres"
	s3store "github.com/supaseed/supaseed/internal/storage/s3"
)

func main() {
	cfg, err := config.LoadFromEnv("supaseed-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	for _, warning := range cfg.Warnings() {
		logger.Warn("insecure_configuration", slog.String("detail", warning))
	}

	models, err := modelSet(cfg)
	if err != nil {
		logger.Error("invalid model configuration", slog.Any("error", err))
		os.Exit(1)
	}
	fetcher := schema.NewFetcher(schema.Config{
		RestPath: cfg.Schema.RestPath,
		Timeout:  cfg.Schema.Timeout,
	})
	provider := seedgen.NewOpenAIProvider(seedgen.OpenAIConfig{BaseURL: cfg.Generation.BaseURL})
	service := seedgen.NewService(fetcher, seedgen.NewStreamer(provider, models, logger), logger)

	deps := api.Dependencies{
		Logger:            logger,
		Seeds:             service,
		DependencyTimeout: time.Second,
	}
	var readiness []api.ReadinessCheck

	switch cfg.Settings.Store {
	case config.SettingsStorePostgres:
		db, err := settingspostgres.Open(context.Background(), settingspostgres.DBConfig{
			DSN:             cfg.Settings.DSN,
			MaxOpenConns:    cfg.Settings.MaxOpenConns,
			MaxIdleConns:    cfg.Settings.MaxIdleConns,
			ConnMaxIdleTime: cfg.Settings.ConnMaxIdleTime,
			ConnMaxLifetime: cfg.Settings.ConnMaxLifetime,
		})
		if err != nil {
			logger.Error("failed to open settings db", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() { _ = db.Close() }()
		repo := settingspostgres.NewRepository(db)
		deps.Settings = repo
		readiness = append(readiness, api.CheckHealth("settings", repo))
	default:
		deps.Settings = settings.NewMemoryStore()
	}

	if cfg.Archive.Enabled {
		objectStore, err := s3store.New(context.Background(), s3store.Config{
			Endpoint:         cfg.Archive.Endpoint,
			Region:           cfg.Archive.Region,
			Bucket:           cfg.Archive.Bucket,
			AccessKeyID:      cfg.Archive.AccessKeyID,
			SecretAccessKey:  cfg.Archive.SecretAccessKey,
			UseSSL:           cfg.Archive.UseSSL,
			Prefix:           cfg.Archive.Prefix,
			AutoCreateBucket: cfg.Archive.AutoCreateBucket,
		})
		if err != nil {
			logger.Error("failed to initialize seed archive", slog.Any("error", err))
			os.Exit(1)
		}
		deps.Archive = archive.New(objectStore, logger)
		readiness = append(readiness, api.CheckHealth("archive", objectStore))
	}
	deps.Readiness = api.CombineReadinessChecks(readiness...)

	if cfg.UI.Enabled {
		deps.UI = uistatic.Handler()
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("settings_store", cfg.Settings.Store),
			slog.Bool("archive_enabled", cfg.Archive.Enabled),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}

func modelSet(cfg config.Config) (seedgen.ModelSet, error) {
	if len(cfg.Generation.AllowedModels) == 0 {
		return seedgen.DefaultModels(), nil
	}
	return seedgen.NewModelSet(cfg.Generation.AllowedModels, cfg.Generation.DefaultModel)
}
