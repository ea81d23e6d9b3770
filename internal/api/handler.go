package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/supaseed/supaseed/internal/archive"
	"github.com/supaseed/supaseed/internal/auth"
	"github.com/supaseed/supaseed/internal/config"
	"github.com/supaseed/supaseed/internal/observability"
	"github.com/supaseed/supaseed/internal/seedgen"
	"github.com/supaseed/supaseed/internal/settings"
)

// AnonymousClientID owns settings and seeds when no client is identified.
const AnonymousClientID = auth.AnonymousOwner

type ReadinessCheck func(ctx context.Context) error

type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type SeedService interface {
	Prompt(ctx context.Context, in seedgen.Input) (seedgen.PromptResult, error)
	Generate(ctx context.Context, in seedgen.Input, observe seedgen.PhaseObserver) (<-chan seedgen.Fragment, error)
	Models() seedgen.ModelSet
}

type SeedArchive interface {
	Save(ctx context.Context, ownerID, text string) (archive.Seed, error)
	List(ctx context.Context, ownerID string) ([]archive.Seed, error)
	Get(ctx context.Context, ownerID, id string) (archive.Seed, []byte, error)
	Delete(ctx context.Context, ownerID, id string) error
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	Seeds             SeedService
	Settings          settings.Store
	Archive           SeedArchive
	UI                http.Handler
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	mux.HandleFunc("GET /v1/models", func(w http.ResponseWriter, _ *http.Request) {
		models := seedgen.DefaultModels()
		if deps.Seeds != nil {
			models = deps.Seeds.Models()
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"default": models.Default(),
			"models":  models.List(),
		})
	})

	mux.HandleFunc("GET /v1/system-prompt/default", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"system_prompt": seedgen.DefaultSystemPrompt})
	})

	protected := http.NewServeMux()
	protected.HandleFunc("POST /v1/seed/prompt", func(w http.ResponseWriter, r *http.Request) {
		handleSeedPrompt(deps, w, r)
	})
	protected.HandleFunc("POST /v1/seed/generate", func(w http.ResponseWriter, r *http.Request) {
		handleSeedGenerate(deps, w, r)
	})
	protected.HandleFunc("GET /v1/settings", func(w http.ResponseWriter, r *http.Request) {
		handleGetSettings(deps, w, r)
	})
	protected.HandleFunc("PUT /v1/settings", func(w http.ResponseWriter, r *http.Request) {
		handlePutSettings(deps, w, r)
	})
	protected.HandleFunc("DELETE /v1/settings", func(w http.ResponseWriter, r *http.Request) {
		handleDeleteSettings(deps, w, r)
	})
	protected.HandleFunc("GET /v1/seeds", func(w http.ResponseWriter, r *http.Request) {
		handleListSeeds(deps, w, r)
	})
	protected.HandleFunc("GET /v1/seeds/{id}", func(w http.ResponseWriter, r *http.Request) {
		handleGetSeed(deps, w, r)
	})
	protected.HandleFunc("DELETE /v1/seeds/{id}", func(w http.ResponseWriter, r *http.Request) {
		handleDeleteSeed(deps, w, r)
	})

	// Without API keys the owner comes from X-Client-ID.
	protectedHandler := auth.ClientHeaderMiddleware(deps.Logger)(protected)
	if cfg.Auth.Required {
		if deps.AuthMiddleware == nil {
			if deps.Logger != nil {
				deps.Logger.Error("auth required but auth middleware missing")
			}
			protectedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
			})
		} else {
			protectedHandler = deps.AuthMiddleware(protected)
		}
	}
	mux.Handle("POST /v1/seed/prompt", protectedHandler)
	mux.Handle("POST /v1/seed/generate", protectedHandler)
	mux.Handle("GET /v1/settings", protectedHandler)
	mux.Handle("PUT /v1/settings", protectedHandler)
	mux.Handle("DELETE /v1/settings", protectedHandler)
	mux.Handle("GET /v1/seeds", protectedHandler)
	mux.Handle("GET /v1/seeds/{id}", protectedHandler)
	mux.Handle("DELETE /v1/seeds/{id}", protectedHandler)
	if deps.UI != nil {
		mux.Handle("GET /{path...}", deps.UI)
	}

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

// CheckHealth adapts a dependency with a HealthCheck method.
func CheckHealth(name string, checker HealthChecker) ReadinessCheck {
	if checker == nil {
		return nil
	}
	return func(ctx context.Context) error {
		if err := checker.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

// clientFromRequest returns the owner of settings and archived seeds that the
// auth or client header middleware resolved for this request.
func clientFromRequest(r *http.Request) (string, error) {
	if ownerID, ok := auth.OwnerFromContext(r.Context()); ok {
		return ownerID, nil
	}
	if identity, ok := auth.IdentityFromContext(r.Context()); ok && strings.TrimSpace(identity.ClientID) != "" {
		return identity.ClientID, nil
	}
	ownerID, err := auth.OwnerFromHeader(r)
	if err != nil {
		return "", fmt.Errorf("%w: %w", seedgen.ErrInvalidInput, err)
	}
	return ownerID, nil
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func decodeJSON(r *http.Request, target any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}

// classifyError maps a domain error to status, error code, and retryability.
func classifyError(err error) (int, string, bool) {
	switch {
	case errors.Is(err, seedgen.ErrInvalidInput):
		return http.StatusBadRequest, "INVALID_INPUT", false
	case errors.Is(err, seedgen.ErrSchemaFetchFailed):
		return http.StatusBadGateway, "SCHEMA_FETCH_FAILED", true
	case errors.Is(err, seedgen.ErrGenerationFailed):
		return http.StatusBadGateway, "GENERATION_FAILED", true
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden, "FORBIDDEN", false
	case errors.Is(err, settings.ErrNotFound), errors.Is(err, archive.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", false
	default:
		return http.StatusInternalServerError, "INTERNAL", true
	}
}

func writeDomainError(deps Dependencies, r *http.Request, w http.ResponseWriter, err error) {
	status, code, retryable := classifyError(err)
	message := err.Error()
	var extra map[string]any
	switch code {
	case "SCHEMA_FETCH_FAILED", "GENERATION_FAILED":
		message = seedgen.UserMessage(err)
	case "INVALID_INPUT":
		extra = map[string]any{"hint": seedgen.UserMessage(err)}
	case "INTERNAL":
		message = "internal error"
	}
	if status >= http.StatusInternalServerError && deps.Logger != nil {
		deps.Logger.ErrorContext(r.Context(), "request_failed",
			slog.String("trace_id", observability.TraceIDFromContext(r.Context())),
			slog.String("error_code", code),
			slog.String("error", err.Error()),
		)
	}
	writeError(r.Context(), w, status, code, message, retryable, extra)
}
