package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/supaseed/supaseed/internal/observability"
	"github.com/supaseed/supaseed/internal/storage"
)

// AnonymousOwner owns settings and seeds when no client is identified.
const AnonymousOwner = "anonymous"

// ClientIDHeader names the owner when API keys are not in use.
const ClientIDHeader = "X-Client-ID"

var ErrInvalidClientID = errors.New("auth: invalid client id")

type contextKey string

const (
	identityKey contextKey = "auth_identity"
	ownerKey    contextKey = "auth_owner"
)

func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey).(Identity)
	return identity, ok
}

// WithOwner records the id that settings and archived seeds are stored under.
func WithOwner(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ownerKey, ownerID)
}

func OwnerFromContext(ctx context.Context) (string, bool) {
	ownerID, ok := ctx.Value(ownerKey).(string)
	return ownerID, ok && ownerID != ""
}

// OwnerFromHeader reads the X-Client-ID header. An absent header resolves to
// AnonymousOwner; a value that cannot be used as a storage path segment is
// rejected.
func OwnerFromHeader(r *http.Request) (string, error) {
	clientID := strings.TrimSpace(r.Header.Get(ClientIDHeader))
	if clientID == "" {
		return AnonymousOwner, nil
	}
	if err := storage.ValidatePathComponent(clientID, "client id"); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidClientID, err)
	}
	return clientID, nil
}

// Middleware authenticates the API key and scopes the request to the key's
// client. A caller-supplied X-Client-ID is ignored once a key is validated.
func Middleware(logger *slog.Logger, validator APIKeyValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := extractAPIKey(r)
			if apiKey == "" {
				writeAuthError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing API key")
				return
			}

			identity, ok := validator.Validate(r.Context(), apiKey)
			if !ok {
				if logger != nil {
					logger.WarnContext(r.Context(), "authentication_failed",
						slog.String("trace_id", observability.TraceIDFromContext(r.Context())),
						slog.String("path", r.URL.Path),
					)
				}
				writeAuthError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid API key")
				return
			}
			if header := strings.TrimSpace(r.Header.Get(ClientIDHeader)); header != "" && header != identity.ClientID && logger != nil {
				logger.DebugContext(r.Context(), "client_header_ignored",
					slog.String("trace_id", observability.TraceIDFromContext(r.Context())),
					slog.String("client_id", identity.ClientID),
				)
			}

			ctx := WithIdentity(r.Context(), identity)
			ctx = WithOwner(ctx, identity.ClientID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientHeaderMiddleware scopes unauthenticated requests to the owner named
// by X-Client-ID.
func ClientHeaderMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ownerID, err := OwnerFromHeader(r)
			if err != nil {
				if logger != nil {
					logger.WarnContext(r.Context(), "client_id_rejected",
						slog.String("trace_id", observability.TraceIDFromContext(r.Context())),
						slog.String("path", r.URL.Path),
					)
				}
				writeAuthError(w, r, http.StatusBadRequest, "INVALID_INPUT", err.Error())
				return
			}
			next.ServeHTTP(w, r.WithContext(WithOwner(r.Context(), ownerID)))
		})
	}
}

func extractAPIKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key
	}
	authorization := strings.TrimSpace(r.Header.Get("Authorization"))
	if authorization == "" {
		return ""
	}
	const bearerPrefix = "Bearer "
	if strings.HasPrefix(authorization, bearerPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(authorization, bearerPrefix))
	}
	return ""
}

func writeAuthError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  false,
		"trace_id":   observability.TraceIDFromContext(r.Context()),
	})
}
