// Package middleware provides HTTP middleware for the lab templates API.
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/lablink/labtemplates/internal/core/auth"
	"github.com/lablink/labtemplates/internal/shell/identity"
)

// =============================================================================
// Profile Resolver Interface
// =============================================================================

// ProfileResolver exchanges a credential for the caller profile.
// identity.Client implements this interface.
type ProfileResolver interface {
	Profile(ctx context.Context, credential string) (*auth.Profile, error)
}

// =============================================================================
// Auth Configuration
// =============================================================================

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	// Resolver validates every credential. Results are never cached.
	Resolver ProfileResolver

	// Logger for auth middleware logging.
	Logger *slog.Logger
}

// =============================================================================
// Auth Middleware
// =============================================================================

// AuthMiddleware admits a request only after the identity service accepted
// its Authorization header, and stores the caller profile in the request context.
type AuthMiddleware struct {
	config AuthConfig
}

// NewAuthMiddleware creates a new auth middleware with the given config.
func NewAuthMiddleware(cfg AuthConfig) *AuthMiddleware {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &AuthMiddleware{config: cfg}
}

const (
	msgNotAuthenticated   = "Not authenticated"
	msgInvalidCredentials = "Invalid authentication credentials"
	msgBadIdentityReply   = "Invalid response from identity service"
	msgIdentityDown       = "Identity service unavailable"
)

// Handler returns the middleware handler function.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		credential := auth.ExtractCredential(r)
		if credential == "" {
			writeJSONError(w, http.StatusUnauthorized, msgNotAuthenticated)
			return
		}

		profile, err := m.config.Resolver.Profile(r.Context(), credential)
		if err != nil {
			status, message := statusForIdentityError(err)
			if status >= http.StatusInternalServerError {
				m.config.Logger.Error("identity check failed",
					"path", r.URL.Path,
					"method", r.Method,
					"error", err,
				)
			} else {
				m.config.Logger.Warn("request rejected by identity service",
					"remote_addr", r.RemoteAddr,
					"path", r.URL.Path,
					"method", r.Method,
				)
			}
			writeJSONError(w, status, message)
			return
		}

		ctx := auth.WithContext(r.Context(), auth.Context{
			Credential:    credential,
			Profile:       profile,
			Authenticated: true,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// statusForIdentityError maps identity failures to HTTP responses.
func statusForIdentityError(err error) (int, string) {
	switch {
	case errors.Is(err, identity.ErrUnauthenticated):
		return http.StatusUnauthorized, msgInvalidCredentials
	case errors.Is(err, identity.ErrMalformedResponse):
		return http.StatusBadGateway, msgBadIdentityReply
	case errors.Is(err, identity.ErrUnavailable):
		return http.StatusServiceUnavailable, msgIdentityDown
	default:
		return http.StatusServiceUnavailable, msgIdentityDown
	}
}

// =============================================================================
// JSON Error Response
// =============================================================================

// ErrorResponse is the {message} body of every non-validation error, shared
// by the gate and the API handlers.
type ErrorResponse struct {
	Message string `json:"message"`
}

// writeJSONError writes a {message} error response.
func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Message: message})
}
