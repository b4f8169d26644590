// Package auth provides the request-scoped authentication context.
// The caller's profile comes from the identity service; this package only
// carries it through the request.
package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

// =============================================================================
// Context Key
// =============================================================================

type contextKey string

const authContextKey contextKey = "auth"

// =============================================================================
// Types
// =============================================================================

// Profile is the caller profile returned by the identity service.
type Profile struct {
	ID         int    `json:"id"`
	Email      string `json:"email,omitempty"`
	FirstName  string `json:"first_name,omitempty"`
	LastName   string `json:"last_name,omitempty"`
	Role       string `json:"role,omitempty"`
	FacilityID *int   `json:"facility_id,omitempty"`

	// Raw is the undecoded response body, kept for handlers that need
	// attributes this struct does not name.
	Raw json.RawMessage `json:"-"`
}

// Context represents the authentication context for a request.
type Context struct {
	// Credential is the Authorization header value, forwarded verbatim.
	Credential string

	// Profile is set once the identity service accepted the credential.
	Profile *Profile

	// Authenticated indicates whether the identity service accepted the credential.
	Authenticated bool
}

// UserID returns the caller's id, or 0 when unauthenticated.
func (c Context) UserID() int {
	if !c.Authenticated || c.Profile == nil {
		return 0
	}
	return c.Profile.ID
}

// =============================================================================
// Header Constants
// =============================================================================

const (
	// HeaderAuthorization carries the opaque bearer credential.
	HeaderAuthorization = "Authorization"

	// HeaderRequestID correlates a request with the identity service call.
	HeaderRequestID = "X-Request-ID"
)

// =============================================================================
// Credential Extraction
// =============================================================================

// HeaderGetter is an interface for getting header values.
// This allows testing without requiring an http.Request.
type HeaderGetter interface {
	Get(key string) string
}

// ExtractCredential returns the Authorization header from the request.
func ExtractCredential(r *http.Request) string {
	return ExtractCredentialFromHeaders(r.Header)
}

// ExtractCredentialFromHeaders returns the Authorization value unchanged,
// or "" when it is missing or blank. The scheme is not interpreted.
func ExtractCredentialFromHeaders(headers HeaderGetter) string {
	v := headers.Get(HeaderAuthorization)
	if strings.TrimSpace(v) == "" {
		return ""
	}
	return v
}

// =============================================================================
// Context Storage
// =============================================================================

// WithContext stores the auth context in the request context.
func WithContext(ctx context.Context, authCtx Context) context.Context {
	return context.WithValue(ctx, authContextKey, authCtx)
}

// FromContext retrieves the auth context from the request context.
// If no auth context is found, returns an unauthenticated context.
func FromContext(ctx context.Context) Context {
	if authCtx, ok := ctx.Value(authContextKey).(Context); ok {
		return authCtx
	}
	return Context{Authenticated: false}
}
