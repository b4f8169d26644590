// Package identity calls the external identity service that authenticates
// staff credentials and returns the caller profile.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/lablink/labtemplates/internal/core/auth"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrUnauthenticated is returned when the identity service rejects the credential.
	ErrUnauthenticated = errors.New("credential rejected by identity service")

	// ErrUnavailable is returned when the identity service cannot be reached.
	ErrUnavailable = errors.New("identity service unavailable")

	// ErrMalformedResponse is returned when the profile body is not a JSON object.
	ErrMalformedResponse = errors.New("identity service returned a malformed profile")
)

// ProfilePath is the identity endpoint that resolves a credential.
const ProfilePath = "/staff/profile"

// =============================================================================
// Client
// =============================================================================

// Config holds configuration for the identity client.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// DefaultConfig returns default identity client configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:8001",
		Timeout: 10 * time.Second,
	}
}

// Client resolves credentials against the identity service. Every call goes
// to the service; nothing is cached and nothing is retried.
type Client struct {
	http   *resty.Client
	logger *slog.Logger
}

// NewClient creates a new identity client. Zero fields of cfg take their
// DefaultConfig values.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	defaults := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaults.Timeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")

	return &Client{
		http:   httpClient,
		logger: logger.With("component", "identity"),
	}
}

// Profile forwards credential unchanged to the identity service and decodes
// the caller profile from a successful response.
func (c *Client) Profile(ctx context.Context, credential string) (*auth.Profile, error) {
	requestID := middleware.GetReqID(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader(auth.HeaderAuthorization, credential).
		SetHeader(auth.HeaderRequestID, requestID).
		Get(ProfilePath)
	if err != nil {
		c.logger.Warn("identity service call failed", "request_id", requestID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if !resp.IsSuccess() {
		c.logger.Info("credential rejected", "request_id", requestID, "status", resp.StatusCode())
		return nil, fmt.Errorf("%w: status %d", ErrUnauthenticated, resp.StatusCode())
	}

	profile, err := decodeProfile(resp.Body())
	if err != nil {
		c.logger.Warn("malformed profile response", "request_id", requestID, "error", err)
		return nil, err
	}

	c.logger.Debug("credential accepted", "request_id", requestID, "user_id", profile.ID)
	return profile, nil
}

// decodeProfile requires a JSON object and keeps the raw body next to the
// known attributes. Attributes are read best effort: a value of an unexpected
// type is left at its zero value and never rejects the caller.
func decodeProfile(body []byte) (*auth.Profile, error) {
	var object map[string]json.RawMessage
	if err := json.Unmarshal(body, &object); err != nil || object == nil {
		return nil, fmt.Errorf("%w: body is not a JSON object", ErrMalformedResponse)
	}

	profile := &auth.Profile{
		Email:     stringAttr(object, "email"),
		FirstName: stringAttr(object, "first_name"),
		LastName:  stringAttr(object, "last_name"),
		Role:      stringAttr(object, "role"),
		Raw:       append(json.RawMessage(nil), body...),
	}
	if id, ok := intAttr(object, "id"); ok {
		profile.ID = id
	}
	if facilityID, ok := intAttr(object, "facility_id"); ok {
		profile.FacilityID = &facilityID
	}

	return profile, nil
}

// intAttr reads an integer given either as a JSON number or as a numeric
// string such as "1".
func intAttr(object map[string]json.RawMessage, key string) (int, bool) {
	raw, ok := object[key]
	if !ok {
		return 0, false
	}

	var number json.Number
	if err := json.Unmarshal(raw, &number); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
		number = json.Number(strings.TrimSpace(s))
	}

	n, err := strconv.Atoi(number.String())
	if err != nil {
		return 0, false
	}
	return n, true
}

func stringAttr(object map[string]json.RawMessage, key string) string {
	var s string
	if raw, ok := object[key]; ok {
		_ = json.Unmarshal(raw, &s)
	}
	return s
}
