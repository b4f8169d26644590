package auth

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

// mapHeaders implements HeaderGetter over a plain map.
type mapHeaders map[string]string

func (m mapHeaders) Get(key string) string {
	return m[key]
}

// =============================================================================
// Credential Extraction Tests
// =============================================================================

func TestExtractCredentialFromHeaders_Missing(t *testing.T) {
	assert.Empty(t, ExtractCredentialFromHeaders(mapHeaders{}))
}

func TestExtractCredentialFromHeaders_Blank(t *testing.T) {
	headers := mapHeaders{HeaderAuthorization: "   "}
	assert.Empty(t, ExtractCredentialFromHeaders(headers))
}

func TestExtractCredentialFromHeaders_Verbatim(t *testing.T) {
	tests := []string{
		"Bearer abc.def.ghi",
		"bearer lower-case-scheme",
		"opaque-token-without-scheme",
	}

	for _, v := range tests {
		t.Run(v, func(t *testing.T) {
			headers := mapHeaders{HeaderAuthorization: v}
			assert.Equal(t, v, ExtractCredentialFromHeaders(headers))
		})
	}
}

func TestExtractCredential_FromRequest(t *testing.T) {
	req := httptest.NewRequest("GET", "/verify-token", nil)
	req.Header.Set("Authorization", "Bearer token-123")

	assert.Equal(t, "Bearer token-123", ExtractCredential(req))
}

// =============================================================================
// Context Storage Tests
// =============================================================================

func TestWithContext_RoundTrip(t *testing.T) {
	authCtx := Context{
		Credential:    "Bearer token-123",
		Profile:       &Profile{ID: 7, Email: "lab@example.org"},
		Authenticated: true,
	}

	ctx := WithContext(context.Background(), authCtx)
	got := FromContext(ctx)

	assert.True(t, got.Authenticated)
	assert.Equal(t, 7, got.UserID())
	assert.Equal(t, "lab@example.org", got.Profile.Email)
}

func TestFromContext_Missing(t *testing.T) {
	got := FromContext(context.Background())

	assert.False(t, got.Authenticated)
	assert.Nil(t, got.Profile)
	assert.Equal(t, 0, got.UserID())
}

func TestContext_UserIDRequiresAuthentication(t *testing.T) {
	c := Context{Profile: &Profile{ID: 9}}
	assert.Equal(t, 0, c.UserID())
}
