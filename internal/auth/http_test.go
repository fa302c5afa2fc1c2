// ABOUTME: Tests for the bearer-token HTTP middleware and token hashing
// ABOUTME: Uses httptest to drive the middleware end to end

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func protected(t *testing.T, got **AuthContext) http.Handler {
	t.Helper()
	verifier := NewJWTVerifier(testSecret)
	return HTTPAuthMiddleware(verifier, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*got = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))
}

func TestHTTPAuthMiddleware_ValidToken(t *testing.T) {
	var got *AuthContext
	h := protected(t, &got)

	token, err := NewJWTVerifier(testSecret).Generate("ops-laptop", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, got)
	assert.Equal(t, "ops-laptop", got.Subject)
	assert.Equal(t, HashToken(token), got.TokenHash)
	assert.NotContains(t, got.TokenHash, token)
}

func TestHTTPAuthMiddleware_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		header string
		reason string
	}{
		{"missing header", "", "missing authorization header"},
		{"basic auth", "Basic dXNlcjpwYXNz", "invalid authorization header format"},
		{"empty bearer", "Bearer ", "empty token"},
		{"bad token", "Bearer nope", "invalid token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got *AuthContext
			h := protected(t, &got)

			req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.reason)
			assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
			assert.Nil(t, got)
		})
	}
}

func TestHashToken(t *testing.T) {
	assert.Equal(t, "", HashToken(""))
	a := HashToken("token-a")
	assert.Len(t, a, 64)
	assert.Equal(t, a, HashToken("token-a"))
	assert.NotEqual(t, a, HashToken("token-b"))
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "", BearerToken(req))
	req.Header.Set("Authorization", "Bearer abc")
	assert.Equal(t, "abc", BearerToken(req))
}

func TestFromContext_Missing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Nil(t, FromContext(req.Context()))
}
