// ABOUTME: HTTP middleware for JWT authentication on the MCP endpoint
// ABOUTME: Extracts the bearer token, verifies it and adds the caller to context

package auth

import (
	"encoding/hex"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// BearerToken returns the bearer token of r, or "" if there is none.
func BearerToken(r *http.Request) string {
	token, _ := extractBearerToken(r.Header.Get("Authorization"))
	return token
}

// HashToken returns the hex BLAKE2b-256 digest of token. The empty token hashes to "".
func HashToken(token string) string {
	if token == "" {
		return ""
	}
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// HTTPAuthMiddleware rejects requests without a valid bearer token and adds
// the verified caller to the request context.
func HTTPAuthMiddleware(verifier TokenVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, errMsg := extractBearerToken(r.Header.Get("Authorization"))
			if errMsg != "" {
				logger.Warn("auth failed", "reason", errMsg, "remote_addr", r.RemoteAddr)
				unauthorized(w, errMsg)
				return
			}

			subject, err := verifier.Verify(token)
			if err != nil {
				logger.Warn("auth failed", "reason", "invalid token", "error", err, "remote_addr", r.RemoteAddr)
				unauthorized(w, "invalid token")
				return
			}

			authCtx := &AuthContext{Subject: subject, TokenHash: HashToken(token)}
			next.ServeHTTP(w, r.WithContext(WithAuth(r.Context(), authCtx)))
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="qbo-gateway"`)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
