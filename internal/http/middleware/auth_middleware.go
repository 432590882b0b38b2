package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/sandeepkv93/credential-session-service/internal/http/response"
	"github.com/sandeepkv93/credential-session-service/internal/observability"
	"github.com/sandeepkv93/credential-session-service/internal/security"
)

type contextKey string

const (
	ClaimsContextKey contextKey = "claims"
)

type AccessTokenVerifier interface {
	Verify(raw string) (*security.Claims, error)
}

// AuthMiddleware accepts only "Authorization: Bearer <token>". Every
// rejection produces the same response; the reason is kept for metrics.
func AuthMiddleware(verifier AccessTokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				observability.RecordAccessTokenValidation(r.Context(), "missing", "none")
				unauthorized(w, r)
				return
			}
			claims, err := verifier.Verify(raw)
			if err != nil {
				reason := security.FailureReason(err)
				observability.RecordAccessTokenValidation(r.Context(), "invalid", reason)
				observability.Audit(r, "auth.access_token.rejected", "reason", reason)
				unauthorized(w, r)
				return
			}
			observability.RecordAccessTokenValidation(r.Context(), "valid", "none")
			ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func ClaimsFromContext(ctx context.Context) (*security.Claims, bool) {
	c, ok := ctx.Value(ClaimsContextKey).(*security.Claims)
	return c, ok && c != nil
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) < 7 || !strings.EqualFold(auth[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(auth[7:])
}

func unauthorized(w http.ResponseWriter, r *http.Request) {
	response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "unauthenticated", nil)
}
