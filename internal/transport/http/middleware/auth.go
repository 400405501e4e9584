package middleware

import (
	"context"
	"net/http"

	"github.com/go-otp-link/internal/infrastructure/session"
)

type contextKey string

const ClaimsKey contextKey = "claims"

// Auth returns middleware that validates the session cookie and injects its
// claims into the request context.
func Auth(sessions *session.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := sessions.Current(r)
			if claims == nil {
				writeJSONError(w, http.StatusUnauthorized, "no valid session")
				return
			}
			ctx := context.WithValue(r.Context(), ClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromContext extracts session claims from the request context.
func ClaimsFromContext(ctx context.Context) (*session.Claims, bool) {
	c, ok := ctx.Value(ClaimsKey).(*session.Claims)
	return c, ok
}
