// Package middleware carries the HTTP middleware shared by the API routes.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hubview/hubview/internal/gateway"
)

type contextKey string

// TokenKey carries the session credential through the request context.
const TokenKey contextKey = "token"

// RequireSession rejects requests without a session credential with a 401
// before any cache or upstream work happens. Presence is all it checks;
// validity is decided by the upstream when the credential is actually used.
func RequireSession(gate *gateway.Gate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := gate.RequireSession(r)
			if !ok {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"code":    "unauthenticated",
					"message": "authentication required",
				})
				return
			}
			ctx := context.WithValue(r.Context(), TokenKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TokenFrom returns the credential placed in ctx by RequireSession.
func TokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(TokenKey).(string)
	return token
}
