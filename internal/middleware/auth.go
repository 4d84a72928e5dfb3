package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/vastulab/vastu-backend/internal/domain/users"
)

type contextKey string

const principalKey contextKey = "principal"

// Resolver maps an opaque bearer token to the acting principal. A nil
// principal with nil error means the token is unknown or the account is
// inactive.
type Resolver interface {
	Resolve(ctx context.Context, token string) (*users.Principal, error)
}

// BearerAuth resolves the Authorization header into a principal. Requests
// without a credential pass through unauthenticated; public reads stay open
// and ownership checks happen in the handlers. A credential that does not
// resolve is rejected outright.
func BearerAuth(resolver Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}

			auth := r.Header.Get("Authorization")
			if auth == "" {
				next.ServeHTTP(w, r)
				return
			}
			token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
			if token == "" {
				unauthorized(w, "invalid Authorization header format")
				return
			}

			p, err := resolver.Resolve(r.Context(), token)
			if err != nil {
				http.Error(w, "identity lookup failed", http.StatusServiceUnavailable)
				return
			}
			if p == nil {
				unauthorized(w, "invalid or inactive credential")
				return
			}

			ctx := context.WithValue(r.Context(), principalKey, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PrincipalFromContext returns the resolved principal, nil when the request
// is unauthenticated.
func PrincipalFromContext(ctx context.Context) *users.Principal {
	p, _ := ctx.Value(principalKey).(*users.Principal)
	return p
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"kind":    "unauthorized",
		"message": msg,
	})
}
