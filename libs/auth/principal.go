package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/garagebook/garagebook/libs/httpx"
)

// Principal is the authenticated caller.
type Principal struct {
	UserID     string
	BusinessID string
	Role       string
}

func (p Principal) IsOwnerOf(businessID string) bool {
	return p.Role == RoleOwner && p.BusinessID != "" && p.BusinessID == businessID
}

type ctxKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(Principal)
	return p, ok
}

// Authenticate parses an optional bearer token. A missing token passes through
// anonymously; an invalid one is rejected with 401.
func Authenticate(secret string) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" || secret == "" {
				next.ServeHTTP(w, r)
				return
			}
			claims, err := ParseHS256(raw, secret)
			if err != nil {
				httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
				return
			}
			ctx := WithPrincipal(r.Context(), Principal{
				UserID:     claims.Subject,
				BusinessID: claims.BusinessID,
				Role:       claims.Role,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Require rejects anonymous requests and, when roles are given, callers without one of them.
func Require(roles ...string) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
				return
			}
			if len(roles) > 0 && !hasRole(p.Role, roles) {
				httpx.WriteError(w, http.StatusForbidden, "forbidden", "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func hasRole(role string, allowed []string) bool {
	for _, a := range allowed {
		if a == role {
			return true
		}
	}
	return false
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}
