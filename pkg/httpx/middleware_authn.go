package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/quartzid/quartz/pkg/slogx"
)

// TokenValidator resolves a raw opaque bearer token to its principal.
// Expired, revoked, and unknown tokens all fail with an error.
type TokenValidator interface {
	ValidateBearerToken(ctx context.Context, raw string) (Principal, error)
}

func AuthnMiddleware(v TokenValidator) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			authz := r.Header.Get("Authorization")
			if authz == "" || !strings.HasPrefix(authz, "Bearer ") {
				writeBearerError(w, "missing bearer token")
				return
			}
			raw := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer"))

			principal, err := v.ValidateBearerToken(ctx, raw)
			if err != nil {
				writeBearerError(w, "token validation failed")
				log.Warn("bearer token rejected", "err", err)
				return
			}

			// Inject into context for downstream handlers.
			ctx = contextWithPrincipal(ctx, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func contextWithPrincipal(ctx context.Context, p Principal) context.Context {
	ctx = context.WithValue(ctx, CtxKeyPrincipal, p)
	ctx = context.WithValue(ctx, CtxKeyScopes, p.Scopes)
	return ctx
}

// RFC 6750-compliant error response for bearer auth.
func writeBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	WriteJSON(w, http.StatusUnauthorized, map[string]string{
		"error":             "invalid_token",
		"error_description": desc,
	})
}
