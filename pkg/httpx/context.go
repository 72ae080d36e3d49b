package httpx

import "context"

type ctxKey string

const (
	CtxKeyPrincipal ctxKey = "principal"
	CtxKeyScopes    ctxKey = "scopes"
)

// Principal is the authenticated caller attached to the request context by
// AuthnMiddleware after bearer token validation.
type Principal struct {
	SubjectType string
	SubjectID   string
	ClientID    string
	Scopes      []string
}

// PrincipalFromContext returns the authenticated principal, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(CtxKeyPrincipal).(Principal)
	return p, ok
}

func scopesFromCtx(ctx context.Context) []string {
	if v, ok := ctx.Value(CtxKeyScopes).([]string); ok {
		return v
	}
	return nil
}
