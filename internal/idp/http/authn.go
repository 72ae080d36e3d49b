package http

import (
	"context"

	"github.com/quartzid/quartz/internal/idp/service"
	"github.com/quartzid/quartz/pkg/httpx"
)

// bearerValidator bridges opaque-token validation into httpx's authn
// middleware. Tokens only validate inside the request's resolved tenant, so
// a token minted under another organization is indistinguishable from an
// unknown one.
type bearerValidator struct {
	tokens *service.TokenService
}

func (v bearerValidator) ValidateBearerToken(ctx context.Context, raw string) (httpx.Principal, error) {
	orgID, ok := OrgIDFromContext(ctx)
	if !ok {
		return httpx.Principal{}, service.ErrTenantUnresolved
	}

	token, err := v.tokens.ValidateBearerToken(ctx, orgID, raw)
	if err != nil {
		return httpx.Principal{}, err
	}

	return httpx.Principal{
		SubjectType: token.Subject.Type.String(),
		SubjectID:   token.Subject.ID,
		ClientID:    token.ClientID,
		Scopes:      token.Scopes,
	}, nil
}
