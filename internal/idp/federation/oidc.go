package federation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// ProviderConfig describes one upstream OIDC provider. Endpoints come from
// the issuer's discovery document, never from static configuration.
type ProviderConfig struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

// OIDCAdapter implements Adapter over go-oidc discovery and x/oauth2 code
// exchange. Discovery runs once per provider on first use.
type OIDCAdapter struct {
	configs map[string]ProviderConfig

	mu        sync.Mutex
	providers map[string]*discoveredProvider
}

type discoveredProvider struct {
	oauth    oauth2.Config
	verifier *oidc.IDTokenVerifier
}

func NewOIDCAdapter(configs map[string]ProviderConfig) *OIDCAdapter {
	return &OIDCAdapter{
		configs:   configs,
		providers: make(map[string]*discoveredProvider),
	}
}

// Exchange redeems an upstream authorization code, verifies the returned ID
// token against the provider's keys, and extracts the upstream subject.
func (a *OIDCAdapter) Exchange(ctx context.Context, provider, code string) (Identity, error) {
	p, err := a.discover(ctx, provider)
	if err != nil {
		return Identity{}, err
	}

	token, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return Identity{}, fmt.Errorf("federation: code exchange with %s: %w", provider, err)
	}

	return a.identityFromToken(ctx, provider, p, token)
}

// Refresh trades a refresh token for fresh upstream tokens. Providers that
// rotate refresh tokens return the replacement in the identity.
func (a *OIDCAdapter) Refresh(ctx context.Context, provider, refreshToken string) (Identity, error) {
	p, err := a.discover(ctx, provider)
	if err != nil {
		return Identity{}, err
	}

	source := p.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		return Identity{}, fmt.Errorf("federation: refresh with %s: %w", provider, err)
	}

	identity, err := a.identityFromToken(ctx, provider, p, token)
	if err != nil {
		return Identity{}, err
	}
	if identity.RefreshToken == "" {
		identity.RefreshToken = refreshToken
	}
	return identity, nil
}

func (a *OIDCAdapter) identityFromToken(ctx context.Context, provider string, p *discoveredProvider, token *oauth2.Token) (Identity, error) {
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return Identity{}, fmt.Errorf("federation: %s returned no id_token", provider)
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return Identity{}, fmt.Errorf("federation: verify id_token from %s: %w", provider, err)
	}

	var claims struct {
		Email string `json:"email"`
	}
	// Email is optional; subject alone identifies the upstream principal.
	_ = idToken.Claims(&claims)

	expiresAt := token.Expiry
	if expiresAt.IsZero() {
		expiresAt = time.Now().Add(time.Hour)
	}

	return Identity{
		ExternalSubject: idToken.Subject,
		Email:           claims.Email,
		AccessToken:     token.AccessToken,
		RefreshToken:    token.RefreshToken,
		ExpiresAt:       expiresAt,
	}, nil
}

func (a *OIDCAdapter) discover(ctx context.Context, provider string) (*discoveredProvider, error) {
	cfg, ok := a.configs[provider]
	if !ok {
		return nil, ErrUnknownProvider
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if p, ok := a.providers[provider]; ok {
		return p, nil
	}

	discovered, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("federation: discover %s: %w", provider, err)
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "email", "profile"}
	}

	p := &discoveredProvider{
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     discovered.Endpoint(),
			Scopes:       scopes,
		},
		verifier: discovered.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
	}
	a.providers[provider] = p
	return p, nil
}

var _ Adapter = (*OIDCAdapter)(nil)

// ErrNoRefreshToken is returned when a refresh is requested but the upstream
// never issued a refresh token.
var ErrNoRefreshToken = errors.New("federation: no refresh token")
