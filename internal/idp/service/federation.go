package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/quartzid/quartz/internal/idp/domain"
	"github.com/quartzid/quartz/internal/idp/federation"
	"github.com/quartzid/quartz/internal/idp/store"
	"github.com/quartzid/quartz/pkg/idx"
	"github.com/quartzid/quartz/pkg/slogx"
)

// FederationService completes upstream OIDC logins for B2C users. The
// upstream identity is pinned to a local subject through a per-provider
// mapping; users arriving for the first time are provisioned just in time
// with no local password.
type FederationService struct {
	Store     store.Store
	Adapter   federation.Adapter
	Authorize *AuthorizeService
}

type FederationCallbackRequest struct {
	Provider    string
	Code        string
	ClientID    string
	RedirectURI string
	Scopes      []string
	State       string
}

// Callback exchanges the upstream code, resolves or provisions the local
// user, caches the upstream tokens, and issues a local authorization code.
func (s *FederationService) Callback(ctx context.Context, orgID string, req FederationCallbackRequest) (*AuthorizeResult, error) {
	l := slogx.FromContext(ctx)

	if strings.TrimSpace(req.Code) == "" || strings.TrimSpace(req.Provider) == "" {
		return nil, ErrInvalidRequest
	}

	identity, err := s.Adapter.Exchange(ctx, req.Provider, req.Code)
	if err != nil {
		if errors.Is(err, federation.ErrUnknownProvider) {
			return nil, ErrInvalidRequest
		}
		l.Info("upstream exchange failed", slog.String("provider", req.Provider), slog.Any("err", err))
		return nil, ErrInvalidGrant
	}

	userID, err := s.resolveUser(ctx, orgID, req.Provider, identity)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	err = s.Store.Tenant(orgID).ExternalIdp().UpsertToken(ctx, domain.ExternalIdpToken{
		UserID:       userID,
		Provider:     req.Provider,
		AccessToken:  identity.AccessToken,
		RefreshToken: identity.RefreshToken,
		ExpiresAt:    identity.ExpiresAt,
		UpdatedAt:    now,
	})
	if err != nil {
		return nil, err
	}

	subject := domain.Subject{Type: domain.SubjectB2C, ID: userID}
	return s.Authorize.IssueCode(ctx, orgID, subject, AuthorizeRequest{
		ClientID:    req.ClientID,
		RedirectURI: req.RedirectURI,
		Scopes:      req.Scopes,
		State:       req.State,
	})
}

// UpstreamToken returns the cached upstream tokens for a linked user,
// refreshing them through the adapter when past expiry.
func (s *FederationService) UpstreamToken(ctx context.Context, orgID, userID, provider string) (domain.ExternalIdpToken, error) {
	repo := s.Store.Tenant(orgID).ExternalIdp()

	token, err := repo.GetToken(ctx, userID, provider)
	if err != nil {
		return domain.ExternalIdpToken{}, err
	}

	now := time.Now()
	if now.Before(token.ExpiresAt) {
		return token, nil
	}

	if token.RefreshToken == "" {
		return domain.ExternalIdpToken{}, federation.ErrNoRefreshToken
	}

	identity, err := s.Adapter.Refresh(ctx, provider, token.RefreshToken)
	if err != nil {
		return domain.ExternalIdpToken{}, err
	}

	refreshed := domain.ExternalIdpToken{
		UserID:       userID,
		Provider:     provider,
		AccessToken:  identity.AccessToken,
		RefreshToken: identity.RefreshToken,
		ExpiresAt:    identity.ExpiresAt,
		UpdatedAt:    now,
	}
	if err := repo.UpsertToken(ctx, refreshed); err != nil {
		return domain.ExternalIdpToken{}, err
	}
	return refreshed, nil
}

// resolveUser maps the upstream subject to a local B2C user, creating the
// user and the mapping on first contact.
func (s *FederationService) resolveUser(ctx context.Context, orgID, provider string, identity federation.Identity) (string, error) {
	tenant := s.Store.Tenant(orgID)

	mapping, err := tenant.ExternalIdp().GetMappingByExternalSubject(ctx, provider, identity.ExternalSubject)
	if err == nil {
		return mapping.UserID, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return "", err
	}

	// First contact. An upstream account with the same email as a local
	// user links to it; otherwise provision a passwordless user.
	now := time.Now()
	userID := ""
	if identity.Email != "" {
		existing, err := tenant.B2CUsers().GetB2CUserByEmail(ctx, identity.Email)
		switch {
		case err == nil:
			userID = existing.ID
		case !errors.Is(err, store.ErrNotFound):
			return "", err
		}
	}

	if userID == "" {
		user := domain.B2CUser{
			ID:        idx.New().String(),
			OrgID:     orgID,
			Email:     identity.Email,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if user.Email == "" {
			// No email claim; key the user off the upstream subject so the
			// unique constraint still holds.
			user.Email = provider + ":" + identity.ExternalSubject
		}
		if err := tenant.B2CUsers().CreateB2CUser(ctx, user); err != nil {
			return "", err
		}
		userID = user.ID
	}

	err = tenant.ExternalIdp().UpsertMapping(ctx, domain.ExternalIdpMapping{
		ID:              idx.New().String(),
		UserID:          userID,
		Provider:        provider,
		ExternalSubject: identity.ExternalSubject,
		CreatedAt:       now,
	})
	if err != nil {
		return "", err
	}
	return userID, nil
}
