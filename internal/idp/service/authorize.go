package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/quartzid/quartz/internal/idp/domain"
	"github.com/quartzid/quartz/internal/idp/store"
	"github.com/quartzid/quartz/pkg/cryptox"
	"github.com/quartzid/quartz/pkg/idx"
	"github.com/quartzid/quartz/pkg/slogx"
	"github.com/pquerna/otp/totp"
)

const DefaultCodeTTL = 5 * time.Minute

// AuthorizeService authenticates a subject and issues single-use
// authorization codes. All entry points are tenant-scoped: orgID comes from
// the request's resolved tenant context, never from form input.
type AuthorizeService struct {
	Store   store.Store
	CodeTTL time.Duration
}

type AuthorizeRequest struct {
	ClientID    string
	RedirectURI string
	Scopes      []string
	State       string

	SubjectType domain.SubjectType
	Identifier  string // email for b2c/account, username for b2b
	Password    string
	OTPCode     string
}

type AuthorizeResult struct {
	Code        string
	State       string
	RedirectURI string
}

// AuthorizePassword runs the password (plus optional TOTP) authentication
// step and issues a code for the authenticated subject.
//
// Returns:
//   - (nil, ErrInvalidClient) when client_id is unknown in this tenant
//   - (nil, ErrInvalidRequest) when the redirect URI is not registered
//   - (nil, ErrInvalidScope) when no requested scope is grantable
//   - (nil, ErrInvalidCredentials) when the identifier/password pair fails
//   - (nil, ErrOTPRequired / ErrInvalidOTP) for TOTP-enabled accounts
func (s *AuthorizeService) AuthorizePassword(ctx context.Context, orgID string, req AuthorizeRequest) (*AuthorizeResult, error) {
	l := slogx.FromContext(ctx)

	subject, err := s.authenticate(ctx, orgID, req)
	if err != nil {
		l.Info("password authorization failed",
			slog.String("client_id", req.ClientID),
			slog.String("subject_type", req.SubjectType.String()))
		return nil, err
	}

	return s.IssueCode(ctx, orgID, subject, req)
}

// IssueCode mints a code for an already-authenticated subject. Passkey login
// finish and the federation callback call this directly.
func (s *AuthorizeService) IssueCode(ctx context.Context, orgID string, subject domain.Subject, req AuthorizeRequest) (*AuthorizeResult, error) {
	if subject.IsZero() {
		return nil, ErrInvalidRequest
	}

	tenant := s.Store.Tenant(orgID)

	client, err := tenant.Clients().GetClientByID(ctx, req.ClientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidClient
		}
		return nil, err
	}

	redirectURI := strings.TrimSpace(req.RedirectURI)
	if !client.AllowsRedirectURI(redirectURI) {
		return nil, ErrInvalidRequest
	}

	scopes := intersectScopes(req.Scopes, client.Scopes)
	if len(scopes) == 0 {
		return nil, ErrInvalidScope
	}

	opaque, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	code := domain.AuthorizationCode{
		ID:          idx.New().String(),
		Subject:     subject,
		ClientID:    client.ID,
		CodeHash:    cryptox.FingerprintToken(opaque),
		RedirectURI: redirectURI,
		Scopes:      scopes,
		State:       req.State,
		ExpiresAt:   now.Add(s.codeTTL()),
		CreatedAt:   now,
	}
	if err := tenant.AuthorizationCodes().CreateAuthorizationCode(ctx, code); err != nil {
		return nil, err
	}

	return &AuthorizeResult{
		Code:        opaque,
		State:       req.State,
		RedirectURI: redirectURI,
	}, nil
}

// authenticate resolves the credentials to a subject. The three variants
// each check their own backing table inside the tenant boundary; platform
// accounts sit above it.
func (s *AuthorizeService) authenticate(ctx context.Context, orgID string, req AuthorizeRequest) (domain.Subject, error) {
	identifier := strings.TrimSpace(req.Identifier)
	if identifier == "" || req.Password == "" {
		return domain.Subject{}, ErrInvalidCredentials
	}

	switch req.SubjectType {
	case domain.SubjectB2C:
		user, err := s.Store.Tenant(orgID).B2CUsers().GetB2CUserByEmail(ctx, identifier)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.Subject{}, ErrInvalidCredentials
			}
			return domain.Subject{}, err
		}
		// Federated-only users have no password hash and cannot log in
		// with one.
		if user.PasswordHash == "" || cryptox.VerifyPassword(req.Password, user.PasswordHash) != nil {
			return domain.Subject{}, ErrInvalidCredentials
		}
		return domain.Subject{Type: domain.SubjectB2C, ID: user.ID}, nil

	case domain.SubjectB2B:
		user, err := s.Store.Tenant(orgID).B2BUsers().GetB2BUserByUsername(ctx, identifier)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.Subject{}, ErrInvalidCredentials
			}
			return domain.Subject{}, err
		}
		if user.PasswordHash == "" || cryptox.VerifyPassword(req.Password, user.PasswordHash) != nil {
			return domain.Subject{}, ErrInvalidCredentials
		}
		return domain.Subject{Type: domain.SubjectB2B, ID: user.ID}, nil

	case domain.SubjectAccount:
		account, err := s.Store.Accounts().GetAccountByEmail(ctx, identifier)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.Subject{}, ErrInvalidCredentials
			}
			return domain.Subject{}, err
		}
		if cryptox.VerifyPassword(req.Password, account.PasswordHash) != nil {
			return domain.Subject{}, ErrInvalidCredentials
		}
		if account.TOTPEnabled != nil {
			if req.OTPCode == "" {
				return domain.Subject{}, ErrOTPRequired
			}
			if account.TOTPSecret == nil || !totp.Validate(req.OTPCode, *account.TOTPSecret) {
				return domain.Subject{}, ErrInvalidOTP
			}
		}
		return domain.Subject{Type: domain.SubjectAccount, ID: account.ID}, nil

	default:
		return domain.Subject{}, ErrInvalidRequest
	}
}

func (s *AuthorizeService) codeTTL() time.Duration {
	if s.CodeTTL > 0 {
		return s.CodeTTL
	}
	return DefaultCodeTTL
}

// intersectScopes returns the requested scopes the client may grant, without
// duplicates and in request order. An empty request grants nothing.
func intersectScopes(requested, allowed []string) []string {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, s := range allowed {
		allowedSet[s] = struct{}{}
	}

	var out []string
	seen := make(map[string]struct{}, len(requested))
	for _, s := range requested {
		if _, ok := allowedSet[s]; !ok {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
