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
	"github.com/quartzid/quartz/pkg/jwtx"
	"github.com/quartzid/quartz/pkg/slogx"
)

const (
	DefaultAccessTTL  = time.Hour
	DefaultIDTokenTTL = time.Hour
)

// TokenService redeems authorization codes and mints token sets: an opaque
// access token persisted by fingerprint, plus an ID token signed with the
// requesting client's own RSA key. There is no shared signing key; the
// Keyring is populated lazily from the tenant's encrypted key store.
type TokenService struct {
	Store      store.Store
	Keyring    *jwtx.Keyring
	Issuer     string
	AccessTTL  time.Duration
	IDTokenTTL time.Duration
}

// ExchangeAuthorizationCode implements the authorization_code grant.
//
// Redemption is a single conditional update in the store; under concurrent
// exchange of the same code exactly one call succeeds and every other
// fails with ErrInvalidGrant. Unknown codes, expired codes, replayed codes,
// and client or redirect mismatches all collapse to ErrInvalidGrant so the
// response does not leak which check failed.
func (s *TokenService) ExchangeAuthorizationCode(ctx context.Context, orgID, clientID, clientSecret, code, redirectURI string) (*domain.TokenSet, error) {
	l := slogx.FromContext(ctx)
	tenant := s.Store.Tenant(orgID)

	client, err := tenant.Clients().GetClientByID(ctx, clientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidClient
		}
		return nil, err
	}

	// Confidential clients must authenticate
	if client.SecretHash != "" {
		if clientSecret == "" || cryptox.VerifyPassword(clientSecret, client.SecretHash) != nil {
			l.Info("token exchange client authentication failed", slog.String("client_id", clientID))
			return nil, ErrInvalidClient
		}
	}

	code = strings.TrimSpace(code)
	redirectURI = strings.TrimSpace(redirectURI)
	if code == "" || redirectURI == "" {
		return nil, ErrInvalidGrant
	}

	now := time.Now()
	codeHash := cryptox.FingerprintToken(code)

	record, err := tenant.AuthorizationCodes().ConsumeAuthorizationCode(ctx, codeHash, client.ID, redirectURI, now)
	if isTransient(err) {
		// One retry on a contended ledger write. A second failure surfaces.
		record, err = tenant.AuthorizationCodes().ConsumeAuthorizationCode(ctx, codeHash, client.ID, redirectURI, now)
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrAlreadyConsumed) {
			l.Info("authorization code rejected", slog.String("client_id", clientID))
			return nil, ErrInvalidGrant
		}
		return nil, err
	}

	return s.MintTokens(ctx, orgID, client, record.Subject, record.Scopes)
}

// MintTokens issues a token set for a subject. The profile claims in the ID
// token are resolved per subject variant against its backing table; an
// unknown subject id means the principal vanished between code issuance and
// redemption and fails the grant.
func (s *TokenService) MintTokens(ctx context.Context, orgID string, client domain.Client, subject domain.Subject, scopes []string) (*domain.TokenSet, error) {
	now := time.Now()
	tenant := s.Store.Tenant(orgID)

	opaque, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return nil, err
	}

	access := domain.AccessToken{
		ID:        idx.New().String(),
		TokenHash: cryptox.FingerprintToken(opaque),
		ClientID:  client.ID,
		Subject:   subject,
		Scopes:    scopes,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.accessTTL()),
	}
	if err := tenant.AccessTokens().CreateAccessToken(ctx, access); err != nil {
		return nil, err
	}

	signer, err := s.signerFor(ctx, tenant, client.ID)
	if err != nil {
		return nil, err
	}

	claims := jwtx.NewIDTokenClaims(s.Issuer, subject.ID, client.ID, s.idTokenTTL(), now)
	claims.SubjectType = subject.Type.String()
	claims.Scopes = scopes
	if err := s.fillProfileClaims(ctx, orgID, subject, &claims); err != nil {
		return nil, err
	}

	idToken, err := signer.Sign(claims)
	if err != nil {
		return nil, err
	}

	return &domain.TokenSet{
		AccessToken: opaque,
		IDToken:     idToken,
		TokenType:   "Bearer",
		ExpiresIn:   s.accessTTL(),
		Scope:       strings.Join(scopes, " "),
	}, nil
}

// ValidateBearerToken resolves an opaque bearer token within the tenant.
// Expiry is checked against the wall clock on every call; sweeping expired
// rows is housekeeping's job, not validation's.
func (s *TokenService) ValidateBearerToken(ctx context.Context, orgID, raw string) (domain.AccessToken, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return domain.AccessToken{}, ErrUnauthorized
	}

	token, err := s.Store.Tenant(orgID).AccessTokens().
		GetAccessTokenByHash(ctx, cryptox.FingerprintToken(raw))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.AccessToken{}, ErrUnauthorized
		}
		return domain.AccessToken{}, err
	}

	if token.IsExpired(time.Now()) {
		return domain.AccessToken{}, ErrUnauthorized
	}
	return token, nil
}

// signerFor returns the client's signer, loading and decrypting the stored
// key on first use.
func (s *TokenService) signerFor(ctx context.Context, tenant store.TenantStore, clientID string) (jwtx.Signer, error) {
	signer, err := s.Keyring.SignerFor(clientID)
	if err == nil {
		return signer, nil
	}
	if !errors.Is(err, jwtx.ErrNoSigner) {
		return nil, err
	}

	key, err := tenant.SigningKeys().GetSigningKeyByClientID(ctx, clientID)
	if err != nil {
		return nil, err
	}

	pemKey, err := cryptox.DecryptPrivateKey(key.PrivateKeyEncrypted)
	if err != nil {
		return nil, err
	}

	loaded, err := jwtx.NewRS256Signer(clientID, pemKey)
	if err != nil {
		return nil, err
	}
	s.Keyring.Register(clientID, loaded)
	return loaded, nil
}

func (s *TokenService) fillProfileClaims(ctx context.Context, orgID string, subject domain.Subject, claims *jwtx.IDTokenClaims) error {
	switch subject.Type {
	case domain.SubjectB2C:
		user, err := s.Store.Tenant(orgID).B2CUsers().GetB2CUserByID(ctx, subject.ID)
		if err != nil {
			return mapSubjectLookup(err)
		}
		claims.Email = user.Email
		claims.Name = user.DisplayName
		return s.fillOrgClaim(ctx, orgID, claims)

	case domain.SubjectB2B:
		user, err := s.Store.Tenant(orgID).B2BUsers().GetB2BUserByID(ctx, subject.ID)
		if err != nil {
			return mapSubjectLookup(err)
		}
		claims.Username = user.Username
		claims.Name = user.DisplayName
		return s.fillOrgClaim(ctx, orgID, claims)

	case domain.SubjectAccount:
		account, err := s.Store.Accounts().GetAccountByID(ctx, subject.ID)
		if err != nil {
			return mapSubjectLookup(err)
		}
		claims.Email = account.Email
		claims.Name = account.DisplayName
		return nil

	default:
		return domain.ErrUnknownSubjectType
	}
}

func (s *TokenService) fillOrgClaim(ctx context.Context, orgID string, claims *jwtx.IDTokenClaims) error {
	org, err := s.Store.Organizations().GetOrganizationByID(ctx, orgID)
	if err != nil {
		return err
	}
	claims.Org = org.Name
	return nil
}

func (s *TokenService) accessTTL() time.Duration {
	if s.AccessTTL > 0 {
		return s.AccessTTL
	}
	return DefaultAccessTTL
}

func (s *TokenService) idTokenTTL() time.Duration {
	if s.IDTokenTTL > 0 {
		return s.IDTokenTTL
	}
	return DefaultIDTokenTTL
}

func mapSubjectLookup(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrInvalidGrant
	}
	return err
}

// isTransient reports whether err looks like a contended sqlite write worth
// one retry.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}
