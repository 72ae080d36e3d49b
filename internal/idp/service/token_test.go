package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/quartzid/quartz/internal/idp/domain"
	"github.com/quartzid/quartz/internal/idp/store/drivers/sqlite"
	"github.com/quartzid/quartz/pkg/cryptox"
	"github.com/quartzid/quartz/pkg/idx"
	"github.com/quartzid/quartz/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store  *sqlite.Store
	org    domain.Organization
	client domain.Client
	user   domain.B2BUser
	tokens *TokenService
	auth   *AuthorizeService
	pubPEM []byte
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	now := time.Now()
	org := domain.Organization{ID: idx.New().String(), Name: "acme", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, st.Organizations().CreateOrganization(ctx, org))

	client := domain.Client{
		ID:           idx.New().String(),
		OrgID:        org.ID,
		Name:         "web-app",
		RedirectURIs: []string{"https://app.example/callback"},
		AllowedRPIDs: []string{"app.example"},
		Scopes:       []string{"openid", "profile"},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, st.Tenant(org.ID).Clients().CreateClient(ctx, client))

	pemKey, err := cryptox.GenerateRSAKey(2048)
	require.NoError(t, err)
	encrypted, err := cryptox.EncryptPrivateKey(pemKey)
	require.NoError(t, err)
	require.NoError(t, st.Tenant(org.ID).SigningKeys().CreateSigningKey(ctx, domain.SigningKey{
		ClientID:            client.ID,
		PrivateKeyEncrypted: encrypted,
		CreatedAt:           now,
	}))

	passHash, err := cryptox.HashPassword("correct horse")
	require.NoError(t, err)
	user := domain.B2BUser{
		ID:           idx.New().String(),
		OrgID:        org.ID,
		Username:     "alice",
		DisplayName:  "Alice",
		PasswordHash: passHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, st.Tenant(org.ID).B2BUsers().CreateB2BUser(ctx, user))

	return &fixture{
		store:  st,
		org:    org,
		client: client,
		user:   user,
		pubPEM: pemKey,
		tokens: &TokenService{
			Store:   st,
			Keyring: jwtx.NewKeyring(),
			Issuer:  "https://idp.example",
		},
		auth: &AuthorizeService{Store: st},
	}
}

func (f *fixture) issueCode(t *testing.T) string {
	t.Helper()

	result, err := f.auth.IssueCode(context.Background(), f.org.ID,
		domain.Subject{Type: domain.SubjectB2B, ID: f.user.ID},
		AuthorizeRequest{
			ClientID:    f.client.ID,
			RedirectURI: "https://app.example/callback",
			Scopes:      []string{"openid", "profile"},
			State:       "xyz",
		})
	require.NoError(t, err)
	require.Equal(t, "xyz", result.State)
	return result.Code
}

func TestExchangeAuthorizationCode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	code := f.issueCode(t)

	set, err := f.tokens.ExchangeAuthorizationCode(ctx, f.org.ID, f.client.ID, "", code, "https://app.example/callback")
	require.NoError(t, err)
	require.NotEmpty(t, set.AccessToken)
	require.Equal(t, "Bearer", set.TokenType)
	require.Equal(t, "openid profile", set.Scope)

	signer, err := f.tokens.Keyring.SignerFor(f.client.ID)
	require.NoError(t, err)
	claims, err := jwtx.ParseIDToken(set.IDToken, signer.Public())
	require.NoError(t, err)
	require.Equal(t, f.user.ID, claims.Subject)
	require.Equal(t, []string{f.client.ID}, []string(claims.Audience))
	require.Equal(t, "b2b", claims.SubjectType)
	require.Equal(t, "alice", claims.Username)
	require.Equal(t, "acme", claims.Org)

	t.Run("replay fails with invalid_grant", func(t *testing.T) {
		_, err := f.tokens.ExchangeAuthorizationCode(ctx, f.org.ID, f.client.ID, "", code, "https://app.example/callback")
		require.ErrorIs(t, err, ErrInvalidGrant)
	})

	t.Run("access token validates within the tenant", func(t *testing.T) {
		token, err := f.tokens.ValidateBearerToken(ctx, f.org.ID, set.AccessToken)
		require.NoError(t, err)
		require.Equal(t, domain.SubjectB2B, token.Subject.Type)
		require.Equal(t, f.user.ID, token.Subject.ID)
	})

	t.Run("access token is invisible from another tenant", func(t *testing.T) {
		other := domain.Organization{ID: idx.New().String(), Name: "globex", CreatedAt: time.Now(), UpdatedAt: time.Now()}
		require.NoError(t, f.store.Organizations().CreateOrganization(ctx, other))

		_, err := f.tokens.ValidateBearerToken(ctx, other.ID, set.AccessToken)
		require.ErrorIs(t, err, ErrUnauthorized)
	})
}

func TestExchangeAuthorizationCodeRejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	t.Run("unknown code", func(t *testing.T) {
		_, err := f.tokens.ExchangeAuthorizationCode(ctx, f.org.ID, f.client.ID, "", "no-such-code", "https://app.example/callback")
		require.ErrorIs(t, err, ErrInvalidGrant)
	})

	t.Run("redirect mismatch", func(t *testing.T) {
		code := f.issueCode(t)
		_, err := f.tokens.ExchangeAuthorizationCode(ctx, f.org.ID, f.client.ID, "", code, "https://evil.example/cb")
		require.ErrorIs(t, err, ErrInvalidGrant)
	})

	t.Run("expired code", func(t *testing.T) {
		shortAuth := &AuthorizeService{Store: f.store, CodeTTL: -time.Minute}
		result, err := shortAuth.IssueCode(ctx, f.org.ID,
			domain.Subject{Type: domain.SubjectB2B, ID: f.user.ID},
			AuthorizeRequest{
				ClientID:    f.client.ID,
				RedirectURI: "https://app.example/callback",
				Scopes:      []string{"openid"},
			})
		require.NoError(t, err)

		_, err = f.tokens.ExchangeAuthorizationCode(ctx, f.org.ID, f.client.ID, "", result.Code, "https://app.example/callback")
		require.ErrorIs(t, err, ErrInvalidGrant)
	})

	t.Run("unknown client", func(t *testing.T) {
		code := f.issueCode(t)
		_, err := f.tokens.ExchangeAuthorizationCode(ctx, f.org.ID, "nope", "", code, "https://app.example/callback")
		require.ErrorIs(t, err, ErrInvalidClient)
	})

	t.Run("confidential client requires its secret", func(t *testing.T) {
		secretHash, err := cryptox.HashPassword("s3cret")
		require.NoError(t, err)

		now := time.Now()
		confidential := domain.Client{
			ID:           idx.New().String(),
			OrgID:        f.org.ID,
			Name:         "backend",
			SecretHash:   secretHash,
			RedirectURIs: []string{"https://backend.example/cb"},
			Scopes:       []string{"openid"},
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		require.NoError(t, f.store.Tenant(f.org.ID).Clients().CreateClient(ctx, confidential))

		result, err := f.auth.IssueCode(ctx, f.org.ID,
			domain.Subject{Type: domain.SubjectB2B, ID: f.user.ID},
			AuthorizeRequest{ClientID: confidential.ID, RedirectURI: "https://backend.example/cb", Scopes: []string{"openid"}})
		require.NoError(t, err)

		_, err = f.tokens.ExchangeAuthorizationCode(ctx, f.org.ID, confidential.ID, "wrong", result.Code, "https://backend.example/cb")
		require.ErrorIs(t, err, ErrInvalidClient)
	})
}

// Concurrent redemptions of one code must produce exactly one token set.
func TestExchangeAuthorizationCodeConcurrentRedemption(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	code := f.issueCode(t)

	const attempts = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		wins     int
		failures int
	)

	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.tokens.ExchangeAuthorizationCode(ctx, f.org.ID, f.client.ID, "", code, "https://app.example/callback")

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			default:
				require.ErrorIs(t, err, ErrInvalidGrant)
				failures++
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, wins)
	require.Equal(t, attempts-1, failures)
}

func TestValidateBearerTokenExpiry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// Persist a token already past its expiry.
	opaque, err := cryptox.GenerateToken(cryptox.TokenSize256)
	require.NoError(t, err)
	now := time.Now()
	require.NoError(t, f.store.Tenant(f.org.ID).AccessTokens().CreateAccessToken(ctx, domain.AccessToken{
		ID:        idx.New().String(),
		TokenHash: cryptox.FingerprintToken(opaque),
		ClientID:  f.client.ID,
		Subject:   domain.Subject{Type: domain.SubjectB2B, ID: f.user.ID},
		Scopes:    []string{"openid"},
		IssuedAt:  now.Add(-2 * time.Hour),
		ExpiresAt: now.Add(-time.Hour),
	}))

	_, err = f.tokens.ValidateBearerToken(ctx, f.org.ID, opaque)
	require.ErrorIs(t, err, ErrUnauthorized)
}
