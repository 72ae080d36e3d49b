package idp_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quartzid/quartz/internal/idp/domain"
	"github.com/quartzid/quartz/pkg/authsdk"
	"github.com/quartzid/quartz/pkg/cryptox"
	"github.com/quartzid/quartz/pkg/idx"
)

// seedSecondOrg creates another organization with its own client and B2C
// user directly in the store. Bootstrap only ever seeds the first org, so
// the fixture goes underneath the HTTP surface.
func seedSecondOrg(t *testing.T, srv *testServer) (domain.Organization, domain.Client, domain.B2CUser) {
	t.Helper()
	ctx := context.Background()
	now := time.Now()

	org := domain.Organization{ID: idx.New().String(), Name: "globex", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, srv.Store.Organizations().CreateOrganization(ctx, org))

	client := domain.Client{
		ID:           idx.New().String(),
		OrgID:        org.ID,
		Name:         "globex-web",
		RedirectURIs: []string{redirectURI},
		Scopes:       clientScopes,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, srv.Store.Tenant(org.ID).Clients().CreateClient(ctx, client))

	pemKey, err := cryptox.GenerateRSAKey(1024)
	require.NoError(t, err)
	encrypted, err := cryptox.EncryptPrivateKey(pemKey)
	require.NoError(t, err)
	require.NoError(t, srv.Store.Tenant(org.ID).SigningKeys().CreateSigningKey(ctx, domain.SigningKey{
		ClientID:            client.ID,
		PrivateKeyEncrypted: encrypted,
		CreatedAt:           now,
	}))

	passHash, err := cryptox.HashPassword("hunter2hunter2")
	require.NoError(t, err)
	user := domain.B2CUser{
		ID:           idx.New().String(),
		OrgID:        org.ID,
		Email:        "carol@globex.example",
		DisplayName:  "Carol",
		PasswordHash: passHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, srv.Store.Tenant(org.ID).B2CUsers().CreateB2CUser(ctx, user))

	return org, client, user
}

func TestTenantIsolation(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	acme := authsdk.NewSDKClient(srv.URL, orgName)
	boot := bootstrapSystem(t, acme)
	org2, client2, user2 := seedSecondOrg(t, srv)

	tokens := adminLogin(t, acme, boot, "")

	t.Run("token is bound to its tenant", func(t *testing.T) {
		globex := authsdk.NewSDKClient(srv.URL, org2.Name)
		session := globex.NewSession(tokens.AccessToken)

		_, err := session.UserInfo(ctx)
		requireOAuth2Error(t, err, "invalid_token")
	})

	t.Run("code cannot cross tenants", func(t *testing.T) {
		auth, err := acme.PasswordAuthorize(ctx, authsdk.PasswordAuthorizeRequest{
			ClientID:    boot.ClientID,
			RedirectURI: redirectURI,
			Scopes:      clientScopes,
			SubjectType: "account",
			Identifier:  adminEmail,
			Password:    adminPassword,
		})
		require.NoError(t, err)

		globex := authsdk.NewSDKClient(srv.URL, org2.ID)
		_, err = globex.ExchangeAuthorizationCode(ctx, boot.ClientID, boot.ClientSecret, auth.Code, redirectURI)
		require.Error(t, err, "a code issued in one org must not redeem in another")

		// The code is still intact in its own tenant.
		redeemed, err := acme.ExchangeAuthorizationCode(ctx, boot.ClientID, boot.ClientSecret, auth.Code, redirectURI)
		require.NoError(t, err)
		require.NotEmpty(t, redeemed.AccessToken)
	})

	t.Run("users do not leak across orgs", func(t *testing.T) {
		// user2 exists only in globex; the same credentials fail in acme.
		_, err := acme.PasswordAuthorize(ctx, authsdk.PasswordAuthorizeRequest{
			ClientID:    boot.ClientID,
			RedirectURI: redirectURI,
			Scopes:      clientScopes,
			SubjectType: "b2c",
			Identifier:  user2.Email,
			Password:    "hunter2hunter2",
		})
		requireOAuth2Error(t, err, "invalid_grant")

		// And they work where they belong.
		globex := authsdk.NewSDKClient(srv.URL, org2.ID)
		auth, err := globex.PasswordAuthorize(ctx, authsdk.PasswordAuthorizeRequest{
			ClientID:    client2.ID,
			RedirectURI: redirectURI,
			Scopes:      clientScopes,
			SubjectType: "b2c",
			Identifier:  user2.Email,
			Password:    "hunter2hunter2",
		})
		require.NoError(t, err)
		require.NotEmpty(t, auth.Code)
	})

	t.Run("unknown org fails closed", func(t *testing.T) {
		ghost := authsdk.NewSDKClient(srv.URL, "no-such-org")
		_, err := ghost.PasswordAuthorize(ctx, authsdk.PasswordAuthorizeRequest{
			ClientID:    boot.ClientID,
			RedirectURI: redirectURI,
			Scopes:      clientScopes,
			SubjectType: "account",
			Identifier:  adminEmail,
			Password:    adminPassword,
		})
		requireOAuth2Error(t, err, "tenant_unresolved")
	})

	t.Run("missing org header fails closed", func(t *testing.T) {
		bare := authsdk.NewSDKClient(srv.URL, "")
		_, err := bare.PasswordAuthorize(ctx, authsdk.PasswordAuthorizeRequest{
			ClientID:    boot.ClientID,
			RedirectURI: redirectURI,
			Scopes:      clientScopes,
			SubjectType: "account",
			Identifier:  adminEmail,
			Password:    adminPassword,
		})
		requireOAuth2Error(t, err, "tenant_unresolved")
	})
}
