package idp_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quartzid/quartz/pkg/authsdk"
)

func TestAuthorizationCodeFlow(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	// The SDK resolves the tenant by organization name here; the ID works
	// equally (covered below).
	client := authsdk.NewSDKClient(srv.URL, orgName)

	health, err := client.Healthz(ctx)
	require.NoError(t, err)
	require.Equal(t, "ok", health.Status)

	boot := bootstrapSystem(t, client)

	auth, err := client.PasswordAuthorize(ctx, authsdk.PasswordAuthorizeRequest{
		ClientID:    boot.ClientID,
		RedirectURI: redirectURI,
		Scopes:      clientScopes,
		State:       "xyz-state",
		SubjectType: "account",
		Identifier:  adminEmail,
		Password:    adminPassword,
	})
	require.NoError(t, err)
	require.NotEmpty(t, auth.Code)
	require.Equal(t, "xyz-state", auth.State)
	require.Equal(t, redirectURI, auth.RedirectURI)

	tokens, err := client.ExchangeAuthorizationCode(ctx, boot.ClientID, boot.ClientSecret, auth.Code, redirectURI)
	require.NoError(t, err)
	require.NotEmpty(t, tokens.AccessToken)
	require.Equal(t, "Bearer", tokens.TokenType)
	require.Greater(t, tokens.ExpiresIn, 0)
	require.Contains(t, tokens.Scope, "openid")

	// The ID token is a compact JWS signed with the client's own key.
	require.Len(t, strings.Split(tokens.IDToken, "."), 3)

	session := client.NewSession(tokens.AccessToken)
	info, err := session.UserInfo(ctx)
	require.NoError(t, err)
	require.Equal(t, boot.AccountID, info.Sub)
	require.Equal(t, "account", info.SubjectType)
	require.Equal(t, boot.ClientID, info.ClientID)
	require.Equal(t, adminEmail, info.Email)
	require.Contains(t, info.Scope, "openid")

	// Tenant resolution by ID behaves the same as by name.
	byID := authsdk.NewSDKClient(srv.URL, boot.OrgID)
	adminLogin(t, byID, boot, "")
}

func TestAuthorizationCodeSingleUse(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	client := authsdk.NewSDKClient(srv.URL, orgName)
	boot := bootstrapSystem(t, client)

	auth, err := client.PasswordAuthorize(ctx, authsdk.PasswordAuthorizeRequest{
		ClientID:    boot.ClientID,
		RedirectURI: redirectURI,
		Scopes:      clientScopes,
		SubjectType: "account",
		Identifier:  adminEmail,
		Password:    adminPassword,
	})
	require.NoError(t, err)

	_, err = client.ExchangeAuthorizationCode(ctx, boot.ClientID, boot.ClientSecret, auth.Code, redirectURI)
	require.NoError(t, err)

	// Replay of a consumed code fails, and the failure does not say why.
	_, err = client.ExchangeAuthorizationCode(ctx, boot.ClientID, boot.ClientSecret, auth.Code, redirectURI)
	requireOAuth2Error(t, err, "invalid_grant")
}

func TestTokenEndpointRejections(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	client := authsdk.NewSDKClient(srv.URL, orgName)
	boot := bootstrapSystem(t, client)

	newCode := func() string {
		auth, err := client.PasswordAuthorize(ctx, authsdk.PasswordAuthorizeRequest{
			ClientID:    boot.ClientID,
			RedirectURI: redirectURI,
			Scopes:      clientScopes,
			SubjectType: "account",
			Identifier:  adminEmail,
			Password:    adminPassword,
		})
		require.NoError(t, err)
		return auth.Code
	}

	t.Run("wrong client secret", func(t *testing.T) {
		_, err := client.ExchangeAuthorizationCode(ctx, boot.ClientID, "not-the-secret", newCode(), redirectURI)
		requireOAuth2Error(t, err, "invalid_client")
	})

	t.Run("redirect mismatch", func(t *testing.T) {
		_, err := client.ExchangeAuthorizationCode(ctx, boot.ClientID, boot.ClientSecret, newCode(), "https://evil.example/cb")
		requireOAuth2Error(t, err, "invalid_grant")
	})

	t.Run("garbage code", func(t *testing.T) {
		_, err := client.ExchangeAuthorizationCode(ctx, boot.ClientID, boot.ClientSecret, "no-such-code", redirectURI)
		requireOAuth2Error(t, err, "invalid_grant")
	})
}

func TestAuthorizeRejections(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	client := authsdk.NewSDKClient(srv.URL, orgName)
	boot := bootstrapSystem(t, client)

	t.Run("wrong password", func(t *testing.T) {
		_, err := client.PasswordAuthorize(ctx, authsdk.PasswordAuthorizeRequest{
			ClientID:    boot.ClientID,
			RedirectURI: redirectURI,
			Scopes:      clientScopes,
			SubjectType: "account",
			Identifier:  adminEmail,
			Password:    "wrong",
		})
		requireOAuth2Error(t, err, "invalid_grant")
	})

	t.Run("unknown client", func(t *testing.T) {
		_, err := client.PasswordAuthorize(ctx, authsdk.PasswordAuthorizeRequest{
			ClientID:    "no-such-client",
			RedirectURI: redirectURI,
			Scopes:      clientScopes,
			SubjectType: "account",
			Identifier:  adminEmail,
			Password:    adminPassword,
		})
		requireOAuth2Error(t, err, "invalid_client")
	})

	t.Run("unregistered redirect", func(t *testing.T) {
		_, err := client.PasswordAuthorize(ctx, authsdk.PasswordAuthorizeRequest{
			ClientID:    boot.ClientID,
			RedirectURI: "https://evil.example/cb",
			Scopes:      clientScopes,
			SubjectType: "account",
			Identifier:  adminEmail,
			Password:    adminPassword,
		})
		requireOAuth2Error(t, err, "invalid_request")
	})

	t.Run("ungrantable scope", func(t *testing.T) {
		_, err := client.PasswordAuthorize(ctx, authsdk.PasswordAuthorizeRequest{
			ClientID:    boot.ClientID,
			RedirectURI: redirectURI,
			Scopes:      []string{"admin:everything"},
			SubjectType: "account",
			Identifier:  adminEmail,
			Password:    adminPassword,
		})
		requireOAuth2Error(t, err, "invalid_scope")
	})
}
