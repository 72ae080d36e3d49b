package idp_test

import (
	"context"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"

	"github.com/quartzid/quartz/pkg/authsdk"
)

func TestAccountTOTPLifecycle(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	client := authsdk.NewSDKClient(srv.URL, orgName)
	boot := bootstrapSystem(t, client)

	tokens := adminLogin(t, client, boot, "")
	session := client.NewSession(tokens.AccessToken)

	enrollment, err := session.EnrollTOTP(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, enrollment.Secret)
	require.Contains(t, enrollment.URL, "otpauth://")
	require.Equal(t, adminEmail, enrollment.Account)

	code := func() string {
		c, err := totp.GenerateCode(enrollment.Secret, time.Now())
		require.NoError(t, err)
		return c
	}

	// A pending enrollment does not yet gate logins.
	adminLogin(t, client, boot, "")

	t.Run("verify enables the factor", func(t *testing.T) {
		require.NoError(t, session.VerifyTOTP(ctx, code()))

		// Password alone no longer completes authorization.
		_, err := client.PasswordAuthorize(ctx, authsdk.PasswordAuthorizeRequest{
			ClientID:    boot.ClientID,
			RedirectURI: redirectURI,
			Scopes:      clientScopes,
			SubjectType: "account",
			Identifier:  adminEmail,
			Password:    adminPassword,
		})
		requireOAuth2Error(t, err, "otp_required")

		// A wrong code is rejected without leaking which factor failed.
		_, err = client.PasswordAuthorize(ctx, authsdk.PasswordAuthorizeRequest{
			ClientID:    boot.ClientID,
			RedirectURI: redirectURI,
			Scopes:      clientScopes,
			SubjectType: "account",
			Identifier:  adminEmail,
			Password:    adminPassword,
			OTPCode:     "000000",
		})
		requireOAuth2Error(t, err, "invalid_grant")

		adminLogin(t, client, boot, code())
	})

	t.Run("double enrollment is rejected", func(t *testing.T) {
		_, err := session.EnrollTOTP(ctx)
		requireOAuth2Error(t, err, "totp_already_enabled")
	})

	t.Run("disable requires a valid code", func(t *testing.T) {
		err := session.DisableTOTP(ctx, "000000")
		requireOAuth2Error(t, err, "invalid_otp")

		require.NoError(t, session.DisableTOTP(ctx, code()))

		// The factor is gone; password alone suffices again.
		adminLogin(t, client, boot, "")
	})
}

func TestTOTPRequiresAccountSubject(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	client := authsdk.NewSDKClient(srv.URL, orgName)
	bootstrapSystem(t, client)
	_, client2, user2 := seedSecondOrg(t, srv)

	// A B2C user's token cannot manage account TOTP.
	globex := authsdk.NewSDKClient(srv.URL, user2.OrgID)
	auth, err := globex.PasswordAuthorize(ctx, authsdk.PasswordAuthorizeRequest{
		ClientID:    client2.ID,
		RedirectURI: redirectURI,
		Scopes:      clientScopes,
		SubjectType: "b2c",
		Identifier:  user2.Email,
		Password:    "hunter2hunter2",
	})
	require.NoError(t, err)

	tokens, err := globex.ExchangeAuthorizationCode(ctx, client2.ID, "", auth.Code, redirectURI)
	require.NoError(t, err)

	session := globex.NewSession(tokens.AccessToken)
	_, err = session.EnrollTOTP(ctx)
	requireOAuth2Error(t, err, "access_denied")
}
