package service

import (
	"context"
	"testing"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/stretchr/testify/require"
)

// fakeProvider drives ceremony outcomes without a real authenticator.
type fakeProvider struct {
	credential *webauthn.Credential
	createErr  error
	loginErr   error

	// loginRawID/loginUserHandle are handed to the discoverable handler.
	loginRawID      []byte
	loginUserHandle []byte
}

func (f *fakeProvider) BeginRegistration(user webauthn.User, opts ...webauthn.RegistrationOption) (*protocol.CredentialCreation, *webauthn.SessionData, error) {
	return &protocol.CredentialCreation{}, &webauthn.SessionData{Challenge: "test-challenge", UserID: user.WebAuthnID()}, nil
}

func (f *fakeProvider) CreateCredential(user webauthn.User, session webauthn.SessionData, response *protocol.ParsedCredentialCreationData) (*webauthn.Credential, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.credential, nil
}

func (f *fakeProvider) BeginDiscoverableLogin(opts ...webauthn.LoginOption) (*protocol.CredentialAssertion, *webauthn.SessionData, error) {
	return &protocol.CredentialAssertion{}, &webauthn.SessionData{Challenge: "test-challenge"}, nil
}

func (f *fakeProvider) ValidatePasskeyLogin(handler webauthn.DiscoverableUserHandler, session webauthn.SessionData, response *protocol.ParsedCredentialAssertionData) (webauthn.User, *webauthn.Credential, error) {
	if f.loginErr != nil {
		return nil, nil, f.loginErr
	}
	user, err := handler(f.loginRawID, f.loginUserHandle)
	if err != nil {
		return nil, nil, err
	}
	return user, f.credential, nil
}

type fakeParser struct{}

func (fakeParser) ParseCredentialCreationResponseBytes(data []byte) (*protocol.ParsedCredentialCreationData, error) {
	return &protocol.ParsedCredentialCreationData{}, nil
}

func (fakeParser) ParseCredentialRequestResponseBytes(data []byte) (*protocol.ParsedCredentialAssertionData, error) {
	return &protocol.ParsedCredentialAssertionData{}, nil
}

func newPasskeyService(f *fixture, provider *fakeProvider) *PasskeyService {
	return &PasskeyService{
		Store:       f.store,
		Authorize:   f.auth,
		NewProvider: func(rpID string) (Provider, error) { return provider, nil },
		Parser:      fakeParser{},
	}
}

func TestPasskeyRegistration(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	provider := &fakeProvider{
		credential: &webauthn.Credential{
			ID:              []byte("credential-one"),
			PublicKey:       []byte{0x01, 0x02, 0x03},
			AttestationType: "none",
			Transport:       []protocol.AuthenticatorTransport{protocol.Internal},
			Authenticator:   webauthn.Authenticator{AAGUID: []byte{0xAA}, SignCount: 0},
		},
	}
	svc := newPasskeyService(f, provider)

	t.Run("rp id must be allow-listed", func(t *testing.T) {
		_, err := svc.BeginRegistration(ctx, f.org.ID, f.client.ID, "evil.example", f.user.ID)
		require.ErrorIs(t, err, ErrRPIDNotAllowed)
	})

	begin, err := svc.BeginRegistration(ctx, f.org.ID, f.client.ID, "app.example", f.user.ID)
	require.NoError(t, err)
	require.NotEmpty(t, begin.SessionID)
	require.NotEmpty(t, begin.OptionsJSON)

	summary, err := svc.FinishRegistration(ctx, f.org.ID, begin.SessionID, "yubikey", []byte(`{}`))
	require.NoError(t, err)
	require.Equal(t, "yubikey", summary.DeviceName)

	t.Run("credential is listed for the user", func(t *testing.T) {
		creds, err := svc.ListCredentials(ctx, f.org.ID, f.user.ID)
		require.NoError(t, err)
		require.Len(t, creds, 1)
		require.Equal(t, summary.CredentialID, creds[0].CredentialID)
		require.Nil(t, creds[0].LastUsedAt)
	})

	t.Run("challenge is single use", func(t *testing.T) {
		_, err := svc.FinishRegistration(ctx, f.org.ID, begin.SessionID, "", []byte(`{}`))
		require.ErrorIs(t, err, ErrChallengeNotFound)
	})

	t.Run("unknown session", func(t *testing.T) {
		_, err := svc.FinishRegistration(ctx, f.org.ID, "no-such-session", "", []byte(`{}`))
		require.ErrorIs(t, err, ErrChallengeNotFound)
	})
}

func TestPasskeyRegistrationFailures(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	t.Run("expired challenge is consumed", func(t *testing.T) {
		provider := &fakeProvider{}
		svc := newPasskeyService(f, provider)
		svc.ChallengeTTL = time.Nanosecond

		begin, err := svc.BeginRegistration(ctx, f.org.ID, f.client.ID, "app.example", f.user.ID)
		require.NoError(t, err)

		time.Sleep(time.Millisecond)
		_, err = svc.FinishRegistration(ctx, f.org.ID, begin.SessionID, "", []byte(`{}`))
		require.ErrorIs(t, err, ErrChallengeExpired)

		// The record is gone; the ceremony restarts from begin.
		_, err = svc.FinishRegistration(ctx, f.org.ID, begin.SessionID, "", []byte(`{}`))
		require.ErrorIs(t, err, ErrChallengeNotFound)
	})

	t.Run("login session cannot finish a registration", func(t *testing.T) {
		svc := newPasskeyService(f, &fakeProvider{})

		begin, err := svc.BeginLogin(ctx, f.org.ID, f.client.ID, "app.example")
		require.NoError(t, err)

		_, err = svc.FinishRegistration(ctx, f.org.ID, begin.SessionID, "", []byte(`{}`))
		require.ErrorIs(t, err, ErrChallengeMismatch)
	})

	t.Run("challenge-bound failure maps to mismatch", func(t *testing.T) {
		provider := &fakeProvider{
			createErr: protocol.ErrVerification.WithDetails("Error validating challenge"),
		}
		svc := newPasskeyService(f, provider)

		begin, err := svc.BeginRegistration(ctx, f.org.ID, f.client.ID, "app.example", f.user.ID)
		require.NoError(t, err)

		_, err = svc.FinishRegistration(ctx, f.org.ID, begin.SessionID, "", []byte(`{}`))
		require.ErrorIs(t, err, ErrChallengeMismatch)
	})

	t.Run("other attestation failures map to attestation_invalid", func(t *testing.T) {
		provider := &fakeProvider{
			createErr: protocol.ErrVerification.WithDetails("Unable to verify signature"),
		}
		svc := newPasskeyService(f, provider)

		begin, err := svc.BeginRegistration(ctx, f.org.ID, f.client.ID, "app.example", f.user.ID)
		require.NoError(t, err)

		_, err = svc.FinishRegistration(ctx, f.org.ID, begin.SessionID, "", []byte(`{}`))
		require.ErrorIs(t, err, ErrAttestationInvalid)
	})
}

// registerCredential enrols a passkey with the fake provider and returns its
// id.
func registerCredential(t *testing.T, f *fixture, svc *PasskeyService) string {
	t.Helper()
	ctx := context.Background()

	begin, err := svc.BeginRegistration(ctx, f.org.ID, f.client.ID, "app.example", f.user.ID)
	require.NoError(t, err)
	summary, err := svc.FinishRegistration(ctx, f.org.ID, begin.SessionID, "laptop", []byte(`{}`))
	require.NoError(t, err)
	return summary.CredentialID
}

func TestPasskeyLogin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	provider := &fakeProvider{
		credential: &webauthn.Credential{
			ID:            []byte("credential-one"),
			PublicKey:     []byte{0x01},
			Authenticator: webauthn.Authenticator{SignCount: 0},
		},
	}
	svc := newPasskeyService(f, provider)
	credentialID := registerCredential(t, f, svc)

	provider.loginRawID = []byte("credential-one")
	provider.loginUserHandle = []byte(f.user.ID)

	authReq := AuthorizeRequest{
		RedirectURI: "https://app.example/callback",
		Scopes:      []string{"openid"},
		State:       "pk-state",
	}

	t.Run("successful login issues an authorization code", func(t *testing.T) {
		provider.credential.Authenticator.SignCount = 1

		begin, err := svc.BeginLogin(ctx, f.org.ID, f.client.ID, "app.example")
		require.NoError(t, err)

		result, err := svc.FinishLogin(ctx, f.org.ID, begin.SessionID, []byte(`{}`), authReq)
		require.NoError(t, err)
		require.NotEmpty(t, result.Code)
		require.Equal(t, "pk-state", result.State)

		// The code redeems for the passkey user.
		set, err := f.tokens.ExchangeAuthorizationCode(ctx, f.org.ID, f.client.ID, "", result.Code, authReq.RedirectURI)
		require.NoError(t, err)
		require.NotEmpty(t, set.IDToken)

		creds, err := svc.ListCredentials(ctx, f.org.ID, f.user.ID)
		require.NoError(t, err)
		require.Len(t, creds, 1)
		require.NotNil(t, creds[0].LastUsedAt)
	})

	t.Run("counter regression flags the credential", func(t *testing.T) {
		provider.credential.Authenticator.SignCount = 1 // stored is already 1

		begin, err := svc.BeginLogin(ctx, f.org.ID, f.client.ID, "app.example")
		require.NoError(t, err)

		_, err = svc.FinishLogin(ctx, f.org.ID, begin.SessionID, []byte(`{}`), authReq)
		require.ErrorIs(t, err, ErrPossibleCloneDetected)

		stored, err := f.store.Tenant(f.org.ID).PasskeyCredentials().GetPasskeyCredentialByID(ctx, credentialID)
		require.NoError(t, err)
		require.True(t, stored.CloneFlagged)
	})

	t.Run("clone warning from the library is terminal", func(t *testing.T) {
		provider.credential.Authenticator.SignCount = 10
		provider.credential.Authenticator.CloneWarning = true
		defer func() { provider.credential.Authenticator.CloneWarning = false }()

		begin, err := svc.BeginLogin(ctx, f.org.ID, f.client.ID, "app.example")
		require.NoError(t, err)

		_, err = svc.FinishLogin(ctx, f.org.ID, begin.SessionID, []byte(`{}`), authReq)
		require.ErrorIs(t, err, ErrPossibleCloneDetected)
	})

	t.Run("unknown credential", func(t *testing.T) {
		provider.loginRawID = []byte("someone-elses-credential")
		defer func() { provider.loginRawID = []byte("credential-one") }()

		begin, err := svc.BeginLogin(ctx, f.org.ID, f.client.ID, "app.example")
		require.NoError(t, err)

		_, err = svc.FinishLogin(ctx, f.org.ID, begin.SessionID, []byte(`{}`), authReq)
		require.ErrorIs(t, err, ErrCredentialNotFound)
	})

	t.Run("assertion failure", func(t *testing.T) {
		provider.loginErr = protocol.ErrVerification.WithDetails("bad signature")
		defer func() { provider.loginErr = nil }()

		begin, err := svc.BeginLogin(ctx, f.org.ID, f.client.ID, "app.example")
		require.NoError(t, err)

		_, err = svc.FinishLogin(ctx, f.org.ID, begin.SessionID, []byte(`{}`), authReq)
		require.ErrorIs(t, err, ErrAssertionInvalid)
	})
}

func TestPasskeyZeroCounterAuthenticators(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	provider := &fakeProvider{
		credential: &webauthn.Credential{
			ID:            []byte("zero-counter"),
			PublicKey:     []byte{0x01},
			Authenticator: webauthn.Authenticator{SignCount: 0},
		},
	}
	svc := newPasskeyService(f, provider)
	registerCredential(t, f, svc)

	provider.loginRawID = []byte("zero-counter")
	provider.loginUserHandle = []byte(f.user.ID)

	authReq := AuthorizeRequest{
		RedirectURI: "https://app.example/callback",
		Scopes:      []string{"openid"},
	}

	// Authenticators that never increment report zero forever; zero against
	// zero passes, repeatedly.
	for range 2 {
		begin, err := svc.BeginLogin(ctx, f.org.ID, f.client.ID, "app.example")
		require.NoError(t, err)

		_, err = svc.FinishLogin(ctx, f.org.ID, begin.SessionID, []byte(`{}`), authReq)
		require.NoError(t, err)
	}
}

func TestPasskeyDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	provider := &fakeProvider{
		credential: &webauthn.Credential{
			ID:            []byte("to-delete"),
			PublicKey:     []byte{0x01},
			Authenticator: webauthn.Authenticator{SignCount: 0},
		},
	}
	svc := newPasskeyService(f, provider)
	credentialID := registerCredential(t, f, svc)

	require.NoError(t, svc.DeleteCredential(ctx, f.org.ID, f.user.ID, credentialID))

	creds, err := svc.ListCredentials(ctx, f.org.ID, f.user.ID)
	require.NoError(t, err)
	require.Empty(t, creds)

	// Idempotent.
	require.NoError(t, svc.DeleteCredential(ctx, f.org.ID, f.user.ID, credentialID))
}
