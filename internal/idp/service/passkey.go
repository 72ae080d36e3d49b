package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/quartzid/quartz/internal/idp/domain"
	"github.com/quartzid/quartz/internal/idp/store"
	"github.com/quartzid/quartz/pkg/idx"
	"github.com/quartzid/quartz/pkg/slogx"
)

const DefaultChallengeTTL = 2 * time.Minute

// Provider is the subset of *webauthn.WebAuthn the ceremonies need. Tests
// substitute a fake so ceremony outcomes can be driven without a real
// authenticator.
type Provider interface {
	BeginRegistration(user webauthn.User, opts ...webauthn.RegistrationOption) (*protocol.CredentialCreation, *webauthn.SessionData, error)
	CreateCredential(user webauthn.User, session webauthn.SessionData, response *protocol.ParsedCredentialCreationData) (*webauthn.Credential, error)
	BeginDiscoverableLogin(opts ...webauthn.LoginOption) (*protocol.CredentialAssertion, *webauthn.SessionData, error)
	ValidatePasskeyLogin(handler webauthn.DiscoverableUserHandler, session webauthn.SessionData, response *protocol.ParsedCredentialAssertionData) (webauthn.User, *webauthn.Credential, error)
}

// Parser decodes browser ceremony responses.
type Parser interface {
	ParseCredentialCreationResponseBytes(data []byte) (*protocol.ParsedCredentialCreationData, error)
	ParseCredentialRequestResponseBytes(data []byte) (*protocol.ParsedCredentialAssertionData, error)
}

type defaultParser struct{}

func (defaultParser) ParseCredentialCreationResponseBytes(data []byte) (*protocol.ParsedCredentialCreationData, error) {
	return protocol.ParseCredentialCreationResponseBytes(data)
}

func (defaultParser) ParseCredentialRequestResponseBytes(data []byte) (*protocol.ParsedCredentialAssertionData, error) {
	return protocol.ParseCredentialRequestResponseBytes(data)
}

// NewWebAuthnProvider builds the production provider for one relying party.
func NewWebAuthnProvider(rpID, rpDisplayName string, origins []string) (Provider, error) {
	if len(origins) == 0 {
		origins = []string{"https://" + rpID}
	}
	return webauthn.New(&webauthn.Config{
		RPID:          rpID,
		RPDisplayName: rpDisplayName,
		RPOrigins:     origins,
	})
}

// PasskeyService runs WebAuthn ceremonies for B2B users. Every ceremony is
// scoped to a client-allow-listed RP ID and keyed by a single-use challenge
// session; a successful login feeds the resolved subject straight into the
// authorization-code ledger.
type PasskeyService struct {
	Store     store.Store
	Authorize *AuthorizeService

	// NewProvider builds the WebAuthn engine for an RP ID. Defaults to
	// NewWebAuthnProvider with https origins.
	NewProvider func(rpID string) (Provider, error)

	// Parser defaults to the protocol package parsers.
	Parser Parser

	ChallengeTTL time.Duration
}

type BeginCeremonyResult struct {
	SessionID   string
	OptionsJSON json.RawMessage
}

type CredentialSummary struct {
	CredentialID string     `json:"credential_id"`
	DeviceName   string     `json:"device_name,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	LastUsedAt   *time.Time `json:"last_used_at,omitempty"`
}

// errUnknownCredential marks the discoverable-login handler's "no such
// credential" outcome so it survives the webauthn library's error wrapping.
var errUnknownCredential = errors.New("unknown credential")

// BeginRegistration starts an attestation ceremony for a B2B user.
func (s *PasskeyService) BeginRegistration(ctx context.Context, orgID, clientID, rpID, userID string) (*BeginCeremonyResult, error) {
	tenant := s.Store.Tenant(orgID)

	provider, err := s.providerFor(ctx, tenant, clientID, rpID)
	if err != nil {
		return nil, err
	}

	user, err := s.loadPasskeyUser(ctx, tenant, userID)
	if err != nil {
		return nil, err
	}

	options := []webauthn.RegistrationOption{
		webauthn.WithResidentKeyRequirement(protocol.ResidentKeyRequirementRequired),
	}
	if len(user.credentials) > 0 {
		options = append(options, webauthn.WithExclusions(webauthn.Credentials(user.credentials).CredentialDescriptors()))
	}

	creation, session, err := provider.BeginRegistration(user, options...)
	if err != nil {
		return nil, err
	}

	return s.storeChallenge(ctx, tenant, domain.CeremonyRegistration, clientID, rpID, user.record.ID, creation, session)
}

// FinishRegistration consumes the challenge, verifies the attestation, and
// persists the new credential.
func (s *PasskeyService) FinishRegistration(ctx context.Context, orgID, sessionID, deviceName string, responseJSON []byte) (*CredentialSummary, error) {
	l := slogx.FromContext(ctx)
	tenant := s.Store.Tenant(orgID)

	challenge, session, err := s.consumeChallenge(ctx, tenant, sessionID, domain.CeremonyRegistration)
	if err != nil {
		return nil, err
	}

	user, err := s.loadPasskeyUser(ctx, tenant, challenge.SubjectID)
	if err != nil {
		return nil, err
	}

	parsed, err := s.parser().ParseCredentialCreationResponseBytes(responseJSON)
	if err != nil {
		return nil, ErrAttestationInvalid
	}

	provider, err := s.providerFor(ctx, tenant, challenge.ClientID, challenge.RPID)
	if err != nil {
		return nil, err
	}

	credential, err := provider.CreateCredential(user, *session, parsed)
	if err != nil {
		l.Info("passkey attestation rejected", slog.String("user_id", challenge.SubjectID), slog.Any("err", err))
		return nil, mapAttestationError(err)
	}

	now := time.Now()
	record := domain.PasskeyCredential{
		CredentialID:    encodeCredentialID(credential.ID),
		UserID:          user.record.ID,
		PublicKey:       credential.PublicKey,
		AttestationType: credential.AttestationType,
		Transports:      transportStrings(credential.Transport),
		AAGUID:          credential.Authenticator.AAGUID,
		SignCount:       credential.Authenticator.SignCount,
		DeviceName:      strings.TrimSpace(deviceName),
		CreatedAt:       now,
	}
	if err := tenant.PasskeyCredentials().CreatePasskeyCredential(ctx, record); err != nil {
		return nil, err
	}

	return &CredentialSummary{
		CredentialID: record.CredentialID,
		DeviceName:   record.DeviceName,
		CreatedAt:    record.CreatedAt,
	}, nil
}

// BeginLogin starts a discoverable (usernameless) assertion ceremony.
func (s *PasskeyService) BeginLogin(ctx context.Context, orgID, clientID, rpID string) (*BeginCeremonyResult, error) {
	tenant := s.Store.Tenant(orgID)

	provider, err := s.providerFor(ctx, tenant, clientID, rpID)
	if err != nil {
		return nil, err
	}

	assertion, session, err := provider.BeginDiscoverableLogin()
	if err != nil {
		return nil, err
	}

	return s.storeChallenge(ctx, tenant, domain.CeremonyAuthentication, clientID, rpID, "", assertion, session)
}

// FinishLogin verifies the assertion, applies the counter clone rule, and
// issues an authorization code for the resolved subject.
func (s *PasskeyService) FinishLogin(ctx context.Context, orgID, sessionID string, responseJSON []byte, req AuthorizeRequest) (*AuthorizeResult, error) {
	l := slogx.FromContext(ctx)
	tenant := s.Store.Tenant(orgID)

	challenge, session, err := s.consumeChallenge(ctx, tenant, sessionID, domain.CeremonyAuthentication)
	if err != nil {
		return nil, err
	}

	parsed, err := s.parser().ParseCredentialRequestResponseBytes(responseJSON)
	if err != nil {
		return nil, ErrAssertionInvalid
	}

	provider, err := s.providerFor(ctx, tenant, challenge.ClientID, challenge.RPID)
	if err != nil {
		return nil, err
	}

	// The library does not always propagate the handler's error, so the
	// lookup failure is captured out of band.
	var lookupErr error
	handler := s.discoverableHandler(ctx, tenant, &lookupErr)

	validatedUser, credential, err := provider.ValidatePasskeyLogin(handler, *session, parsed)
	if err != nil {
		if lookupErr != nil || errors.Is(err, errUnknownCredential) {
			return nil, ErrCredentialNotFound
		}
		l.Info("passkey assertion rejected", slog.Any("err", err))
		return nil, ErrAssertionInvalid
	}

	user, ok := validatedUser.(*passkeyUser)
	if !ok {
		return nil, fmt.Errorf("passkey: unexpected user type %T", validatedUser)
	}

	credentialID := encodeCredentialID(credential.ID)
	if credential.Authenticator.CloneWarning {
		return nil, s.flagClone(ctx, tenant, credentialID, user.record.ID)
	}

	err = tenant.PasskeyCredentials().AdvanceSignCount(ctx, credentialID, credential.Authenticator.SignCount, time.Now())
	if err != nil {
		if errors.Is(err, store.ErrAlreadyConsumed) {
			return nil, s.flagClone(ctx, tenant, credentialID, user.record.ID)
		}
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrCredentialNotFound
		}
		return nil, err
	}

	subject := domain.Subject{Type: domain.SubjectB2B, ID: user.record.ID}
	req.ClientID = challenge.ClientID
	return s.Authorize.IssueCode(ctx, orgID, subject, req)
}

// ListCredentials returns the user's enrolled passkeys.
func (s *PasskeyService) ListCredentials(ctx context.Context, orgID, userID string) ([]CredentialSummary, error) {
	records, err := s.Store.Tenant(orgID).PasskeyCredentials().ListPasskeyCredentialsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]CredentialSummary, 0, len(records))
	for _, rec := range records {
		out = append(out, CredentialSummary{
			CredentialID: rec.CredentialID,
			DeviceName:   rec.DeviceName,
			CreatedAt:    rec.CreatedAt,
			LastUsedAt:   rec.LastUsedAt,
		})
	}
	return out, nil
}

// DeleteCredential revokes one credential. Deleting an already-deleted
// credential succeeds.
func (s *PasskeyService) DeleteCredential(ctx context.Context, orgID, userID, credentialID string) error {
	return s.Store.Tenant(orgID).PasskeyCredentials().DeletePasskeyCredential(ctx, userID, credentialID)
}

func (s *PasskeyService) flagClone(ctx context.Context, tenant store.TenantStore, credentialID, userID string) error {
	l := slogx.FromContext(ctx)
	l.Warn("passkey signature counter regressed",
		slog.String("credential_id", credentialID),
		slog.String("user_id", userID))

	if err := tenant.PasskeyCredentials().FlagClone(ctx, credentialID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return ErrPossibleCloneDetected
}

// providerFor checks the RP ID against the client's allow-list and builds
// the ceremony engine for it.
func (s *PasskeyService) providerFor(ctx context.Context, tenant store.TenantStore, clientID, rpID string) (Provider, error) {
	client, err := tenant.Clients().GetClientByID(ctx, clientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidClient
		}
		return nil, err
	}
	if !client.AllowsRPID(rpID) {
		return nil, ErrRPIDNotAllowed
	}

	if s.NewProvider != nil {
		return s.NewProvider(rpID)
	}
	return NewWebAuthnProvider(rpID, client.Name, nil)
}

func (s *PasskeyService) storeChallenge(ctx context.Context, tenant store.TenantStore, ceremony domain.CeremonyType, clientID, rpID, subjectID string, options any, session *webauthn.SessionData) (*BeginCeremonyResult, error) {
	sessionData, err := json.Marshal(session)
	if err != nil {
		return nil, err
	}
	optionsJSON, err := json.Marshal(options)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	challenge := domain.WebAuthnChallenge{
		SessionID:   idx.New().String(),
		Ceremony:    ceremony,
		SubjectType: domain.SubjectB2B,
		SubjectID:   subjectID,
		RPID:        rpID,
		ClientID:    clientID,
		SessionData: sessionData,
		ExpiresAt:   now.Add(s.challengeTTL()),
		CreatedAt:   now,
	}
	if err := tenant.Challenges().PutChallenge(ctx, challenge); err != nil {
		return nil, err
	}

	return &BeginCeremonyResult{
		SessionID:   challenge.SessionID,
		OptionsJSON: optionsJSON,
	}, nil
}

// consumeChallenge atomically removes the session's challenge. The record is
// gone whatever happens next, so an expired or mismatched challenge can
// never be retried.
func (s *PasskeyService) consumeChallenge(ctx context.Context, tenant store.TenantStore, sessionID string, want domain.CeremonyType) (domain.WebAuthnChallenge, *webauthn.SessionData, error) {
	challenge, err := tenant.Challenges().ConsumeChallenge(ctx, strings.TrimSpace(sessionID))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.WebAuthnChallenge{}, nil, ErrChallengeNotFound
		}
		return domain.WebAuthnChallenge{}, nil, err
	}

	if time.Now().After(challenge.ExpiresAt) {
		return domain.WebAuthnChallenge{}, nil, ErrChallengeExpired
	}
	if challenge.Ceremony != want {
		return domain.WebAuthnChallenge{}, nil, ErrChallengeMismatch
	}

	var session webauthn.SessionData
	if err := json.Unmarshal(challenge.SessionData, &session); err != nil {
		return domain.WebAuthnChallenge{}, nil, err
	}
	return challenge, &session, nil
}

func (s *PasskeyService) discoverableHandler(ctx context.Context, tenant store.TenantStore, lookupErr *error) webauthn.DiscoverableUserHandler {
	return func(rawID, userHandle []byte) (webauthn.User, error) {
		user, err := s.loadPasskeyUser(ctx, tenant, string(userHandle))
		if err != nil {
			*lookupErr = errUnknownCredential
			return nil, errUnknownCredential
		}

		wantID := encodeCredentialID(rawID)
		for _, cred := range user.credentials {
			if encodeCredentialID(cred.ID) == wantID {
				return user, nil
			}
		}
		*lookupErr = errUnknownCredential
		return nil, errUnknownCredential
	}
}

func (s *PasskeyService) loadPasskeyUser(ctx context.Context, tenant store.TenantStore, userID string) (*passkeyUser, error) {
	record, err := tenant.B2BUsers().GetB2BUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}

	stored, err := tenant.PasskeyCredentials().ListPasskeyCredentialsByUser(ctx, record.ID)
	if err != nil {
		return nil, err
	}

	credentials := make([]webauthn.Credential, 0, len(stored))
	for _, rec := range stored {
		rawID, err := base64.RawURLEncoding.DecodeString(rec.CredentialID)
		if err != nil {
			return nil, fmt.Errorf("passkey: decode credential %s: %w", rec.CredentialID, err)
		}
		credentials = append(credentials, webauthn.Credential{
			ID:              rawID,
			PublicKey:       rec.PublicKey,
			AttestationType: rec.AttestationType,
			Transport:       parseTransports(rec.Transports),
			Authenticator: webauthn.Authenticator{
				AAGUID:    rec.AAGUID,
				SignCount: rec.SignCount,
			},
		})
	}

	return &passkeyUser{record: record, credentials: credentials}, nil
}

func (s *PasskeyService) parser() Parser {
	if s.Parser != nil {
		return s.Parser
	}
	return defaultParser{}
}

func (s *PasskeyService) challengeTTL() time.Duration {
	if s.ChallengeTTL > 0 {
		return s.ChallengeTTL
	}
	return DefaultChallengeTTL
}

// passkeyUser adapts a B2B user and their stored credentials to the
// webauthn.User interface.
type passkeyUser struct {
	record      domain.B2BUser
	credentials []webauthn.Credential
}

func (u *passkeyUser) WebAuthnID() []byte { return []byte(u.record.ID) }

func (u *passkeyUser) WebAuthnName() string { return u.record.Username }

func (u *passkeyUser) WebAuthnDisplayName() string { return u.record.DisplayName }

func (u *passkeyUser) WebAuthnIcon() string { return "" }

func (u *passkeyUser) WebAuthnCredentials() []webauthn.Credential { return u.credentials }

func encodeCredentialID(id []byte) string {
	return base64.RawURLEncoding.EncodeToString(id)
}

func transportStrings(transports []protocol.AuthenticatorTransport) []string {
	out := make([]string, 0, len(transports))
	for _, t := range transports {
		out = append(out, string(t))
	}
	return out
}

func parseTransports(values []string) []protocol.AuthenticatorTransport {
	out := make([]protocol.AuthenticatorTransport, 0, len(values))
	for _, v := range values {
		out = append(out, protocol.AuthenticatorTransport(v))
	}
	return out
}

// mapAttestationError distinguishes a response bound to the wrong challenge
// from every other attestation failure.
func mapAttestationError(err error) error {
	if err == nil {
		return nil
	}
	var pErr *protocol.Error
	if errors.As(err, &pErr) && strings.Contains(strings.ToLower(pErr.DevInfo), "challenge") {
		return ErrChallengeMismatch
	}
	if strings.Contains(strings.ToLower(err.Error()), "challenge") {
		return ErrChallengeMismatch
	}
	return ErrAttestationInvalid
}
