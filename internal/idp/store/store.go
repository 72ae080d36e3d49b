package store

import (
	"context"
	"errors"
	"time"

	"github.com/quartzid/quartz/internal/idp/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")

	// ErrAlreadyConsumed is the zero-rows-affected signal from a conditional
	// single-use update: the row exists but its guard (used_at IS NULL,
	// sign_count < new, ...) no longer holds.
	ErrAlreadyConsumed = errors.New("store: already consumed")
)

// Store is the root data access interface. Platform-level repositories
// (organizations, accounts) hang directly off it; everything tenant-scoped
// is only reachable through Tenant, which composes the organization filter
// into every query at construction. There is no way to address a tenant
// row without first naming the tenant.
type Store interface {
	Organizations() Organizations
	Accounts() Accounts

	// Tenant returns the repositories scoped to one organization. The org ID
	// must come from a resolved tenant context; passing an unknown ID yields
	// repositories whose queries match nothing.
	Tenant(orgID string) TenantStore

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction, rolling back when fn returns
	// an error and committing otherwise. Preferred over Tx directly.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

// TenantStore exposes the repositories restricted to one organization.
// Relationship traversal inside these repositories always re-checks the
// organization (e.g. access tokens join through their client), so a row
// from another tenant is unreachable even with a valid-looking identifier.
type TenantStore interface {
	Clients() Clients
	SigningKeys() SigningKeys
	B2CUsers() B2CUsers
	B2BUsers() B2BUsers
	AuthorizationCodes() AuthorizationCodes
	AccessTokens() AccessTokens
	Challenges() Challenges
	PasskeyCredentials() PasskeyCredentials
	ExternalIdp() ExternalIdp
}

type Organizations interface {
	GetOrganizationByID(ctx context.Context, id string) (domain.Organization, error)

	// GetOrganizationByName resolves a tenant by its unique name. This is
	// the entry point for per-request tenant resolution.
	GetOrganizationByName(ctx context.Context, name string) (domain.Organization, error)

	CreateOrganization(ctx context.Context, org domain.Organization) error

	// ListOrganizations returns every tenant, oldest first. Used by
	// housekeeping to sweep each tenant in turn.
	ListOrganizations(ctx context.Context) ([]domain.Organization, error)

	// IsEmpty returns true if no organizations exist (bootstrap gate).
	IsEmpty(ctx context.Context) (bool, error)
}

type Accounts interface {
	GetAccountByID(ctx context.Context, id string) (domain.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (domain.Account, error)
	CreateAccount(ctx context.Context, a domain.Account) error

	// UpdateTOTPSecret stores a pending TOTP secret for an account.
	UpdateTOTPSecret(ctx context.Context, accountID, secret string) error

	// EnableTOTP marks TOTP as verified for an account.
	EnableTOTP(ctx context.Context, accountID string) error

	// DisableTOTP clears the secret and the enabled timestamp.
	DisableTOTP(ctx context.Context, accountID string) error
}

type Clients interface {
	GetClientByID(ctx context.Context, id string) (domain.Client, error)
	ListClients(ctx context.Context) ([]domain.Client, error)
	CreateClient(ctx context.Context, c domain.Client) error
	DeleteClient(ctx context.Context, clientID string) error
}

type SigningKeys interface {
	// CreateSigningKey stores a client's encrypted private key material.
	CreateSigningKey(ctx context.Context, key domain.SigningKey) error

	// GetSigningKeyByClientID fetches the key pair owned by one client.
	GetSigningKeyByClientID(ctx context.Context, clientID string) (domain.SigningKey, error)
}

type B2CUsers interface {
	GetB2CUserByID(ctx context.Context, id string) (domain.B2CUser, error)
	GetB2CUserByEmail(ctx context.Context, email string) (domain.B2CUser, error)
	CreateB2CUser(ctx context.Context, u domain.B2CUser) error
}

type B2BUsers interface {
	GetB2BUserByID(ctx context.Context, id string) (domain.B2BUser, error)
	GetB2BUserByUsername(ctx context.Context, username string) (domain.B2BUser, error)
	CreateB2BUser(ctx context.Context, u domain.B2BUser) error
}

type AuthorizationCodes interface {
	// CreateAuthorizationCode stores a freshly minted code. Fails with
	// ErrNotFound when the owning client is not in this tenant.
	CreateAuthorizationCode(ctx context.Context, code domain.AuthorizationCode) error

	// ConsumeAuthorizationCode atomically marks the code used and returns
	// its record. The mark-used and the value-read are a single unit: the
	// guard is a conditional update on used_at IS NULL plus expiry, client,
	// and redirect URI match, so concurrent redemptions of the same code
	// yield exactly one winner. Returns ErrNotFound when no such code
	// exists in this tenant and ErrAlreadyConsumed when the guard failed.
	ConsumeAuthorizationCode(ctx context.Context, codeHash, clientID, redirectURI string, now time.Time) (domain.AuthorizationCode, error)

	DeleteExpiredAuthorizationCodes(ctx context.Context, now time.Time) error
}

type AccessTokens interface {
	CreateAccessToken(ctx context.Context, t domain.AccessToken) error

	// GetAccessTokenByHash fetches a token by fingerprint. The lookup joins
	// through the owning client so tokens minted under another organization
	// are invisible here.
	GetAccessTokenByHash(ctx context.Context, hash string) (domain.AccessToken, error)

	DeleteExpiredAccessTokens(ctx context.Context, now time.Time) error
}

type Challenges interface {
	// PutChallenge stores a ceremony challenge, replacing any prior
	// unconsumed challenge for the same session ID.
	PutChallenge(ctx context.Context, ch domain.WebAuthnChallenge) error

	// ConsumeChallenge atomically fetches and deletes the challenge for a
	// session. Returns ErrNotFound when absent. Expiry is the caller's
	// check; the record is gone either way so a stale challenge can never
	// be retried.
	ConsumeChallenge(ctx context.Context, sessionID string) (domain.WebAuthnChallenge, error)

	DeleteExpiredChallenges(ctx context.Context, now time.Time) error
}

type PasskeyCredentials interface {
	CreatePasskeyCredential(ctx context.Context, c domain.PasskeyCredential) error
	GetPasskeyCredentialByID(ctx context.Context, credentialID string) (domain.PasskeyCredential, error)
	ListPasskeyCredentialsByUser(ctx context.Context, userID string) ([]domain.PasskeyCredential, error)

	// DeletePasskeyCredential removes one credential owned by userID.
	// Deleting an absent credential is not an error (idempotent revocation).
	DeletePasskeyCredential(ctx context.Context, userID, credentialID string) error

	// AdvanceSignCount sets the signature counter and last-used timestamp
	// guarded by the monotonicity rule: the update only applies when the
	// stored counter is strictly below newCount, or both are zero. Returns
	// ErrAlreadyConsumed when the guard fails (possible clone).
	AdvanceSignCount(ctx context.Context, credentialID string, newCount uint32, usedAt time.Time) error

	// FlagClone marks a credential as suspect after a counter regression.
	FlagClone(ctx context.Context, credentialID string) error
}

type ExternalIdp interface {
	// UpsertMapping links a B2C user to an upstream subject (unique per
	// user+provider).
	UpsertMapping(ctx context.Context, m domain.ExternalIdpMapping) error
	GetMappingByExternalSubject(ctx context.Context, provider, externalSubject string) (domain.ExternalIdpMapping, error)

	UpsertToken(ctx context.Context, t domain.ExternalIdpToken) error
	GetToken(ctx context.Context, userID, provider string) (domain.ExternalIdpToken, error)
	DeleteExpiredTokens(ctx context.Context, now time.Time) error
}
