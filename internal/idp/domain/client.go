package domain

import (
	"slices"
	"time"
)

// Client is an OAuth client application registered under one organization.
// Redirect URIs are matched exactly at code issuance and redemption, never
// by prefix. AllowedRPIDs is the allow-list of WebAuthn relying-party
// identifiers passkey ceremonies may be scoped to; it is empty for clients
// that do not use passkeys.
type Client struct {
	ID           string
	OrgID        string
	Name         string
	SecretHash   string
	RedirectURIs []string
	AllowedRPIDs []string
	Scopes       []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AllowsRedirectURI reports whether uri is one of the registered redirect
// URIs (exact string match).
func (c Client) AllowsRedirectURI(uri string) bool {
	return slices.Contains(c.RedirectURIs, uri)
}

// AllowsRPID reports whether rpID is allow-listed for passkey ceremonies.
func (c Client) AllowsRPID(rpID string) bool {
	return slices.Contains(c.AllowedRPIDs, rpID)
}
