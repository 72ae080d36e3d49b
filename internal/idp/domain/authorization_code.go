package domain

import "time"

// AuthorizationCode represents a single-use OAuth 2.0 code issuance. The
// opaque code value itself is never stored; CodeHash is its SHA-256
// fingerprint and the lookup key at redemption.
//
// UsedAt transitions nil -> non-nil exactly once. The store enforces this
// with a conditional update so concurrent redemptions produce one winner.
type AuthorizationCode struct {
	ID          string
	Subject     Subject
	ClientID    string
	CodeHash    string
	RedirectURI string
	Scopes      []string
	State       string // client-supplied state echoed back on redirect
	ExpiresAt   time.Time
	UsedAt      *time.Time
	CreatedAt   time.Time
}
