package domain

import "time"

// AccessToken models a stored opaque bearer credential. TokenHash is the
// SHA-256 fingerprint of the opaque value and is globally unique. Expiry is
// always evaluated against wall-clock time at validation; nothing is cached.
type AccessToken struct {
	ID        string
	TokenHash string
	ClientID  string
	Subject   Subject
	Scopes    []string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// IsExpired reports whether the token is past its expiry at the given time.
func (t AccessToken) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// TokenSet is what the token endpoint returns: an opaque access token and a
// signed ID token.
type TokenSet struct {
	AccessToken string        `json:"access_token"`
	IDToken     string        `json:"id_token"`
	TokenType   string        `json:"token_type,omitempty"` // always "Bearer"
	ExpiresIn   time.Duration `json:"expires_in"`           // seconds until expiry
	Scope       string        `json:"scope,omitempty"`      // space-delimited
}
