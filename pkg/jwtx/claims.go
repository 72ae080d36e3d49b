package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// IDTokenClaims are the claims carried by a signed ID token. The profile
// fields differ per subject class: B2C subjects carry email, B2B subjects
// carry username and organization, platform accounts carry email only.
type IDTokenClaims struct {
	jwt.RegisteredClaims

	// SubjectType discriminates the principal class ("b2c", "b2b", "account").
	SubjectType string `json:"subject_type"`

	Email    string `json:"email,omitempty"`
	Username string `json:"username,omitempty"`
	Name     string `json:"name,omitempty"`

	// Org is the tenant name the subject belongs to. Empty for platform
	// accounts, which live above the tenant boundary.
	Org string `json:"org,omitempty"`

	// Scopes granted to the companion access token.
	Scopes []string `json:"scopes,omitempty"`
}

// NewIDTokenClaims builds the registered claim set for an ID token. The
// audience is always the single requesting client.
func NewIDTokenClaims(issuer, subject, clientID string, ttl time.Duration, now time.Time) IDTokenClaims {
	return IDTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{clientID},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
	}
}

// NewJTI returns a URL-safe random identifier for the "jti" claim.
func NewJTI() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand failing means the process is in no state to mint
		// tokens at all.
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
