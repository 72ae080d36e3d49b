package domain

import "time"

// CeremonyType discriminates the two WebAuthn ceremonies.
type CeremonyType string

const (
	CeremonyRegistration   CeremonyType = "registration"
	CeremonyAuthentication CeremonyType = "authentication"
)

// WebAuthnChallenge is a single-use ceremony nonce keyed by session ID.
// At most one live challenge exists per session; issuing a new one replaces
// any prior unconsumed record. SessionData holds the serialized webauthn
// session (challenge bytes, user handle, flags) produced at ceremony begin.
//
// SubjectID is empty for authentication ceremonies, where the subject is
// only known after the assertion resolves a credential.
type WebAuthnChallenge struct {
	SessionID   string
	Ceremony    CeremonyType
	SubjectType SubjectType
	SubjectID   string
	RPID        string
	ClientID    string
	SessionData []byte
	ExpiresAt   time.Time
	CreatedAt   time.Time
}
