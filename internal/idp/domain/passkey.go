package domain

import "time"

// PasskeyCredential is one enrolled authenticator for a B2B user. The
// credential ID (base64url of the raw authenticator credential ID) is
// globally unique. SignCount never decreases for the lifetime of the
// record; the store advances it with a conditional update and a failed
// advance is treated as possible authenticator cloning.
type PasskeyCredential struct {
	CredentialID    string
	UserID          string // owning B2B subject
	PublicKey       []byte
	AttestationType string
	Transports      []string
	AAGUID          []byte // authenticator model identifier
	SignCount       uint32
	DeviceName      string
	CloneFlagged    bool
	CreatedAt       time.Time
	LastUsedAt      *time.Time
}
