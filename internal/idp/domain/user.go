package domain

import "time"

// B2CUser is an end-customer. B2C users authenticate with a password or
// through an external federated IdP (in which case PasswordHash is empty).
type B2CUser struct {
	ID           string // stable subject identifier
	OrgID        string
	Email        string
	DisplayName  string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// B2BUser is an organization administrator. B2B users sign in with passkeys;
// the password is a fallback used for first enrolment.
type B2BUser struct {
	ID           string // stable subject identifier
	OrgID        string
	Username     string
	DisplayName  string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Account is a platform administrator. Accounts live above the tenant
// boundary and may additionally enrol a TOTP second factor.
type Account struct {
	ID           string // stable subject identifier
	Email        string
	DisplayName  string
	PasswordHash string
	TOTPSecret   *string
	TOTPEnabled  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
