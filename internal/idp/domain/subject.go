package domain

import "errors"

// SubjectType discriminates the three principal classes the server issues
// credentials for. Each type has its own backing store; the pair
// (SubjectType, SubjectID) is the only identity that crosses component
// boundaries.
type SubjectType string

const (
	// SubjectB2C is an end-customer user.
	SubjectB2C SubjectType = "b2c"

	// SubjectB2B is an organization-admin user authenticating with passkeys.
	SubjectB2B SubjectType = "b2b"

	// SubjectAccount is a platform administrator.
	SubjectAccount SubjectType = "account"
)

// ErrUnknownSubjectType reports a subject type outside the three variants.
var ErrUnknownSubjectType = errors.New("domain: unknown subject type")

// ParseSubjectType validates a wire-level subject type string.
func ParseSubjectType(s string) (SubjectType, error) {
	switch SubjectType(s) {
	case SubjectB2C, SubjectB2B, SubjectAccount:
		return SubjectType(s), nil
	default:
		return "", ErrUnknownSubjectType
	}
}

func (t SubjectType) String() string { return string(t) }

// Subject is the tagged principal reference embedded in authorization codes
// and tokens. The ID is the stable opaque subject identifier, never a
// username or email.
type Subject struct {
	Type SubjectType
	ID   string
}

// IsZero reports whether the subject is unset.
func (s Subject) IsZero() bool { return s.ID == "" }
