package service

import "errors"

// Service-level sentinel errors. The OAuth2-facing ones follow RFC 6749
// error codes; the WebAuthn ones name the ceremony failure precisely so
// handlers can map them without string matching. Everything a client should
// not learn about collapses to ErrInvalidGrant or ErrUnauthorized at the
// HTTP boundary.
var (
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrInvalidClient      = errors.New("invalid_client")
	ErrInvalidGrant       = errors.New("invalid_grant")
	ErrInvalidScope       = errors.New("invalid_scope")
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrUnauthorized       = errors.New("unauthorized")

	// ErrTenantUnresolved fails closed when a request cannot be pinned to
	// exactly one organization.
	ErrTenantUnresolved = errors.New("tenant_unresolved")

	// ErrOTPRequired signals that the account has TOTP enabled and the
	// authorize request carried no code.
	ErrOTPRequired = errors.New("otp_required")
	ErrInvalidOTP  = errors.New("invalid_otp")

	ErrRPIDNotAllowed     = errors.New("rp_id_not_allowed")
	ErrChallengeNotFound  = errors.New("challenge_not_found")
	ErrChallengeExpired   = errors.New("challenge_expired")
	ErrChallengeMismatch  = errors.New("challenge_mismatch")
	ErrAttestationInvalid = errors.New("attestation_invalid")
	ErrAssertionInvalid   = errors.New("assertion_invalid")
	ErrCredentialNotFound = errors.New("credential_not_found")

	// ErrPossibleCloneDetected is returned when an asserted signature
	// counter fails the monotonicity rule. The credential is flagged before
	// this is returned.
	ErrPossibleCloneDetected = errors.New("possible_clone_detected")
)
