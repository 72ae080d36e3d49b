package authsdk

import "encoding/json"

// ============================================================================
// Internal Response Types (used for JSON unmarshaling)
// ============================================================================

// ErrorResponse represents a standard OAuth2 error response per RFC 6749.
// This is used internally for parsing HTTP error responses.
// Client code should use the OAuth2Error type from errors.go instead.
type ErrorResponse struct {
	// Error is the OAuth2 error code (e.g., "invalid_request", "invalid_grant")
	Error string `json:"error"`

	// ErrorDescription is a human-readable description of the error
	ErrorDescription string `json:"error_description"`
}

// ============================================================================
// Token Types
// ============================================================================

// TokenResponse represents the OAuth2 token endpoint response per RFC 6749.
// This is returned from the POST /v1/oauth2/token endpoint.
type TokenResponse struct {
	// AccessToken is the opaque bearer token used to authenticate API requests
	AccessToken string `json:"access_token"`

	// IDToken is the RS256-signed OpenID Connect ID token for the subject
	IDToken string `json:"id_token,omitempty"`

	// TokenType is always "Bearer" per RFC 6749
	TokenType string `json:"token_type"`

	// ExpiresIn is the lifetime in seconds of the access token
	ExpiresIn int `json:"expires_in"`

	// Scope is the space-delimited list of scopes granted to this token
	Scope string `json:"scope,omitempty"`
}

// AuthorizeResponse is the JSON form of a successful authorization, returned
// instead of a 302 when the caller asks for application/json.
type AuthorizeResponse struct {
	// Code is the single-use authorization code
	Code string `json:"code"`

	// State echoes the client's state parameter verbatim
	State string `json:"state,omitempty"`

	// RedirectURI is the validated redirect target the code is bound to
	RedirectURI string `json:"redirect_uri"`
}

// ============================================================================
// User Types
// ============================================================================

// UserInfoResponse represents the userinfo endpoint response.
//
// This is returned from GET /v1/userinfo when a valid access token is
// provided in the Authorization header. Profile fields are filled per
// subject class; absent ones are omitted.
type UserInfoResponse struct {
	// Sub is the stable subject identifier
	Sub string `json:"sub"`

	// SubjectType is the subject class: "b2c", "b2b", or "account"
	SubjectType string `json:"subject_type"`

	// ClientID is the client the token was issued to
	ClientID string `json:"client_id"`

	// Scope is the space-delimited list of scopes on the token
	Scope string `json:"scope,omitempty"`

	Email    string `json:"email,omitempty"`
	Username string `json:"username,omitempty"`
	Name     string `json:"name,omitempty"`
	Org      string `json:"org,omitempty"`
}

// ============================================================================
// Bootstrap Types
// ============================================================================

// BootstrapRequest contains the data needed to bootstrap the server.
// It creates the first organization, its client, and an initial platform
// account during service initialization.
type BootstrapRequest struct {
	// OrgName is the unique name for the first organization
	OrgName string `json:"org_name"`

	// ClientName is the name for the initial OAuth2 client
	ClientName string `json:"client_name"`

	// RedirectURIs is the exact-match redirect URI allow-list for the client
	RedirectURIs []string `json:"redirect_uris"`

	// AllowedRPIDs is the WebAuthn relying-party ID allow-list for the client
	AllowedRPIDs []string `json:"allowed_rp_ids,omitempty"`

	// Scopes is the list of scopes the client may grant (defaults to
	// openid and profile)
	Scopes []string `json:"scopes,omitempty"`

	// ConfidentialClient generates and returns a client secret when true
	ConfidentialClient bool `json:"confidential_client,omitempty"`

	// AdminEmail is the email for the initial platform account
	AdminEmail string `json:"admin_email"`

	// AdminName is the display name for the initial platform account
	AdminName string `json:"admin_name,omitempty"`

	// AdminPassword is the password for the initial platform account
	AdminPassword string `json:"admin_password"`
}

// BootstrapResponse contains the IDs of the created organization, client,
// and platform account.
type BootstrapResponse struct {
	OrgID    string `json:"org_id"`
	ClientID string `json:"client_id"`

	// ClientSecret is the plaintext secret for a confidential client
	// (only returned once)
	ClientSecret string `json:"client_secret,omitempty"`

	AccountID string `json:"account_id"`
}

// ============================================================================
// Passkey Types
// ============================================================================

// PasskeyRegisterBeginRequest starts an attestation ceremony for a B2B user.
type PasskeyRegisterBeginRequest struct {
	ClientID string `json:"client_id"`

	// RPID is the relying-party ID; it must be on the client's allow-list
	RPID string `json:"rp_id"`

	UserID string `json:"user_id"`
}

// PasskeyLoginBeginRequest starts a discoverable assertion ceremony.
type PasskeyLoginBeginRequest struct {
	ClientID string `json:"client_id"`
	RPID     string `json:"rp_id"`
}

// BeginCeremonyResponse carries the challenge session and the WebAuthn
// options to hand to the browser's credential API.
type BeginCeremonyResponse struct {
	// SessionID keys the single-use challenge; the finish call must echo it
	SessionID string `json:"session_id"`

	// Options is the credential creation/request options JSON
	Options json.RawMessage `json:"options"`
}

// PasskeyRegisterFinishRequest completes an attestation ceremony.
type PasskeyRegisterFinishRequest struct {
	SessionID string `json:"session_id"`

	// DeviceName is an optional human label for the credential
	DeviceName string `json:"device_name,omitempty"`

	// Response is the browser's credential creation response JSON
	Response json.RawMessage `json:"response"`
}

// PasskeyLoginFinishRequest completes an assertion ceremony. The subject is
// resolved from the asserted credential; on success the server issues an
// authorization code for it directly.
type PasskeyLoginFinishRequest struct {
	SessionID string `json:"session_id"`

	// Response is the browser's credential assertion response JSON
	Response json.RawMessage `json:"response"`

	RedirectURI string `json:"redirect_uri"`
	Scope       string `json:"scope,omitempty"`
	State       string `json:"state,omitempty"`
}

// PasskeyCredential describes one enrolled credential.
type PasskeyCredential struct {
	CredentialID string `json:"credential_id"`
	DeviceName   string `json:"device_name,omitempty"`
	CreatedAt    string `json:"created_at"`
	LastUsedAt   string `json:"last_used_at,omitempty"`
}

// ListPasskeysResponse contains a user's enrolled credentials.
type ListPasskeysResponse struct {
	Credentials []PasskeyCredential `json:"credentials"`
}

// ============================================================================
// TOTP Types
// ============================================================================

// TOTPEnrollResponse represents the response from TOTP enrollment.
type TOTPEnrollResponse struct {
	Secret  string `json:"secret"`
	URL     string `json:"url"` // otpauth:// URL for QR rendering
	Issuer  string `json:"issuer"`
	Account string `json:"account"`
}

// TOTPVerifyRequest is the request to verify a TOTP code.
type TOTPVerifyRequest struct {
	Code string `json:"code"` // 6-digit TOTP code
}

// ============================================================================
// Health Types
// ============================================================================

// HealthResponse represents the response structure for the health endpoint.
type HealthResponse struct {
	// Status indicates the overall health status (e.g., "ok")
	Status string `json:"status"`
}
