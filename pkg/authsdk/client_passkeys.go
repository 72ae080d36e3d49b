package authsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// BeginPasskeyRegistration starts an attestation ceremony for a B2B user.
func (c *SDKClient) BeginPasskeyRegistration(ctx context.Context, req PasskeyRegisterBeginRequest) (*BeginCeremonyResponse, error) {
	return c.beginCeremony(ctx, "/v1/passkeys/register/begin", req)
}

// FinishPasskeyRegistration completes the attestation ceremony and enrols
// the credential.
func (c *SDKClient) FinishPasskeyRegistration(ctx context.Context, req PasskeyRegisterFinishRequest) (*PasskeyCredential, error) {
	resp, err := c.postJSON(ctx, "/v1/passkeys/register/finish", req)
	if err != nil {
		return nil, err
	}

	var out PasskeyCredential
	if err := decodeJSON(resp, &out, http.StatusCreated); err != nil {
		return nil, err
	}
	return &out, nil
}

// BeginPasskeyLogin starts a discoverable assertion ceremony.
func (c *SDKClient) BeginPasskeyLogin(ctx context.Context, req PasskeyLoginBeginRequest) (*BeginCeremonyResponse, error) {
	return c.beginCeremony(ctx, "/v1/passkeys/login/begin", req)
}

// FinishPasskeyLogin completes the assertion ceremony. On success the
// resolved subject's authorization code comes back directly.
func (c *SDKClient) FinishPasskeyLogin(ctx context.Context, req PasskeyLoginFinishRequest) (*AuthorizeResponse, error) {
	resp, err := c.postJSON(ctx, "/v1/passkeys/login/finish", req)
	if err != nil {
		return nil, err
	}

	var out AuthorizeResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListPasskeys returns the authenticated B2B user's enrolled credentials.
func (s *Session) ListPasskeys(ctx context.Context) (*ListPasskeysResponse, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodGet, "/v1/passkeys", nil, nil)
	if err != nil {
		return nil, err
	}

	var out ListPasskeysResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeletePasskey revokes one credential. Deleting an already-revoked
// credential succeeds.
func (s *Session) DeletePasskey(ctx context.Context, credentialID string) error {
	resp, err := s.doAuthRequest(ctx, http.MethodDelete, "/v1/passkeys/"+credentialID, nil, nil)
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}

func (c *SDKClient) beginCeremony(ctx context.Context, path string, req any) (*BeginCeremonyResponse, error) {
	resp, err := c.postJSON(ctx, path, req)
	if err != nil {
		return nil, err
	}

	var out BeginCeremonyResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *SDKClient) postJSON(ctx context.Context, path string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	return c.doRequest(ctx, http.MethodPost, path, bytes.NewReader(payload), map[string]string{
		"Content-Type": "application/json",
	})
}
