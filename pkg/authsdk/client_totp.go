package authsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
)

// EnrollTOTP starts TOTP enrolment for the authenticated platform account.
// The secret stays pending until a code is verified.
func (s *Session) EnrollTOTP(ctx context.Context) (*TOTPEnrollResponse, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodPost, "/v1/accounts/totp/enroll", nil, nil)
	if err != nil {
		return nil, err
	}

	var out TOTPEnrollResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyTOTP confirms the pending secret with a current code, enabling the
// second factor.
func (s *Session) VerifyTOTP(ctx context.Context, code string) error {
	payload, err := json.Marshal(TOTPVerifyRequest{Code: code})
	if err != nil {
		return err
	}

	resp, err := s.doAuthRequest(ctx, http.MethodPost, "/v1/accounts/totp/verify",
		bytes.NewReader(payload), map[string]string{"Content-Type": "application/json"})
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}

// DisableTOTP removes the second factor. A valid current code is required.
func (s *Session) DisableTOTP(ctx context.Context, code string) error {
	payload, err := json.Marshal(TOTPVerifyRequest{Code: code})
	if err != nil {
		return err
	}

	resp, err := s.doAuthRequest(ctx, http.MethodDelete, "/v1/accounts/totp",
		bytes.NewReader(payload), map[string]string{"Content-Type": "application/json"})
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}
