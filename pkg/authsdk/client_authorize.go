package authsdk

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// PasswordAuthorizeRequest carries the parameters for a direct credential
// authorization. SubjectType picks the principal class: "b2c" and "account"
// identify by email, "b2b" by username.
type PasswordAuthorizeRequest struct {
	ClientID    string
	RedirectURI string
	Scopes      []string
	State       string

	SubjectType string
	Identifier  string
	Password    string
	OTPCode     string
}

// PasswordAuthorize authenticates with credentials and returns the issued
// authorization code. The request asks for application/json, so the server
// answers with the code payload instead of a 302.
func (c *SDKClient) PasswordAuthorize(ctx context.Context, req PasswordAuthorizeRequest) (*AuthorizeResponse, error) {
	form := url.Values{}
	form.Set("response_type", "code")
	form.Set("client_id", req.ClientID)
	form.Set("redirect_uri", req.RedirectURI)
	form.Set("subject_type", req.SubjectType)
	form.Set("username", req.Identifier)
	form.Set("password", req.Password)
	if len(req.Scopes) > 0 {
		form.Set("scope", strings.Join(req.Scopes, " "))
	}
	if req.State != "" {
		form.Set("state", req.State)
	}
	if req.OTPCode != "" {
		form.Set("otp_code", req.OTPCode)
	}

	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/oauth2/authorize",
		strings.NewReader(form.Encode()), map[string]string{
			"Content-Type": "application/x-www-form-urlencoded",
			"Accept":       "application/json",
		})
	if err != nil {
		return nil, err
	}

	var out AuthorizeResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}
