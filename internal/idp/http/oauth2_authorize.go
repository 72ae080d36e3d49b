package http

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/quartzid/quartz/internal/idp/domain"
	"github.com/quartzid/quartz/internal/idp/service"
	"github.com/quartzid/quartz/pkg/authsdk"
	"github.com/quartzid/quartz/pkg/httpx"
	"github.com/quartzid/quartz/pkg/slogx"
)

// AuthorizeHandler processes OAuth2 authorization requests (authorization
// code flow). There is no session layer: POST carries the subject's
// credentials directly, and passkey logins get their code from the ceremony
// finish endpoint instead.
type AuthorizeHandler struct {
	AuthorizeService *service.AuthorizeService
}

// HandleGet starts the flow from a browser redirect. Without a credential
// there is nothing to authenticate yet, so the request parameters are echoed
// back with login_required for the client to render its login step.
func (h *AuthorizeHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	payload := map[string]any{
		"error":             "login_required",
		"error_description": "user authentication required",
		"response_type":     query.Get("response_type"),
		"client_id":         query.Get("client_id"),
		// Note: this redirect_uri has not been validated at this point
		"redirect_uri": query.Get("redirect_uri"),
	}
	if scope := strings.TrimSpace(query.Get("scope")); scope != "" {
		payload["scope"] = scope
	}
	if state := query.Get("state"); state != "" {
		payload["state"] = state
	}
	httpx.WriteJSON(w, http.StatusUnauthorized, payload)
}

// HandlePost authenticates the submitted credentials and issues the
// authorization code.
func (h *AuthorizeHandler) HandlePost(w http.ResponseWriter, r *http.Request) {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/x-www-form-urlencoded") {
		authsdk.ErrInvalidContentType.WriteError(w)
		return
	}
	if err := r.ParseForm(); err != nil {
		authsdk.ErrInvalidFormBody.WriteError(w)
		return
	}

	orgID, ok := OrgIDFromContext(r.Context())
	if !ok {
		authsdk.ErrTenantUnresolved.WriteError(w)
		return
	}

	if rt := pick(r.Form, r.URL.Query(), "response_type"); rt != "" && rt != "code" {
		authsdk.ErrUnsupportedResponseType.WriteError(w)
		return
	}

	subjectType, err := domain.ParseSubjectType(pickDefault(r.Form, r.URL.Query(), "subject_type", string(domain.SubjectB2C)))
	if err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	req := service.AuthorizeRequest{
		ClientID:    pick(r.Form, r.URL.Query(), "client_id"),
		RedirectURI: pick(r.Form, r.URL.Query(), "redirect_uri"),
		Scopes:      httpx.ParseSpaceDelimitedFields(pick(r.Form, r.URL.Query(), "scope")),
		State:       pick(r.Form, r.URL.Query(), "state"),
		SubjectType: subjectType,
		Identifier:  strings.TrimSpace(r.Form.Get("username")),
		Password:    r.Form.Get("password"),
		OTPCode:     strings.TrimSpace(r.Form.Get("otp_code")),
	}

	result, err := h.AuthorizeService.AuthorizePassword(r.Context(), orgID, req)
	if err != nil {
		writeAuthorizeError(w, r, req.RedirectURI, req.State, err)
		return
	}

	writeAuthorizeResult(w, r, result)
}

// writeAuthorizeResult answers with JSON when the caller asked for it and a
// 302 to the validated redirect URI otherwise.
func writeAuthorizeResult(w http.ResponseWriter, r *http.Request, result *service.AuthorizeResult) {
	if wantsJSON(r) {
		httpx.WriteJSON(w, http.StatusOK, authsdk.AuthorizeResponse{
			Code:        result.Code,
			State:       result.State,
			RedirectURI: result.RedirectURI,
		})
		return
	}

	redirectURL, err := buildAuthorizeRedirect(result.RedirectURI, result.Code, result.State)
	if err != nil {
		slogx.FromContext(r.Context()).Error("failed to build redirect URL", "err", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}
	http.Redirect(w, r, redirectURL, http.StatusFound)
}

func writeAuthorizeError(w http.ResponseWriter, r *http.Request, redirectURI, state string, err error) {
	log := slogx.FromContext(r.Context())

	// Per RFC 6749 §3.1.2.3 an invalid redirect URI must never be
	// redirected to; the error stays with the user agent.
	if errors.Is(err, service.ErrInvalidRequest) {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	var oauthError *authsdk.OAuth2Error
	switch {
	case errors.Is(err, service.ErrInvalidClient):
		oauthError = authsdk.ErrInvalidClient
	case errors.Is(err, service.ErrInvalidScope):
		oauthError = authsdk.ErrInvalidScope
	case errors.Is(err, service.ErrInvalidCredentials), errors.Is(err, service.ErrInvalidOTP):
		oauthError = authsdk.ErrInvalidGrant
	case errors.Is(err, service.ErrOTPRequired):
		// The credentials were right but the account needs its second
		// factor; 409 so clients can prompt and resubmit.
		httpx.WriteJSON(w, http.StatusConflict, map[string]any{
			"error":             "otp_required",
			"error_description": "a one-time code is required to complete authentication",
		})
		return
	default:
		log.Error("authorize request failed", "err", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	// Credential failures carry no secret; OAuth2 wants them surfaced on the
	// redirect URI when one was supplied and the caller is a browser.
	if redirectURI != "" && !wantsJSON(r) {
		if redirectURL := buildErrorRedirect(redirectURI, state, oauthError); redirectURL != "" {
			http.Redirect(w, r, redirectURL, http.StatusFound)
			return
		}
	}

	oauthError.WriteError(w)
}

// wantsJSON reports whether the caller prefers a JSON body over a redirect.
func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

// pick reads a parameter from the form body first, the query second.
func pick(primary, secondary url.Values, key string) string {
	if v := strings.TrimSpace(primary.Get(key)); v != "" {
		return v
	}
	return strings.TrimSpace(secondary.Get(key))
}

func pickDefault(primary, secondary url.Values, key, def string) string {
	if v := pick(primary, secondary, key); v != "" {
		return v
	}
	return def
}

// buildAuthorizeRedirect constructs a redirect URL for a successful authorization.
func buildAuthorizeRedirect(baseURI, code, state string) (string, error) {
	u, err := url.Parse(baseURI)
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("code", code)
	if state != "" {
		q.Set("state", state)
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// buildErrorRedirect constructs a redirect URL for an OAuth2 error.
// It returns an empty string if the baseURI is invalid.
func buildErrorRedirect(baseURI, state string, oauthError *authsdk.OAuth2Error) string {
	u, err := url.Parse(baseURI)
	if err != nil {
		return ""
	}

	q := u.Query()
	q.Set("error", oauthError.Code)
	if oauthError.Description != "" {
		q.Set("error_description", oauthError.Description)
	}
	if state != "" {
		q.Set("state", state)
	}
	u.RawQuery = q.Encode()

	return u.String()
}
