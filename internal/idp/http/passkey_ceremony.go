package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/quartzid/quartz/internal/idp/service"
	"github.com/quartzid/quartz/pkg/authsdk"
	"github.com/quartzid/quartz/pkg/httpx"
	"github.com/quartzid/quartz/pkg/slogx"
)

// PasskeyCeremonyHandler hosts the four WebAuthn ceremony endpoints. Begin
// endpoints hand out single-use sessions; finish endpoints consume them.
type PasskeyCeremonyHandler struct {
	Passkeys *service.PasskeyService
}

func (h *PasskeyCeremonyHandler) HandleRegisterBegin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	orgID, ok := OrgIDFromContext(ctx)
	if !ok {
		authsdk.ErrTenantUnresolved.WriteError(w)
		return
	}

	var req authsdk.PasskeyRegisterBeginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		authsdk.ErrInvalidFormBody.WriteError(w)
		return
	}
	if req.ClientID == "" || req.RPID == "" || req.UserID == "" {
		authsdk.NewOAuth2Error(http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest,
			"client_id, rp_id and user_id are required").WriteError(w)
		return
	}

	result, err := h.Passkeys.BeginRegistration(ctx, orgID, req.ClientID, req.RPID, req.UserID)
	if err != nil {
		writeCeremonyError(w, r, err)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, authsdk.BeginCeremonyResponse{
		SessionID: result.SessionID,
		Options:   result.OptionsJSON,
	})
}

func (h *PasskeyCeremonyHandler) HandleRegisterFinish(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	orgID, ok := OrgIDFromContext(ctx)
	if !ok {
		authsdk.ErrTenantUnresolved.WriteError(w)
		return
	}

	var req authsdk.PasskeyRegisterFinishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		authsdk.ErrInvalidFormBody.WriteError(w)
		return
	}
	if req.SessionID == "" || len(req.Response) == 0 {
		authsdk.NewOAuth2Error(http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest,
			"session_id and response are required").WriteError(w)
		return
	}

	summary, err := h.Passkeys.FinishRegistration(ctx, orgID, req.SessionID, req.DeviceName, req.Response)
	if err != nil {
		writeCeremonyError(w, r, err)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusCreated, credentialToResponse(*summary))
}

func (h *PasskeyCeremonyHandler) HandleLoginBegin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	orgID, ok := OrgIDFromContext(ctx)
	if !ok {
		authsdk.ErrTenantUnresolved.WriteError(w)
		return
	}

	var req authsdk.PasskeyLoginBeginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		authsdk.ErrInvalidFormBody.WriteError(w)
		return
	}
	if req.ClientID == "" || req.RPID == "" {
		authsdk.NewOAuth2Error(http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest,
			"client_id and rp_id are required").WriteError(w)
		return
	}

	result, err := h.Passkeys.BeginLogin(ctx, orgID, req.ClientID, req.RPID)
	if err != nil {
		writeCeremonyError(w, r, err)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, authsdk.BeginCeremonyResponse{
		SessionID: result.SessionID,
		Options:   result.OptionsJSON,
	})
}

// HandleLoginFinish completes a discoverable login and, on success, issues
// an authorization code bound to the session's client.
func (h *PasskeyCeremonyHandler) HandleLoginFinish(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	orgID, ok := OrgIDFromContext(ctx)
	if !ok {
		authsdk.ErrTenantUnresolved.WriteError(w)
		return
	}

	var req authsdk.PasskeyLoginFinishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		authsdk.ErrInvalidFormBody.WriteError(w)
		return
	}
	if req.SessionID == "" || len(req.Response) == 0 {
		authsdk.NewOAuth2Error(http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest,
			"session_id and response are required").WriteError(w)
		return
	}

	result, err := h.Passkeys.FinishLogin(ctx, orgID, req.SessionID, req.Response, service.AuthorizeRequest{
		RedirectURI: req.RedirectURI,
		Scopes:      httpx.ParseSpaceDelimitedFields(req.Scope),
		State:       req.State,
	})
	if err != nil {
		writeCeremonyError(w, r, err)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, authsdk.AuthorizeResponse{
		Code:        result.Code,
		State:       result.State,
		RedirectURI: result.RedirectURI,
	})
}

func writeCeremonyError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrRPIDNotAllowed):
		authsdk.NewOAuth2Error(http.StatusBadRequest, "rp_id_not_allowed",
			"relying party id is not allow-listed for this client").WriteError(w)
	case errors.Is(err, service.ErrChallengeNotFound):
		authsdk.NewOAuth2Error(http.StatusBadRequest, "challenge_not_found",
			"unknown or already used ceremony session").WriteError(w)
	case errors.Is(err, service.ErrChallengeExpired):
		authsdk.NewOAuth2Error(http.StatusBadRequest, "challenge_expired",
			"ceremony session has expired").WriteError(w)
	case errors.Is(err, service.ErrChallengeMismatch):
		authsdk.NewOAuth2Error(http.StatusBadRequest, "challenge_mismatch",
			"response does not match the issued challenge").WriteError(w)
	case errors.Is(err, service.ErrAttestationInvalid):
		authsdk.NewOAuth2Error(http.StatusBadRequest, "attestation_invalid",
			"attestation response failed verification").WriteError(w)
	case errors.Is(err, service.ErrAssertionInvalid):
		authsdk.NewOAuth2Error(http.StatusBadRequest, "assertion_invalid",
			"assertion response failed verification").WriteError(w)
	case errors.Is(err, service.ErrPossibleCloneDetected):
		authsdk.NewOAuth2Error(http.StatusForbidden, "possible_clone_detected",
			"authenticator signature counter regressed").WriteError(w)
	case errors.Is(err, service.ErrCredentialNotFound):
		authsdk.NewOAuth2Error(http.StatusBadRequest, "credential_not_found",
			"no matching credential for this tenant").WriteError(w)
	case errors.Is(err, service.ErrUnauthorized):
		authsdk.NewOAuth2Error(http.StatusBadRequest, "user_not_found",
			"unknown user").WriteError(w)
	case errors.Is(err, service.ErrInvalidClient):
		authsdk.ErrInvalidClient.WriteError(w)
	case errors.Is(err, service.ErrInvalidRequest):
		authsdk.ErrInvalidRequest.WriteError(w)
	default:
		slogx.FromContext(r.Context()).Error("passkey ceremony failed", "err", err)
		authsdk.ErrServerError.WriteError(w)
	}
}
