package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/quartzid/quartz/internal/idp/domain"
	"github.com/quartzid/quartz/internal/idp/service"
	"github.com/quartzid/quartz/pkg/authsdk"
	"github.com/quartzid/quartz/pkg/httpx"
	"github.com/quartzid/quartz/pkg/slogx"
)

// AccountTOTPHandler manages TOTP enrollment for platform accounts. Only
// the account subject class may enroll; tenant users never carry TOTP.
type AccountTOTPHandler struct {
	TOTP *service.AccountTOTPService
}

func (h *AccountTOTPHandler) HandleEnroll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	principal, ok := requireAccountPrincipal(w, r)
	if !ok {
		return
	}

	enrollment, err := h.TOTP.EnrollTOTP(ctx, principal.SubjectID)
	if err != nil {
		writeTOTPError(w, r, err)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, authsdk.TOTPEnrollResponse{
		Secret:  enrollment.Secret,
		URL:     enrollment.URL,
		Issuer:  enrollment.Issuer,
		Account: enrollment.Account,
	})
}

func (h *AccountTOTPHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	principal, ok := requireAccountPrincipal(w, r)
	if !ok {
		return
	}

	code, ok := decodeTOTPCode(w, r)
	if !ok {
		return
	}

	if err := h.TOTP.VerifyTOTP(ctx, principal.SubjectID, code); err != nil {
		writeTOTPError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AccountTOTPHandler) HandleDisable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	principal, ok := requireAccountPrincipal(w, r)
	if !ok {
		return
	}

	code, ok := decodeTOTPCode(w, r)
	if !ok {
		return
	}

	if err := h.TOTP.DisableTOTP(ctx, principal.SubjectID, code); err != nil {
		writeTOTPError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func requireAccountPrincipal(w http.ResponseWriter, r *http.Request) (httpx.Principal, bool) {
	principal, ok := httpx.PrincipalFromContext(r.Context())
	if !ok {
		authsdk.ErrInvalidToken.WriteError(w)
		return httpx.Principal{}, false
	}
	if domain.SubjectType(principal.SubjectType) != domain.SubjectAccount {
		authsdk.ErrAccessDenied.WriteError(w)
		return httpx.Principal{}, false
	}
	return principal, true
}

func decodeTOTPCode(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req authsdk.TOTPVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		authsdk.ErrInvalidFormBody.WriteError(w)
		return "", false
	}
	if req.Code == "" {
		authsdk.NewOAuth2Error(http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest,
			"code is required").WriteError(w)
		return "", false
	}
	return req.Code, true
}

func writeTOTPError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrTOTPAlreadyEnabled):
		authsdk.NewOAuth2Error(http.StatusConflict, "totp_already_enabled",
			"totp is already enabled for this account").WriteError(w)
	case errors.Is(err, service.ErrTOTPNotEnrolled):
		authsdk.NewOAuth2Error(http.StatusConflict, "totp_not_enrolled",
			"no pending or active totp enrollment").WriteError(w)
	case errors.Is(err, service.ErrInvalidOTP):
		authsdk.NewOAuth2Error(http.StatusBadRequest, "invalid_otp",
			"the provided code is not valid").WriteError(w)
	default:
		slogx.FromContext(r.Context()).Error("totp operation failed", "err", err)
		authsdk.ErrServerError.WriteError(w)
	}
}
