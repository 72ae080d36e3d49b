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

const bootstrapTokenHeader = "X-Bootstrap-Token"

// BootstrapHandler seeds the first organization, client and platform
// account on an empty system. The endpoint pretends not to exist when no
// bootstrap token is configured.
type BootstrapHandler struct {
	Bootstrap *service.BootstrapService
}

func (h *BootstrapHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	if h.Bootstrap.Token == "" {
		http.NotFound(w, r)
		return
	}

	var req authsdk.BootstrapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		authsdk.ErrInvalidFormBody.WriteError(w)
		return
	}

	result, err := h.Bootstrap.Bootstrap(ctx, r.Header.Get(bootstrapTokenHeader), service.BootstrapRequest{
		OrgName:            req.OrgName,
		ClientName:         req.ClientName,
		RedirectURIs:       req.RedirectURIs,
		AllowedRPIDs:       req.AllowedRPIDs,
		Scopes:             req.Scopes,
		ConfidentialClient: req.ConfidentialClient,
		AdminEmail:         req.AdminEmail,
		AdminName:          req.AdminName,
		AdminPassword:      req.AdminPassword,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrBootstrapAlready),
			errors.Is(err, service.ErrBootstrapUnauthorized):
			authsdk.NewOAuth2Error(http.StatusUnauthorized, authsdk.ErrorCodeAccessDenied,
				"bootstrap not permitted").WriteError(w)
		case errors.Is(err, service.ErrInvalidRequest):
			authsdk.ErrInvalidRequest.WriteError(w)
		default:
			log.Error("bootstrap failed", "err", err)
			authsdk.ErrServerError.WriteError(w)
		}
		return
	}

	log.Info("system bootstrapped", "org_id", result.OrgID, "client_id", result.ClientID)

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusCreated, authsdk.BootstrapResponse{
		OrgID:        result.OrgID,
		ClientID:     result.ClientID,
		ClientSecret: result.ClientSecret,
		AccountID:    result.AccountID,
	})
}
