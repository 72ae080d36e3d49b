package http

import (
	"errors"
	"net/http"

	"github.com/quartzid/quartz/internal/idp/service"
	"github.com/quartzid/quartz/pkg/authsdk"
	"github.com/quartzid/quartz/pkg/httpx"
	"github.com/quartzid/quartz/pkg/slogx"
)

// FederationHandler receives the upstream OIDC redirect and converts the
// upstream code into a local authorization code for the tenant.
type FederationHandler struct {
	Federation *service.FederationService
}

func (h *FederationHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	orgID, ok := OrgIDFromContext(ctx)
	if !ok {
		authsdk.ErrTenantUnresolved.WriteError(w)
		return
	}

	query := r.URL.Query()
	req := service.FederationCallbackRequest{
		Provider:    r.PathValue("provider"),
		Code:        query.Get("code"),
		ClientID:    query.Get("client_id"),
		RedirectURI: query.Get("redirect_uri"),
		Scopes:      httpx.ParseSpaceDelimitedFields(query.Get("scope")),
		State:       query.Get("state"),
	}

	result, err := h.Federation.Callback(ctx, orgID, req)
	if err != nil {
		h.writeError(w, r, req, err)
		return
	}

	if wantsJSON(r) {
		httpx.NoCache(w)
		httpx.WriteJSON(w, http.StatusOK, authsdk.AuthorizeResponse{
			Code:        result.Code,
			State:       result.State,
			RedirectURI: result.RedirectURI,
		})
		return
	}

	location, err := buildAuthorizeRedirect(result.RedirectURI, result.Code, result.State)
	if err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}
	httpx.NoCache(w)
	http.Redirect(w, r, location, http.StatusFound)
}

func (h *FederationHandler) writeError(w http.ResponseWriter, r *http.Request, req service.FederationCallbackRequest, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		authsdk.ErrInvalidRequest.WriteError(w)
	case errors.Is(err, service.ErrInvalidClient):
		authsdk.ErrInvalidClient.WriteError(w)
	case errors.Is(err, service.ErrInvalidScope):
		authsdk.ErrInvalidScope.WriteError(w)
	case errors.Is(err, service.ErrUnauthorized):
		authsdk.ErrAccessDenied.WriteError(w)
	default:
		slogx.FromContext(r.Context()).Error("federation callback failed",
			"provider", req.Provider, "err", err)
		authsdk.ErrServerError.WriteError(w)
	}
}
