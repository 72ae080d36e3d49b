package http

import (
	"net/http"
	"time"

	"github.com/quartzid/quartz/internal/idp/domain"
	"github.com/quartzid/quartz/internal/idp/service"
	"github.com/quartzid/quartz/pkg/authsdk"
	"github.com/quartzid/quartz/pkg/httpx"
	"github.com/quartzid/quartz/pkg/slogx"
)

// PasskeyHandler manages a signed-in B2B user's registered credentials.
type PasskeyHandler struct {
	Passkeys *service.PasskeyService
}

func (h *PasskeyHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	orgID, principal, ok := requireB2BPrincipal(w, r)
	if !ok {
		return
	}

	summaries, err := h.Passkeys.ListCredentials(ctx, orgID, principal.SubjectID)
	if err != nil {
		slogx.FromContext(ctx).Error("failed to list passkeys", "err", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	credentials := make([]authsdk.PasskeyCredential, 0, len(summaries))
	for _, s := range summaries {
		credentials = append(credentials, credentialToResponse(s))
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, authsdk.ListPasskeysResponse{Credentials: credentials})
}

func (h *PasskeyHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	orgID, principal, ok := requireB2BPrincipal(w, r)
	if !ok {
		return
	}

	credentialID := r.PathValue("credential_id")
	if credentialID == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	if err := h.Passkeys.DeleteCredential(ctx, orgID, principal.SubjectID, credentialID); err != nil {
		slogx.FromContext(ctx).Error("failed to delete passkey", "credential_id", credentialID, "err", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// requireB2BPrincipal resolves the tenant and the bearer principal and
// rejects subjects that cannot own passkeys.
func requireB2BPrincipal(w http.ResponseWriter, r *http.Request) (string, httpx.Principal, bool) {
	orgID, ok := OrgIDFromContext(r.Context())
	if !ok {
		authsdk.ErrTenantUnresolved.WriteError(w)
		return "", httpx.Principal{}, false
	}
	principal, ok := httpx.PrincipalFromContext(r.Context())
	if !ok {
		authsdk.ErrInvalidToken.WriteError(w)
		return "", httpx.Principal{}, false
	}
	if domain.SubjectType(principal.SubjectType) != domain.SubjectB2B {
		authsdk.ErrAccessDenied.WriteError(w)
		return "", httpx.Principal{}, false
	}
	return orgID, principal, true
}

func credentialToResponse(s service.CredentialSummary) authsdk.PasskeyCredential {
	out := authsdk.PasskeyCredential{
		CredentialID: s.CredentialID,
		DeviceName:   s.DeviceName,
		CreatedAt:    s.CreatedAt.Format(time.RFC3339),
	}
	if s.LastUsedAt != nil {
		out.LastUsedAt = s.LastUsedAt.Format(time.RFC3339)
	}
	return out
}
