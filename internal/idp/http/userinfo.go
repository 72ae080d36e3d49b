package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/quartzid/quartz/internal/idp/domain"
	"github.com/quartzid/quartz/internal/idp/store"
	"github.com/quartzid/quartz/pkg/authsdk"
	"github.com/quartzid/quartz/pkg/httpx"
	"github.com/quartzid/quartz/pkg/slogx"
)

// UserInfoHandler returns the authenticated subject's profile. Profile
// fields come from the subject's own backing store, resolved within the
// request's tenant.
type UserInfoHandler struct {
	Store store.Store
}

func (h *UserInfoHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	principal, ok := httpx.PrincipalFromContext(ctx)
	if !ok {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}
	orgID, ok := OrgIDFromContext(ctx)
	if !ok {
		authsdk.ErrTenantUnresolved.WriteError(w)
		return
	}

	response := authsdk.UserInfoResponse{
		Sub:         principal.SubjectID,
		SubjectType: principal.SubjectType,
		ClientID:    principal.ClientID,
		Scope:       strings.Join(principal.Scopes, " "),
	}

	if err := h.fillProfile(ctx, orgID, principal, &response); err != nil {
		log.Warn("failed to load subject profile",
			"subject_type", principal.SubjectType, "subject_id", principal.SubjectID, "err", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, response)
}

func (h *UserInfoHandler) fillProfile(ctx context.Context, orgID string, p httpx.Principal, out *authsdk.UserInfoResponse) error {
	tenant := h.Store.Tenant(orgID)

	switch domain.SubjectType(p.SubjectType) {
	case domain.SubjectB2C:
		user, err := tenant.B2CUsers().GetB2CUserByID(ctx, p.SubjectID)
		if err != nil {
			return err
		}
		out.Email = user.Email
		out.Name = user.DisplayName
	case domain.SubjectB2B:
		user, err := tenant.B2BUsers().GetB2BUserByID(ctx, p.SubjectID)
		if err != nil {
			return err
		}
		out.Username = user.Username
		out.Name = user.DisplayName
	case domain.SubjectAccount:
		account, err := h.Store.Accounts().GetAccountByID(ctx, p.SubjectID)
		if err != nil {
			return err
		}
		out.Email = account.Email
		out.Name = account.DisplayName
		// Accounts live above the tenant boundary; no org claim.
		return nil
	default:
		return domain.ErrUnknownSubjectType
	}

	org, err := h.Store.Organizations().GetOrganizationByID(ctx, orgID)
	if err != nil {
		return err
	}
	out.Org = org.Name
	return nil
}
