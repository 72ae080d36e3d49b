package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/quartzid/quartz/internal/idp/store"
	"github.com/quartzid/quartz/pkg/authsdk"
	"github.com/quartzid/quartz/pkg/httpx"
	"github.com/quartzid/quartz/pkg/slogx"
)

// orgHeader names the tenant on every tenant-scoped request.
const orgHeader = "X-Org-ID"

type tenantCtxKey struct{}

// OrgIDFromContext returns the resolved organization ID for the request.
// It is only present after TenantMiddleware ran.
func OrgIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(tenantCtxKey{}).(string)
	return id, ok
}

// TenantMiddleware resolves the organization exactly once per request, from
// the X-Org-ID header or the org query parameter, accepting either the
// organization's ID or its unique name. Resolution fails closed: a missing
// or unknown organization is a 403, never a fall-through to some default
// tenant. Handlers downstream read the immutable result off the context.
func TenantMiddleware(st store.Store) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			ref := strings.TrimSpace(r.Header.Get(orgHeader))
			if ref == "" {
				ref = strings.TrimSpace(r.URL.Query().Get("org"))
			}
			if ref == "" {
				authsdk.ErrTenantUnresolved.WriteError(w)
				return
			}

			org, err := st.Organizations().GetOrganizationByID(ctx, ref)
			if errors.Is(err, store.ErrNotFound) {
				org, err = st.Organizations().GetOrganizationByName(ctx, ref)
			}
			if err != nil {
				if !errors.Is(err, store.ErrNotFound) {
					slogx.FromContext(ctx).Error("tenant resolution failed", "err", err)
				}
				authsdk.ErrTenantUnresolved.WriteError(w)
				return
			}

			ctx = context.WithValue(ctx, tenantCtxKey{}, org.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
