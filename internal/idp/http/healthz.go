package http

import (
	"net/http"

	"github.com/quartzid/quartz/internal/idp/store"
	"github.com/quartzid/quartz/pkg/authsdk"
	"github.com/quartzid/quartz/pkg/httpx"
	"github.com/quartzid/quartz/pkg/slogx"
)

type HealthHandler struct {
	Store store.Store
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		slogx.FromContext(r.Context()).Error("health check failed", "err", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.HealthResponse{Status: "ok"})
}
