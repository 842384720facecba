package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/transform"
)

func (h *Handler) showDashboard(w http.ResponseWriter, r *http.Request) {
	s, err := h.Dashboard.Summary(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, func(e *jx.Encoder) { transform.Dashboard(e, s) })
}
