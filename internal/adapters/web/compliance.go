package web

import (
	"context"
	"net/http"

	"erp-server/internal/core"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func (h *Handler) complianceRoutes(r chi.Router) {
	c := h.svc.Compliance

	r.Get("/stats", h.complianceStats)
	r.Route("/data-subjects", func(r chi.Router) {
		mountResource(r, h, c.ListSubjects, c.CreateSubject, c.GetSubject)
	})
	r.Route("/consents", func(r chi.Router) {
		r.Get("/", listHandler(h, c.ListConsents))
		r.Post("/", createHandler(h, c.CreateConsent))
		r.Post("/{id}/withdraw", actionHandler(h, c.WithdrawConsent))
	})
	r.Route("/dsars", func(r chi.Router) {
		mountResource(r, h, c.ListDSARs, c.CreateDSAR, c.GetDSAR)
		r.Post("/{id}/complete", bodyActionHandler(h, func(ctx context.Context, id uuid.UUID, in dsarResponse) (core.DSAR, error) {
			return c.CompleteDSAR(ctx, id, in.Response)
		}))
	})
	r.Route("/breaches", func(r chi.Router) {
		mountResource(r, h, c.ListBreaches, c.CreateBreach, c.GetBreach)
	})
}

type dsarResponse struct {
	Response string `json:"response"`
}

func (h *Handler) complianceStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Compliance.Stats(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
