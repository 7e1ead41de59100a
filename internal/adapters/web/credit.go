package web

import (
	"context"
	"net/http"

	"erp-server/internal/core"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type holdBody struct {
	Reason string `json:"reason"`
}

type releaseBody struct {
	OverrideReason string `json:"override_reason"`
}

// creditRoutes keys profiles by customer id; {id} below is always a customer.
func (h *Handler) creditRoutes(r chi.Router) {
	c := h.svc.Credit

	r.Get("/summary", h.creditSummary)
	r.Get("/on-hold", listHandler(h, c.OnHold))
	r.Get("/high-risk", listHandler(h, c.HighRisk))
	r.Get("/alerts", listHandler(h, c.Alerts))
	r.Post("/check", h.creditCheck)

	r.Route("/profiles", func(r chi.Router) {
		r.Get("/", listHandler(h, c.ListProfiles))
		r.Get("/{id}", getHandler(h, c.GetProfile))
		r.Get("/{id}/transactions", subListHandler(h, c.Transactions))
		r.Get("/{id}/holds", subListHandler(h, c.Holds))
		r.Get("/{id}/limit-changes", subListHandler(h, c.LimitChanges))
		r.Put("/{id}/limit", bodyActionHandler(h, c.UpdateLimit))
		r.Post("/{id}/hold", bodyActionHandler(h, func(ctx context.Context, id uuid.UUID, in holdBody) (core.CreditHold, error) {
			return c.PlaceHold(ctx, id, in.Reason)
		}))
		r.Post("/{id}/release", bodyActionHandler(h, func(ctx context.Context, id uuid.UUID, in releaseBody) (core.CreditHold, error) {
			return c.ReleaseHold(ctx, id, in.OverrideReason)
		}))
	})
}

func (h *Handler) creditSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.svc.Credit.Summary(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// creditCheck handles POST /credit/check. A Blocked result is still a 200;
// only sales order confirmation turns it into an error.
func (h *Handler) creditCheck(w http.ResponseWriter, r *http.Request) {
	var in core.CreditCheckInput
	if !decodeJSON(w, r, &in) {
		return
	}
	res, err := h.svc.Credit.Check(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
