package web

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) configRoutes(r chi.Router) {
	s := h.svc.Settings

	r.Get("/configs", listHandler(h, s.ListConfigs))
	r.Put("/configs", updateHandler(h, s.PutConfig))
	r.Get("/company-settings", singletonHandler(h, s.CompanySettings))
	r.Put("/company-settings", updateHandler(h, s.UpdateCompanySettings))
	r.Get("/audit-settings", singletonHandler(h, s.AuditSettings))
	r.Put("/audit-settings", updateHandler(h, s.UpdateAuditSettings))
}

// singletonHandler serves GET for a record that has no id in the path.
func singletonHandler[T any](h *Handler, get func(context.Context) (T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := get(r.Context())
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// updateHandler is createHandler for PUT: same decode, 200 instead of 201.
func updateHandler[In, T any](h *Handler, update createFunc[In, T]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in In
		if !decodeJSON(w, r, &in) {
			return
		}
		out, err := update(r.Context(), in)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}
