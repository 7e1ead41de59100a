package web

import (
	"context"
	"net/http"

	"erp-server/internal/core"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func (h *Handler) serviceRoutes(r chi.Router) {
	desk := h.svc.ServiceDesk

	r.Route("/tickets", func(r chi.Router) {
		r.Get("/stats", h.ticketStats)
		mountResource(r, h, desk.ListTickets, desk.CreateTicket, desk.GetTicket)
		r.Post("/{id}/status", bodyActionHandler(h, func(ctx context.Context, id uuid.UUID, in statusBody) (core.Ticket, error) {
			return desk.SetTicketStatus(ctx, id, in.Status)
		}))
	})
	r.Route("/articles", func(r chi.Router) {
		r.Get("/search", h.searchArticles)
		mountResource(r, h, desk.ListArticles, desk.CreateArticle, desk.GetArticle)
	})
}

func (h *Handler) ticketStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.ServiceDesk.TicketStats(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// searchArticles handles GET /service/articles/search?q=.
func (h *Handler) searchArticles(w http.ResponseWriter, r *http.Request) {
	p := listParams(r)
	page, err := h.svc.ServiceDesk.SearchArticles(r.Context(), p.Search, p)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) assetRoutes(r chi.Router) {
	assets := h.svc.Assets

	r.Get("/stats", h.assetStats)
	r.Route("/assets", func(r chi.Router) {
		mountResource(r, h, assets.ListAssets, assets.CreateAsset, assets.GetAsset)
		r.Post("/{id}/status", bodyActionHandler(h, assets.SetAssetStatus))
	})
	r.Route("/licenses", func(r chi.Router) {
		mountResource(r, h, assets.ListLicenses, assets.CreateLicense, assets.GetLicense)
		r.Post("/{id}/use", actionHandler(h, assets.UseSeat))
	})
}

func (h *Handler) assetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Assets.Stats(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
