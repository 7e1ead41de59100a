package web

import (
	"net/http"
	"strconv"

	"erp-server/internal/core"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) notificationRoutes(r chi.Router) {
	r.Get("/", h.listNotifications)
	r.Get("/unread-count", h.unreadCount)
	r.Post("/read", h.markAllRead)
	r.Post("/{id}/read", h.markRead)
}

// listNotifications returns the caller's notifications, newest first.
// ?unread=true limits the page to unread ones.
func (h *Handler) listNotifications(w http.ResponseWriter, r *http.Request) {
	unread, _ := strconv.ParseBool(r.URL.Query().Get("unread"))
	p := listParams(r)
	delete(p.Filters, "unread")
	page, err := h.svc.Notifications.List(r.Context(), core.ActorFrom(r.Context()).ID, unread, p)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) unreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.Notifications.UnreadCount(r.Context(), core.ActorFrom(r.Context()).ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"count": n})
}

func (h *Handler) markRead(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.svc.Notifications.MarkRead(r.Context(), core.ActorFrom(r.Context()).ID, id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) markAllRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.Notifications.MarkAllRead(r.Context(), core.ActorFrom(r.Context()).ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": n})
}
