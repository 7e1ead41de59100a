package web

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"erp-server/internal/core"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type (
	listFunc[T any]       func(context.Context, core.ListParams) (core.Page[T], error)
	createFunc[In, T any] func(context.Context, In) (T, error)
	idFunc[T any]         func(context.Context, uuid.UUID) (T, error)
	idBodyFunc[In, T any] func(context.Context, uuid.UUID, In) (T, error)
)

// reserved query parameters are paging controls, never filters.
var reserved = map[string]bool{"page": true, "per_page": true, "limit": true, "q": true}

// listParams reads page, per_page (alias limit) and q. Every other query
// parameter is passed on as a filter; resources ignore names they don't declare.
func listParams(r *http.Request) core.ListParams {
	q := r.URL.Query()
	p := core.ListParams{Search: q.Get("q"), Filters: map[string]string{}}
	p.Page, _ = strconv.Atoi(q.Get("page"))
	perPage := q.Get("per_page")
	if perPage == "" {
		perPage = q.Get("limit")
	}
	p.PerPage, _ = strconv.Atoi(perPage)
	for k, v := range q {
		if !reserved[k] && len(v) > 0 && v[0] != "" {
			p.Filters[k] = v[0]
		}
	}
	return p.Normalize()
}

// idParam parses the named URL parameter as a UUID, writing 400 on failure.
func idParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, r, "invalid "+name+": "+chi.URLParam(r, name), "VALIDATION_ERROR", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

// mountResource registers the list, create and get routes shared by every
// paginated resource: GET /, POST / and GET /{id}.
func mountResource[In, T any](r chi.Router, h *Handler, list listFunc[T], create createFunc[In, T], get idFunc[T]) {
	r.Get("/", listHandler(h, list))
	r.Post("/", createHandler(h, create))
	r.Get("/{id}", getHandler(h, get))
}

func listHandler[T any](h *Handler, list listFunc[T]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := list(r.Context(), listParams(r))
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, page)
	}
}

func createHandler[In, T any](h *Handler, create createFunc[In, T]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in In
		if !decodeJSON(w, r, &in) {
			return
		}
		out, err := create(r.Context(), in)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, out)
	}
}

func getHandler[T any](h *Handler, get idFunc[T]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r, "id")
		if !ok {
			return
		}
		out, err := get(r.Context(), id)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// actionHandler serves POST /{id}/<verb> transitions that take no body.
func actionHandler[T any](h *Handler, act idFunc[T]) http.HandlerFunc {
	return getHandler(h, act)
}

// bodyActionHandler serves POST|PUT /{id}/<verb> transitions with a JSON body.
// An empty body decodes as the zero In.
func bodyActionHandler[In, T any](h *Handler, act idBodyFunc[In, T]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r, "id")
		if !ok {
			return
		}
		var in In
		if !decodeOptionalJSON(w, r, &in) {
			return
		}
		out, err := act(r.Context(), id, in)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil || r.Body == http.NoBody {
		return true
	}
	br := bufio.NewReader(r.Body)
	if _, err := br.Peek(1); errors.Is(err, io.EOF) {
		return true
	}
	r.Body = struct {
		io.Reader
		io.Closer
	}{br, r.Body}
	return decodeJSON(w, r, v)
}

// createdActionHandler serves POST /{id}/<verb> actions that create a new
// record, answering 201.
func createdActionHandler[T any](h *Handler, act idFunc[T]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r, "id")
		if !ok {
			return
		}
		out, err := act(r.Context(), id)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, out)
	}
}

// subListHandler serves GET /{id}/<children> lists scoped to a parent id.
func subListHandler[T any](h *Handler, list func(context.Context, uuid.UUID, core.ListParams) (core.Page[T], error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r, "id")
		if !ok {
			return
		}
		page, err := list(r.Context(), id, listParams(r))
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, page)
	}
}

// statusBody is the {status} payload of status transition endpoints.
type statusBody struct {
	Status string `json:"status"`
}
