package web

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"

	"erp-server/internal/spreadsheet"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) inventoryRoutes(r chi.Router) {
	inv := h.svc.Inventory

	r.Route("/products", func(r chi.Router) {
		r.Get("/export", h.exportProducts)
		mountResource(r, h, inv.ListProducts, inv.CreateProduct, inv.GetProduct)
		r.Put("/{id}", bodyActionHandler(h, inv.UpdateProduct))
		r.Delete("/{id}", h.deleteProduct)
	})
	r.Route("/warehouses", func(r chi.Router) {
		mountResource(r, h, inv.ListWarehouses, inv.CreateWarehouse, inv.GetWarehouse)
	})
	r.Route("/stock-movements", func(r chi.Router) {
		r.Get("/", listHandler(h, inv.ListMovements))
		r.Post("/", createHandler(h, inv.RecordMovement))
	})
	r.Get("/stock/{id}", getHandler(h, inv.ProductStock))
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.svc.Inventory.DeleteProduct(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// importProducts handles POST /inventory/products/import. The workbook is either
// the raw request body or the "file" field of a multipart form.
func (h *Handler) importProducts(w http.ResponseWriter, r *http.Request) {
	var src io.Reader = r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, _, err := r.FormFile("file")
		if err != nil {
			writeError(w, r, "multipart upload must include a \"file\" field", "BAD_REQUEST", http.StatusBadRequest)
			return
		}
		defer file.Close()
		src = file
	}

	data, err := io.ReadAll(src)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, r, "upload too large", "REQUEST_TOO_LARGE", http.StatusRequestEntityTooLarge)
			return
		}
		writeError(w, r, "could not read upload: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	rows, err := spreadsheet.ReadProducts(bytes.NewReader(data))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.svc.Inventory.ImportProducts(r.Context(), rows)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.log.Info().
		Int("created", res.Created).
		Int("updated", res.Updated).
		Int("skipped", res.Skipped).
		Msg("products imported")
	writeJSON(w, http.StatusOK, res)
}

// exportProducts handles GET /inventory/products/export.
func (h *Handler) exportProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.svc.Inventory.AllProducts(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeWorkbook(w, r, "products.xlsx", func(w http.ResponseWriter) error {
		return spreadsheet.WriteProducts(w, products)
	})
}
