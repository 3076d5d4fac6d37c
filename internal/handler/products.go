package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type productListResponse struct {
	OK       bool          `json:"ok"`
	Products []productView `json:"products"`
}

type productResponse struct {
	OK      bool        `json:"ok"`
	Product productView `json:"product"`
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	views := make([]productView, len(products))
	for i, p := range products {
		views[i] = newProductView(p)
	}
	writeJSON(w, http.StatusOK, productListResponse{OK: true, Products: views})
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !p.Active {
		writeFailure(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, productResponse{OK: true, Product: newProductView(*p)})
}
