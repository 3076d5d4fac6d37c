package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/authorstore/internal/domain/auth"
	"github.com/xenking/authorstore/internal/domain/order"
	"github.com/xenking/authorstore/pkg/httpmiddleware"
)

type orderResponse struct {
	OK    bool      `json:"ok"`
	Order orderView `json:"order"`
}

type orderListResponse struct {
	OK     bool        `json:"ok"`
	Orders []orderView `json:"orders"`
}

// orderToken reads the possession token from the header or the query.
func orderToken(r *http.Request) string {
	if t := r.Header.Get(orderTokenHdr); t != "" {
		return t
	}
	return r.URL.Query().Get(orderTokenQuery)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.VerifyAccess(r.Context(), order.AccessRequest{
		OrderID:    chi.URLParam(r, "id"),
		UserID:     auth.UserID(r.Context()),
		Token:      orderToken(r),
		RemoteAddr: httpmiddleware.ClientIP(r),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orderResponse{OK: true, Order: newOrderView(o)})
}

func (h *Handler) claimOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Claim(r.Context(), order.ClaimRequest{
		OrderID:    chi.URLParam(r, "id"),
		UserID:     auth.UserID(r.Context()),
		Token:      orderToken(r),
		RemoteAddr: httpmiddleware.ClientIP(r),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orderResponse{OK: true, Order: newOrderView(o)})
}

func (h *Handler) listMyOrders(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeFailure(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	orders, err := h.orders.ListMine(r.Context(), auth.UserID(r.Context()), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	views := make([]orderView, len(orders))
	for i := range orders {
		views[i] = newOrderView(&orders[i])
	}
	writeJSON(w, http.StatusOK, orderListResponse{OK: true, Orders: views})
}
