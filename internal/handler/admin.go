package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/authorstore/internal/domain/auth"
	"github.com/xenking/authorstore/internal/domain/order"
)

type adminOrderResponse struct {
	OK    bool           `json:"ok"`
	Order adminOrderView `json:"order"`
}

type cancelRequest struct {
	Refund bool   `json:"refund"`
	Reason string `json:"reason,omitempty"`
}

type cancelResponse struct {
	OK                       bool         `json:"ok"`
	OrderID                  string       `json:"order_id"`
	Status                   order.Status `json:"status"`
	RefundApplied            bool         `json:"refund_applied"`
	RefundID                 string       `json:"refund_id,omitempty"`
	RefundAmountCents        int64        `json:"refund_amount_cents,omitempty"`
	RefundError              string       `json:"refund_error,omitempty"`
	FulfillmentCancelSkipped bool         `json:"fulfillment_cancel_skipped"`
}

type fulfillResponse struct {
	OK            bool         `json:"ok"`
	OrderID       string       `json:"order_id"`
	VendorOrderID string       `json:"vendor_order_id,omitempty"`
	LineItems     int          `json:"line_items"`
	Status        order.Status `json:"status"`
}

type shipRequest struct {
	TrackingNumber string `json:"tracking_number"`
	TrackingURL    string `json:"tracking_url,omitempty"`
}

// auditAdmin logs who ran a back-office action.
func auditAdmin(r *http.Request, action string) {
	id := auth.FromContext(r.Context())
	zctx.From(r.Context()).Info("Admin action",
		zap.String("action", action),
		zap.String("order_id", chi.URLParam(r, "id")),
		zap.String("user_id", id.UserID),
		zap.String("key_id", id.KeyID),
	)
}

func (h *Handler) adminGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, adminOrderResponse{OK: true, Order: newAdminOrderView(o)})
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	var body cancelRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	auditAdmin(r, "cancel")

	res, err := h.orders.Cancel(r.Context(), chi.URLParam(r, "id"), order.CancelRequest{
		Refund: body.Refund,
		Reason: body.Reason,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cancelResponse{
		OK:                       true,
		OrderID:                  res.OrderID,
		Status:                   res.Status,
		RefundApplied:            res.RefundApplied,
		RefundID:                 res.RefundID,
		RefundAmountCents:        res.RefundAmountCents,
		RefundError:              res.RefundError,
		FulfillmentCancelSkipped: res.FulfillmentCancelSkipped,
	})
}

func (h *Handler) fulfillOrder(w http.ResponseWriter, r *http.Request) {
	auditAdmin(r, "fulfill")

	res, err := h.orders.FulfillOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fulfillResponse{
		OK:            true,
		OrderID:       res.OrderID,
		VendorOrderID: res.VendorOrderID,
		LineItems:     res.LineItems,
		Status:        res.Status,
	})
}

func (h *Handler) shipOrder(w http.ResponseWriter, r *http.Request) {
	var body shipRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	auditAdmin(r, "ship")

	o, err := h.orders.MarkShipped(r.Context(), chi.URLParam(r, "id"), order.ShipRequest{
		TrackingNumber: body.TrackingNumber,
		TrackingURL:    body.TrackingURL,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, adminOrderResponse{OK: true, Order: newAdminOrderView(o)})
}

func (h *Handler) deliverOrder(w http.ResponseWriter, r *http.Request) {
	auditAdmin(r, "deliver")

	o, err := h.orders.MarkDelivered(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, adminOrderResponse{OK: true, Order: newAdminOrderView(o)})
}
