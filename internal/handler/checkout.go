package handler

import (
	"net/http"

	"github.com/xenking/authorstore/internal/domain/auth"
	"github.com/xenking/authorstore/internal/domain/order"
)

type lineItemRequest struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id,omitempty"`
	Quantity  int    `json:"quantity"`
}

type customerRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
}

type checkoutRequest struct {
	Items           []lineItemRequest `json:"items"`
	ShippingAddress order.Address     `json:"shipping_address"`
	// BillingAddress defaults to the shipping address.
	BillingAddress *order.Address  `json:"billing_address,omitempty"`
	Customer       customerRequest `json:"customer"`
	Locale         string          `json:"locale,omitempty"`
}

type checkoutResponse struct {
	OK            bool   `json:"ok"`
	OrderID       string `json:"order_id"`
	ClientSecret  string `json:"client_secret"`
	AccessToken   string `json:"access_token,omitempty"`
	SubtotalCents int64  `json:"subtotal_cents"`
	ShippingCents int64  `json:"shipping_cents"`
	TaxCents      int64  `json:"tax_cents"`
	TotalCents    int64  `json:"total_cents"`
	Currency      string `json:"currency"`
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	var body checkoutRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	items := make([]order.LineItemRequest, len(body.Items))
	for i, it := range body.Items {
		items[i] = order.LineItemRequest{
			ProductID: it.ProductID,
			VariantID: it.VariantID,
			Quantity:  it.Quantity,
		}
	}
	billing := body.ShippingAddress
	if body.BillingAddress != nil {
		billing = *body.BillingAddress
	}

	res, err := h.orders.Checkout(r.Context(), order.CheckoutRequest{
		Items:           items,
		ShippingAddress: body.ShippingAddress,
		BillingAddress:  billing,
		Customer: order.Customer{
			Email: body.Customer.Email,
			Name:  body.Customer.Name,
			Phone: body.Customer.Phone,
		},
		Locale: body.Locale,
		UserID: auth.UserID(r.Context()),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, checkoutResponse{
		OK:            true,
		OrderID:       res.OrderID,
		ClientSecret:  res.ClientSecret,
		AccessToken:   res.AccessToken,
		SubtotalCents: res.SubtotalCents,
		ShippingCents: res.ShippingCents,
		TaxCents:      res.TaxCents,
		TotalCents:    res.TotalCents,
		Currency:      res.Currency,
	})
}
