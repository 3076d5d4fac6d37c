package handler

import (
	"time"

	"github.com/xenking/authorstore/internal/domain/order"
	"github.com/xenking/authorstore/internal/domain/product"
)

type productView struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	Price         string `json:"price"`
	PriceCents    int64  `json:"price_cents"`
	Currency      string `json:"currency"`
	PrintOnDemand bool   `json:"print_on_demand"`
}

func newProductView(p product.Product) productView {
	return productView{
		ID:            p.ID,
		Name:          p.Name,
		Description:   p.Description,
		Price:         p.Price.StringFixed(2),
		PriceCents:    p.PriceCents(),
		Currency:      p.Currency,
		PrintOnDemand: p.VendorFulfilled(),
	}
}

type itemView struct {
	ProductID      string `json:"product_id"`
	VariantID      string `json:"variant_id,omitempty"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	LineTotalCents int64  `json:"line_total_cents"`
}

type customerView struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
}

type orderView struct {
	ID              string        `json:"id"`
	Status          order.Status  `json:"status"`
	Locale          string        `json:"locale"`
	Currency        string        `json:"currency"`
	SubtotalCents   int64         `json:"subtotal_cents"`
	ShippingCents   int64         `json:"shipping_cents"`
	TaxCents        int64         `json:"tax_cents"`
	TotalCents      int64         `json:"total_cents"`
	Items           []itemView    `json:"items"`
	ShippingAddress order.Address `json:"shipping_address"`
	Customer        customerView  `json:"customer"`
	TrackingNumber  string        `json:"tracking_number,omitempty"`
	TrackingURL     string        `json:"tracking_url,omitempty"`
	Claimed         bool          `json:"claimed"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

func newOrderView(o *order.Order) orderView {
	items := make([]itemView, len(o.Items))
	for i, it := range o.Items {
		items[i] = itemView{
			ProductID:      it.ProductID,
			VariantID:      it.VariantID,
			Quantity:       it.Quantity,
			UnitPriceCents: it.UnitPriceCents,
			LineTotalCents: it.LineTotalCents,
		}
	}
	return orderView{
		ID:              o.ID,
		Status:          o.Status,
		Locale:          o.Locale,
		Currency:        o.Currency,
		SubtotalCents:   o.SubtotalCents,
		ShippingCents:   o.ShippingCents,
		TaxCents:        o.TaxCents,
		TotalCents:      o.TotalCents,
		Items:           items,
		ShippingAddress: o.ShippingAddress,
		Customer: customerView{
			Email: o.Customer.Email,
			Name:  o.Customer.Name,
			Phone: o.Customer.Phone,
		},
		TrackingNumber: o.TrackingNumber,
		TrackingURL:    o.TrackingURL,
		Claimed:        !o.Anonymous(),
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
}

// adminOrderView adds back-office references to orderView.
type adminOrderView struct {
	orderView
	UserID             string `json:"user_id,omitempty"`
	PaymentIntentID    string `json:"payment_intent_id,omitempty"`
	FulfillmentOrderID string `json:"fulfillment_order_id,omitempty"`
	RefundID           string `json:"refund_id,omitempty"`
	CancelReason       string `json:"cancel_reason,omitempty"`
	Version            int64  `json:"version"`
}

func newAdminOrderView(o *order.Order) adminOrderView {
	v := adminOrderView{
		orderView:          newOrderView(o),
		PaymentIntentID:    o.PaymentIntentID,
		FulfillmentOrderID: o.FulfillmentOrderID,
		RefundID:           o.RefundID,
		CancelReason:       o.CancelReason,
		Version:            o.Version,
	}
	if o.UserID != nil {
		v.UserID = *o.UserID
	}
	return v
}
