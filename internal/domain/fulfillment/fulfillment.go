// Package fulfillment describes the print-on-demand vendor boundary.
package fulfillment

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNoShop is returned when the vendor account has no shop to order from.
var ErrNoShop = errors.New("no fulfillment shop available")

// LineItem is one vendor product variant to produce.
type LineItem struct {
	ProductID string
	VariantID string
	Quantity  int
}

// Recipient is the shipping destination of a vendor order.
type Recipient struct {
	FirstName  string
	LastName   string
	Email      string
	Phone      string
	Country    string
	Region     string
	City       string
	Address1   string
	Address2   string
	PostalCode string
}

// OrderRequest is a vendor purchase order.
type OrderRequest struct {
	// ExternalID is the store's own order id, echoed back by the vendor.
	ExternalID string
	Label      string
	LineItems  []LineItem
	Recipient  Recipient
}

// Vendor is the fulfillment partner API.
type Vendor interface {
	ShopID(ctx context.Context) (string, error)
	CreateOrder(ctx context.Context, shopID string, req OrderRequest) (string, error)
	SubmitToProduction(ctx context.Context, shopID, vendorOrderID string) error
}
