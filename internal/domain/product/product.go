package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item available for purchase. Books sold
// through the shop and print-on-demand merchandise share this type; only
// merchandise carries fulfillment vendor references.
type Product struct {
	ID          string
	Name        string
	Description string
	Price       decimal.Decimal
	Currency    string
	Active      bool

	// FulfillmentProductID is the print-on-demand vendor's product id.
	// Empty for items the store ships itself.
	FulfillmentProductID string
	// FulfillmentVariantID is the vendor variant used when a line item
	// does not name one explicitly.
	FulfillmentVariantID string
}

// PriceCents returns the unit price in minor currency units, rounding
// half away from zero.
func (p Product) PriceCents() int64 {
	return p.Price.Shift(2).Round(0).IntPart()
}

// VendorFulfilled reports whether the product is produced by the
// fulfillment vendor.
func (p Product) VendorFulfilled() bool {
	return p.FulfillmentProductID != ""
}

// Repository defines read operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}
