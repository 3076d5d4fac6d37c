package order

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/xenking/authorstore/internal/domain/fulfillment"
	"github.com/xenking/authorstore/internal/domain/product"
)

// FulfillmentResult describes a completed fulfillment submission.
type FulfillmentResult struct {
	OrderID       string
	VendorOrderID string
	// LineItems is the number of lines sent to the vendor. Zero means the
	// order had no vendor-produced items and moved on without a vendor call.
	LineItems int
	Status    Status
}

// CreateFulfillmentOrder submits the newest paid order for intentID to the
// fulfillment vendor and moves it to processing.
func (s *Service) CreateFulfillmentOrder(ctx context.Context, intentID string) (*FulfillmentResult, error) {
	o, err := s.latestForIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}
	return s.fulfill(ctx, o)
}

// FulfillOrder re-runs fulfillment for an order stuck in paid, for manual
// reconciliation.
func (s *Service) FulfillOrder(ctx context.Context, orderID string) (*FulfillmentResult, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return s.fulfill(ctx, o)
}

func (s *Service) fulfill(ctx context.Context, o *Order) (_ *FulfillmentResult, rerr error) {
	ctx, span := s.startSpan(ctx, "order.Fulfill", attribute.String("order.id", o.ID))
	defer func() {
		if rerr != nil {
			s.metrics.fulfillmentFailures.Add(ctx, 1)
		}
		endSpan(span, rerr)
	}()

	lg := zctx.From(ctx).With(zap.String("order_id", o.ID))

	if o.Status != StatusPaid || o.FulfillmentOrderID != "" {
		return nil, &InvalidStateError{OrderID: o.ID, Status: o.Status, Op: "fulfill", Reason: "order is not awaiting fulfillment"}
	}

	lines, err := s.vendorLines(ctx, o)
	if err != nil {
		return nil, err
	}

	res := &FulfillmentResult{OrderID: o.ID, LineItems: len(lines)}
	if len(lines) == 0 {
		if err := s.transition(ctx, o, StatusProcessing, Transition{}); err != nil {
			return nil, err
		}
		lg.Info("Order has no vendor items, processing in house")
		s.publish(ctx, EventOrderProcessing, o)
		res.Status = o.Status
		return res, nil
	}

	shopID, err := s.vendor.ShopID(ctx)
	if err != nil {
		return nil, upstream("fulfillment", errors.Wrap(err, "resolve shop"))
	}

	vendorOrderID, err := s.vendor.CreateOrder(ctx, shopID, fulfillment.OrderRequest{
		ExternalID: o.ID,
		Label:      "Order " + o.ID,
		LineItems:  lines,
		Recipient:  recipientFor(o),
	})
	if err != nil {
		return nil, upstream("fulfillment", errors.Wrap(err, "create vendor order"))
	}
	lg = lg.With(zap.String("vendor_order_id", vendorOrderID))

	if err := s.vendor.SubmitToProduction(ctx, shopID, vendorOrderID); err != nil {
		lg.Error("Vendor order created but not sent to production", zap.Error(err))
		return nil, upstream("fulfillment", errors.Wrap(err, "send to production"))
	}

	if err := s.transition(ctx, o, StatusProcessing, Transition{FulfillmentOrderID: &vendorOrderID}); err != nil {
		lg.Error("Vendor order in production but order not updated", zap.Error(err))
		return nil, err
	}
	lg.Info("Fulfillment order submitted", zap.Int("line_items", len(lines)))
	s.publish(ctx, EventOrderProcessing, o)

	res.VendorOrderID = vendorOrderID
	res.Status = o.Status
	return res, nil
}

// vendorLines maps order items to vendor line items, skipping items whose
// product the store ships itself.
func (s *Service) vendorLines(ctx context.Context, o *Order) ([]fulfillment.LineItem, error) {
	products, err := s.productsFor(ctx, o)
	if err != nil {
		return nil, err
	}

	var lines []fulfillment.LineItem
	for _, it := range o.Items {
		p, ok := products[it.ProductID]
		if !ok || !p.VendorFulfilled() {
			continue
		}
		variant := it.VariantID
		if variant == "" {
			variant = p.FulfillmentVariantID
		}
		lines = append(lines, fulfillment.LineItem{
			ProductID: p.FulfillmentProductID,
			VariantID: variant,
			Quantity:  it.Quantity,
		})
	}
	return lines, nil
}

// productsFor loads the catalog entries referenced by the order, including
// products deactivated since checkout.
func (s *Service) productsFor(ctx context.Context, o *Order) (map[string]product.Product, error) {
	ids := make([]string, 0, len(o.Items))
	for _, it := range o.Items {
		ids = append(ids, it.ProductID)
	}
	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}
	return byID, nil
}

func recipientFor(o *Order) fulfillment.Recipient {
	first, last := splitName(o.Customer.Name)
	a := o.ShippingAddress
	return fulfillment.Recipient{
		FirstName:  first,
		LastName:   last,
		Email:      o.Customer.Email,
		Phone:      o.Customer.Phone,
		Country:    a.Country,
		Region:     a.State,
		City:       a.City,
		Address1:   a.Line1,
		Address2:   a.Line2,
		PostalCode: a.PostalCode,
	}
}

func splitName(name string) (first, last string) {
	parts := strings.Fields(name)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}
