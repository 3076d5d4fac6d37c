package order

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// CancelRequest holds the input of an admin cancellation.
type CancelRequest struct {
	Refund bool
	Reason string
}

// CancelResult reports the outcome of a cancellation. Cancellation and refund
// are independent: a cancelled order with a failed refund is a valid result.
type CancelResult struct {
	OrderID           string
	Status            Status
	RefundApplied     bool
	RefundID          string
	RefundAmountCents int64
	RefundError       string
	// FulfillmentCancelSkipped is set when vendor-produced items may already
	// be in production; the vendor order must be cancelled by hand.
	FulfillmentCancelSkipped bool
}

// Cancel moves an order to cancelled and optionally refunds its payment in
// full.
func (s *Service) Cancel(ctx context.Context, id string, req CancelRequest) (_ *CancelResult, rerr error) {
	ctx, span := s.startSpan(ctx, "order.Cancel",
		attribute.String("order.id", id),
		attribute.Bool("refund", req.Refund),
	)
	defer func() { endSpan(span, rerr) }()

	lg := zctx.From(ctx).With(zap.String("order_id", id))

	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkCancellable(o.ID, o.Status); err != nil {
		return nil, err
	}
	if req.Refund && o.PaymentIntentID == "" {
		return nil, &InvalidStateError{OrderID: o.ID, Status: o.Status, Op: "refund", Reason: "order has no payment to refund"}
	}

	skipped, err := s.hasVendorItems(ctx, o)
	if err != nil {
		return nil, err
	}

	reason := strings.TrimSpace(req.Reason)
	if err := s.transition(ctx, o, StatusCancelled, Transition{CancelReason: &reason}); err != nil {
		return nil, err
	}
	// The reason is free text and may quote customer details.
	lg.Info("Order cancelled", zap.Int("reason_len", len(reason)), zap.Bool("fulfillment_cancel_skipped", skipped))
	s.publish(ctx, EventOrderCancelled, o)

	res := &CancelResult{
		OrderID:                  o.ID,
		Status:                   o.Status,
		FulfillmentCancelSkipped: skipped,
	}
	if !req.Refund {
		return res, nil
	}

	refund, err := s.payments.RefundIntent(ctx, o.PaymentIntentID)
	if err != nil {
		s.metrics.refunds.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "failed")))
		lg.Error("Refund failed, order stays cancelled",
			zap.String("payment_intent_id", o.PaymentIntentID),
			zap.Error(err),
		)
		res.RefundError = upstream("payment", err).Error()
		return res, nil
	}
	s.metrics.refunds.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "applied")))

	res.RefundApplied = true
	res.RefundID = refund.ID
	res.RefundAmountCents = refund.AmountCents
	if err := s.orders.SetRefund(ctx, o.ID, refund.ID); err != nil {
		// The money has moved; only the local reference is missing.
		lg.Error("Record refund id", zap.String("refund_id", refund.ID), zap.Error(errors.Wrap(err, "set refund")))
	}
	lg.Info("Refund issued", zap.String("refund_id", refund.ID), zap.Int64("amount_cents", refund.AmountCents))
	return res, nil
}

func (s *Service) hasVendorItems(ctx context.Context, o *Order) (bool, error) {
	if o.FulfillmentOrderID != "" {
		return true, nil
	}
	products, err := s.productsFor(ctx, o)
	if err != nil {
		return false, err
	}
	for _, it := range o.Items {
		if p, ok := products[it.ProductID]; ok && p.VendorFulfilled() {
			return true, nil
		}
	}
	return false, nil
}
