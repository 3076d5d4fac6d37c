package order

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/xenking/authorstore/internal/domain/payment"
)

// HandlePaymentEvent applies a verified payment processor event. Deliveries
// are at least once, so every branch is idempotent. A returned error means
// the event should be redelivered.
func (s *Service) HandlePaymentEvent(ctx context.Context, ev *payment.Event) (rerr error) {
	ctx, span := s.startSpan(ctx, "order.HandlePaymentEvent",
		attribute.String("payment.event", ev.RawType),
		attribute.String("payment.intent_id", ev.IntentID),
	)
	defer func() { endSpan(span, rerr) }()

	lg := zctx.From(ctx).With(
		zap.String("event_id", ev.ID),
		zap.String("event_type", ev.RawType),
		zap.String("payment_intent_id", ev.IntentID),
	)
	ctx = zctx.Base(ctx, lg)

	outcome := "applied"
	defer func() {
		if rerr != nil {
			outcome = "error"
		}
		s.metrics.paymentEvents.Add(ctx, 1, metric.WithAttributes(
			attribute.String("type", string(ev.Type)),
			attribute.String("outcome", outcome),
		))
	}()

	var (
		target Status
		evType EventType
	)
	switch ev.Type {
	case payment.EventPaymentSucceeded:
		target, evType = StatusPaid, EventOrderPaid
	case payment.EventPaymentFailed:
		target, evType = StatusFailed, EventOrderFailed
	default:
		lg.Info("Ignoring unhandled payment event")
		outcome = "ignored"
		return nil
	}

	o, err := s.latestForIntent(ctx, ev.IntentID)
	if errors.Is(err, ErrOrderNotFound) {
		lg.Warn("No order for payment intent")
		outcome = "unknown_order"
		return nil
	}
	if err != nil {
		return err
	}
	lg = lg.With(zap.String("order_id", o.ID))

	if o.Status != StatusPending {
		if target == StatusPaid && o.Status == StatusCancelled {
			lg.Error("Payment succeeded for cancelled order, refund manually")
		} else {
			lg.Info("Duplicate payment event, order already settled", zap.String("status", string(o.Status)))
		}
		outcome = "duplicate"
		return nil
	}

	if err := s.transition(ctx, o, target, Transition{}); err != nil {
		if errors.Is(err, ErrStatusConflict) {
			lg.Warn("Order changed concurrently, event skipped")
			outcome = "conflict"
			return nil
		}
		return errors.Wrap(err, "update order status")
	}
	if ev.FailureMessage != "" {
		lg = lg.With(zap.String("failure", ev.FailureMessage))
	}
	lg.Info("Order status updated", zap.String("status", string(target)))
	s.publish(ctx, evType, o)

	if target == StatusPaid {
		s.goDetached(ctx, s.cfg.FulfillmentTimeout, func(ctx context.Context) {
			if _, err := s.CreateFulfillmentOrder(ctx, ev.IntentID); err != nil {
				lg.Error("Fulfillment order failed, order stays paid", zap.Error(err))
			}
		})
	}
	return nil
}

// latestForIntent returns the newest order referencing intentID. Extra rows
// are an anomaly worth logging, not failing on.
func (s *Service) latestForIntent(ctx context.Context, intentID string) (*Order, error) {
	if intentID == "" {
		return nil, ErrOrderNotFound
	}
	orders, err := s.orders.ListByPaymentIntent(ctx, intentID)
	if err != nil {
		return nil, errors.Wrap(err, "list orders by payment intent")
	}
	if len(orders) == 0 {
		return nil, ErrOrderNotFound
	}
	if len(orders) > 1 {
		extra := make([]string, 0, len(orders)-1)
		for _, o := range orders[1:] {
			extra = append(extra, o.ID)
		}
		zctx.From(ctx).Warn("Multiple orders share a payment intent, using newest",
			zap.String("payment_intent_id", intentID),
			zap.String("order_id", orders[0].ID),
			zap.Strings("ignored_order_ids", extra),
		)
	}
	o := orders[0]
	return &o, nil
}
