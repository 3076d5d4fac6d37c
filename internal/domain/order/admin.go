package order

import (
	"context"
	"net/url"
	"strings"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// ShipRequest attaches carrier tracking to a processing order.
type ShipRequest struct {
	TrackingNumber string
	TrackingURL    string
}

// Get returns an order without access checks. Callers must be admins.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	return s.orders.GetByID(ctx, id)
}

// MarkShipped moves a processing order to shipped.
func (s *Service) MarkShipped(ctx context.Context, id string, req ShipRequest) (*Order, error) {
	number := strings.TrimSpace(req.TrackingNumber)
	trackURL := strings.TrimSpace(req.TrackingURL)

	var errs fieldErrors
	if number == "" {
		errs.add("tracking_number", "required")
	}
	if trackURL != "" {
		if u, err := url.Parse(trackURL); err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
			errs.add("tracking_url", "must be an http(s) URL")
		}
	}
	if err := errs.err(); err != nil {
		return nil, err
	}

	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.transition(ctx, o, StatusShipped, Transition{
		TrackingNumber: &number,
		TrackingURL:    &trackURL,
	}); err != nil {
		return nil, err
	}
	zctx.From(ctx).Info("Order shipped", zap.String("order_id", o.ID), zap.String("tracking_number", number))
	s.publish(ctx, EventOrderShipped, o)
	return o, nil
}

// MarkDelivered moves a shipped order to delivered.
func (s *Service) MarkDelivered(ctx context.Context, id string) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.transition(ctx, o, StatusDelivered, Transition{}); err != nil {
		return nil, err
	}
	zctx.From(ctx).Info("Order delivered", zap.String("order_id", o.ID))
	s.publish(ctx, EventOrderDelivered, o)
	return o, nil
}
