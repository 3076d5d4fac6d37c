package order

import (
	"context"
	"time"
)

// EventType names an order lifecycle notification.
type EventType string

const (
	EventOrderPaid       EventType = "order.paid"
	EventOrderFailed     EventType = "order.failed"
	EventOrderProcessing EventType = "order.processing"
	EventOrderShipped    EventType = "order.shipped"
	EventOrderDelivered  EventType = "order.delivered"
	EventOrderCancelled  EventType = "order.cancelled"
)

// Event is published after an order status change is persisted. Consumers
// (notification senders, analytics) pick the language from Locale.
type Event struct {
	Type       EventType
	OrderID    string
	Status     Status
	Locale     string
	Email      string
	TotalCents int64
	Currency   string

	TrackingNumber string
	TrackingURL    string

	OccurredAt time.Time
}

// EventPublisher delivers order events to downstream consumers. Delivery is
// best effort: a publish failure never undoes the status change.
type EventPublisher interface {
	Publish(ctx context.Context, e Event) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) error { return nil }
