// Package events publishes order lifecycle events to Kafka.
package events

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/xenking/authorstore/internal/domain/order"
)

// DefaultTopic receives every order event.
const DefaultTopic = "store.orders"

var _ order.EventPublisher = (*Publisher)(nil)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Config configures the Kafka publisher.
type Config struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
	Logger       *zap.Logger
}

// Publisher writes order events keyed by order id, so events of one order
// stay ordered within a partition.
type Publisher struct {
	w       messageWriter
	timeout time.Duration
	lg      *zap.Logger
}

// NewPublisher creates a Kafka publisher. It returns a Publisher that drops
// events when no brokers are configured.
func NewPublisher(cfg Config) *Publisher {
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	p := &Publisher{timeout: cfg.WriteTimeout, lg: cfg.Logger.Named("events")}
	if len(cfg.Brokers) == 0 {
		p.lg.Info("No Kafka brokers configured, order events disabled")
		return p
	}
	p.w = &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		WriteTimeout:           cfg.WriteTimeout,
		AllowAutoTopicCreation: true,
	}
	return p
}

// Publish writes e synchronously.
func (p *Publisher) Publish(ctx context.Context, e order.Event) error {
	if p.w == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(e.OrderID),
		Value: Encode(e),
		Time:  e.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.Type)},
		},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return errors.Wrap(err, "write message")
	}
	p.lg.Debug("Event published", zap.String("event", string(e.Type)), zap.String("order_id", e.OrderID))
	return nil
}

// Close flushes pending writes.
func (p *Publisher) Close() error {
	if p.w == nil {
		return nil
	}
	return p.w.Close()
}

// Encode renders an event as JSON.
func Encode(e order.Event) []byte {
	var enc jx.Encoder
	enc.Obj(func(enc *jx.Encoder) {
		str := func(k, v string) { enc.Field(k, func(enc *jx.Encoder) { enc.Str(v) }) }
		str("type", string(e.Type))
		str("order_id", e.OrderID)
		str("status", string(e.Status))
		str("locale", e.Locale)
		str("email", e.Email)
		enc.Field("total_cents", func(enc *jx.Encoder) { enc.Int64(e.TotalCents) })
		str("currency", e.Currency)
		if e.TrackingNumber != "" {
			str("tracking_number", e.TrackingNumber)
		}
		if e.TrackingURL != "" {
			str("tracking_url", e.TrackingURL)
		}
		str("occurred_at", e.OccurredAt.UTC().Format(time.RFC3339Nano))
	})
	return enc.Bytes()
}
