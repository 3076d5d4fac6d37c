package order

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/authorstore/internal/domain/fulfillment"
	"github.com/xenking/authorstore/internal/domain/payment"
	"github.com/xenking/authorstore/internal/domain/product"
)

const instrumentationName = "github.com/xenking/authorstore/internal/domain/order"

// Deps holds the collaborators of the order Service.
type Deps struct {
	Products  product.Repository
	Orders    Repository
	Tokens    TokenRepository
	AccessLog AccessLogRepository
	Payments  payment.Processor
	Vendor    fulfillment.Vendor
	// Events is optional; events are dropped when nil.
	Events EventPublisher
}

// Config holds pricing and timing settings of the order Service.
type Config struct {
	Currency          string
	FlatShippingCents int64
	TaxRate           decimal.Decimal
	// FulfillmentTimeout bounds the background fulfillment run triggered by
	// a successful payment.
	FulfillmentTimeout time.Duration
}

func (c *Config) setDefaults() {
	if c.Currency == "" {
		c.Currency = "usd"
	}
	if c.FulfillmentTimeout <= 0 {
		c.FulfillmentTimeout = 30 * time.Second
	}
}

// Option configures optional Service instrumentation.
type Option func(*Service)

// WithMeterProvider sets the meter provider used for service counters.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) { s.meterProvider = mp }
}

// WithTracerProvider sets the tracer provider used for service spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracerProvider = tp }
}

// Service orchestrates checkout, payment events, fulfillment, cancellation
// and order access checks.
type Service struct {
	products  product.Repository
	orders    Repository
	tokens    TokenRepository
	accessLog AccessLogRepository
	payments  payment.Processor
	vendor    fulfillment.Vendor
	events    EventPublisher
	cfg       Config

	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
	tracer         trace.Tracer
	metrics        serviceMetrics

	now      func() time.Time
	newToken func() (string, error)

	// wg tracks background fulfillment runs.
	wg sync.WaitGroup
}

// NewService creates an order Service.
func NewService(deps Deps, cfg Config, opts ...Option) *Service {
	cfg.setDefaults()
	s := &Service{
		products:  deps.Products,
		orders:    deps.Orders,
		tokens:    deps.Tokens,
		accessLog: deps.AccessLog,
		payments:  deps.Payments,
		vendor:    deps.Vendor,
		events:    deps.Events,
		cfg:       cfg,

		meterProvider:  metricnoop.NewMeterProvider(),
		tracerProvider: tracenoop.NewTracerProvider(),

		now:      time.Now,
		newToken: randomToken,
	}
	if s.events == nil {
		s.events = nopPublisher{}
	}
	for _, o := range opts {
		o(s)
	}
	s.tracer = s.tracerProvider.Tracer(instrumentationName)
	s.metrics = newServiceMetrics(s.meterProvider.Meter(instrumentationName))
	return s
}

// Wait blocks until every background fulfillment run has finished or ctx
// is done.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// goDetached runs fn in the background on a context that survives the
// caller's cancellation but keeps its values (logger, trace).
func (s *Service) goDetached(ctx context.Context, timeout time.Duration, fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		fn(ctx)
	}()
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// transition applies a validated status change with compare-and-swap on the
// status observed in o, and updates o on success.
func (s *Service) transition(ctx context.Context, o *Order, to Status, t Transition) error {
	if !o.Status.CanTransitionTo(to) {
		return &InvalidStateError{OrderID: o.ID, Status: o.Status, Op: "move to " + string(to), Reason: "transition not allowed"}
	}
	if err := s.orders.TransitionStatus(ctx, o.ID, o.Status, to, t); err != nil {
		return errors.Wrapf(err, "transition %s -> %s", o.Status, to)
	}

	o.Status = to
	o.Version++
	o.UpdatedAt = s.now()
	if t.FulfillmentOrderID != nil {
		o.FulfillmentOrderID = *t.FulfillmentOrderID
	}
	if t.TrackingNumber != nil {
		o.TrackingNumber = *t.TrackingNumber
	}
	if t.TrackingURL != nil {
		o.TrackingURL = *t.TrackingURL
	}
	if t.CancelReason != nil {
		o.CancelReason = *t.CancelReason
	}
	return nil
}

func (s *Service) publish(ctx context.Context, typ EventType, o *Order) {
	e := Event{
		Type:           typ,
		OrderID:        o.ID,
		Status:         o.Status,
		Locale:         o.Locale,
		Email:          o.Customer.Email,
		TotalCents:     o.TotalCents,
		Currency:       o.Currency,
		TrackingNumber: o.TrackingNumber,
		TrackingURL:    o.TrackingURL,
		OccurredAt:     s.now(),
	}
	if err := s.events.Publish(ctx, e); err != nil {
		zctx.From(ctx).Warn("Publish order event",
			zap.String("event", string(typ)),
			zap.String("order_id", o.ID),
			zap.Error(err),
		)
	}
}

// randomToken returns 32 random bytes, hex encoded.
func randomToken() (string, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", errors.Wrap(err, "read random")
	}
	return hex.EncodeToString(b[:]), nil
}

type serviceMetrics struct {
	ordersCreated       metric.Int64Counter
	paymentEvents       metric.Int64Counter
	accessAttempts      metric.Int64Counter
	fulfillmentFailures metric.Int64Counter
	refunds             metric.Int64Counter
}

func newServiceMetrics(m metric.Meter) serviceMetrics {
	counter := func(name, desc string) metric.Int64Counter {
		c, err := m.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			return metricnoop.Int64Counter{}
		}
		return c
	}
	return serviceMetrics{
		ordersCreated:       counter("store.orders.created", "Orders created at checkout"),
		paymentEvents:       counter("store.payment.events", "Payment processor events handled"),
		accessAttempts:      counter("store.orders.access", "Order access attempts"),
		fulfillmentFailures: counter("store.fulfillment.failures", "Failed fulfillment order submissions"),
		refunds:             counter("store.refunds", "Refund attempts"),
	}
}
