package app

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/authorstore/internal/domain/order"
	"github.com/xenking/authorstore/internal/events"
	"github.com/xenking/authorstore/internal/printify"
	"github.com/xenking/authorstore/internal/storage/postgres"
	"github.com/xenking/authorstore/internal/stripepay"
)

// Services groups the repositories and the order service built on one pool.
// Both the API server and storectl use it.
type Services struct {
	Products *postgres.ProductRepository
	APIKeys  *postgres.APIKeyRepository
	Stripe   *stripepay.Client
	Orders   *order.Service

	events *events.Publisher
	lg     *zap.Logger
}

// NewServices wires the payment processor, fulfillment vendor, event
// publisher and order service.
func NewServices(cfg *Config, pool *pgxpool.Pool, lg *zap.Logger, tp trace.TracerProvider, mp metric.MeterProvider) (*Services, error) {
	taxRate, err := cfg.Checkout.taxRate()
	if err != nil {
		return nil, err
	}

	products := postgres.NewProductRepository(pool)
	stripeClient := stripepay.New(stripepay.Config{
		SecretKey:      cfg.Stripe.SecretKey,
		WebhookSecret:  cfg.Stripe.WebhookSecret,
		Timeout:        cfg.Stripe.Timeout,
		MaxRetries:     cfg.Stripe.MaxRetries,
		Logger:         lg,
		TracerProvider: tp,
	})
	vendor := printify.New(printify.Config{
		BaseURL:        cfg.Printify.BaseURL,
		Token:          cfg.Printify.Token,
		ShopID:         cfg.Printify.ShopID,
		Timeout:        cfg.Printify.Timeout,
		ShippingMethod: cfg.Printify.ShippingMethod,
		TracerProvider: tp,
		Logger:         lg,
	})
	publisher := events.NewPublisher(events.Config{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.Topic,
		Logger:  lg,
	})

	orders := order.NewService(order.Deps{
		Products:  products,
		Orders:    postgres.NewOrderRepository(pool),
		Tokens:    postgres.NewTokenRepository(pool),
		AccessLog: postgres.NewAccessLogRepository(pool),
		Payments:  stripeClient,
		Vendor:    vendor,
		Events:    publisher,
	}, order.Config{
		Currency:           cfg.Checkout.Currency,
		FlatShippingCents:  cfg.Checkout.FlatShippingCents,
		TaxRate:            taxRate,
		FulfillmentTimeout: cfg.Checkout.FulfillmentTimeout,
	},
		order.WithMeterProvider(mp),
		order.WithTracerProvider(tp),
	)

	return &Services{
		Products: products,
		APIKeys:  postgres.NewAPIKeyRepository(pool),
		Stripe:   stripeClient,
		Orders:   orders,
		events:   publisher,
		lg:       lg,
	}, nil
}

// Close waits for background fulfillment runs, bounded by ctx, and closes
// the event publisher.
func (s *Services) Close(ctx context.Context) {
	if err := s.Orders.Wait(ctx); err != nil {
		s.lg.Warn("Background fulfillment still running", zap.Error(err))
	}
	if err := s.events.Close(); err != nil {
		s.lg.Warn("Close event publisher", zap.Error(err))
	}
}
