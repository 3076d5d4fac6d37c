// Package stripepay adapts the Stripe API to the payment processor and
// webhook verifier ports.
package stripepay

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/authorstore/internal/domain/payment"
)

// Webhook event names consumed by the store.
const (
	eventIntentSucceeded = "payment_intent.succeeded"
	eventIntentFailed    = "payment_intent.payment_failed"
)

// Compile-time checks.
var (
	_ payment.Processor     = (*Client)(nil)
	_ payment.EventVerifier = (*Client)(nil)
)

// Config holds Stripe credentials and transport settings.
type Config struct {
	SecretKey     string
	WebhookSecret string
	// Tolerance is the maximum accepted webhook timestamp age.
	Tolerance      time.Duration
	Timeout        time.Duration
	MaxRetries     int64
	Logger         *zap.Logger
	TracerProvider trace.TracerProvider

	// Backend overrides the API backend, for tests.
	Backend stripe.Backend
}

// Client talks to Stripe.
type Client struct {
	api           *client.API
	webhookSecret string
	tolerance     time.Duration
}

// New creates a Stripe client.
func New(cfg Config) *Client {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = webhook.DefaultTolerance
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}

	backend := cfg.Backend
	if backend == nil {
		var opts []otelhttp.Option
		if cfg.TracerProvider != nil {
			opts = append(opts, otelhttp.WithTracerProvider(cfg.TracerProvider))
		}
		backend = stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
			HTTPClient: &http.Client{
				Timeout:   cfg.Timeout,
				Transport: otelhttp.NewTransport(http.DefaultTransport, opts...),
			},
			MaxNetworkRetries: stripe.Int64(cfg.MaxRetries),
			LeveledLogger:     cfg.Logger.Named("stripe").Sugar(),
		})
	}

	api := &client.API{}
	api.Init(cfg.SecretKey, &stripe.Backends{
		API:     backend,
		Connect: backend,
		Uploads: backend,
	})
	return &Client{
		api:           api,
		webhookSecret: cfg.WebhookSecret,
		tolerance:     cfg.Tolerance,
	}
}

// CreateIntent creates a payment intent with automatic payment methods.
func (c *Client) CreateIntent(ctx context.Context, p payment.IntentParams) (*payment.Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(p.AmountCents),
		Currency: stripe.String(strings.ToLower(p.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if p.ReceiptEmail != "" {
		params.ReceiptEmail = stripe.String(p.ReceiptEmail)
	}
	if p.Description != "" {
		params.Description = stripe.String(p.Description)
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}
	if p.IdempotencyKey != "" {
		params.SetIdempotencyKey("payment-intent-" + p.IdempotencyKey)
	}
	params.Context = ctx

	pi, err := c.api.PaymentIntents.New(params)
	if err != nil {
		return nil, errors.Wrap(err, "create payment intent")
	}
	return &payment.Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		AmountCents:  pi.Amount,
		Status:       string(pi.Status),
	}, nil
}

// RefundIntent refunds the full captured amount of a payment intent.
func (c *Client) RefundIntent(ctx context.Context, intentID string) (*payment.Refund, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(intentID),
	}
	params.SetIdempotencyKey("refund-" + intentID)
	params.Context = ctx

	r, err := c.api.Refunds.New(params)
	if err != nil {
		return nil, errors.Wrap(err, "create refund")
	}
	return &payment.Refund{
		ID:          r.ID,
		Status:      string(r.Status),
		AmountCents: r.Amount,
	}, nil
}

// VerifyEvent checks the Stripe-Signature header and decodes the event.
func (c *Client) VerifyEvent(payload []byte, signatureHeader string) (*payment.Event, error) {
	if c.webhookSecret == "" {
		return nil, errors.Wrap(payment.ErrInvalidSignature, "webhook secret not configured")
	}
	ev, err := webhook.ConstructEventWithOptions(payload, signatureHeader, c.webhookSecret, webhook.ConstructEventOptions{
		Tolerance:                c.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, errors.Wrapf(payment.ErrInvalidSignature, "verify: %v", err)
	}

	out := &payment.Event{
		ID:      ev.ID,
		RawType: string(ev.Type),
		Type:    payment.EventUnhandled,
	}
	switch out.RawType {
	case eventIntentSucceeded:
		out.Type = payment.EventPaymentSucceeded
	case eventIntentFailed:
		out.Type = payment.EventPaymentFailed
	default:
		return out, nil
	}

	if ev.Data == nil || len(ev.Data.Raw) == 0 {
		return nil, errors.New("event without data")
	}
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
		return nil, errors.Wrap(err, "decode payment intent")
	}
	out.IntentID = pi.ID
	if pi.LastPaymentError != nil {
		out.FailureMessage = pi.LastPaymentError.Msg
	}
	return out, nil
}
