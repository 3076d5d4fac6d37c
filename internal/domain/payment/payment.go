// Package payment describes the payment processor boundary: intent creation,
// refunds and signed asynchronous status events.
package payment

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrInvalidSignature is returned when an inbound event fails authenticity
// verification. Such events must never be processed.
var ErrInvalidSignature = errors.New("invalid signature")

// IntentParams describes a payment intent to create.
type IntentParams struct {
	AmountCents    int64
	Currency       string
	ReceiptEmail   string
	Description    string
	Metadata       map[string]string
	IdempotencyKey string
}

// Intent is the processor-side representation of a charge attempt.
type Intent struct {
	ID           string
	ClientSecret string
	AmountCents  int64
	Status       string
}

// Refund is the result of a refund request.
type Refund struct {
	ID          string
	Status      string
	AmountCents int64
}

// Processor creates payment intents and refunds them.
type Processor interface {
	CreateIntent(ctx context.Context, p IntentParams) (*Intent, error)
	RefundIntent(ctx context.Context, intentID string) (*Refund, error)
}

// EventType is the normalized kind of a processor event.
type EventType string

const (
	EventPaymentSucceeded EventType = "payment_succeeded"
	EventPaymentFailed    EventType = "payment_failed"
	// EventUnhandled covers every processor event this service ignores.
	EventUnhandled EventType = "unhandled"
)

// Event is a verified processor callback.
type Event struct {
	ID   string
	Type EventType
	// RawType is the processor's own event name, kept for logging.
	RawType  string
	IntentID string

	// FailureMessage is set for failed payments when the processor reports one.
	FailureMessage string
}

// EventVerifier authenticates and decodes a raw webhook delivery. It returns
// an error wrapping ErrInvalidSignature when the signature does not match.
type EventVerifier interface {
	VerifyEvent(payload []byte, signatureHeader string) (*Event, error)
}
