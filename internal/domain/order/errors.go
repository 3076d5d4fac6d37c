package order

import (
	"fmt"
	"strings"

	"github.com/go-faster/errors"
)

// Sentinel errors returned by the order service.
var (
	ErrOrderNotFound    = errors.New("order not found")
	ErrAlreadyCancelled = errors.New("order already cancelled")
	ErrStatusConflict   = errors.New("order status changed concurrently")
	ErrAccessDenied     = errors.New("access denied")
	ErrAuthRequired     = errors.New("authentication required")
	ErrAlreadyClaimed   = errors.New("order already claimed")
	ErrTokenNotFound    = errors.New("access token not found")
)

// FieldError describes one invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError aggregates every invalid field of a request.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// InvalidStateError indicates an operation that the order's current status
// does not allow.
type InvalidStateError struct {
	OrderID string
	Status  Status
	Op      string
	Reason  string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s order %s in status %s: %s", e.Op, e.OrderID, e.Status, e.Reason)
}

// UpstreamError wraps a failure of the payment processor or fulfillment
// vendor.
type UpstreamError struct {
	Service string
	Err     error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s upstream: %v", e.Service, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

func upstream(service string, err error) error {
	return &UpstreamError{Service: service, Err: err}
}
