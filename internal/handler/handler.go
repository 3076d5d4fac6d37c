// Package handler exposes the store API over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/authorstore/internal/domain/order"
	"github.com/xenking/authorstore/internal/domain/payment"
	"github.com/xenking/authorstore/internal/domain/product"
)

// OrderService is the order orchestration surface used by the handlers.
type OrderService interface {
	Checkout(ctx context.Context, req order.CheckoutRequest) (*order.CheckoutResult, error)
	HandlePaymentEvent(ctx context.Context, ev *payment.Event) error
	VerifyAccess(ctx context.Context, req order.AccessRequest) (*order.Order, error)
	Claim(ctx context.Context, req order.ClaimRequest) (*order.Order, error)
	ListMine(ctx context.Context, userID string, limit int) ([]order.Order, error)
	Get(ctx context.Context, id string) (*order.Order, error)
	Cancel(ctx context.Context, id string, req order.CancelRequest) (*order.CancelResult, error)
	FulfillOrder(ctx context.Context, id string) (*order.FulfillmentResult, error)
	MarkShipped(ctx context.Context, id string, req order.ShipRequest) (*order.Order, error)
	MarkDelivered(ctx context.Context, id string) (*order.Order, error)
}

var _ OrderService = (*order.Service)(nil)

const (
	maxBodyBytes    = 64 << 10
	orderTokenHdr   = "X-Order-Token"
	orderTokenQuery = "token"
)

// Handler serves the store HTTP API.
type Handler struct {
	orders   OrderService
	products product.Repository
	events   payment.EventVerifier
	auth     *Authenticator
}

// New constructs a Handler with the required domain dependencies.
func New(
	orders OrderService,
	products product.Repository,
	events payment.EventVerifier,
	auth *Authenticator,
) *Handler {
	return &Handler{
		orders:   orders,
		products: products,
		events:   events,
		auth:     auth,
	}
}

// PaymentWebhookPath receives payment processor events.
const PaymentWebhookPath = "/api/webhooks/payments"

// IsPaymentWebhook reports whether r is a payment processor delivery. Those
// are authenticated by signature and exempt from per-IP rate limiting.
func IsPaymentWebhook(r *http.Request) bool {
	return r.Method == http.MethodPost && r.URL.Path == PaymentWebhookPath
}

// Routes returns the API router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeFailure(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeFailure(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Route("/api", func(r chi.Router) {
		// Signed by the processor, no caller identity.
		r.Post("/webhooks/payments", h.paymentWebhook)

		r.Group(func(r chi.Router) {
			r.Use(h.auth.Middleware)

			r.Get("/products", h.listProducts)
			r.Get("/products/{id}", h.getProduct)

			r.Post("/checkout/payment-intent", h.checkout)

			r.Get("/orders/{id}", h.getOrder)
			r.With(RequireUser).Post("/orders/{id}/claim", h.claimOrder)
			r.With(RequireUser).Get("/me/orders", h.listMyOrders)

			r.Route("/admin/orders/{id}", func(r chi.Router) {
				r.Use(RequireAdmin)
				r.Get("/", h.adminGetOrder)
				r.Post("/cancel", h.cancelOrder)
				r.Post("/fulfill", h.fulfillOrder)
				r.Post("/ship", h.shipOrder)
				r.Post("/deliver", h.deliverOrder)
			})
		})
	})
	return r
}

type failure struct {
	OK     bool               `json:"ok"`
	Error  string             `json:"error"`
	Fields []order.FieldError `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeFailure(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, failure{Error: msg})
}

// writeError maps domain errors to status codes. Unknown errors are logged
// and reported as a generic 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validationErr *order.ValidationError
		stateErr      *order.InvalidStateError
		notFoundErr   *order.ProductNotFoundError
		upstreamErr   *order.UpstreamError
		reqErr        *requestError
	)
	switch {
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusBadRequest, failure{Error: "invalid input", Fields: validationErr.Fields})
	case errors.As(err, &stateErr):
		writeFailure(w, http.StatusBadRequest, stateErr.Error())
	case errors.As(err, &reqErr):
		writeFailure(w, http.StatusBadRequest, reqErr.msg)
	case errors.Is(err, order.ErrAuthRequired), errors.Is(err, errUnauthorized):
		writeFailure(w, http.StatusUnauthorized, "authentication required")
	case errors.Is(err, order.ErrAccessDenied):
		writeFailure(w, http.StatusForbidden, order.ErrAccessDenied.Error())
	case errors.As(err, &notFoundErr):
		writeFailure(w, http.StatusNotFound, notFoundErr.Error())
	case errors.Is(err, order.ErrOrderNotFound), errors.Is(err, product.ErrNotFound):
		writeFailure(w, http.StatusNotFound, "not found")
	case errors.Is(err, order.ErrAlreadyCancelled):
		writeFailure(w, http.StatusConflict, order.ErrAlreadyCancelled.Error())
	case errors.Is(err, order.ErrStatusConflict):
		writeFailure(w, http.StatusConflict, order.ErrStatusConflict.Error())
	case errors.Is(err, order.ErrAlreadyClaimed):
		writeFailure(w, http.StatusConflict, order.ErrAlreadyClaimed.Error())
	case errors.As(err, &upstreamErr):
		zctx.From(r.Context()).Error("Upstream failure", zap.String("service", upstreamErr.Service), zap.Error(err))
		writeFailure(w, http.StatusInternalServerError, upstreamErr.Service+" provider error")
	default:
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		writeFailure(w, http.StatusInternalServerError, "internal error")
	}
}

// requestError is a malformed request rejected before reaching the domain.
type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

// decodeJSON reads a size-limited JSON body into v. An empty body leaves v
// untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return &requestError{msg: "request body too large"}
		}
		return &requestError{msg: "malformed JSON body"}
	}
	return nil
}
