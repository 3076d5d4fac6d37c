package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/authorstore/internal/domain/auth"
	"github.com/xenking/authorstore/internal/domain/order"
	"github.com/xenking/authorstore/internal/domain/payment"
	"github.com/xenking/authorstore/internal/domain/product"
)

// --- Mock implementations ---

type fakeService struct {
	mu sync.Mutex

	checkoutReq order.CheckoutRequest
	checkoutRes *order.CheckoutResult
	checkoutErr error

	events   []*payment.Event
	eventErr error

	accessReq order.AccessRequest
	accessErr error
	claimReq  order.ClaimRequest
	listUser  string
	listLimit int

	cancelReq order.CancelRequest
	cancelRes *order.CancelResult
	cancelErr error

	shipReq order.ShipRequest
	order   *order.Order
	err     error
}

func (f *fakeService) Checkout(_ context.Context, req order.CheckoutRequest) (*order.CheckoutResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkoutReq = req
	return f.checkoutRes, f.checkoutErr
}

func (f *fakeService) HandlePaymentEvent(_ context.Context, ev *payment.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return f.eventErr
}

func (f *fakeService) VerifyAccess(_ context.Context, req order.AccessRequest) (*order.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accessReq = req
	if f.accessErr != nil {
		return nil, f.accessErr
	}
	return f.order, nil
}

func (f *fakeService) Claim(_ context.Context, req order.ClaimRequest) (*order.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claimReq = req
	return f.order, f.err
}

func (f *fakeService) ListMine(_ context.Context, userID string, limit int) ([]order.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listUser, f.listLimit = userID, limit
	return []order.Order{*f.order}, f.err
}

func (f *fakeService) Get(context.Context, string) (*order.Order, error) {
	return f.order, f.err
}

func (f *fakeService) Cancel(_ context.Context, _ string, req order.CancelRequest) (*order.CancelResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelReq = req
	return f.cancelRes, f.cancelErr
}

func (f *fakeService) FulfillOrder(_ context.Context, id string) (*order.FulfillmentResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &order.FulfillmentResult{OrderID: id, VendorOrderID: "vendor-1", LineItems: 1, Status: order.StatusProcessing}, nil
}

func (f *fakeService) MarkShipped(_ context.Context, _ string, req order.ShipRequest) (*order.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shipReq = req
	return f.order, f.err
}

func (f *fakeService) MarkDelivered(context.Context, string) (*order.Order, error) {
	return f.order, f.err
}

type fakeProducts struct {
	products []product.Product
}

func (f *fakeProducts) List(context.Context) ([]product.Product, error) {
	var active []product.Product
	for _, p := range f.products {
		if p.Active {
			active = append(active, p)
		}
	}
	return active, nil
}

func (f *fakeProducts) GetByID(_ context.Context, id string) (*product.Product, error) {
	for _, p := range f.products {
		if p.ID == id {
			return &p, nil
		}
	}
	return nil, product.ErrNotFound
}

func (f *fakeProducts) GetByIDs(context.Context, []string) ([]product.Product, error) {
	return f.products, nil
}

type fakeVerifier struct {
	ev *payment.Event
}

func (f *fakeVerifier) VerifyEvent(_ []byte, header string) (*payment.Event, error) {
	if header != "t=1,v1=good" {
		return nil, errors.Wrap(payment.ErrInvalidSignature, "no matching signature")
	}
	return f.ev, nil
}

type fakeAPIKeys struct {
	keys map[string]auth.APIKeyInfo
}

func (f *fakeAPIKeys) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	info, ok := f.keys[hash]
	if !ok {
		return nil, auth.ErrKeyNotFound
	}
	return &info, nil
}

func (f *fakeAPIKeys) Upsert(context.Context, auth.APIKeyInfo) error { return nil }

// --- Helpers ---

var (
	jwtSecret = []byte("test-session-secret")
	pepper    = []byte("test-pepper")
)

type fixture struct {
	svc    *fakeService
	server http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	svc := &fakeService{order: testOrder()}
	keys := &fakeAPIKeys{keys: map[string]auth.APIKeyInfo{
		HashAPIKey(pepper, "ops-key"):    {ID: "ops", KeyHash: HashAPIKey(pepper, "ops-key"), Scopes: []string{auth.ScopeOrdersAdmin}},
		HashAPIKey(pepper, "report-key"): {ID: "reports", KeyHash: HashAPIKey(pepper, "report-key"), Scopes: []string{"orders:read"}},
	}}
	products := &fakeProducts{products: []product.Product{
		{ID: "book", Name: "Book", Price: decimal.RequireFromString("24.99"), Currency: "usd", Active: true},
		{ID: "tee", Name: "Tee", Price: decimal.RequireFromString("22"), Currency: "usd", Active: true, FulfillmentProductID: "pf"},
		{ID: "old", Name: "Old", Price: decimal.RequireFromString("5"), Currency: "usd"},
	}}
	verifier := &fakeVerifier{ev: &payment.Event{ID: "evt_1", Type: payment.EventPaymentSucceeded, IntentID: "pi_1"}}
	authn := NewAuthenticator(AuthConfig{JWTSecret: jwtSecret, APIKeyPepper: pepper}, keys)
	return &fixture{
		svc:    svc,
		server: New(svc, products, verifier, authn).Routes(),
	}
}

func testOrder() *order.Order {
	return &order.Order{
		ID:            "order-1",
		Status:        order.StatusPaid,
		Locale:        "es",
		Currency:      "usd",
		SubtotalCents: 2500,
		ShippingCents: 599,
		TotalCents:    3099,
		Customer:      order.Customer{Email: "reader@example.com", Name: "Ana"},
		Items:         []order.Item{{ProductID: "book", Quantity: 1, UnitPriceCents: 2500, LineTotalCents: 2500}},
	}
}

func sessionToken(t *testing.T, sub, role string, exp time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{"sub": sub, "email": sub + "@example.com", "exp": exp.Unix()}
	if role != "" {
		claims["app_metadata"] = map[string]any{"role": role}
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(jwtSecret)
	require.NoError(t, err)
	return signed
}

func (f *fixture) do(t *testing.T, method, path, body string, headers ...string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	f.server.ServeHTTP(w, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return w.Code, out
}

const checkoutBody = `{
	"items": [{"product_id": "book", "quantity": 1}],
	"shipping_address": {"line1": "1 Main St", "city": "San Francisco", "state": "CA", "postal_code": "94105", "country": "US"},
	"customer": {"email": "reader@example.com", "name": "Ana Reader"},
	"locale": "en"
}`

// --- Tests ---

func TestCheckout(t *testing.T) {
	f := newFixture(t)
	f.svc.checkoutRes = &order.CheckoutResult{
		OrderID: "order-1", ClientSecret: "pi_1_secret", AccessToken: "tok",
		SubtotalCents: 2499, ShippingCents: 599, TotalCents: 3098, Currency: "usd",
	}

	code, body := f.do(t, http.MethodPost, "/api/checkout/payment-intent", checkoutBody)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "pi_1_secret", body["client_secret"])
	assert.Equal(t, "tok", body["access_token"])
	assert.Equal(t, float64(3098), body["total_cents"])

	req := f.svc.checkoutReq
	assert.Equal(t, "en", req.Locale)
	assert.Empty(t, req.UserID)
	assert.Equal(t, req.ShippingAddress, req.BillingAddress)
	require.Len(t, req.Items, 1)
	assert.Equal(t, "book", req.Items[0].ProductID)
}

func TestCheckout_Authenticated(t *testing.T) {
	f := newFixture(t)
	f.svc.checkoutRes = &order.CheckoutResult{OrderID: "order-1", ClientSecret: "s"}

	code, body := f.do(t, http.MethodPost, "/api/checkout/payment-intent", checkoutBody,
		"Authorization", "Bearer "+sessionToken(t, "user-1", "", time.Now().Add(time.Hour)))
	require.Equal(t, http.StatusOK, code)
	assert.NotContains(t, body, "access_token")
	assert.Equal(t, "user-1", f.svc.checkoutReq.UserID)
}

func TestCheckout_Errors(t *testing.T) {
	for _, tt := range []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{
			name:   "Validation",
			err:    &order.ValidationError{Fields: []order.FieldError{{Field: "customer.email", Message: "invalid email"}}},
			status: http.StatusBadRequest,
			msg:    "invalid input",
		},
		{
			name:   "ProductNotFound",
			err:    &order.ProductNotFoundError{ProductID: "ghost"},
			status: http.StatusNotFound,
			msg:    "product ghost not found",
		},
		{
			name:   "PaymentRejected",
			err:    &order.UpstreamError{Service: "payment", Err: errors.New("card_declined")},
			status: http.StatusInternalServerError,
			msg:    "payment provider error",
		},
		{
			name:   "Internal",
			err:    errors.New("connection reset"),
			status: http.StatusInternalServerError,
			msg:    "internal error",
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.svc.checkoutErr = tt.err

			code, body := f.do(t, http.MethodPost, "/api/checkout/payment-intent", checkoutBody)
			assert.Equal(t, tt.status, code)
			assert.Equal(t, false, body["ok"])
			assert.Equal(t, tt.msg, body["error"])
		})
	}
}

func TestCheckout_ValidationFields(t *testing.T) {
	f := newFixture(t)
	f.svc.checkoutErr = &order.ValidationError{Fields: []order.FieldError{{Field: "items", Message: "at least one item is required"}}}

	code, body := f.do(t, http.MethodPost, "/api/checkout/payment-intent", "")
	require.Equal(t, http.StatusBadRequest, code)
	fields, ok := body["fields"].([]any)
	require.True(t, ok)
	require.Len(t, fields, 1)
	assert.Equal(t, "items", fields[0].(map[string]any)["field"])
}

func TestCheckout_MalformedBody(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, http.MethodPost, "/api/checkout/payment-intent", `{"items": "nope"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "malformed JSON body", body["error"])

	code, _ = f.do(t, http.MethodPost, "/api/checkout/payment-intent", `{"unknown": 1}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestPaymentWebhook(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, http.MethodPost, "/api/webhooks/payments", `{"id":"evt_1"}`, "Stripe-Signature", "t=1,v1=good")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]any{"ok": true, "received": true}, body)
	require.Len(t, f.svc.events, 1)
	assert.Equal(t, "pi_1", f.svc.events[0].IntentID)
}

func TestPaymentWebhook_InvalidSignature(t *testing.T) {
	f := newFixture(t)

	for _, header := range []string{"", "t=1,v1=forged"} {
		code, body := f.do(t, http.MethodPost, "/api/webhooks/payments", `{"id":"evt_1"}`, "Stripe-Signature", header)
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, map[string]any{"ok": false, "error": "invalid signature"}, body)
	}
	assert.Empty(t, f.svc.events)
}

func TestPaymentWebhook_StorageFailureRedelivers(t *testing.T) {
	f := newFixture(t)
	f.svc.eventErr = errors.New("transition order: connection refused")

	code, _ := f.do(t, http.MethodPost, "/api/webhooks/payments", `{}`, "Stripe-Signature", "t=1,v1=good")
	assert.Equal(t, http.StatusInternalServerError, code)
}

func TestIsPaymentWebhook(t *testing.T) {
	routes := newFixture(t).server.(chi.Routes)
	assert.NotEmpty(t, routes.Find(chi.NewRouteContext(), http.MethodPost, PaymentWebhookPath))

	for _, tt := range []struct {
		method, path string
		want         bool
	}{
		{method: http.MethodPost, path: PaymentWebhookPath, want: true},
		{method: http.MethodGet, path: PaymentWebhookPath},
		{method: http.MethodPost, path: "/api/checkout/payment-intent"},
		{method: http.MethodPost, path: PaymentWebhookPath + "/extra"},
	} {
		req := httptest.NewRequest(tt.method, tt.path, nil)
		assert.Equal(t, tt.want, IsPaymentWebhook(req), tt.method+" "+tt.path)
	}
}

func TestPaymentWebhook_TooLarge(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/payments", bytes.NewReader(make([]byte, maxBodyBytes+1)))
	req.Header.Set("Stripe-Signature", "t=1,v1=good")
	w := httptest.NewRecorder()
	f.server.ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Empty(t, f.svc.events)
}

func TestGetOrder(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, http.MethodGet, "/api/orders/order-1", "", "X-Order-Token", "secret-token")
	require.Equal(t, http.StatusOK, code)
	view := body["order"].(map[string]any)
	assert.Equal(t, "order-1", view["id"])
	assert.Equal(t, "paid", view["status"])
	assert.Equal(t, false, view["claimed"])
	assert.NotContains(t, view, "payment_intent_id")

	assert.Equal(t, "order-1", f.svc.accessReq.OrderID)
	assert.Equal(t, "secret-token", f.svc.accessReq.Token)
	assert.Equal(t, "192.0.2.1", f.svc.accessReq.RemoteAddr)

	_, _ = f.do(t, http.MethodGet, "/api/orders/order-1?token=query-token", "")
	assert.Equal(t, "query-token", f.svc.accessReq.Token)
}

func TestGetOrder_Errors(t *testing.T) {
	for _, tt := range []struct {
		err    error
		status int
		msg    string
	}{
		{err: order.ErrAccessDenied, status: http.StatusForbidden, msg: "access denied"},
		{err: order.ErrOrderNotFound, status: http.StatusNotFound, msg: "not found"},
	} {
		f := newFixture(t)
		f.svc.accessErr = tt.err

		code, body := f.do(t, http.MethodGet, "/api/orders/order-1", "")
		assert.Equal(t, tt.status, code)
		assert.Equal(t, tt.msg, body["error"])
	}
}

func TestAuthentication(t *testing.T) {
	f := newFixture(t)

	t.Run("InvalidBearer", func(t *testing.T) {
		code, body := f.do(t, http.MethodGet, "/api/orders/order-1", "", "Authorization", "Bearer garbage")
		assert.Equal(t, http.StatusUnauthorized, code)
		assert.Equal(t, "invalid credentials", body["error"])
	})
	t.Run("ExpiredBearer", func(t *testing.T) {
		token := sessionToken(t, "user-1", "", time.Now().Add(-time.Hour))
		code, _ := f.do(t, http.MethodGet, "/api/orders/order-1", "", "Authorization", "Bearer "+token)
		assert.Equal(t, http.StatusUnauthorized, code)
	})
	t.Run("WrongSigningMethod", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{
			"sub": "user-1", "exp": time.Now().Add(time.Hour).Unix(),
		}).SignedString(jwtSecret)
		require.NoError(t, err)
		code, _ := f.do(t, http.MethodGet, "/api/orders/order-1", "", "Authorization", "Bearer "+token)
		assert.Equal(t, http.StatusUnauthorized, code)
	})
	t.Run("UnknownAPIKey", func(t *testing.T) {
		code, _ := f.do(t, http.MethodGet, "/api/orders/order-1", "", "X-API-Key", "stolen")
		assert.Equal(t, http.StatusUnauthorized, code)
	})
	t.Run("ValidBearerPassesUser", func(t *testing.T) {
		token := sessionToken(t, "user-7", "", time.Now().Add(time.Hour))
		code, _ := f.do(t, http.MethodGet, "/api/orders/order-1", "", "Authorization", "Bearer "+token)
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "user-7", f.svc.accessReq.UserID)
	})
}

func TestClaimAndListMine(t *testing.T) {
	f := newFixture(t)
	token := "Bearer " + sessionToken(t, "user-1", "", time.Now().Add(time.Hour))

	code, _ := f.do(t, http.MethodPost, "/api/orders/order-1/claim", "", "X-Order-Token", "tok")
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = f.do(t, http.MethodPost, "/api/orders/order-1/claim", "", "Authorization", token, "X-Order-Token", "tok")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, order.ClaimRequest{OrderID: "order-1", UserID: "user-1", Token: "tok", RemoteAddr: "192.0.2.1"}, f.svc.claimReq)

	f.svc.err = order.ErrAlreadyClaimed
	code, body := f.do(t, http.MethodPost, "/api/orders/order-1/claim", "", "Authorization", token, "X-Order-Token", "tok")
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "order already claimed", body["error"])
	f.svc.err = nil

	code, body = f.do(t, http.MethodGet, "/api/me/orders?limit=5", "", "Authorization", token)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["orders"], 1)
	assert.Equal(t, "user-1", f.svc.listUser)
	assert.Equal(t, 5, f.svc.listLimit)

	code, _ = f.do(t, http.MethodGet, "/api/me/orders?limit=abc", "", "Authorization", token)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(t, http.MethodGet, "/api/me/orders", "")
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestAdmin_Authorization(t *testing.T) {
	f := newFixture(t)
	userToken := "Bearer " + sessionToken(t, "user-1", "", time.Now().Add(time.Hour))
	adminToken := "Bearer " + sessionToken(t, "admin-1", auth.RoleAdmin, time.Now().Add(time.Hour))
	f.svc.cancelRes = &order.CancelResult{OrderID: "order-1", Status: order.StatusCancelled}

	code, _ := f.do(t, http.MethodPost, "/api/admin/orders/order-1/cancel", `{}`)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, body := f.do(t, http.MethodPost, "/api/admin/orders/order-1/cancel", `{}`, "Authorization", userToken)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "forbidden", body["error"])

	code, _ = f.do(t, http.MethodPost, "/api/admin/orders/order-1/cancel", `{}`, "X-API-Key", "report-key")
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = f.do(t, http.MethodPost, "/api/admin/orders/order-1/cancel", `{}`, "X-API-Key", "ops-key")
	assert.Equal(t, http.StatusOK, code)

	code, _ = f.do(t, http.MethodPost, "/api/admin/orders/order-1/cancel", `{}`, "Authorization", adminToken)
	assert.Equal(t, http.StatusOK, code)
}

func TestAdmin_Cancel(t *testing.T) {
	f := newFixture(t)
	f.svc.cancelRes = &order.CancelResult{
		OrderID:       "order-1",
		Status:        order.StatusCancelled,
		RefundApplied: false,
		RefundError:   "charge already refunded",
	}

	code, body := f.do(t, http.MethodPost, "/api/admin/orders/order-1/cancel",
		`{"refund": true, "reason": "customer request"}`, "X-API-Key", "ops-key")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "cancelled", body["status"])
	assert.Equal(t, false, body["refund_applied"])
	assert.Equal(t, "charge already refunded", body["refund_error"])
	assert.Equal(t, order.CancelRequest{Refund: true, Reason: "customer request"}, f.svc.cancelReq)

	for _, tt := range []struct {
		err    error
		status int
	}{
		{err: order.ErrAlreadyCancelled, status: http.StatusConflict},
		{err: errors.Wrap(order.ErrStatusConflict, "transition"), status: http.StatusConflict},
		{err: &order.InvalidStateError{OrderID: "order-1", Status: order.StatusShipped, Op: "cancel", Reason: "already shipped"}, status: http.StatusBadRequest},
		{err: order.ErrOrderNotFound, status: http.StatusNotFound},
	} {
		f.svc.cancelErr = tt.err
		code, _ := f.do(t, http.MethodPost, "/api/admin/orders/order-1/cancel", `{}`, "X-API-Key", "ops-key")
		assert.Equal(t, tt.status, code, tt.err.Error())
	}
}

func TestAdmin_FulfillShipDeliver(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, http.MethodPost, "/api/admin/orders/order-1/fulfill", "", "X-API-Key", "ops-key")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "vendor-1", body["vendor_order_id"])
	assert.Equal(t, "processing", body["status"])

	f.svc.order.Status = order.StatusShipped
	f.svc.order.PaymentIntentID = "pi_1"
	code, body = f.do(t, http.MethodPost, "/api/admin/orders/order-1/ship",
		`{"tracking_number": "1Z999", "tracking_url": "https://track.example.com/1Z999"}`, "X-API-Key", "ops-key")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "1Z999", f.svc.shipReq.TrackingNumber)
	view := body["order"].(map[string]any)
	assert.Equal(t, "pi_1", view["payment_intent_id"])

	code, _ = f.do(t, http.MethodPost, "/api/admin/orders/order-1/deliver", "", "X-API-Key", "ops-key")
	assert.Equal(t, http.StatusOK, code)

	code, body = f.do(t, http.MethodGet, "/api/admin/orders/order-1/", "", "X-API-Key", "ops-key")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(0), body["order"].(map[string]any)["version"])

	f.svc.err = &order.UpstreamError{Service: "fulfillment", Err: errors.New("shop suspended")}
	code, body = f.do(t, http.MethodPost, "/api/admin/orders/order-1/fulfill", "", "X-API-Key", "ops-key")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "fulfillment provider error", body["error"])
}

func TestProducts(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, http.MethodGet, "/api/products", "")
	require.Equal(t, http.StatusOK, code)
	products := body["products"].([]any)
	require.Len(t, products, 2)
	first := products[0].(map[string]any)
	assert.Equal(t, "24.99", first["price"])
	assert.Equal(t, float64(2499), first["price_cents"])

	code, body = f.do(t, http.MethodGet, "/api/products/tee", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["product"].(map[string]any)["print_on_demand"])

	code, _ = f.do(t, http.MethodGet, "/api/products/old", "")
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = f.do(t, http.MethodGet, "/api/products/ghost", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestNotFoundRoute(t *testing.T) {
	f := newFixture(t)
	code, body := f.do(t, http.MethodGet, "/api/nope", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, false, body["ok"])
}
