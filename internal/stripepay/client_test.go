package stripepay

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"

	"github.com/xenking/authorstore/internal/domain/payment"
)

const testWebhookSecret = "whsec_test_secret"

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		HTTPClient:        srv.Client(),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	})
	return New(Config{
		SecretKey:     "sk_test_123",
		WebhookSecret: testWebhookSecret,
		Backend:       backend,
	})
}

func sign(payload []byte, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func TestCreateIntent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/payment_intents", r.URL.Path)
		assert.Equal(t, "payment-intent-order-1", r.Header.Get("Idempotency-Key"))
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "3099", r.PostForm.Get("amount"))
		assert.Equal(t, "usd", r.PostForm.Get("currency"))
		assert.Equal(t, "order-1", r.PostForm.Get("metadata[order_id]"))
		assert.Equal(t, "en", r.PostForm.Get("metadata[locale]"))
		assert.Equal(t, "reader@example.com", r.PostForm.Get("receipt_email"))
		assert.Equal(t, "true", r.PostForm.Get("automatic_payment_methods[enabled]"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pi_123","object":"payment_intent","amount":3099,"currency":"usd",
			"client_secret":"pi_123_secret_abc","status":"requires_payment_method"}`))
	})

	intent, err := c.CreateIntent(t.Context(), payment.IntentParams{
		AmountCents:    3099,
		Currency:       "USD",
		ReceiptEmail:   "reader@example.com",
		Metadata:       map[string]string{"order_id": "order-1", "locale": "en"},
		IdempotencyKey: "order-1",
	})
	require.NoError(t, err)
	assert.Equal(t, &payment.Intent{
		ID:           "pi_123",
		ClientSecret: "pi_123_secret_abc",
		AmountCents:  3099,
		Status:       "requires_payment_method",
	}, intent)
}

func TestCreateIntent_Declined(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error":{"type":"card_error","code":"card_declined","message":"Your card was declined."}}`))
	})

	_, err := c.CreateIntent(t.Context(), payment.IntentParams{AmountCents: 100, Currency: "usd"})
	require.Error(t, err)

	var serr *stripe.Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, http.StatusPaymentRequired, serr.HTTPStatusCode)
}

func TestRefundIntent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/refunds", r.URL.Path)
		assert.Equal(t, "refund-pi_123", r.Header.Get("Idempotency-Key"))
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "pi_123", r.PostForm.Get("payment_intent"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"re_1","object":"refund","amount":3099,"status":"succeeded"}`))
	})

	refund, err := c.RefundIntent(t.Context(), "pi_123")
	require.NoError(t, err)
	assert.Equal(t, &payment.Refund{ID: "re_1", Status: "succeeded", AmountCents: 3099}, refund)
}

func TestVerifyEvent(t *testing.T) {
	c := New(Config{WebhookSecret: testWebhookSecret})
	now := time.Now()

	tests := []struct {
		name    string
		payload string
		want    *payment.Event
	}{
		{
			name:    "Succeeded",
			payload: `{"id":"evt_1","object":"event","type":"payment_intent.succeeded","data":{"object":{"id":"pi_123","object":"payment_intent","status":"succeeded"}}}`,
			want: &payment.Event{
				ID: "evt_1", Type: payment.EventPaymentSucceeded, RawType: "payment_intent.succeeded", IntentID: "pi_123",
			},
		},
		{
			name: "Failed",
			payload: `{"id":"evt_2","object":"event","type":"payment_intent.payment_failed","data":{"object":{"id":"pi_9","object":"payment_intent",` +
				`"status":"requires_payment_method","last_payment_error":{"message":"Your card has insufficient funds."}}}}`,
			want: &payment.Event{
				ID: "evt_2", Type: payment.EventPaymentFailed, RawType: "payment_intent.payment_failed", IntentID: "pi_9",
				FailureMessage: "Your card has insufficient funds.",
			},
		},
		{
			name:    "Unhandled",
			payload: `{"id":"evt_3","object":"event","type":"charge.refunded","data":{"object":{"id":"ch_1","object":"charge"}}}`,
			want:    &payment.Event{ID: "evt_3", Type: payment.EventUnhandled, RawType: "charge.refunded"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := []byte(tt.payload)
			ev, err := c.VerifyEvent(payload, sign(payload, testWebhookSecret, now))
			require.NoError(t, err)
			assert.Equal(t, tt.want, ev)
		})
	}
}

func TestVerifyEvent_RejectsBadSignatures(t *testing.T) {
	c := New(Config{WebhookSecret: testWebhookSecret})
	payload := []byte(`{"id":"evt_1","object":"event","type":"payment_intent.succeeded","data":{"object":{"id":"pi_123"}}}`)

	tests := []struct {
		name   string
		header string
	}{
		{"Missing", ""},
		{"Garbage", "not-a-signature"},
		{"WrongSecret", sign(payload, "whsec_other", time.Now())},
		{"Stale", sign(payload, testWebhookSecret, time.Now().Add(-time.Hour))},
		{"TamperedPayload", sign([]byte(`{"id":"evt_1"}`), testWebhookSecret, time.Now())},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.VerifyEvent(payload, tt.header)
			require.Error(t, err)
			assert.True(t, errors.Is(err, payment.ErrInvalidSignature))
		})
	}

	unconfigured := New(Config{})
	_, err := unconfigured.VerifyEvent(payload, sign(payload, "", time.Now()))
	require.ErrorIs(t, err, payment.ErrInvalidSignature)
}
