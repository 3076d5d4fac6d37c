package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

const signatureHeader = "Stripe-Signature"

type webhookResponse struct {
	OK       bool `json:"ok"`
	Received bool `json:"received"`
}

// paymentWebhook verifies and applies a payment processor event. Any
// non-2xx answer makes the processor redeliver, so only storage failures
// return 500.
func (h *Handler) paymentWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	lg := zctx.From(ctx)

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeFailure(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		writeFailure(w, http.StatusBadRequest, "unreadable payload")
		return
	}

	ev, err := h.events.VerifyEvent(payload, r.Header.Get(signatureHeader))
	if err != nil {
		lg.Warn("Rejected payment webhook", zap.Error(err))
		writeFailure(w, http.StatusBadRequest, "invalid signature")
		return
	}

	if err := h.orders.HandlePaymentEvent(ctx, ev); err != nil {
		lg.Error("Payment event not applied",
			zap.String("event_id", ev.ID),
			zap.String("event_type", ev.RawType),
			zap.Error(err),
		)
		writeFailure(w, http.StatusInternalServerError, "event not processed")
		return
	}
	writeJSON(w, http.StatusOK, webhookResponse{OK: true, Received: true})
}
