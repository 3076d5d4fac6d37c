package order

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/xenking/authorstore/internal/domain/payment"
	"github.com/xenking/authorstore/internal/domain/product"
	"github.com/xenking/authorstore/pkg/redact"
)

// LineItemRequest is one requested catalog line. Prices are never taken from
// the client.
type LineItemRequest struct {
	ProductID string
	VariantID string
	Quantity  int
}

// CheckoutRequest holds the input of a checkout submission.
type CheckoutRequest struct {
	Items           []LineItemRequest
	ShippingAddress Address
	BillingAddress  Address
	Customer        Customer
	Locale          string
	// UserID is the authenticated caller; empty for anonymous checkout.
	UserID string
}

// CheckoutResult is returned to the caller to complete payment.
type CheckoutResult struct {
	OrderID      string
	ClientSecret string
	// AccessToken is set only for anonymous orders. It is never stored in
	// plain form and cannot be recovered later.
	AccessToken   string
	SubtotalCents int64
	ShippingCents int64
	TaxCents      int64
	TotalCents    int64
	Currency      string
}

// Checkout prices the requested items from the catalog, creates a payment
// intent for the total and persists a pending order.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (_ *CheckoutResult, rerr error) {
	ctx, span := s.startSpan(ctx, "order.Checkout", attribute.Int("items", len(req.Items)))
	defer func() { endSpan(span, rerr) }()

	if err := ValidateCheckout(req); err != nil {
		return nil, err
	}
	if req.Locale == "" {
		req.Locale = LocaleES
	}

	catalog, err := s.resolveProducts(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	o := &Order{
		ID:              uuid.NewString(),
		Status:          StatusPending,
		Locale:          req.Locale,
		Currency:        s.cfg.Currency,
		ShippingAddress: normalizeAddress(req.ShippingAddress),
		BillingAddress:  normalizeAddress(req.BillingAddress),
		Customer: Customer{
			Email: strings.TrimSpace(req.Customer.Email),
			Name:  strings.TrimSpace(req.Customer.Name),
			Phone: strings.TrimSpace(req.Customer.Phone),
		},
		Version: 1,
	}
	if req.UserID != "" {
		userID := req.UserID
		o.UserID = &userID
	}

	o.Items = make([]Item, len(req.Items))
	for i, li := range req.Items {
		p := catalog[li.ProductID]
		unit := p.PriceCents()
		o.Items[i] = Item{
			ID:             uuid.NewString(),
			OrderID:        o.ID,
			ProductID:      p.ID,
			VariantID:      li.VariantID,
			Quantity:       li.Quantity,
			UnitPriceCents: unit,
			LineTotalCents: unit * int64(li.Quantity),
		}
		o.SubtotalCents += o.Items[i].LineTotalCents
	}
	o.ShippingCents = s.cfg.FlatShippingCents
	o.TaxCents = s.taxCents(o.SubtotalCents)
	o.TotalCents = o.SubtotalCents + o.ShippingCents + o.TaxCents

	lg := zctx.From(ctx).With(zap.String("order_id", o.ID))

	var (
		rawToken string
		token    *AccessToken
	)
	if o.Anonymous() {
		rawToken, err = s.newToken()
		if err != nil {
			return nil, errors.Wrap(err, "generate access token")
		}
		token = &AccessToken{
			ID:        uuid.NewString(),
			OrderID:   o.ID,
			TokenHash: hashToken(rawToken),
			Active:    true,
		}
	}

	intent, err := s.payments.CreateIntent(ctx, payment.IntentParams{
		AmountCents:  o.TotalCents,
		Currency:     o.Currency,
		ReceiptEmail: o.Customer.Email,
		Description:  "Order " + o.ID,
		Metadata: map[string]string{
			"order_id":       o.ID,
			"customer_email": o.Customer.Email,
			"customer_name":  o.Customer.Name,
			"locale":         o.Locale,
			"item_count":     strconv.Itoa(len(o.Items)),
		},
		IdempotencyKey: o.ID,
	})
	if err != nil {
		lg.Error("Create payment intent", zap.Int64("total_cents", o.TotalCents), zap.Error(err))
		return nil, upstream("payment", err)
	}
	o.PaymentIntentID = intent.ID

	now := s.now()
	o.CreatedAt, o.UpdatedAt = now, now
	if token != nil {
		token.CreatedAt = now
	}

	if err := s.orders.Create(ctx, o, token); err != nil {
		// The intent is left unconfirmed; no order references it.
		lg.Error("Persist order, payment intent orphaned",
			zap.String("payment_intent_id", intent.ID),
			zap.Error(err),
		)
		return nil, errors.Wrap(err, "create order")
	}

	s.metrics.ordersCreated.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("anonymous", o.Anonymous()),
		attribute.String("locale", o.Locale),
	))
	lg.Info("Order created",
		zap.String("payment_intent_id", intent.ID),
		zap.Int64("total_cents", o.TotalCents),
		zap.Bool("anonymous", o.Anonymous()),
		redact.EmailField("customer_email", o.Customer.Email),
		zap.String("ship_to", redact.Address(o.ShippingAddress.Country, o.ShippingAddress.PostalCode)),
	)

	return &CheckoutResult{
		OrderID:       o.ID,
		ClientSecret:  intent.ClientSecret,
		AccessToken:   rawToken,
		SubtotalCents: o.SubtotalCents,
		ShippingCents: o.ShippingCents,
		TaxCents:      o.TaxCents,
		TotalCents:    o.TotalCents,
		Currency:      o.Currency,
	}, nil
}

// resolveProducts fetches every requested product in one batch. Inactive
// products and products priced in another currency are treated as missing.
func (s *Service) resolveProducts(ctx context.Context, items []LineItemRequest) (map[string]product.Product, error) {
	ids := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, li := range items {
		if _, ok := seen[li.ProductID]; ok {
			continue
		}
		seen[li.ProductID] = struct{}{}
		ids = append(ids, li.ProductID)
	}

	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}

	catalog := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		if p.Active && strings.EqualFold(p.Currency, s.cfg.Currency) {
			catalog[p.ID] = p
		}
	}
	for _, id := range ids {
		if _, ok := catalog[id]; !ok {
			return nil, &ProductNotFoundError{ProductID: id}
		}
	}
	return catalog, nil
}

// taxCents rounds half away from zero.
func (s *Service) taxCents(subtotal int64) int64 {
	if s.cfg.TaxRate.IsZero() {
		return 0
	}
	return decimal.NewFromInt(subtotal).Mul(s.cfg.TaxRate).Round(0).IntPart()
}

func normalizeAddress(a Address) Address {
	return Address{
		Line1:      strings.TrimSpace(a.Line1),
		Line2:      strings.TrimSpace(a.Line2),
		City:       strings.TrimSpace(a.City),
		State:      strings.TrimSpace(a.State),
		PostalCode: strings.ToUpper(strings.TrimSpace(a.PostalCode)),
		Country:    strings.TrimSpace(a.Country),
	}
}

// hashToken returns the hex SHA-256 digest stored in place of a raw access
// token.
func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
