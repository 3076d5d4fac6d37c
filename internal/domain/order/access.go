package order

import (
	"context"
	"crypto/subtle"
	"encoding/hex"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// AccessRequest describes an attempt to read an order.
type AccessRequest struct {
	OrderID string
	// UserID is the authenticated caller, if any.
	UserID string
	// Token is the possession token presented for anonymous orders.
	Token      string
	RemoteAddr string
}

type accessDecision struct {
	method  AccessMethod
	granted bool
	reason  string
	token   *AccessToken
}

// VerifyAccess authorizes a read of an order by owner identity or by
// possession token. Every attempt is written to the access log. Denials
// always return ErrAccessDenied regardless of the recorded reason.
func (s *Service) VerifyAccess(ctx context.Context, req AccessRequest) (*Order, error) {
	o, err := s.orders.GetByID(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}

	d, err := s.decideAccess(ctx, o, req)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if d.granted && d.token != nil {
		if err := s.tokens.RecordUse(ctx, d.token.ID, now); err != nil {
			return nil, errors.Wrap(err, "record token use")
		}
	}

	entry := AccessLogEntry{
		OrderID:    o.ID,
		Method:     d.method,
		Granted:    d.granted,
		Reason:     d.reason,
		UserID:     req.UserID,
		RemoteAddr: req.RemoteAddr,
		CreatedAt:  now,
	}
	if err := s.accessLog.Record(ctx, entry); err != nil {
		zctx.From(ctx).Error("Write access log", zap.String("order_id", o.ID), zap.Error(err))
	}
	s.metrics.accessAttempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", string(d.method)),
		attribute.Bool("granted", d.granted),
		attribute.String("reason", d.reason),
	))

	if !d.granted {
		zctx.From(ctx).Info("Order access denied",
			zap.String("order_id", o.ID),
			zap.String("reason", d.reason),
		)
		return nil, ErrAccessDenied
	}
	return o, nil
}

func (s *Service) decideAccess(ctx context.Context, o *Order, req AccessRequest) (accessDecision, error) {
	if req.UserID != "" && o.OwnedBy(req.UserID) {
		return accessDecision{method: MethodAuthenticatedUser, granted: true, reason: ReasonOwnerMatch}, nil
	}

	if !o.Anonymous() {
		if req.UserID == "" {
			return accessDecision{method: MethodNone, reason: ReasonIdentityRequired}, nil
		}
		return accessDecision{method: MethodAuthenticatedUser, reason: ReasonOwnerMismatch}, nil
	}

	if req.Token == "" {
		return accessDecision{method: MethodNone, reason: ReasonMissingToken}, nil
	}
	denied := accessDecision{method: MethodToken, reason: ReasonInvalidToken}

	tok, err := s.tokens.FindActive(ctx, o.ID)
	if errors.Is(err, ErrTokenNotFound) {
		return denied, nil
	}
	if err != nil {
		return accessDecision{}, errors.Wrap(err, "find access token")
	}
	if !tok.Active || !tokenMatches(req.Token, tok.TokenHash) {
		return denied, nil
	}
	return accessDecision{method: MethodToken, granted: true, reason: ReasonTokenMatch, token: tok}, nil
}

// tokenMatches compares the hash of raw with the stored hex hash in constant
// time.
func tokenMatches(raw, storedHash string) bool {
	stored, err := hex.DecodeString(storedHash)
	if err != nil {
		return false
	}
	got, _ := hex.DecodeString(hashToken(raw))
	return subtle.ConstantTimeCompare(got, stored) == 1
}

// ClaimRequest binds an anonymous order to an authenticated user who proves
// possession of its access token.
type ClaimRequest struct {
	OrderID    string
	UserID     string
	Token      string
	RemoteAddr string
}

// Claim attaches an anonymous order to the caller and deactivates its access
// token. Claiming an order the caller already owns is a no-op.
func (s *Service) Claim(ctx context.Context, req ClaimRequest) (*Order, error) {
	if req.UserID == "" {
		return nil, ErrAuthRequired
	}
	o, err := s.VerifyAccess(ctx, AccessRequest{
		OrderID:    req.OrderID,
		UserID:     req.UserID,
		Token:      req.Token,
		RemoteAddr: req.RemoteAddr,
	})
	if err != nil {
		return nil, err
	}
	if o.OwnedBy(req.UserID) {
		return o, nil
	}

	if err := s.orders.Claim(ctx, o.ID, req.UserID); err != nil {
		return nil, errors.Wrap(err, "claim order")
	}
	userID := req.UserID
	o.UserID = &userID
	zctx.From(ctx).Info("Order claimed", zap.String("order_id", o.ID), zap.String("user_id", req.UserID))
	return o, nil
}

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// ListMine returns orders owned by userID, newest first.
func (s *Service) ListMine(ctx context.Context, userID string, limit int) ([]Order, error) {
	if userID == "" {
		return nil, ErrAuthRequired
	}
	switch {
	case limit <= 0:
		limit = defaultListLimit
	case limit > maxListLimit:
		limit = maxListLimit
	}
	orders, err := s.orders.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}
