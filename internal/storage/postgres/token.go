package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/authorstore/internal/domain/order"
)

const (
	findActiveTokenSQL = `SELECT id, order_id, token_hash, active, use_count, last_used_at, created_at
	FROM order_access_tokens WHERE order_id = $1 AND active`

	recordTokenUseSQL = `UPDATE order_access_tokens SET use_count = use_count + 1, last_used_at = $2
	WHERE id = $1`

	insertAccessLogSQL = `INSERT INTO order_access_logs (order_id, method, granted, reason, user_id, remote_addr, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`
)

var (
	_ order.TokenRepository     = (*TokenRepository)(nil)
	_ order.AccessLogRepository = (*AccessLogRepository)(nil)
)

// TokenRepository stores order access tokens.
type TokenRepository struct {
	pool *pgxpool.Pool
}

// NewTokenRepository returns a TokenRepository that uses the given pool.
func NewTokenRepository(pool *pgxpool.Pool) *TokenRepository {
	return &TokenRepository{pool: pool}
}

// FindActive returns the active token of orderID.
func (r *TokenRepository) FindActive(ctx context.Context, orderID string) (*order.AccessToken, error) {
	var t order.AccessToken
	err := r.pool.QueryRow(ctx, findActiveTokenSQL, orderID).Scan(
		&t.ID, &t.OrderID, &t.TokenHash, &t.Active, &t.UseCount, &t.LastUsedAt, &t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrTokenNotFound
		}
		return nil, errors.Wrapf(err, "find token for order %q", orderID)
	}
	return &t, nil
}

// RecordUse bumps the use counter of the token.
func (r *TokenRepository) RecordUse(ctx context.Context, tokenID string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, recordTokenUseSQL, tokenID, at)
	if err != nil {
		return errors.Wrapf(err, "record use of token %q", tokenID)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrTokenNotFound
	}
	return nil
}

// AccessLogRepository appends to the order access audit trail.
type AccessLogRepository struct {
	pool *pgxpool.Pool
}

// NewAccessLogRepository returns an AccessLogRepository that uses the given pool.
func NewAccessLogRepository(pool *pgxpool.Pool) *AccessLogRepository {
	return &AccessLogRepository{pool: pool}
}

// Record inserts one audit entry.
func (r *AccessLogRepository) Record(ctx context.Context, e order.AccessLogEntry) error {
	at := e.CreatedAt
	if at.IsZero() {
		at = time.Now()
	}
	if _, err := r.pool.Exec(ctx, insertAccessLogSQL,
		e.OrderID, e.Method, e.Granted, e.Reason, e.UserID, e.RemoteAddr, at,
	); err != nil {
		return errors.Wrapf(err, "record access to order %q", e.OrderID)
	}
	return nil
}
