package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/authorstore/internal/domain/order"
)

const orderColumns = `id, user_id, status, locale, currency,
	subtotal_cents, shipping_cents, tax_cents, total_cents,
	shipping_address, billing_address, customer_email, customer_name, customer_phone,
	payment_intent_id, fulfillment_order_id, tracking_number, tracking_url, refund_id, cancel_reason,
	version, created_at, updated_at`

const (
	insertOrderSQL = `INSERT INTO orders (` + orderColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)`

	insertTokenSQL = `INSERT INTO order_access_tokens (id, order_id, token_hash, active, use_count, created_at)
	VALUES ($1, $2, $3, $4, 0, $5)`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	listOrdersByIntentSQL = `SELECT ` + orderColumns + ` FROM orders
	WHERE payment_intent_id = $1 ORDER BY created_at DESC, id DESC`

	listOrdersByUserSQL = `SELECT ` + orderColumns + ` FROM orders
	WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`

	listItemsSQL = `SELECT id, order_id, product_id, variant_id, quantity, unit_price_cents, line_total_cents
	FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, position`

	transitionSQL = `UPDATE orders SET
		status = $3,
		version = version + 1,
		updated_at = NOW(),
		fulfillment_order_id = COALESCE($4, fulfillment_order_id),
		tracking_number = COALESCE($5, tracking_number),
		tracking_url = COALESCE($6, tracking_url),
		cancel_reason = COALESCE($7, cancel_reason)
	WHERE id = $1 AND status = $2`

	setRefundSQL = `UPDATE orders SET refund_id = $2, updated_at = NOW() WHERE id = $1`

	claimOrderSQL = `UPDATE orders SET user_id = $2, version = version + 1, updated_at = NOW()
	WHERE id = $1 AND user_id IS NULL`

	deactivateTokensSQL = `UPDATE order_access_tokens SET active = FALSE WHERE order_id = $1 AND active`

	orderExistsSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`
)

var itemColumns = []string{
	"id", "order_id", "position", "product_id", "variant_id", "quantity", "unit_price_cents", "line_total_cents",
}

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists the order, its items and the optional access token in one
// transaction.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order, token *order.AccessToken) error {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, insertOrderSQL,
			o.ID, o.UserID, o.Status, o.Locale, o.Currency,
			o.SubtotalCents, o.ShippingCents, o.TaxCents, o.TotalCents,
			o.ShippingAddress, o.BillingAddress, o.Customer.Email, o.Customer.Name, o.Customer.Phone,
			o.PaymentIntentID, o.FulfillmentOrderID, o.TrackingNumber, o.TrackingURL, o.RefundID, o.CancelReason,
			o.Version, o.CreatedAt, o.UpdatedAt,
		); err != nil {
			return errors.Wrap(err, "insert order")
		}

		rows := make([][]any, len(o.Items))
		for i, it := range o.Items {
			rows[i] = []any{
				it.ID, o.ID, i, it.ProductID, it.VariantID, it.Quantity, it.UnitPriceCents, it.LineTotalCents,
			}
		}
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"order_items"}, itemColumns, pgx.CopyFromRows(rows)); err != nil {
			return errors.Wrap(err, "insert items")
		}

		if token != nil {
			if _, err := tx.Exec(ctx, insertTokenSQL,
				token.ID, o.ID, token.TokenHash, token.Active, token.CreatedAt,
			); err != nil {
				return errors.Wrap(err, "insert access token")
			}
		}
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "create order %q", o.ID)
	}
	return nil
}

// GetByID returns the order with its items.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get order %q", id)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrOrderNotFound
		}
		return nil, errors.Wrapf(err, "get order %q", id)
	}

	orders := []order.Order{o}
	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// ListByPaymentIntent returns orders referencing intentID, newest first.
func (r *OrderRepository) ListByPaymentIntent(ctx context.Context, intentID string) ([]order.Order, error) {
	return r.list(ctx, listOrdersByIntentSQL, intentID)
}

// ListByUser returns orders owned by userID, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string, limit int) ([]order.Order, error) {
	return r.list(ctx, listOrdersByUserSQL, userID, limit)
}

func (r *OrderRepository) list(ctx context.Context, query string, args ...any) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, errors.Wrap(err, "scan orders")
	}
	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *OrderRepository) attachItems(ctx context.Context, orders []order.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, len(orders))
	index := make(map[string]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
	}

	rows, err := r.pool.Query(ctx, listItemsSQL, ids)
	if err != nil {
		return errors.Wrap(err, "list items")
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.Item, error) {
		var it order.Item
		err := row.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.VariantID, &it.Quantity, &it.UnitPriceCents, &it.LineTotalCents)
		return it, err
	})
	if err != nil {
		return errors.Wrap(err, "scan items")
	}
	for _, it := range items {
		i := index[it.OrderID]
		orders[i].Items = append(orders[i].Items, it)
	}
	return nil
}

// TransitionStatus performs a compare-and-swap status update.
func (r *OrderRepository) TransitionStatus(ctx context.Context, id string, from, to order.Status, t order.Transition) error {
	tag, err := r.pool.Exec(ctx, transitionSQL, id, from, to,
		t.FulfillmentOrderID, t.TrackingNumber, t.TrackingURL, t.CancelReason,
	)
	if err != nil {
		return errors.Wrapf(err, "update order %q status", id)
	}
	if tag.RowsAffected() == 0 {
		return r.missOrConflict(ctx, id, order.ErrStatusConflict)
	}
	return nil
}

// SetRefund records the refund id of a cancelled order.
func (r *OrderRepository) SetRefund(ctx context.Context, id, refundID string) error {
	tag, err := r.pool.Exec(ctx, setRefundSQL, id, refundID)
	if err != nil {
		return errors.Wrapf(err, "set refund for order %q", id)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrOrderNotFound
	}
	return nil
}

// Claim binds an anonymous order to userID and deactivates its tokens.
func (r *OrderRepository) Claim(ctx context.Context, id, userID string) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, claimOrderSQL, id, userID)
		if err != nil {
			return errors.Wrapf(err, "claim order %q", id)
		}
		if tag.RowsAffected() == 0 {
			return r.missOrConflict(ctx, id, order.ErrAlreadyClaimed)
		}
		if _, err := tx.Exec(ctx, deactivateTokensSQL, id); err != nil {
			return errors.Wrap(err, "deactivate tokens")
		}
		return nil
	})
}

// missOrConflict tells a missing order apart from a failed precondition.
func (r *OrderRepository) missOrConflict(ctx context.Context, id string, conflict error) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, orderExistsSQL, id).Scan(&exists); err != nil {
		return errors.Wrapf(err, "check order %q", id)
	}
	if !exists {
		return order.ErrOrderNotFound
	}
	return conflict
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var o order.Order
	err := row.Scan(
		&o.ID, &o.UserID, &o.Status, &o.Locale, &o.Currency,
		&o.SubtotalCents, &o.ShippingCents, &o.TaxCents, &o.TotalCents,
		&o.ShippingAddress, &o.BillingAddress, &o.Customer.Email, &o.Customer.Name, &o.Customer.Phone,
		&o.PaymentIntentID, &o.FulfillmentOrderID, &o.TrackingNumber, &o.TrackingURL, &o.RefundID, &o.CancelReason,
		&o.Version, &o.CreatedAt, &o.UpdatedAt,
	)
	return o, err
}
