//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/authorstore/internal/domain/auth"
	"github.com/xenking/authorstore/internal/domain/order"
	"github.com/xenking/authorstore/internal/domain/product"
)

func setupPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("store"),
		tcpostgres.WithUsername("store"),
		tcpostgres.WithPassword("store"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate container: %s", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, RunMigrations(ctx, pool))
	// Second run must be a no-op.
	require.NoError(t, RunMigrations(ctx, pool))

	products := NewProductRepository(pool)
	for _, p := range []product.Product{
		{ID: "book", Name: "Book", Price: decimal.RequireFromString("24.99"), Currency: "usd", Active: true},
		{
			ID: "tee", Name: "Tee", Price: decimal.RequireFromString("22.00"), Currency: "usd", Active: true,
			FulfillmentProductID: "pf-1", FulfillmentVariantID: "17887",
		},
	} {
		require.NoError(t, products.Upsert(ctx, p))
	}
	return pool
}

func newOrder(userID *string, intentID string, created time.Time) *order.Order {
	id := uuid.NewString()
	addr := order.Address{Line1: "1 Main St", City: "San Francisco", State: "CA", PostalCode: "94105", Country: "US"}
	return &order.Order{
		ID:              id,
		UserID:          userID,
		Status:          order.StatusPending,
		Locale:          "es",
		Currency:        "usd",
		SubtotalCents:   4699,
		ShippingCents:   500,
		TaxCents:        388,
		TotalCents:      5587,
		ShippingAddress: addr,
		BillingAddress:  addr,
		Customer:        order.Customer{Email: "reader@example.com", Name: "Ana Reader"},
		PaymentIntentID: intentID,
		Version:         1,
		CreatedAt:       created,
		UpdatedAt:       created,
		Items: []order.Item{
			{ID: uuid.NewString(), ProductID: "book", Quantity: 1, UnitPriceCents: 2499, LineTotalCents: 2499},
			{ID: uuid.NewString(), ProductID: "tee", VariantID: "17887", Quantity: 1, UnitPriceCents: 2200, LineTotalCents: 2200},
		},
	}
}

func TestProductRepository(t *testing.T) {
	pool := setupPool(t)
	ctx := context.Background()
	repo := NewProductRepository(pool)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)

	tee, err := repo.GetByID(ctx, "tee")
	require.NoError(t, err)
	assert.True(t, tee.VendorFulfilled())
	assert.Equal(t, int64(2200), tee.PriceCents())

	_, err = repo.GetByID(ctx, "missing")
	require.ErrorIs(t, err, product.ErrNotFound)

	got, err := repo.GetByIDs(ctx, []string{"book", "missing"})
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestOrderRepository_Lifecycle(t *testing.T) {
	pool := setupPool(t)
	ctx := context.Background()
	orders := NewOrderRepository(pool)
	tokens := NewTokenRepository(pool)

	now := time.Now().UTC().Truncate(time.Millisecond)
	o := newOrder(nil, "pi_1", now)
	token := &order.AccessToken{ID: uuid.NewString(), TokenHash: "hash-1", Active: true, CreatedAt: now}
	require.NoError(t, orders.Create(ctx, o, token))

	got, err := orders.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, got.Anonymous())
	assert.Equal(t, o.ShippingAddress, got.ShippingAddress)
	require.Len(t, got.Items, 2)
	assert.Equal(t, "book", got.Items[0].ProductID)
	assert.Equal(t, "17887", got.Items[1].VariantID)

	active, err := tokens.FindActive(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "hash-1", active.TokenHash)
	require.NoError(t, tokens.RecordUse(ctx, active.ID, now))
	active, err = tokens.FindActive(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, active.UseCount)
	require.NotNil(t, active.LastUsedAt)

	vendorID := "vendor-1"
	require.NoError(t, orders.TransitionStatus(ctx, o.ID, order.StatusPending, order.StatusPaid, order.Transition{}))
	require.NoError(t, orders.TransitionStatus(ctx, o.ID, order.StatusPaid, order.StatusProcessing,
		order.Transition{FulfillmentOrderID: &vendorID}))

	err = orders.TransitionStatus(ctx, o.ID, order.StatusPaid, order.StatusProcessing, order.Transition{})
	require.ErrorIs(t, err, order.ErrStatusConflict)
	err = orders.TransitionStatus(ctx, "missing", order.StatusPaid, order.StatusProcessing, order.Transition{})
	require.ErrorIs(t, err, order.ErrOrderNotFound)

	got, err = orders.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusProcessing, got.Status)
	assert.Equal(t, "vendor-1", got.FulfillmentOrderID)
	assert.Equal(t, int64(3), got.Version)

	require.NoError(t, orders.Claim(ctx, o.ID, "user-1"))
	require.ErrorIs(t, orders.Claim(ctx, o.ID, "user-2"), order.ErrAlreadyClaimed)
	require.ErrorIs(t, orders.Claim(ctx, "missing", "user-2"), order.ErrOrderNotFound)

	_, err = tokens.FindActive(ctx, o.ID)
	require.ErrorIs(t, err, order.ErrTokenNotFound)

	mine, err := orders.ListByUser(ctx, "user-1", 10)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Len(t, mine[0].Items, 2)

	reason := "customer request"
	require.NoError(t, orders.TransitionStatus(ctx, o.ID, order.StatusProcessing, order.StatusCancelled,
		order.Transition{CancelReason: &reason}))
	require.NoError(t, orders.SetRefund(ctx, o.ID, "re_1"))
	got, err = orders.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "re_1", got.RefundID)
	assert.Equal(t, reason, got.CancelReason)
}

func TestOrderRepository_ListByPaymentIntent(t *testing.T) {
	pool := setupPool(t)
	ctx := context.Background()
	orders := NewOrderRepository(pool)

	base := time.Now().UTC()
	older := newOrder(nil, "pi_shared", base.Add(-time.Minute))
	newer := newOrder(nil, "pi_shared", base)
	require.NoError(t, orders.Create(ctx, older, nil))
	require.NoError(t, orders.Create(ctx, newer, nil))

	list, err := orders.ListByPaymentIntent(ctx, "pi_shared")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].ID)

	list, err = orders.ListByPaymentIntent(ctx, "pi_none")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestOrderRepository_CreateRollsBack(t *testing.T) {
	pool := setupPool(t)
	ctx := context.Background()
	orders := NewOrderRepository(pool)

	o := newOrder(nil, "pi_bad", time.Now())
	o.Items[0].ProductID = "unknown"
	require.Error(t, orders.Create(ctx, o, nil))

	_, err := orders.GetByID(ctx, o.ID)
	require.ErrorIs(t, err, order.ErrOrderNotFound)
}

func TestAccessLogAndAPIKeys(t *testing.T) {
	pool := setupPool(t)
	ctx := context.Background()

	o := newOrder(nil, "pi_log", time.Now())
	require.NoError(t, NewOrderRepository(pool).Create(ctx, o, nil))
	require.NoError(t, NewAccessLogRepository(pool).Record(ctx, order.AccessLogEntry{
		OrderID: o.ID, Method: order.MethodNone, Reason: order.ReasonMissingToken,
	}))

	var count int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM order_access_logs WHERE order_id = $1`, o.ID).Scan(&count))
	assert.Equal(t, 1, count)

	keys := NewAPIKeyRepository(pool)
	require.NoError(t, keys.Upsert(ctx, auth.APIKeyInfo{ID: "ops", KeyHash: "h1", Name: "Ops", Scopes: []string{auth.ScopeOrdersAdmin}}))
	info, err := keys.FindByHash(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, []string{auth.ScopeOrdersAdmin}, info.Scopes)

	require.NoError(t, keys.Upsert(ctx, auth.APIKeyInfo{ID: "ops", KeyHash: "h2", Name: "Ops"}))
	_, err = keys.FindByHash(ctx, "h1")
	require.ErrorIs(t, err, auth.ErrKeyNotFound)

	version, dirty, err := MigrationVersion(pool)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)
}
