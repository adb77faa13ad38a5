package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *Database {
	t.Helper()
	database, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	require.NoError(t, ApplyMigrations(database))
	return database
}

func TestQueriesRequireSession(t *testing.T) {
	q := newTestDB(t).Queries()
	ctx := context.Background()

	_, err := q.ListOrders(ctx, "", 10)
	assert.ErrorIs(t, err, ErrSessionRequired)
	_, err = q.ListTrades(ctx, "", 10)
	assert.ErrorIs(t, err, ErrSessionRequired)
	assert.ErrorIs(t, q.UpsertOrder(ctx, Order{OrderID: "1"}), ErrSessionRequired)
	assert.ErrorIs(t, q.InsertTrade(ctx, Trade{TradeID: "1"}), ErrSessionRequired)
}

func TestMigrationsAreIdempotent(t *testing.T) {
	database := newTestDB(t)
	require.NoError(t, ApplyMigrations(database))
	ok, err := columnExists(database.DB, "orders", "gateway")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUpsertOrderReplacesWithinSession(t *testing.T) {
	q := newTestDB(t).Queries()
	ctx := context.Background()
	now := time.UnixMilli(1700000000000)

	o := Order{
		SessionID: "s1", Gateway: "MEXC_USDT", Category: "REGULAR", OrderID: "123",
		Symbol: "ETH_USDT", Direction: "LONG", Type: "LIMIT", Price: 2000, Volume: 10,
		Status: "SUBMITTING", UpdatedAt: now,
	}
	require.NoError(t, q.UpsertOrder(ctx, o))
	o.Traded, o.Status, o.UpdatedAt = 4, "PARTTRADED", now.Add(time.Second)
	require.NoError(t, q.UpsertOrder(ctx, o))

	// Same id in another category is a different order.
	plan := o
	plan.Category = "PLAN"
	require.NoError(t, q.UpsertOrder(ctx, plan))

	other := o
	other.SessionID = "s2"
	require.NoError(t, q.UpsertOrder(ctx, other))

	orders, err := q.ListOrders(ctx, "s1", 10)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	for _, got := range orders {
		assert.Equal(t, "PARTTRADED", got.Status)
		assert.Equal(t, 4.0, got.Traded)
		assert.Equal(t, now.Add(time.Second).UnixMilli(), got.UpdatedAt.UnixMilli())
	}
}

func TestInsertTradeIgnoresReplay(t *testing.T) {
	q := newTestDB(t).Queries()
	ctx := context.Background()

	tr := Trade{
		SessionID: "s1", Gateway: "MEXC_USDT", TradeID: "1", OrderID: "123", Category: "REGULAR",
		Symbol: "ETH_USDT", Direction: "LONG", Offset: "OPEN", Price: 2000, Volume: 4,
		Time: time.UnixMilli(1700000000000),
	}
	require.NoError(t, q.InsertTrade(ctx, tr))
	require.NoError(t, q.InsertTrade(ctx, tr))
	tr.TradeID, tr.Volume, tr.Time = "2", 6, tr.Time.Add(time.Second)
	require.NoError(t, q.InsertTrade(ctx, tr))

	trades, err := q.ListTrades(ctx, "s1", 10)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "2", trades[0].TradeID)
	assert.Equal(t, "OPEN", trades[1].Offset)

	limited, err := q.ListTrades(ctx, "s1", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
