package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mexc-gateway/internal/events"
	"mexc-gateway/pkg/db"
	"mexc-gateway/pkg/exchanges/common"
)

func newStore(t *testing.T) *db.Database {
	t.Helper()
	store, err := db.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, db.ApplyMigrations(store))
	return store
}

func TestJournalRecordsOrdersAndTrades(t *testing.T) {
	store := newStore(t)
	bus := events.NewBus()
	j := NewJournal(store, bus, "MEXC_USDT", 10*time.Millisecond, nil)
	j.Start()
	require.NotEmpty(t, j.SessionID())

	order := common.Order{
		Category: common.CategoryRegular, OrderID: "123", Symbol: "ETH_USDT",
		Direction: common.DirectionLong, Type: common.OrderTypeLimit, Price: 2000, Volume: 10,
		Status: common.StatusSubmitting,
	}
	bus.Publish(events.EventOrder, order)
	order.Traded, order.Status = 10, common.StatusAllTraded
	bus.Publish(events.EventOrder, order)
	bus.Publish(events.EventTrade, common.Trade{
		TradeID: "1", OrderID: "123", Category: common.CategoryRegular, Symbol: "ETH_USDT",
		Direction: common.DirectionLong, Price: 2000, Volume: 10, Time: time.Now(),
	})

	require.Eventually(t, func() bool {
		orders, err := j.Orders(context.Background(), 10)
		if err != nil || len(orders) != 1 || orders[0].Status != "ALLTRADED" {
			return false
		}
		trades, err := j.Trades(context.Background(), 10)
		return err == nil && len(trades) == 1
	}, 2*time.Second, 10*time.Millisecond)

	orders, err := j.Orders(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, "MEXC_USDT", orders[0].Gateway)
	assert.Equal(t, 10.0, orders[0].Traded)
	assert.Equal(t, j.SessionID(), orders[0].SessionID)
	require.NoError(t, j.Close())
	assert.Zero(t, bus.Subscribers(events.EventOrder))
}

func TestJournalSessionsAreIsolated(t *testing.T) {
	store := newStore(t)
	bus := events.NewBus()
	first := NewJournal(store, bus, "MEXC_USDT", time.Hour, nil)
	first.Start()
	bus.Publish(events.EventTrade, common.Trade{TradeID: "1", OrderID: "9", Category: common.CategoryPlan, Time: time.Now()})
	require.NoError(t, first.Close())

	second := NewJournal(store, bus, "MEXC_USDT", time.Hour, nil)
	defer second.Close()
	assert.NotEqual(t, first.SessionID(), second.SessionID())

	trades, err := second.Trades(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, trades)

	trades, err = store.Queries().ListTrades(context.Background(), first.SessionID(), 10)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "PLAN", trades[0].Category)
}

func TestBatchWriterFlushesAtMaxSize(t *testing.T) {
	store := newStore(t)
	bw := NewBatchWriter(store.DB, 2, time.Hour, nil)
	defer bw.Close()

	row := db.Trade{SessionID: "s", TradeID: "1", Time: time.Now()}
	bw.Write(WriteOp{Query: db.InsertTradeSQL, Args: row.Args()})
	assert.Equal(t, 1, bw.Pending())

	row.TradeID = "2"
	bw.Write(WriteOp{Query: db.InsertTradeSQL, Args: row.Args()})
	assert.Zero(t, bw.Pending())

	m := bw.GetMetrics()
	assert.Equal(t, uint64(2), m.TotalWrites)
	assert.Equal(t, uint64(1), m.TotalBatches)
	assert.Equal(t, 2, m.LastBatchSize)
	assert.False(t, m.LastFlushTime.IsZero())
}

func TestBatchWriterRollsBackFailedBatch(t *testing.T) {
	store := newStore(t)
	bw := NewBatchWriter(store.DB, 10, time.Hour, nil)
	defer bw.Close()

	row := db.Trade{SessionID: "s", TradeID: "1", Time: time.Now()}
	bw.Write(WriteOp{Query: db.InsertTradeSQL, Args: row.Args()})
	bw.WriteQuery("INSERT INTO missing_table VALUES (1)")
	assert.Error(t, bw.Flush())
	assert.Equal(t, uint64(1), bw.GetMetrics().TotalErrors)

	trades, err := store.Queries().ListTrades(context.Background(), "s", 10)
	require.NoError(t, err)
	assert.Empty(t, trades)
}
