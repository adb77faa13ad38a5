// Package persistence journals reconciled orders and trades to SQLite.
// The journal is write-only: nothing reads it back into live state.
package persistence

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	"mexc-gateway/internal/events"
	"mexc-gateway/pkg/db"
	"mexc-gateway/pkg/exchanges/common"
)

const journalBuffer = 1024

// Journal copies order and trade events from the bus into the database.
type Journal struct {
	session string
	gateway string
	store   *db.Database
	writer  *BatchWriter
	bus     *events.Bus
	log     *zap.Logger

	mu      sync.Mutex
	unsubs  []func()
	readers conc.WaitGroup
}

// NewJournal prepares a journal for one process lifetime. Every row it
// writes carries a fresh session id.
func NewJournal(store *db.Database, bus *events.Bus, gateway string, flushEvery time.Duration, log *zap.Logger) *Journal {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("journal")
	return &Journal{
		session: uuid.NewString(),
		gateway: gateway,
		store:   store,
		writer:  NewBatchWriter(store.DB, 0, flushEvery, log),
		bus:     bus,
		log:     log,
	}
}

// SessionID identifies this process's rows.
func (j *Journal) SessionID() string { return j.session }

// Start subscribes to order and trade events.
func (j *Journal) Start() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if len(j.unsubs) > 0 {
		return
	}
	for _, e := range []events.Event{events.EventOrder, events.EventTrade} {
		ch, unsub := j.bus.Subscribe(e, journalBuffer)
		j.unsubs = append(j.unsubs, unsub)
		j.readers.Go(func() { j.consume(ch) })
	}
	j.log.Info("journal started", zap.String("session_id", j.session))
}

func (j *Journal) consume(ch <-chan any) {
	for payload := range ch {
		switch v := payload.(type) {
		case common.Order:
			j.writer.Write(WriteOp{Query: db.UpsertOrderSQL, Args: j.orderRow(v).Args()})
		case common.Trade:
			j.writer.Write(WriteOp{Query: db.InsertTradeSQL, Args: j.tradeRow(v).Args()})
		default:
			j.log.Warn("unexpected journal payload", zap.Any("payload", payload))
		}
	}
}

func (j *Journal) orderRow(o common.Order) db.Order {
	updated := o.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	return db.Order{
		SessionID: j.session,
		Gateway:   j.gateway,
		Category:  string(o.Category),
		OrderID:   o.OrderID,
		Symbol:    o.Symbol,
		Direction: string(o.Direction),
		Offset:    string(o.Offset),
		Type:      string(o.Type),
		Price:     o.Price,
		Volume:    o.Volume,
		Traded:    o.Traded,
		Status:    string(o.Status),
		UpdatedAt: updated,
	}
}

func (j *Journal) tradeRow(t common.Trade) db.Trade {
	return db.Trade{
		SessionID: j.session,
		Gateway:   j.gateway,
		TradeID:   t.TradeID,
		OrderID:   t.OrderID,
		Category:  string(t.Category),
		Symbol:    t.Symbol,
		Direction: string(t.Direction),
		Offset:    string(t.Offset),
		Price:     t.Price,
		Volume:    t.Volume,
		Time:      t.Time,
	}
}

// Orders lists this session's journaled orders, newest first.
func (j *Journal) Orders(ctx context.Context, limit int) ([]db.Order, error) {
	_ = j.writer.Flush()
	return j.store.Queries().ListOrders(ctx, j.session, limit)
}

// Trades lists this session's journaled trades, newest first.
func (j *Journal) Trades(ctx context.Context, limit int) ([]db.Trade, error) {
	_ = j.writer.Flush()
	return j.store.Queries().ListTrades(ctx, j.session, limit)
}

// Metrics reports batch writer statistics.
func (j *Journal) Metrics() BatchWriterMetrics { return j.writer.GetMetrics() }

// Close unsubscribes, drains what was already received and flushes it.
func (j *Journal) Close() error {
	j.mu.Lock()
	unsubs := j.unsubs
	j.unsubs = nil
	j.mu.Unlock()
	for _, unsub := range unsubs {
		unsub()
	}
	j.readers.Wait()
	return j.writer.Close()
}
