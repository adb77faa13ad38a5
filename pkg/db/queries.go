// Package db stores the gateway's order and trade journal in SQLite.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var ErrSessionRequired = errors.New("session_id is required")

// Order is one journaled order snapshot. Later snapshots of the same order
// in the same session replace earlier ones.
type Order struct {
	SessionID string
	Gateway   string
	Category  string
	OrderID   string
	Symbol    string
	Direction string
	Offset    string
	Type      string
	Price     float64
	Volume    float64
	Traded    float64
	Status    string
	UpdatedAt time.Time
}

// Trade is one journaled fill.
type Trade struct {
	SessionID string
	Gateway   string
	TradeID   string
	OrderID   string
	Category  string
	Symbol    string
	Direction string
	Offset    string
	Price     float64
	Volume    float64
	Time      time.Time
}

// UpsertOrderSQL replaces the row of an order within its session.
const UpsertOrderSQL = `
	INSERT INTO orders (
		session_id, gateway, category, order_id, symbol, direction, offset_flag,
		order_type, price, volume, traded, status, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(session_id, category, order_id) DO UPDATE SET
		symbol = excluded.symbol,
		direction = excluded.direction,
		offset_flag = excluded.offset_flag,
		order_type = excluded.order_type,
		price = excluded.price,
		volume = excluded.volume,
		traded = excluded.traded,
		status = excluded.status,
		updated_at = excluded.updated_at`

// InsertTradeSQL records a fill once; replays of the same trade id are ignored.
const InsertTradeSQL = `
	INSERT OR IGNORE INTO trades (
		session_id, gateway, trade_id, order_id, category, symbol, direction,
		offset_flag, price, volume, traded_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Args returns the UpsertOrderSQL arguments for o.
func (o Order) Args() []any {
	return []any{
		o.SessionID, o.Gateway, o.Category, o.OrderID, o.Symbol, o.Direction, o.Offset,
		o.Type, o.Price, o.Volume, o.Traded, o.Status, o.UpdatedAt.UnixMilli(),
	}
}

// Args returns the InsertTradeSQL arguments for t.
func (t Trade) Args() []any {
	return []any{
		t.SessionID, t.Gateway, t.TradeID, t.OrderID, t.Category, t.Symbol, t.Direction,
		t.Offset, t.Price, t.Volume, t.Time.UnixMilli(),
	}
}

// SessionQueries reads and writes journal rows scoped to one session.
type SessionQueries struct {
	db *sql.DB
}

// NewSessionQueries creates a new SessionQueries instance.
func NewSessionQueries(db *sql.DB) *SessionQueries {
	return &SessionQueries{db: db}
}

// Queries returns session-scoped queries over d.
func (d *Database) Queries() *SessionQueries {
	return NewSessionQueries(d.DB)
}

// UpsertOrder writes o immediately, bypassing any batching.
func (q *SessionQueries) UpsertOrder(ctx context.Context, o Order) error {
	if o.SessionID == "" {
		return ErrSessionRequired
	}
	if _, err := q.db.ExecContext(ctx, UpsertOrderSQL, o.Args()...); err != nil {
		return fmt.Errorf("upsert order %s: %w", o.OrderID, err)
	}
	return nil
}

// InsertTrade writes t immediately, bypassing any batching.
func (q *SessionQueries) InsertTrade(ctx context.Context, t Trade) error {
	if t.SessionID == "" {
		return ErrSessionRequired
	}
	if _, err := q.db.ExecContext(ctx, InsertTradeSQL, t.Args()...); err != nil {
		return fmt.Errorf("insert trade %s: %w", t.TradeID, err)
	}
	return nil
}

// ListOrders returns the newest orders of a session.
func (q *SessionQueries) ListOrders(ctx context.Context, sessionID string, limit int) ([]Order, error) {
	if sessionID == "" {
		return nil, ErrSessionRequired
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := q.db.QueryContext(ctx, `
		SELECT session_id, gateway, category, order_id, symbol, direction, offset_flag,
		       order_type, price, volume, traded, status, updated_at
		FROM orders
		WHERE session_id = ?
		ORDER BY updated_at DESC, order_id DESC
		LIMIT ?
	`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		var (
			o  Order
			ms int64
		)
		if err := rows.Scan(&o.SessionID, &o.Gateway, &o.Category, &o.OrderID, &o.Symbol, &o.Direction, &o.Offset,
			&o.Type, &o.Price, &o.Volume, &o.Traded, &o.Status, &ms); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		o.UpdatedAt = time.UnixMilli(ms)
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// ListTrades returns the newest trades of a session.
func (q *SessionQueries) ListTrades(ctx context.Context, sessionID string, limit int) ([]Trade, error) {
	if sessionID == "" {
		return nil, ErrSessionRequired
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := q.db.QueryContext(ctx, `
		SELECT session_id, gateway, trade_id, order_id, category, symbol, direction,
		       offset_flag, price, volume, traded_at
		FROM trades
		WHERE session_id = ?
		ORDER BY traded_at DESC, trade_id DESC
		LIMIT ?
	`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var trades []Trade
	for rows.Next() {
		var (
			t  Trade
			ms int64
		)
		if err := rows.Scan(&t.SessionID, &t.Gateway, &t.TradeID, &t.OrderID, &t.Category, &t.Symbol, &t.Direction,
			&t.Offset, &t.Price, &t.Volume, &ms); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		t.Time = time.UnixMilli(ms)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}
