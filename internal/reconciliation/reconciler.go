package reconciliation

import (
	"sort"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"mexc-gateway/internal/events"
	"mexc-gateway/pkg/exchanges/common"
)

// maxTrades bounds the in-memory trade history.
const maxTrades = 10000

// Publisher receives committed state. *events.Bus satisfies it.
type Publisher interface {
	Publish(e events.Event, payload any)
}

// VolumeSteps resolves a symbol's minimum volume step.
type VolumeSteps interface {
	MinVolume(symbol string) float64
}

type positionKey struct {
	symbol    string
	direction common.Direction
}

// Reconciler owns the canonical order, position and account tables. REST
// snapshots and stream pushes both land here and are applied one at a time.
type Reconciler struct {
	steps VolumeSteps
	pub   Publisher
	log   *zap.Logger
	now   func() time.Time

	mu        sync.Mutex
	orders    map[common.OrderKey]*common.Order
	positions map[positionKey]common.Position
	accounts  map[string]common.Account
	trades    []common.Trade
	tradeSeq  int64

	// pubMu is taken before mu is released so publications leave in
	// commit order without holding mu while publishing.
	pubMu sync.Mutex
}

// New creates an empty reconciler.
func New(steps VolumeSteps, pub Publisher, log *zap.Logger) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{
		steps:     steps,
		pub:       pub,
		log:       log.Named("reconciler"),
		now:       time.Now,
		orders:    make(map[common.OrderKey]*common.Order),
		positions: make(map[positionKey]common.Position),
		accounts:  make(map[string]common.Account),
	}
}

type publication struct {
	event   events.Event
	payload any
}

// commit hands publications over to pubMu, releases mu and publishes.
// mu must be held by the caller.
func (r *Reconciler) commit(pubs ...publication) {
	r.pubMu.Lock()
	r.mu.Unlock()
	defer r.pubMu.Unlock()
	if r.pub == nil {
		return
	}
	for _, p := range pubs {
		r.pub.Publish(p.event, p.payload)
	}
}

// ApplyOrder merges an order update. Updates for terminal orders are ignored;
// a rise in traded volume produces one trade for the difference, measured
// in whole volume steps.
func (r *Reconciler) ApplyOrder(u common.OrderUpdate) {
	if u.OrderID == "" {
		r.log.Warn("order update without id", zap.String("symbol", u.Symbol))
		return
	}
	key := common.OrderKey{Category: u.Category, ID: u.OrderID}

	r.mu.Lock()
	o, ok := r.orders[key]
	if ok && o.Status.Terminal() {
		r.mu.Unlock()
		r.log.Debug("late update for terminal order",
			zap.String("order", key.String()),
			zap.String("status", string(u.Status)))
		return
	}
	if !ok {
		o = &common.Order{
			Category:  u.Category,
			OrderID:   u.OrderID,
			Symbol:    u.Symbol,
			Direction: u.Direction,
			Offset:    u.Offset,
			Type:      u.Type,
			Price:     u.Price,
			Volume:    u.Volume,
			Status:    common.StatusSubmitting,
			CreatedAt: u.CreatedAt,
		}
		if o.CreatedAt.IsZero() {
			o.CreatedAt = r.now()
		}
		r.orders[key] = o
	}

	newTraded := u.DealVol
	if u.Category != common.CategoryRegular {
		newTraded = 0
		if u.Status == common.StatusAllTraded {
			newTraded = u.Volume
		}
	}

	if u.Offset != common.OffsetNone {
		o.Offset = u.Offset
	}
	if u.Symbol != "" {
		o.Symbol = u.Symbol
	}
	if u.Direction != "" {
		o.Direction = u.Direction
	}
	if u.Type != "" {
		o.Type = u.Type
	}
	if u.Volume > 0 {
		o.Volume = u.Volume
	}

	var trade *common.Trade
	if newTraded > o.Traded {
		// Trades sum to the rounded cumulative traded volume.
		step := r.minVolume(o.Symbol)
		volume := common.StepDelta(o.Traded, newTraded, step)
		o.Traded = newTraded
		if volume > 0 {
			price := u.AvgPrice
			if price <= 0 {
				price = u.Price
			}
			at := u.UpdatedAt
			if at.IsZero() {
				at = r.now()
			}
			r.tradeSeq++
			t := common.Trade{
				TradeID:   strconv.FormatInt(r.tradeSeq, 10),
				OrderID:   o.OrderID,
				Category:  o.Category,
				Symbol:    o.Symbol,
				Direction: o.Direction,
				Offset:    o.Offset,
				Price:     price,
				Volume:    volume,
				Time:      at,
			}
			r.trades = append(r.trades, t)
			if len(r.trades) > maxTrades {
				r.trades = r.trades[len(r.trades)-maxTrades:]
			}
			trade = &t
		}
	}

	if u.Status == common.StatusAllTraded && u.AvgPrice > 0 {
		o.Price = u.AvgPrice
	} else if u.Price > 0 {
		o.Price = u.Price
	}
	if u.Status != "" {
		o.Status = u.Status
	}
	o.UpdatedAt = u.UpdatedAt
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = r.now()
	}

	pubs := []publication{{events.EventOrder, *o}}
	if trade != nil {
		pubs = append(pubs, publication{events.EventTrade, *trade})
	}
	r.commit(pubs...)
}

func (r *Reconciler) minVolume(symbol string) float64 {
	if r.steps == nil {
		return 0
	}
	return r.steps.MinVolume(symbol)
}

// RegisterSubmitted records an order the gateway just placed. If a push
// already created it, only a missing offset is filled in.
func (r *Reconciler) RegisterSubmitted(order common.Order) {
	key := order.Key()
	r.mu.Lock()
	if o, ok := r.orders[key]; ok {
		if o.Offset != common.OffsetNone || order.Offset == common.OffsetNone {
			r.mu.Unlock()
			return
		}
		o.Offset = order.Offset
		r.commit(publication{events.EventOrder, *o})
		return
	}
	if order.Status == "" {
		order.Status = common.StatusSubmitting
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = r.now()
	}
	order.UpdatedAt = order.CreatedAt
	o := order
	r.orders[key] = &o
	r.commit(publication{events.EventOrder, o})
}

// ApplyPosition replaces the position for its symbol and direction.
func (r *Reconciler) ApplyPosition(p common.Position) {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = r.now()
	}
	r.mu.Lock()
	r.positions[positionKey{p.Symbol, p.Direction}] = p
	r.commit(publication{events.EventPosition, p})
}

// ApplyAccount replaces the balance of a currency.
func (r *Reconciler) ApplyAccount(a common.Account) {
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = r.now()
	}
	r.mu.Lock()
	r.accounts[a.Currency] = a
	r.commit(publication{events.EventAccount, a})
}

// Order returns a copy of the order under key.
func (r *Reconciler) Order(key common.OrderKey) (common.Order, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[key]
	if !ok {
		return common.Order{}, false
	}
	return *o, true
}

// FindOrder looks an id up across categories, regular first.
func (r *Reconciler) FindOrder(id string) (common.Order, bool) {
	for _, c := range []common.Category{common.CategoryRegular, common.CategoryPlan, common.CategoryStopPlan} {
		if o, ok := r.Order(common.OrderKey{Category: c, ID: id}); ok {
			return o, true
		}
	}
	return common.Order{}, false
}

// Orders returns every tracked order, oldest first.
func (r *Reconciler) Orders() []common.Order {
	return r.collect(func(common.Order) bool { return true })
}

// ActiveOrders returns orders that have not reached a terminal status.
func (r *Reconciler) ActiveOrders() []common.Order {
	return r.collect(func(o common.Order) bool { return o.Status.Active() })
}

func (r *Reconciler) collect(keep func(common.Order) bool) []common.Order {
	r.mu.Lock()
	out := make([]common.Order, 0, len(r.orders))
	for _, o := range r.orders {
		if keep(*o) {
			out = append(out, *o)
		}
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Key().String() < out[j].Key().String()
	})
	return out
}

// Positions returns the latest position per symbol and direction.
func (r *Reconciler) Positions() []common.Position {
	r.mu.Lock()
	out := make([]common.Position, 0, len(r.positions))
	for _, p := range r.positions {
		out = append(out, p)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Symbol != out[j].Symbol {
			return out[i].Symbol < out[j].Symbol
		}
		return out[i].Direction < out[j].Direction
	})
	return out
}

// Accounts returns balances sorted by currency.
func (r *Reconciler) Accounts() []common.Account {
	r.mu.Lock()
	out := make([]common.Account, 0, len(r.accounts))
	for _, a := range r.accounts {
		out = append(out, a)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out
}

// Trades returns the derived trades in emission order.
func (r *Reconciler) Trades() []common.Trade {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]common.Trade(nil), r.trades...)
}
