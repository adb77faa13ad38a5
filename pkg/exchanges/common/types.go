package common

import "time"

// Direction denotes the side of an order, trade or position.
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// Offset tells whether an order opens or closes exposure. OffsetNone means unknown.
type Offset string

const (
	OffsetNone  Offset = ""
	OffsetOpen  Offset = "OPEN"
	OffsetClose Offset = "CLOSE"
)

// OrderType denotes the canonical order kinds.
type OrderType string

const (
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeStop   OrderType = "STOP"
)

// Status normalizes exchange status codes into a small set.
type Status string

const (
	StatusSubmitting Status = "SUBMITTING"
	StatusNotTraded  Status = "NOTTRADED"
	StatusPartTraded Status = "PARTTRADED"
	StatusAllTraded  Status = "ALLTRADED"
	StatusCancelled  Status = "CANCELLED"
	StatusRejected   Status = "REJECTED"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	switch s {
	case StatusAllTraded, StatusCancelled, StatusRejected:
		return true
	}
	return false
}

// Active reports whether the order may still rest on the book.
func (s Status) Active() bool {
	return !s.Terminal()
}

// Category separates the exchange's order id namespaces.
type Category string

const (
	CategoryRegular  Category = "REGULAR"
	CategoryPlan     Category = "PLAN"
	CategoryStopPlan Category = "STOP_PLAN"
)

// OrderKey identifies an order across id namespaces.
type OrderKey struct {
	Category Category
	ID       string
}

func (k OrderKey) String() string {
	return string(k.Category) + ":" + k.ID
}

// Interval is a bar size.
type Interval string

const (
	IntervalMinute Interval = "1m"
	IntervalHour   Interval = "1h"
	IntervalDaily  Interval = "1d"
)

// Duration returns the length of one bar, or 0 for unknown intervals.
func (i Interval) Duration() time.Duration {
	switch i {
	case IntervalMinute:
		return time.Minute
	case IntervalHour:
		return time.Hour
	case IntervalDaily:
		return 24 * time.Hour
	}
	return 0
}

// Contract is the immutable trading metadata of a symbol.
type Contract struct {
	Symbol    string  `json:"symbol"`
	Name      string  `json:"name"`
	PriceTick float64 `json:"price_tick"`
	MinVolume float64 `json:"min_volume"`
	Leverage  float64 `json:"leverage"`
}

// Order is the reconciled view of one exchange order.
type Order struct {
	Category  Category  `json:"category"`
	OrderID   string    `json:"order_id"`
	Symbol    string    `json:"symbol"`
	Direction Direction `json:"direction"`
	Offset    Offset    `json:"offset,omitempty"`
	Type      OrderType `json:"type"`
	Price     float64   `json:"price"`
	Volume    float64   `json:"volume"`
	Traded    float64   `json:"traded"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Key returns the order's identity.
func (o Order) Key() OrderKey {
	return OrderKey{Category: o.Category, ID: o.OrderID}
}

// Trade is a fill derived from a traded-volume increase. Never mutated.
type Trade struct {
	TradeID   string    `json:"trade_id"`
	OrderID   string    `json:"order_id"`
	Category  Category  `json:"category"`
	Symbol    string    `json:"symbol"`
	Direction Direction `json:"direction"`
	Offset    Offset    `json:"offset,omitempty"`
	Price     float64   `json:"price"`
	Volume    float64   `json:"volume"`
	Time      time.Time `json:"time"`
}

// Position is replaced wholesale on every update.
type Position struct {
	Symbol    string    `json:"symbol"`
	Direction Direction `json:"direction"`
	Volume    float64   `json:"volume"`
	Price     float64   `json:"price"`
	PnL       float64   `json:"pnl"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Account is a per-currency balance.
type Account struct {
	Currency  string    `json:"currency"`
	Balance   float64   `json:"balance"`
	Frozen    float64   `json:"frozen"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DepthLevels is the ladder depth carried by a Tick.
const DepthLevels = 5

// Tick is the latest market snapshot of a symbol.
type Tick struct {
	Symbol       string    `json:"symbol"`
	Name         string    `json:"name"`
	Time         time.Time `json:"time"`
	LocalTime    time.Time `json:"local_time"`
	LastPrice    float64   `json:"last_price"`
	Volume       float64   `json:"volume"`
	HighPrice    float64   `json:"high_price"`
	LowPrice     float64   `json:"low_price"`
	OpenInterest float64   `json:"open_interest"`

	BidPrice  [DepthLevels]float64 `json:"bid_price"`
	BidVolume [DepthLevels]float64 `json:"bid_volume"`
	AskPrice  [DepthLevels]float64 `json:"ask_price"`
	AskVolume [DepthLevels]float64 `json:"ask_volume"`
}

// Bar is one historical candle.
type Bar struct {
	Symbol   string    `json:"symbol"`
	Interval Interval  `json:"interval"`
	Time     time.Time `json:"time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// OrderRequest captures an order intent sent by the host.
type OrderRequest struct {
	Symbol    string    `json:"symbol"`
	Direction Direction `json:"direction"`
	Type      OrderType `json:"type"`
	Offset    Offset    `json:"offset,omitempty"`
	Price     float64   `json:"price"` // limit price, or trigger price for STOP
	Volume    float64   `json:"volume"`
}

// CancelRequest identifies an order to cancel.
type CancelRequest struct {
	Symbol  string `json:"symbol"`
	OrderID string `json:"order_id"`
}

// HistoryRequest asks for bars in [Start, End].
type HistoryRequest struct {
	Symbol   string
	Interval Interval
	Start    time.Time
	End      time.Time
}

// SubscribeRequest asks for market data of one symbol.
type SubscribeRequest struct {
	Symbol string `json:"symbol"`
}

// OrderUpdate is the normalized form of an order snapshot or push.
// Status is already mapped from the category-specific raw code.
type OrderUpdate struct {
	Category  Category
	OrderID   string
	Symbol    string
	Direction Direction
	Offset    Offset
	Type      OrderType
	Status    Status
	Price     float64 // limit price, or trigger price for plan orders
	AvgPrice  float64 // average fill price, 0 when unknown
	Volume    float64
	DealVol   float64 // cumulative traded volume reported by regular orders
	CreatedAt time.Time
	UpdatedAt time.Time
}
