package mexc

import (
	"bytes"
	"strconv"
	"time"

	json "github.com/goccy/go-json"

	"mexc-gateway/pkg/exchanges/common"
)

// envelope is the common REST response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// number accepts JSON numbers, quoted numbers and null.
type number float64

func (n *number) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		*n = 0
		return nil
	}
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return err
	}
	*n = number(f)
	return nil
}

// id keeps order ids as text whether the exchange sends them quoted or not,
// so large ids never pass through float64.
type id string

func (i *id) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*i = ""
		return nil
	}
	*i = id(bytes.Trim(b, `"`))
	return nil
}

func msTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

type contractDetail struct {
	Symbol      string `json:"symbol"`
	DisplayName string `json:"displayName"`
	QuoteCoin   string `json:"quoteCoin"`
	PriceUnit   number `json:"priceUnit"`
	MinVol      number `json:"minVol"`
	PriceScale  int    `json:"priceScale"`
}

// defaultLeverage is the leverage reported for every contract and applied
// on connect.
const defaultLeverage = 20

func (c contractDetail) toContract() common.Contract {
	return common.Contract{
		Symbol:    c.Symbol,
		Name:      c.DisplayName,
		PriceTick: float64(c.PriceUnit),
		MinVolume: float64(c.MinVol) * float64(c.PriceUnit),
		Leverage:  defaultLeverage,
	}
}

type assetEntry struct {
	Currency         string `json:"currency"`
	AvailableBalance number `json:"availableBalance"`
	FrozenBalance    number `json:"frozenBalance"`
}

func (a assetEntry) toAccount(now time.Time) common.Account {
	return common.Account{
		Currency:  a.Currency,
		Balance:   float64(a.AvailableBalance),
		Frozen:    float64(a.FrozenBalance),
		UpdatedAt: now,
	}
}

type regularOrder struct {
	OrderID      id     `json:"orderId"`
	Symbol       string `json:"symbol"`
	Price        number `json:"price"`
	Vol          number `json:"vol"`
	DealVol      number `json:"dealVol"`
	DealAvgPrice number `json:"dealAvgPrice"`
	State        int    `json:"state"`
	OrderType    int    `json:"orderType"`
	Side         int    `json:"side"`
	CreateTime   int64  `json:"createTime"`
	UpdateTime   int64  `json:"updateTime"`
}

const (
	channelOrder     = "push.personal.order"
	channelPlanOrder = "push.personal.plan.order"
	channelStopPlan  = "push.personal.stop.planorder"
	channelPosition  = "push.personal.position"
	channelAsset     = "push.personal.asset"
)

func (o regularOrder) toUpdate() (common.OrderUpdate, error) {
	if o.OrderID == "" || o.Symbol == "" {
		return common.OrderUpdate{}, &ReconcileWarning{Channel: channelOrder, Reason: "missing order id or symbol"}
	}
	status, err := StatusFor(common.CategoryRegular, o.State)
	if err != nil {
		return common.OrderUpdate{}, err
	}
	dir, err := directionFor(channelOrder, o.Side)
	if err != nil {
		return common.OrderUpdate{}, err
	}
	typ, err := orderTypeFor(channelOrder, o.OrderType)
	if err != nil {
		return common.OrderUpdate{}, err
	}
	return common.OrderUpdate{
		Category:  common.CategoryRegular,
		OrderID:   string(o.OrderID),
		Symbol:    o.Symbol,
		Direction: dir,
		Type:      typ,
		Status:    status,
		Price:     float64(o.Price),
		AvgPrice:  float64(o.DealAvgPrice),
		Volume:    float64(o.Vol),
		DealVol:   float64(o.DealVol),
		CreatedAt: msTime(o.CreateTime),
		UpdatedAt: msTime(o.UpdateTime),
	}, nil
}

type planOrder struct {
	ID           id     `json:"id"`
	Symbol       string `json:"symbol"`
	TriggerPrice number `json:"triggerPrice"`
	Vol          number `json:"vol"`
	Side         int    `json:"side"`
	State        int    `json:"state"`
	CreateTime   int64  `json:"createTime"`
	UpdateTime   int64  `json:"updateTime"`
}

func (o planOrder) toUpdate() (common.OrderUpdate, error) {
	if o.ID == "" || o.Symbol == "" {
		return common.OrderUpdate{}, &ReconcileWarning{Channel: channelPlanOrder, Reason: "missing order id or symbol"}
	}
	status, err := StatusFor(common.CategoryPlan, o.State)
	if err != nil {
		return common.OrderUpdate{}, err
	}
	dir, err := directionFor(channelPlanOrder, o.Side)
	if err != nil {
		return common.OrderUpdate{}, err
	}
	return common.OrderUpdate{
		Category:  common.CategoryPlan,
		OrderID:   string(o.ID),
		Symbol:    o.Symbol,
		Direction: dir,
		Type:      common.OrderTypeStop,
		Status:    status,
		Price:     float64(o.TriggerPrice),
		Volume:    float64(o.Vol),
		CreatedAt: msTime(o.CreateTime),
		UpdatedAt: msTime(o.UpdateTime),
	}, nil
}

type stopPlanOrder struct {
	ID           id     `json:"id"`
	Symbol       string `json:"symbol"`
	TriggerPrice number `json:"triggerPrice"`
	Vol          number `json:"vol"`
	TriggerSide  int    `json:"triggerSide"`
	State        int    `json:"state"`
	CreateTime   int64  `json:"createTime"`
	UpdateTime   int64  `json:"updateTime"`
}

// Stop-plan orders are position take-profit/stop-loss legs and always close.
func (o stopPlanOrder) toUpdate() (common.OrderUpdate, error) {
	if o.ID == "" || o.Symbol == "" {
		return common.OrderUpdate{}, &ReconcileWarning{Channel: channelStopPlan, Reason: "missing order id or symbol"}
	}
	status, err := StatusFor(common.CategoryStopPlan, o.State)
	if err != nil {
		return common.OrderUpdate{}, err
	}
	dir, err := directionFor(channelStopPlan, o.TriggerSide)
	if err != nil {
		return common.OrderUpdate{}, err
	}
	return common.OrderUpdate{
		Category:  common.CategoryStopPlan,
		OrderID:   string(o.ID),
		Symbol:    o.Symbol,
		Direction: dir,
		Offset:    common.OffsetClose,
		Type:      common.OrderTypeStop,
		Status:    status,
		Price:     float64(o.TriggerPrice),
		Volume:    float64(o.Vol),
		CreatedAt: msTime(o.CreateTime),
		UpdatedAt: msTime(o.UpdateTime),
	}, nil
}

type positionPush struct {
	Symbol       string `json:"symbol"`
	PositionType int    `json:"positionType"`
	HoldVol      number `json:"holdVol"`
	OpenAvgPrice number `json:"openAvgPrice"`
	Realised     number `json:"realised"`
}

func (p positionPush) toPosition(now time.Time) (common.Position, error) {
	if p.Symbol == "" {
		return common.Position{}, &ReconcileWarning{Channel: channelPosition, Reason: "missing symbol"}
	}
	dir, err := holdSideFor(channelPosition, p.PositionType)
	if err != nil {
		return common.Position{}, err
	}
	return common.Position{
		Symbol:    p.Symbol,
		Direction: dir,
		Volume:    float64(p.HoldVol),
		Price:     float64(p.OpenAvgPrice),
		PnL:       float64(p.Realised),
		UpdatedAt: now,
	}, nil
}

type klineData struct {
	Time  []int64  `json:"time"`
	Open  []number `json:"open"`
	Close []number `json:"close"`
	High  []number `json:"high"`
	Low   []number `json:"low"`
	Vol   []number `json:"vol"`
}

// bars zips the column arrays. Rows missing any column are dropped.
func (k klineData) bars(symbol string, interval common.Interval) []common.Bar {
	n := len(k.Time)
	for _, col := range [][]number{k.Open, k.Close, k.High, k.Low, k.Vol} {
		if len(col) < n {
			n = len(col)
		}
	}
	out := make([]common.Bar, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, common.Bar{
			Symbol:   symbol,
			Interval: interval,
			Time:     time.Unix(k.Time[i], 0),
			Open:     float64(k.Open[i]),
			High:     float64(k.High[i]),
			Low:      float64(k.Low[i]),
			Close:    float64(k.Close[i]),
			Volume:   float64(k.Vol[i]),
		})
	}
	return out
}
