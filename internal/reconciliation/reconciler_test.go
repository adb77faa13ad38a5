package reconciliation

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mexc-gateway/internal/events"
	"mexc-gateway/pkg/exchanges/common"
)

type published struct {
	event   events.Event
	payload any
}

type capture struct {
	mu  sync.Mutex
	out []published
}

func (c *capture) Publish(e events.Event, payload any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.out = append(c.out, published{e, payload})
}

func (c *capture) of(e events.Event) []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	var res []any
	for _, p := range c.out {
		if p.event == e {
			res = append(res, p.payload)
		}
	}
	return res
}

type steps map[string]float64

func (s steps) MinVolume(symbol string) float64 { return s[symbol] }

func filledPush(id string, dealVol, avg float64, state common.Status) common.OrderUpdate {
	return common.OrderUpdate{
		Category:  common.CategoryRegular,
		OrderID:   id,
		Symbol:    "ETH_USDT",
		Direction: common.DirectionLong,
		Type:      common.OrderTypeLimit,
		Status:    state,
		Price:     2000,
		AvgPrice:  avg,
		Volume:    10,
		DealVol:   dealVol,
		UpdatedAt: time.Unix(1700000000, 0),
	}
}

func TestSubmittedThenFilled(t *testing.T) {
	pub := &capture{}
	r := New(steps{"ETH_USDT": 1}, pub, nil)

	r.RegisterSubmitted(common.Order{
		Category:  common.CategoryRegular,
		OrderID:   "123",
		Symbol:    "ETH_USDT",
		Direction: common.DirectionLong,
		Offset:    common.OffsetOpen,
		Type:      common.OrderTypeLimit,
		Price:     2000,
		Volume:    10,
	})
	o, ok := r.Order(common.OrderKey{Category: common.CategoryRegular, ID: "123"})
	require.True(t, ok)
	assert.Equal(t, common.StatusSubmitting, o.Status)
	assert.Zero(t, o.Traded)

	r.ApplyOrder(filledPush("123", 10, 2001, common.StatusAllTraded))

	o, _ = r.Order(common.OrderKey{Category: common.CategoryRegular, ID: "123"})
	assert.Equal(t, common.StatusAllTraded, o.Status)
	assert.Equal(t, 10.0, o.Traded)
	assert.Equal(t, 2001.0, o.Price)

	trades := r.Trades()
	require.Len(t, trades, 1)
	assert.Equal(t, 10.0, trades[0].Volume)
	assert.Equal(t, 2001.0, trades[0].Price)
	assert.Equal(t, common.OffsetOpen, trades[0].Offset)
	assert.Equal(t, "1", trades[0].TradeID)

	// a duplicate push changes nothing
	r.ApplyOrder(filledPush("123", 10, 2001, common.StatusAllTraded))
	assert.Len(t, r.Trades(), 1)
	again, _ := r.Order(common.OrderKey{Category: common.CategoryRegular, ID: "123"})
	assert.Equal(t, o, again)
	assert.Len(t, pub.of(events.EventTrade), 1)
	assert.Len(t, pub.of(events.EventOrder), 2)
}

func TestPartialFillsEmitDeltas(t *testing.T) {
	r := New(steps{"ETH_USDT": 1}, &capture{}, nil)

	r.ApplyOrder(filledPush("7", 0, 0, common.StatusNotTraded))
	r.ApplyOrder(filledPush("7", 3, 1999, common.StatusNotTraded))
	r.ApplyOrder(filledPush("7", 2, 1999, common.StatusNotTraded)) // stale, lower traded
	r.ApplyOrder(filledPush("7", 10, 2000.5, common.StatusAllTraded))

	trades := r.Trades()
	require.Len(t, trades, 2)
	assert.Equal(t, 3.0, trades[0].Volume)
	assert.Equal(t, 1999.0, trades[0].Price)
	assert.Equal(t, 7.0, trades[1].Volume)
	assert.Equal(t, "2", trades[1].TradeID)

	o, _ := r.Order(common.OrderKey{Category: common.CategoryRegular, ID: "7"})
	assert.Equal(t, 10.0, o.Traded)
}

func TestTradedVolumeNeverDecreases(t *testing.T) {
	r := New(nil, nil, nil)
	r.ApplyOrder(filledPush("9", 5, 2000, common.StatusNotTraded))
	r.ApplyOrder(filledPush("9", 1, 2000, common.StatusNotTraded))
	o, _ := r.Order(common.OrderKey{Category: common.CategoryRegular, ID: "9"})
	assert.Equal(t, 5.0, o.Traded)
}

func TestTerminalOrderIgnoresLateUpdates(t *testing.T) {
	pub := &capture{}
	r := New(nil, pub, nil)
	r.ApplyOrder(filledPush("11", 0, 0, common.StatusCancelled))
	r.ApplyOrder(filledPush("11", 10, 2001, common.StatusAllTraded))

	o, _ := r.Order(common.OrderKey{Category: common.CategoryRegular, ID: "11"})
	assert.Equal(t, common.StatusCancelled, o.Status)
	assert.Zero(t, o.Traded)
	assert.Empty(t, r.Trades())
	assert.Len(t, pub.of(events.EventOrder), 1)
}

func TestTradePriceFallsBackToOrderPrice(t *testing.T) {
	r := New(nil, nil, nil)
	r.ApplyOrder(filledPush("12", 4, 0, common.StatusNotTraded))
	trades := r.Trades()
	require.Len(t, trades, 1)
	assert.Equal(t, 2000.0, trades[0].Price)
}

func TestTradeVolumeRoundedToStep(t *testing.T) {
	r := New(steps{"ETH_USDT": 0.1}, nil, nil)
	r.ApplyOrder(filledPush("13", 0.30000000000000004, 2000, common.StatusNotTraded))
	trades := r.Trades()
	require.Len(t, trades, 1)
	assert.Equal(t, 0.3, trades[0].Volume)

	// a rise smaller than half a step advances traded volume without a trade
	r.ApplyOrder(filledPush("13", 0.32, 2000, common.StatusNotTraded))
	assert.Len(t, r.Trades(), 1)
	o, _ := r.Order(common.OrderKey{Category: common.CategoryRegular, ID: "13"})
	assert.Equal(t, 0.32, o.Traded)
}

func TestTradeVolumesSumToRoundedTraded(t *testing.T) {
	cases := []struct {
		name  string
		step  float64
		fills []float64
		want  []float64
	}{
		{"coarse step", 2, []float64{1, 2, 3, 4}, []float64{2, 2}},
		{"sub-step fills accumulate", 1, []float64{0.4, 0.8}, []float64{1}},
		{"decimal step", 0.1, []float64{0.1, 0.2, 0.3}, []float64{0.1, 0.1, 0.1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := New(steps{"ETH_USDT": tc.step}, nil, nil)
			for _, f := range tc.fills {
				r.ApplyOrder(filledPush("21", f, 2000, common.StatusNotTraded))
			}
			var got []float64
			sum := 0.0
			for _, tr := range r.Trades() {
				got = append(got, tr.Volume)
				sum += tr.Volume
			}
			assert.Equal(t, tc.want, got)

			o, ok := r.Order(common.OrderKey{Category: common.CategoryRegular, ID: "21"})
			require.True(t, ok)
			assert.InDelta(t, common.RoundTo(o.Traded, tc.step), sum, 1e-9)
		})
	}
}

func TestPlanOrderTradesOnlyWhenAllTraded(t *testing.T) {
	r := New(nil, nil, nil)
	plan := common.OrderUpdate{
		Category:  common.CategoryPlan,
		OrderID:   "55",
		Symbol:    "BTC_USDT",
		Direction: common.DirectionShort,
		Type:      common.OrderTypeStop,
		Status:    common.StatusNotTraded,
		Price:     58000,
		Volume:    2,
	}
	r.ApplyOrder(plan)
	assert.Empty(t, r.Trades())

	plan.Status = common.StatusAllTraded
	r.ApplyOrder(plan)
	trades := r.Trades()
	require.Len(t, trades, 1)
	assert.Equal(t, 2.0, trades[0].Volume)
	assert.Equal(t, 58000.0, trades[0].Price)
	assert.Equal(t, common.CategoryPlan, trades[0].Category)
}

func TestCategoriesDoNotCollide(t *testing.T) {
	r := New(nil, nil, nil)
	r.ApplyOrder(filledPush("100", 0, 0, common.StatusNotTraded))
	r.ApplyOrder(common.OrderUpdate{
		Category: common.CategoryPlan, OrderID: "100", Symbol: "ETH_USDT",
		Direction: common.DirectionShort, Type: common.OrderTypeStop,
		Status: common.StatusCancelled, Price: 1900, Volume: 1,
	})
	assert.Len(t, r.Orders(), 2)
	assert.Len(t, r.ActiveOrders(), 1)

	o, ok := r.FindOrder("100")
	require.True(t, ok)
	assert.Equal(t, common.CategoryRegular, o.Category)
}

func TestRegisterSubmittedAfterPush(t *testing.T) {
	r := New(nil, nil, nil)
	r.ApplyOrder(filledPush("21", 0, 0, common.StatusNotTraded))
	r.RegisterSubmitted(common.Order{
		Category: common.CategoryRegular, OrderID: "21", Symbol: "ETH_USDT",
		Direction: common.DirectionLong, Offset: common.OffsetClose,
		Type: common.OrderTypeLimit, Price: 2000, Volume: 10,
	})
	o, _ := r.Order(common.OrderKey{Category: common.CategoryRegular, ID: "21"})
	assert.Equal(t, common.StatusNotTraded, o.Status)
	assert.Equal(t, common.OffsetClose, o.Offset)

	// offset survives later pushes that do not carry one
	r.ApplyOrder(filledPush("21", 10, 2001, common.StatusAllTraded))
	assert.Equal(t, common.OffsetClose, r.Trades()[0].Offset)
}

func TestPositionsReplacedWholesale(t *testing.T) {
	r := New(nil, nil, nil)
	r.ApplyPosition(common.Position{Symbol: "BTC_USDT", Direction: common.DirectionLong, Volume: 3, Price: 60000, PnL: 5})
	r.ApplyPosition(common.Position{Symbol: "BTC_USDT", Direction: common.DirectionLong, Volume: 1, Price: 61000})
	r.ApplyPosition(common.Position{Symbol: "BTC_USDT", Direction: common.DirectionShort, Volume: 2, Price: 59000})

	pos := r.Positions()
	require.Len(t, pos, 2)
	assert.Equal(t, common.DirectionLong, pos[0].Direction)
	assert.Equal(t, 1.0, pos[0].Volume)
	assert.Zero(t, pos[0].PnL)

	r.ApplyAccount(common.Account{Currency: "USDT", Balance: 100})
	r.ApplyAccount(common.Account{Currency: "USDT", Balance: 90, Frozen: 10})
	acc := r.Accounts()
	require.Len(t, acc, 1)
	assert.Equal(t, 90.0, acc[0].Balance)
}

func TestConcurrentPushesKeepTradedMonotone(t *testing.T) {
	pub := &capture{}
	r := New(steps{"ETH_USDT": 1}, pub, nil)
	var wg sync.WaitGroup
	for i := 1; i <= 10; i++ {
		for rep := 0; rep < 5; rep++ {
			wg.Add(1)
			go func(deal float64) {
				defer wg.Done()
				r.ApplyOrder(filledPush("300", deal, 2000, common.StatusNotTraded))
			}(float64(i))
		}
	}
	wg.Wait()

	var total float64
	for _, tr := range r.Trades() {
		total += tr.Volume
	}
	assert.Equal(t, 10.0, total)

	// order publications carry non-decreasing traded volume
	var last float64
	for _, p := range pub.of(events.EventOrder) {
		o := p.(common.Order)
		require.GreaterOrEqual(t, o.Traded, last)
		last = o.Traded
	}
}
