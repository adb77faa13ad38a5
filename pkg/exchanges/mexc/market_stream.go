package mexc

import (
	"context"
	"fmt"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"mexc-gateway/pkg/exchanges/common"
)

// DefaultSubscribeTimeout bounds how long Subscribe waits for contracts and
// a usable connection.
const DefaultSubscribeTimeout = 30 * time.Second

// StreamConfig configures a market or private stream.
type StreamConfig struct {
	URL              string
	ProxyURL         string
	SubscribeTimeout time.Duration
	ReadTimeout      time.Duration

	// OnReady runs on the stream goroutine each time the channel becomes
	// usable: after connect for market data, after login for the private
	// channel. It must not block.
	OnReady func(reconnect bool)
}

// MarketStream keeps one tick per subscribed symbol and forwards it on
// every ticker or depth push once a last price is known.
type MarketStream struct {
	*stream
	registry *common.ContractRegistry
	onTick   func(common.Tick)
	timeout  time.Duration

	mu    sync.Mutex
	ticks map[string]*common.Tick
}

// NewMarketStream builds the public stream. onTick receives tick copies.
func NewMarketStream(cfg StreamConfig, registry *common.ContractRegistry, onTick func(common.Tick), log *zap.Logger) (*MarketStream, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if onTick == nil {
		onTick = func(common.Tick) {}
	}
	if cfg.SubscribeTimeout == 0 {
		cfg.SubscribeTimeout = DefaultSubscribeTimeout
	}
	m := &MarketStream{
		registry: registry,
		onTick:   onTick,
		timeout:  cfg.SubscribeTimeout,
		ticks:    make(map[string]*common.Tick),
	}
	s, err := newStream("mexc-market", cfg, false, m, log)
	if err != nil {
		return nil, err
	}
	m.stream = s
	return m, nil
}

// Subscribe waits for contract metadata and a live connection, sharing one
// timeout, then requests ticker and depth for symbol. Repeated calls for the
// same symbol are no-ops until the connection drops.
func (m *MarketStream) Subscribe(ctx context.Context, symbol string) error {
	deadline := time.Now().Add(m.timeout)
	if err := m.registry.WaitReady(ctx, m.timeout); err != nil {
		m.log.Warn("subscribe before contracts loaded", zap.String("symbol", symbol), zap.Error(err))
		return err
	}
	if _, ok := m.registry.Get(symbol); !ok {
		m.log.Warn("subscribe rejected", zap.String("symbol", symbol), zap.Error(ErrUnknownSymbol))
		return fmt.Errorf("subscribe %s: %w", symbol, ErrUnknownSymbol)
	}
	if err := m.WaitUsable(ctx, time.Until(deadline)); err != nil {
		m.log.Warn("subscribe before connection", zap.String("symbol", symbol), zap.Error(err))
		return fmt.Errorf("subscribe %s: %w", symbol, err)
	}

	m.mu.Lock()
	if _, ok := m.ticks[symbol]; ok {
		m.mu.Unlock()
		return nil
	}
	ct, _ := m.registry.Get(symbol)
	m.ticks[symbol] = &common.Tick{Symbol: symbol, Name: ct.Name, LocalTime: time.Now()}
	m.mu.Unlock()

	err := m.send(map[string]any{
		"method": "sub.ticker",
		"param":  map[string]any{"symbol": symbol},
	})
	if err == nil {
		err = m.send(map[string]any{
			"method": "sub.depth.full",
			"param":  map[string]any{"symbol": symbol, "limit": common.DepthLevels},
		})
	}
	if err != nil {
		m.mu.Lock()
		delete(m.ticks, symbol)
		m.mu.Unlock()
		return fmt.Errorf("subscribe %s: %w", symbol, err)
	}
	m.log.Info("subscribed", zap.String("symbol", symbol))
	return nil
}

// Subscribed returns the symbols currently subscribed.
func (m *MarketStream) Subscribed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.ticks))
	for s := range m.ticks {
		out = append(out, s)
	}
	return out
}

func (m *MarketStream) onConnected() {}

func (m *MarketStream) onLogin() {}

// Subscriptions do not survive a reconnect; the host subscribes again.
func (m *MarketStream) onDisconnected() {
	m.mu.Lock()
	m.ticks = make(map[string]*common.Tick)
	m.mu.Unlock()
}

type tickerPush struct {
	Symbol       string `json:"symbol"`
	LastPrice    number `json:"lastPrice"`
	Volume24     number `json:"volume24"`
	High24Price  number `json:"high24Price"`
	Lower24Price number `json:"lower24Price"`
	Bid1         number `json:"bid1"`
	Ask1         number `json:"ask1"`
	HoldVol      number `json:"holdVol"`
	Timestamp    int64  `json:"timestamp"`
}

type depthPush struct {
	Bids [][]number `json:"bids"`
	Asks [][]number `json:"asks"`
}

func (m *MarketStream) onData(f frame) {
	var (
		snapshot common.Tick
		publish  bool
	)
	switch f.Channel {
	case "push.ticker":
		var p tickerPush
		if err := json.Unmarshal(f.Data, &p); err != nil {
			m.log.Warn("drop ticker", zap.Error(err))
			return
		}
		snapshot, publish = m.update(p.Symbol, func(t *common.Tick) {
			t.LastPrice = float64(p.LastPrice)
			t.Volume = float64(p.Volume24)
			t.HighPrice = float64(p.High24Price)
			t.LowPrice = float64(p.Lower24Price)
			t.OpenInterest = float64(p.HoldVol)
			t.BidPrice[0] = float64(p.Bid1)
			t.AskPrice[0] = float64(p.Ask1)
			t.Time = msTime(p.Timestamp)
		})
	case "push.depth.full":
		var p depthPush
		if err := json.Unmarshal(f.Data, &p); err != nil {
			m.log.Warn("drop depth", zap.Error(err))
			return
		}
		snapshot, publish = m.update(f.Symbol, func(t *common.Tick) {
			t.Time = msTime(f.TS)
			fillLadder(&t.BidPrice, &t.BidVolume, p.Bids)
			fillLadder(&t.AskPrice, &t.AskVolume, p.Asks)
		})
	default:
		return
	}
	if publish {
		m.onTick(snapshot)
	}
}

// update applies fn to the tick of symbol and returns a copy, reporting
// whether it should be forwarded.
func (m *MarketStream) update(symbol string, fn func(*common.Tick)) (common.Tick, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.ticks[symbol]
	if !ok {
		return common.Tick{}, false
	}
	fn(t)
	if t.LastPrice == 0 {
		return common.Tick{}, false
	}
	t.LocalTime = time.Now()
	return *t, true
}

// fillLadder copies [price, volume, count] levels into the tick arrays.
func fillLadder(prices, volumes *[common.DepthLevels]float64, levels [][]number) {
	for i, lvl := range levels {
		if i >= common.DepthLevels {
			break
		}
		if len(lvl) < 2 {
			continue
		}
		prices[i] = float64(lvl[0])
		volumes[i] = float64(lvl[1])
	}
}
