// Package gateway wires the MEXC REST client, both websocket streams, the
// reconciler and the order-placement proxy behind one Gateway.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	"mexc-gateway/internal/events"
	"mexc-gateway/internal/execution"
	"mexc-gateway/internal/reconciliation"
	"mexc-gateway/pkg/exchanges/common"
	"mexc-gateway/pkg/exchanges/mexc"
	"mexc-gateway/pkg/i18n"
)

// Name identifies this gateway in logs and journal rows.
const Name = "MEXC_USDT"

// Config holds everything the gateway needs to connect.
type Config struct {
	Rest             mexc.Config
	WSURL            string
	ExecutorURL      string
	ExecutorTimeout  time.Duration
	AccountPollTicks int // 0 disables timer-driven account polling
	SubscribeTimeout time.Duration
	ReadTimeout      time.Duration
}

// Gateway implements common.Gateway for MEXC USDT contracts.
type Gateway struct {
	cfg Config
	log *zap.Logger
	bus *events.Bus

	registry *common.ContractRegistry
	recon    *reconciliation.Reconciler
	rest     *mexc.Client
	market   *mexc.MarketStream
	trade    *mexc.TradeStream
	proxy    *execution.Proxy

	ctx    context.Context
	cancel context.CancelFunc

	timerCount atomic.Int64
	polling    atomic.Bool
	pollers    conc.WaitGroup

	mu        sync.Mutex
	connected bool

	// symbols the host asked for; re-issued whenever the market channel
	// comes back.
	subsMu  sync.Mutex
	symbols map[string]struct{}
}

var _ common.Gateway = (*Gateway)(nil)

// New builds a gateway. Nothing touches the network until Connect.
func New(cfg Config, bus *events.Bus, log *zap.Logger) (*Gateway, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if bus == nil {
		bus = events.NewBus()
	}
	log = log.Named("gateway")
	registry := common.NewContractRegistry()
	recon := reconciliation.New(registry, bus, log)

	rest, err := mexc.NewClient(cfg.Rest, registry, recon, log)
	if err != nil {
		return nil, fmt.Errorf("rest client: %w", err)
	}
	g := &Gateway{
		cfg:      cfg,
		log:      log,
		bus:      bus,
		registry: registry,
		recon:    recon,
		rest:     rest,
		proxy:    execution.NewProxy(cfg.ExecutorURL, cfg.ExecutorTimeout, log),
		symbols:  make(map[string]struct{}),
	}

	marketCfg := mexc.StreamConfig{
		URL:              cfg.WSURL,
		ProxyURL:         cfg.Rest.ProxyURL,
		SubscribeTimeout: cfg.SubscribeTimeout,
		ReadTimeout:      cfg.ReadTimeout,
		OnReady:          g.onMarketReady,
	}
	g.market, err = mexc.NewMarketStream(marketCfg, registry, func(t common.Tick) {
		bus.Publish(events.EventTick, t)
	}, log)
	if err != nil {
		return nil, fmt.Errorf("market stream: %w", err)
	}
	tradeCfg := marketCfg
	tradeCfg.OnReady = g.onPrivateReady
	g.trade, err = mexc.NewTradeStream(tradeCfg, cfg.Rest.APIKey, cfg.Rest.APISecret, recon, log)
	if err != nil {
		return nil, fmt.Errorf("trade stream: %w", err)
	}

	g.ctx, g.cancel = context.WithCancel(context.Background())
	return g, nil
}

// Connect seeds contracts, balances and open orders over REST, then starts
// the market and private streams.
func (g *Gateway) Connect(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.connected {
		return nil
	}
	if err := g.rest.Connect(ctx); err != nil {
		g.log.Error(i18n.M().GatewayConnectFail, zap.Error(err))
		return err
	}
	g.log.Info(i18n.M().RestStarted, zap.Int("contracts", g.registry.Len()))
	g.notify("info", i18n.M().RestStarted)
	for _, c := range g.registry.All() {
		g.bus.Publish(events.EventContract, c)
	}

	g.market.Start(g.ctx)
	g.log.Info(i18n.M().MarketStreamStart)
	g.trade.Start(g.ctx)
	g.log.Info(i18n.M().TradeStreamStart)
	g.connected = true
	return nil
}

// Subscribe requests ticker and depth for req.Symbol. It waits, up to the
// subscribe timeout, for contracts and the market connection. Known symbols
// are remembered and subscribed again after every reconnect, including ones
// whose first attempt found no connection.
func (g *Gateway) Subscribe(ctx context.Context, req common.SubscribeRequest) error {
	err := g.market.Subscribe(ctx, req.Symbol)
	if err == nil || errors.Is(err, mexc.ErrNotConnected) {
		g.subsMu.Lock()
		g.symbols[req.Symbol] = struct{}{}
		g.subsMu.Unlock()
	}
	if err != nil {
		if errors.Is(err, mexc.ErrUnknownSymbol) {
			g.log.Warn(i18n.M().SubscribeRejected, zap.String("symbol", req.Symbol))
			g.notify("warn", i18n.M().SubscribeRejected+": "+req.Symbol)
		}
		return err
	}
	g.log.Info(i18n.M().Subscribed, zap.String("symbol", req.Symbol))
	return nil
}

func (g *Gateway) wantedSymbols() []string {
	g.subsMu.Lock()
	defer g.subsMu.Unlock()
	out := make([]string, 0, len(g.symbols))
	for s := range g.symbols {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// onMarketReady re-issues remembered subscriptions. Symbols already live
// on this connection are skipped by the stream.
func (g *Gateway) onMarketReady(reconnect bool) {
	symbols := g.wantedSymbols()
	if len(symbols) == 0 {
		return
	}
	if reconnect {
		g.log.Info(i18n.M().Resubscribing, zap.Strings("symbols", symbols))
	}
	g.pollers.Go(func() {
		for _, s := range symbols {
			if err := g.market.Subscribe(g.ctx, s); err != nil {
				g.log.Warn("resubscribe failed", zap.String("symbol", s), zap.Error(err))
			}
		}
	})
}

// onPrivateReady catches up on pushes missed while the private channel was
// down. The first login needs nothing; Connect has just seeded state.
func (g *Gateway) onPrivateReady(reconnect bool) {
	if !reconnect {
		return
	}
	g.log.Info(i18n.M().PrivateResync)
	g.notify("info", i18n.M().PrivateResync)
	g.pollers.Go(func() {
		if err := g.rest.QueryOpenOrders(g.ctx); err != nil {
			g.log.Warn("resync open orders failed", zap.Error(err))
		}
		if _, err := g.rest.QueryAccount(g.ctx); err != nil {
			g.log.Warn("resync account failed", zap.Error(err))
		}
	})
}

// SendOrder places req through the proxy. A request the proxy cannot carry
// is rejected up front. Any failure once the proxy is called cancels every
// open regular and plan order before the failure is returned.
func (g *Gateway) SendOrder(ctx context.Context, req common.OrderRequest) (string, error) {
	// ref ties the attempt's log lines together before an exchange id exists.
	ref := g.rest.LocalOrderID()
	if err := execution.Validate(req); err != nil {
		g.log.Warn(i18n.M().OrderRejected, zap.String("ref", ref), zap.String("symbol", req.Symbol), zap.Error(err))
		return "", err
	}
	id, err := g.proxy.Place(ctx, req)
	if err != nil {
		g.log.Error(i18n.M().OrderPlaceFailed,
			zap.String("ref", ref),
			zap.String("symbol", req.Symbol),
			zap.String("type", string(req.Type)),
			zap.Error(err))
		g.notify("error", i18n.M().OrderPlaceFailed)
		if cerr := g.rest.CancelAll(ctx); cerr != nil {
			g.log.Error(i18n.M().CancelFailed, zap.Error(cerr))
			g.notify("error", i18n.M().CancelFailed)
		} else {
			g.log.Info(i18n.M().CancelAllIssued)
			g.notify("info", i18n.M().CancelAllIssued)
		}
		return "", err
	}

	category := common.CategoryRegular
	if req.Type == common.OrderTypeStop {
		category = common.CategoryPlan
	}
	g.recon.RegisterSubmitted(common.Order{
		Category:  category,
		OrderID:   id,
		Symbol:    req.Symbol,
		Direction: req.Direction,
		Offset:    req.Offset,
		Type:      req.Type,
		Price:     req.Price,
		Volume:    req.Volume,
	})
	g.log.Info(i18n.M().OrderSubmitted, zap.String("ref", ref), zap.String("order_id", id), zap.String("symbol", req.Symbol))
	return id, nil
}

// CancelOrder cancels a tracked order through the endpoint of its category.
func (g *Gateway) CancelOrder(ctx context.Context, req common.CancelRequest) error {
	o, ok := g.recon.FindOrder(req.OrderID)
	if !ok {
		g.log.Warn(i18n.M().UnknownOrder, zap.String("order_id", req.OrderID))
		return fmt.Errorf("cancel %s: %w", req.OrderID, mexc.ErrUnknownOrder)
	}
	symbol := req.Symbol
	if symbol == "" {
		symbol = o.Symbol
	}
	return g.rest.CancelOrder(ctx, o.Category, symbol, o.OrderID)
}

// CancelAll cancels every open plan and regular order.
func (g *Gateway) CancelAll(ctx context.Context) error {
	return g.rest.CancelAll(ctx)
}

// SetLeverage applies the default leverage to symbol.
func (g *Gateway) SetLeverage(ctx context.Context, symbol string) error {
	return g.rest.SetLeverage(ctx, symbol)
}

// QueryHistory returns bars for req, possibly partial.
func (g *Gateway) QueryHistory(ctx context.Context, req common.HistoryRequest) []common.Bar {
	bars := g.rest.QueryHistory(ctx, req)
	g.log.Info(i18n.M().HistoryLoaded, zap.String("symbol", req.Symbol), zap.Int("bars", len(bars)))
	return bars
}

// OnTimer is the host's periodic tick. It drives stream keepalives and,
// every AccountPollTicks ticks, one background account query.
func (g *Gateway) OnTimer() {
	g.market.OnTimer()
	g.trade.OnTimer()

	every := int64(g.cfg.AccountPollTicks)
	if every <= 0 {
		return
	}
	if g.timerCount.Add(1)%every != 0 {
		return
	}
	if !g.polling.CompareAndSwap(false, true) {
		return
	}
	g.pollers.Go(func() {
		defer g.polling.Store(false)
		if _, err := g.rest.QueryAccount(g.ctx); err != nil {
			g.log.Debug("account poll failed", zap.Error(err))
		}
	})
}

// Close stops both streams and waits for background polls.
func (g *Gateway) Close() error {
	g.cancel()
	err := errors.Join(g.market.Close(), g.trade.Close())
	g.pollers.Wait()
	g.log.Info(i18n.M().GatewayClosed)
	return err
}

// notify publishes an operator-facing notice on the bus.
func (g *Gateway) notify(level, msg string) {
	g.bus.Publish(events.EventLog, events.LogMessage{Level: level, Msg: msg})
}

// Contracts returns the loaded contracts.
func (g *Gateway) Contracts() []common.Contract { return g.registry.All() }

// Reconciler exposes the reconciled state for read-only hosts.
func (g *Gateway) Reconciler() *reconciliation.Reconciler { return g.recon }

// Bus returns the bus the gateway publishes on.
func (g *Gateway) Bus() *events.Bus { return g.bus }

// Streams reports whether the market and private channels are usable.
func (g *Gateway) Streams() (market, private bool) {
	return g.market.Usable(), g.trade.Usable()
}
