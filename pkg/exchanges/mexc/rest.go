package mexc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	"mexc-gateway/pkg/exchanges/common"
)

const (
	// DefaultRestHost is the contract REST endpoint.
	DefaultRestHost = "https://contract.mexc.com"

	historyLimit  = 2000
	openOrderPage = 20
	orderIDBase   = 10000
)

// Config holds MEXC contract credentials and transport settings.
type Config struct {
	APIKey            string
	APISecret         string
	BaseURL           string
	ProxyURL          string
	Timeout           time.Duration
	RequestsPerSecond float64
}

// Sink receives normalized state from snapshots and pushes.
type Sink interface {
	ApplyOrder(update common.OrderUpdate)
	ApplyPosition(pos common.Position)
	ApplyAccount(acc common.Account)
}

// Client is the MEXC contract REST client.
type Client struct {
	cfg         Config
	baseURL     string
	httpClient  *http.Client
	rateLimiter *common.RateLimiter
	timeSync    *common.TimeSync
	registry    *common.ContractRegistry
	sink        Sink
	log         *zap.Logger

	idMu         sync.Mutex
	connectEpoch int64
	orderCount   int64
}

// NewClient creates a REST client. sink may be nil for read-only use.
func NewClient(cfg Config, registry *common.ContractRegistry, sink Sink, log *zap.Logger) (*Client, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultRestHost
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.ProxyURL != "" {
		u, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(u)
	}
	if registry == nil {
		registry = common.NewContractRegistry()
	}
	c := &Client{
		cfg:         cfg,
		baseURL:     base,
		httpClient:  &http.Client{Timeout: cfg.Timeout, Transport: transport},
		rateLimiter: common.NewRateLimiter(cfg.RequestsPerSecond, 5),
		registry:    registry,
		sink:        sink,
		log:         log.Named("mexc-rest"),
		orderCount:  orderIDBase,
	}
	c.timeSync = common.NewTimeSync(c.ServerTime, c.log)
	return c, nil
}

// Registry returns the contract registry the client fills.
func (c *Client) Registry() *common.ContractRegistry { return c.registry }

// Connect seeds state: contracts, then account, then open orders.
func (c *Client) Connect(ctx context.Context) error {
	c.idMu.Lock()
	epoch, _ := strconv.ParseInt(time.Now().Format("060102150405"), 10, 64)
	c.connectEpoch = epoch * orderIDBase
	c.idMu.Unlock()

	if err := c.timeSync.Sync(ctx); err != nil {
		c.log.Warn("server time sync failed", zap.Error(err))
	}
	if _, err := c.QueryContracts(ctx); err != nil {
		return fmt.Errorf("query contracts: %w", err)
	}
	if _, err := c.QueryAccount(ctx); err != nil {
		c.log.Warn("initial account query failed", zap.Error(err))
	}
	if err := c.QueryOpenOrders(ctx); err != nil {
		c.log.Warn("initial open order query failed", zap.Error(err))
	}
	return nil
}

// LocalOrderID returns a process-unique id: connect epoch plus a counter.
func (c *Client) LocalOrderID() string {
	c.idMu.Lock()
	defer c.idMu.Unlock()
	c.orderCount++
	return strconv.FormatInt(c.connectEpoch+c.orderCount, 10)
}

// ServerTime returns the exchange time in milliseconds.
func (c *Client) ServerTime(ctx context.Context) (int64, error) {
	data, err := c.get(ctx, "/api/v1/contract/ping", nil)
	if err != nil {
		return 0, err
	}
	var ms int64
	if err := json.Unmarshal(data, &ms); err != nil {
		return 0, fmt.Errorf("decode server time: %w", err)
	}
	return ms, nil
}

// QueryContracts loads every contract into the registry and marks it ready.
func (c *Client) QueryContracts(ctx context.Context) ([]common.Contract, error) {
	data, err := c.get(ctx, "/api/v1/contract/detail", nil)
	if err != nil {
		c.log.Error("query contracts failed", zap.Error(err))
		return nil, err
	}
	var details []contractDetail
	if err := json.Unmarshal(data, &details); err != nil {
		c.log.Error("decode contracts failed", zap.Error(err))
		return nil, fmt.Errorf("decode contracts: %w", err)
	}
	out := make([]common.Contract, 0, len(details))
	for _, d := range details {
		if d.Symbol == "" {
			continue
		}
		ct := d.toContract()
		c.registry.Put(ct)
		out = append(out, ct)
	}
	c.registry.MarkReady()
	c.log.Info("contracts loaded", zap.Int("count", len(out)))
	return out, nil
}

// QueryAccount fetches balances. Zero balances are skipped.
func (c *Client) QueryAccount(ctx context.Context) ([]common.Account, error) {
	data, err := c.get(ctx, "/api/v1/private/account/assets", nil)
	if err != nil {
		c.log.Error("query account failed", zap.Error(err))
		return nil, err
	}
	var assets []assetEntry
	if err := json.Unmarshal(data, &assets); err != nil {
		c.log.Error("decode account failed", zap.Error(err))
		return nil, fmt.Errorf("decode account: %w", err)
	}
	now := time.Now()
	var out []common.Account
	for _, a := range assets {
		acc := a.toAccount(now)
		if acc.Balance == 0 {
			continue
		}
		out = append(out, acc)
		if c.sink != nil {
			c.sink.ApplyAccount(acc)
		}
	}
	c.log.Debug("account queried", zap.Int("currencies", len(out)))
	return out, nil
}

// QueryOpenOrders fetches the first page of regular and plan orders in
// parallel and feeds them to the sink.
func (c *Client) QueryOpenOrders(ctx context.Context) error {
	var (
		wg                conc.WaitGroup
		regErr, planErr   error
		regCount, planCnt int
	)
	wg.Go(func() { regCount, regErr = c.queryRegularOrders(ctx) })
	wg.Go(func() { planCnt, planErr = c.queryPlanOrders(ctx) })
	wg.Wait()
	c.log.Info("open orders queried", zap.Int("regular", regCount), zap.Int("plan", planCnt))
	return errors.Join(regErr, planErr)
}

func pageParams() map[string]string {
	return map[string]string{
		"page_num":  "1",
		"page_size": strconv.Itoa(openOrderPage),
	}
}

func (c *Client) queryRegularOrders(ctx context.Context) (int, error) {
	data, err := c.get(ctx, "/api/v1/private/order/list/open_orders", pageParams())
	if err != nil {
		c.log.Error("query open orders failed", zap.Error(err))
		return 0, err
	}
	var rows []regularOrder
	if err := json.Unmarshal(data, &rows); err != nil {
		return 0, fmt.Errorf("decode open orders: %w", err)
	}
	n := 0
	for _, r := range rows {
		u, err := r.toUpdate()
		if err != nil {
			c.log.Warn("skip open order", zap.Error(err))
			continue
		}
		c.feed(u)
		n++
	}
	return n, nil
}

func (c *Client) queryPlanOrders(ctx context.Context) (int, error) {
	data, err := c.get(ctx, "/api/v1/private/planorder/list/orders", pageParams())
	if err != nil {
		c.log.Error("query plan orders failed", zap.Error(err))
		return 0, err
	}
	var rows []planOrder
	if err := json.Unmarshal(data, &rows); err != nil {
		return 0, fmt.Errorf("decode plan orders: %w", err)
	}
	n := 0
	for _, r := range rows {
		u, err := r.toUpdate()
		if err != nil {
			c.log.Warn("skip plan order", zap.Error(err))
			continue
		}
		c.feed(u)
		n++
	}
	return n, nil
}

func (c *Client) feed(u common.OrderUpdate) {
	if c.sink != nil {
		c.sink.ApplyOrder(u)
	}
}

// QueryHistory pages klines forward from req.Start. It stops on a short
// page, an empty page, any error, or once the next start passes req.End,
// and returns whatever was collected.
func (c *Client) QueryHistory(ctx context.Context, req common.HistoryRequest) []common.Bar {
	code, ok := klineIntervals[req.Interval]
	if !ok {
		c.log.Error("unsupported history interval", zap.String("interval", string(req.Interval)))
		return nil
	}
	step := req.Interval.Duration()
	start := req.Start.Unix()
	path := "/api/v1/contract/kline/" + req.Symbol

	var history []common.Bar
	for {
		data, err := c.get(ctx, path, map[string]string{
			"symbol":   req.Symbol,
			"interval": code,
			"start":    strconv.FormatInt(start, 10),
		})
		if err != nil {
			c.log.Error("query history failed", zap.String("symbol", req.Symbol), zap.Int64("start", start), zap.Error(err))
			break
		}
		var k klineData
		if err := json.Unmarshal(data, &k); err != nil {
			c.log.Error("decode history failed", zap.String("symbol", req.Symbol), zap.Error(err))
			break
		}
		bars := k.bars(req.Symbol, req.Interval)
		if len(bars) == 0 {
			c.log.Info("history page empty", zap.String("symbol", req.Symbol), zap.Int64("start", start))
			break
		}
		history = append(history, bars...)
		last := bars[len(bars)-1].Time
		c.log.Debug("history page",
			zap.String("symbol", req.Symbol),
			zap.Time("from", bars[0].Time),
			zap.Time("to", last),
			zap.Int("bars", len(bars)))

		if len(bars) < historyLimit {
			break
		}
		start = last.Add(step).Unix()
		if !req.End.IsZero() && start > req.End.Unix() {
			break
		}
		if ctx.Err() != nil {
			break
		}
	}
	return history
}

// CancelOrder cancels one order through the endpoint of its category.
func (c *Client) CancelOrder(ctx context.Context, category common.Category, symbol, orderID string) error {
	var (
		path    string
		payload any
	)
	switch category {
	case common.CategoryRegular:
		n, err := strconv.ParseInt(orderID, 10, 64)
		if err != nil {
			return fmt.Errorf("cancel order %q: %w", orderID, ErrUnknownOrder)
		}
		path, payload = "/api/v1/private/order/cancel", []int64{n}
	case common.CategoryPlan:
		path = "/api/v1/private/planorder/cancel"
		payload = []map[string]string{{"symbol": symbol, "orderId": orderID}}
	case common.CategoryStopPlan:
		path = "/api/v1/private/stoporder/cancel"
		payload = []map[string]any{{"stopPlanOrderId": numericID(orderID)}}
	default:
		return fmt.Errorf("cancel order %q: category %q: %w", orderID, category, ErrUnknownOrder)
	}
	if _, err := c.post(ctx, path, payload); err != nil {
		c.log.Error("cancel order failed",
			zap.String("category", string(category)),
			zap.String("order_id", orderID),
			zap.Error(err))
		return err
	}
	return nil
}

// CancelAll cancels every plan order, then every regular order. Both
// requests are always sent.
func (c *Client) CancelAll(ctx context.Context) error {
	var errs []error
	for _, path := range []string{
		"/api/v1/private/planorder/cancel_all",
		"/api/v1/private/order/cancel_all",
	} {
		if _, err := c.post(ctx, path, struct{}{}); err != nil {
			c.log.Error("cancel all failed", zap.String("path", path), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SetLeverage applies the default leverage to symbol.
func (c *Client) SetLeverage(ctx context.Context, symbol string) error {
	if _, ok := c.registry.Get(symbol); !ok {
		return fmt.Errorf("set leverage %s: %w", symbol, ErrUnknownSymbol)
	}
	_, err := c.post(ctx, "/api/v1/private/position/change_leverage", map[string]any{
		"symbol":   symbol,
		"leverage": defaultLeverage,
	})
	return err
}

func numericID(s string) any {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	return s
}

func (c *Client) get(ctx context.Context, path string, params map[string]string) (json.RawMessage, error) {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		q := url.Values{}
		for k, v := range params {
			q.Set(k, v)
		}
		endpoint += "?" + q.Encode()
	}
	return c.do(ctx, http.MethodGet, path, endpoint, nil, signingQuery(params))
}

func (c *Client) post(ctx context.Context, path string, payload any) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", path, err)
	}
	return c.do(ctx, http.MethodPost, path, c.baseURL+path, body, string(body))
}

func (c *Client) now() int64 {
	if c.timeSync != nil && c.timeSync.Offset() != 0 {
		return c.timeSync.Now()
	}
	return time.Now().UnixMilli()
}

// do sends one signed request. Requests are never retried.
func (c *Client) do(ctx context.Context, method, path, endpoint string, body []byte, signBody string) (json.RawMessage, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, &TransportError{Method: method, Path: path, Err: err}
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" || strings.HasPrefix(path, "/api/v1/private/") {
		ts := strconv.FormatInt(c.now(), 10)
		sig, err := Sign(c.cfg.APISecret, c.cfg.APIKey, ts, signBody)
		if err != nil {
			return nil, err
		}
		req.Header.Set("ApiKey", c.cfg.APIKey)
		req.Header.Set("Signature", sig)
		req.Header.Set("Request-Time", ts)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Method: method, Path: path, Err: err}
	}
	defer res.Body.Close()
	raw, _ := io.ReadAll(res.Body)
	if res.StatusCode/100 != 2 {
		return nil, &TransportError{Method: method, Path: path, Status: res.StatusCode, Body: string(raw)}
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	if !env.Success {
		return nil, &APIError{Path: path, Code: env.Code, Message: env.Message}
	}
	return env.Data, nil
}
