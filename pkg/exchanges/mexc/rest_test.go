package mexc

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mexc-gateway/pkg/exchanges/common"
)

type recordingSink struct {
	mu        sync.Mutex
	orders    []common.OrderUpdate
	positions []common.Position
	accounts  []common.Account
}

func (s *recordingSink) ApplyOrder(u common.OrderUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = append(s.orders, u)
}

func (s *recordingSink) ApplyPosition(p common.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions = append(s.positions, p)
}

func (s *recordingSink) ApplyAccount(a common.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts = append(s.accounts, a)
}

func (s *recordingSink) orderUpdates() []common.OrderUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]common.OrderUpdate(nil), s.orders...)
}

func writeEnvelope(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "code": 0, "data": data})
}

func newTestClient(t *testing.T, h http.Handler, sink Sink) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(Config{APIKey: "key", APISecret: "secret", BaseURL: srv.URL}, common.NewContractRegistry(), sink, nil)
	require.NoError(t, err)
	return c
}

func TestClientSignsRequests(t *testing.T) {
	var gotBody []byte
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/private/account/assets", func(w http.ResponseWriter, r *http.Request) {
		ts := r.Header.Get("Request-Time")
		want, _ := Sign("secret", "key", ts, "")
		assert.Equal(t, "key", r.Header.Get("ApiKey"))
		assert.Equal(t, want, r.Header.Get("Signature"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_, err := strconv.ParseInt(ts, 10, 64)
		assert.NoError(t, err)
		writeEnvelope(w, []any{})
	})
	mux.HandleFunc("/api/v1/private/order/cancel", func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		want, _ := Sign("secret", "key", r.Header.Get("Request-Time"), string(gotBody))
		assert.Equal(t, want, r.Header.Get("Signature"))
		writeEnvelope(w, nil)
	})
	c := newTestClient(t, mux, nil)

	_, err := c.QueryAccount(context.Background())
	require.NoError(t, err)
	require.NoError(t, c.CancelOrder(context.Background(), common.CategoryRegular, "BTC_USDT", "123"))
	assert.Equal(t, "[123]", string(gotBody))
}

func TestQueryContractsMarksRegistryReady(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/contract/detail", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, []map[string]any{
			{"symbol": "BTC_USDT", "displayName": "BTC_USDT PERP", "priceUnit": 0.1, "minVol": 1, "priceScale": 1, "quoteCoin": "USDT"},
			{"symbol": "ETH_USDT", "displayName": "ETH_USDT PERP", "priceUnit": 0.01, "minVol": 1, "priceScale": 2, "quoteCoin": "USDT"},
		})
	})
	c := newTestClient(t, mux, nil)
	require.False(t, c.Registry().Ready())

	contracts, err := c.QueryContracts(context.Background())
	require.NoError(t, err)
	assert.Len(t, contracts, 2)
	assert.True(t, c.Registry().Ready())

	btc, ok := c.Registry().Get("BTC_USDT")
	require.True(t, ok)
	assert.Equal(t, 0.1, btc.PriceTick)
	assert.Equal(t, 0.1, btc.MinVolume)
	assert.Equal(t, "BTC_USDT PERP", btc.Name)
}

func TestQueryAccountSkipsZeroBalances(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/private/account/assets", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, []map[string]any{
			{"currency": "USDT", "availableBalance": 105.5, "frozenBalance": 4.5},
			{"currency": "BTC", "availableBalance": 0, "frozenBalance": 0},
		})
	})
	sink := &recordingSink{}
	c := newTestClient(t, mux, sink)

	accounts, err := c.QueryAccount(context.Background())
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "USDT", accounts[0].Currency)
	assert.Equal(t, 105.5, accounts[0].Balance)
	assert.Equal(t, 4.5, accounts[0].Frozen)
	assert.Len(t, sink.accounts, 1)
}

func TestQueryAccountAPIError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/private/account/assets", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"code":602,"message":"signature verification failed"}`))
	})
	sink := &recordingSink{}
	c := newTestClient(t, mux, sink)

	accounts, err := c.QueryAccount(context.Background())
	assert.Empty(t, accounts)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 602, apiErr.Code)
	assert.Empty(t, sink.accounts)
}

func TestQueryOpenOrdersBothCategories(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/private/order/list/open_orders", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("page_num"))
		assert.Equal(t, "20", r.URL.Query().Get("page_size"))
		writeEnvelope(w, []map[string]any{{
			"orderId": "102015012431820288", "symbol": "BTC_USDT", "price": 60000, "vol": 2,
			"dealVol": 1, "dealAvgPrice": 60000, "state": 2, "orderType": 1, "side": 1,
			"createTime": 1700000000000, "updateTime": 1700000001000,
		}})
	})
	mux.HandleFunc("/api/v1/private/planorder/list/orders", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, []map[string]any{
			{"id": 55, "symbol": "BTC_USDT", "triggerPrice": 58000, "vol": 1, "side": 3, "state": 1, "createTime": 1700000000000},
			{"id": 56, "symbol": "BTC_USDT", "triggerPrice": 58000, "vol": 1, "side": 9, "state": 1, "createTime": 1700000000000},
		})
	})
	sink := &recordingSink{}
	c := newTestClient(t, mux, sink)

	require.NoError(t, c.QueryOpenOrders(context.Background()))
	updates := sink.orderUpdates()
	require.Len(t, updates, 2)

	byCategory := map[common.Category]common.OrderUpdate{}
	for _, u := range updates {
		byCategory[u.Category] = u
	}
	reg := byCategory[common.CategoryRegular]
	assert.Equal(t, "102015012431820288", reg.OrderID)
	assert.Equal(t, common.StatusNotTraded, reg.Status)
	assert.Equal(t, common.OrderTypeLimit, reg.Type)
	assert.Equal(t, 1.0, reg.DealVol)

	plan := byCategory[common.CategoryPlan]
	assert.Equal(t, "55", plan.OrderID)
	assert.Equal(t, common.DirectionShort, plan.Direction)
	assert.Equal(t, common.OrderTypeStop, plan.Type)
	assert.Equal(t, 58000.0, plan.Price)
}

// klineServer serves total one-minute bars starting at base, at most limit
// per page, and records the start of every request.
func klineServer(t *testing.T, base int64, total int, failAfter int) (http.Handler, *[]int64) {
	t.Helper()
	var (
		mu     sync.Mutex
		starts []int64
	)
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/contract/kline/BTC_USDT", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Min1", r.URL.Query().Get("interval"))
		start, err := strconv.ParseInt(r.URL.Query().Get("start"), 10, 64)
		require.NoError(t, err)
		mu.Lock()
		starts = append(starts, start)
		calls := len(starts)
		mu.Unlock()
		if failAfter > 0 && calls > failAfter {
			http.Error(w, "upstream unavailable", http.StatusBadGateway)
			return
		}
		first := int((start - base) / 60)
		n := total - first
		if n > historyLimit {
			n = historyLimit
		}
		if n < 0 {
			n = 0
		}
		data := map[string][]float64{"open": {}, "close": {}, "high": {}, "low": {}, "vol": {}}
		times := make([]int64, 0, n)
		for i := 0; i < n; i++ {
			times = append(times, base+int64(first+i)*60)
			for _, k := range []string{"open", "close", "high", "low", "vol"} {
				data[k] = append(data[k], 1)
			}
		}
		writeEnvelope(w, map[string]any{
			"time": times, "open": data["open"], "close": data["close"],
			"high": data["high"], "low": data["low"], "vol": data["vol"],
		})
	})
	return mux, &starts
}

func TestQueryHistoryPaginates(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Unix()
	h, starts := klineServer(t, base, 2500, 0)
	c := newTestClient(t, h, nil)

	bars := c.QueryHistory(context.Background(), common.HistoryRequest{
		Symbol:   "BTC_USDT",
		Interval: common.IntervalMinute,
		Start:    time.Unix(base, 0),
	})
	require.Len(t, bars, 2500)
	require.Len(t, *starts, 2)
	assert.Equal(t, base, (*starts)[0])
	assert.Equal(t, bars[1999].Time.Unix()+60, (*starts)[1])
	for i := 1; i < len(bars); i++ {
		require.True(t, bars[i].Time.After(bars[i-1].Time))
	}
}

func TestQueryHistoryReturnsPartialOnError(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Unix()
	h, starts := klineServer(t, base, 5000, 1)
	c := newTestClient(t, h, nil)

	bars := c.QueryHistory(context.Background(), common.HistoryRequest{
		Symbol:   "BTC_USDT",
		Interval: common.IntervalMinute,
		Start:    time.Unix(base, 0),
	})
	assert.Len(t, bars, historyLimit)
	assert.Len(t, *starts, 2)
}

func TestQueryHistoryStopsAtEnd(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Unix()
	h, starts := klineServer(t, base, 5000, 0)
	c := newTestClient(t, h, nil)

	bars := c.QueryHistory(context.Background(), common.HistoryRequest{
		Symbol:   "BTC_USDT",
		Interval: common.IntervalMinute,
		Start:    time.Unix(base, 0),
		End:      time.Unix(base+1000*60, 0),
	})
	assert.Len(t, bars, historyLimit)
	assert.Len(t, *starts, 1)
}

func TestCancelOrderRoutesByCategory(t *testing.T) {
	bodies := map[string]string{}
	var mu sync.Mutex
	record := func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies[r.URL.Path] = string(b)
		mu.Unlock()
		writeEnvelope(w, nil)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/private/order/cancel", record)
	mux.HandleFunc("/api/v1/private/planorder/cancel", record)
	mux.HandleFunc("/api/v1/private/stoporder/cancel", record)
	c := newTestClient(t, mux, nil)
	ctx := context.Background()

	require.NoError(t, c.CancelOrder(ctx, common.CategoryRegular, "BTC_USDT", "101"))
	require.NoError(t, c.CancelOrder(ctx, common.CategoryPlan, "BTC_USDT", "202"))
	require.NoError(t, c.CancelOrder(ctx, common.CategoryStopPlan, "BTC_USDT", "303"))

	assert.Equal(t, "[101]", bodies["/api/v1/private/order/cancel"])
	assert.JSONEq(t, `[{"symbol":"BTC_USDT","orderId":"202"}]`, bodies["/api/v1/private/planorder/cancel"])
	assert.JSONEq(t, `[{"stopPlanOrderId":303}]`, bodies["/api/v1/private/stoporder/cancel"])

	err := c.CancelOrder(ctx, common.CategoryRegular, "BTC_USDT", "not-a-number")
	assert.ErrorIs(t, err, ErrUnknownOrder)
}

func TestCancelAllAttemptsBothBooks(t *testing.T) {
	var (
		mu   sync.Mutex
		hits []string
	)
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/private/planorder/cancel_all", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits = append(hits, r.URL.Path)
		mu.Unlock()
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	mux.HandleFunc("/api/v1/private/order/cancel_all", func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		assert.Equal(t, "{}", string(b))
		mu.Lock()
		hits = append(hits, r.URL.Path)
		mu.Unlock()
		writeEnvelope(w, nil)
	})
	c := newTestClient(t, mux, nil)

	err := c.CancelAll(context.Background())
	var transportErr *TransportError
	require.True(t, errors.As(err, &transportErr))
	assert.Equal(t, http.StatusInternalServerError, transportErr.Status)
	assert.Equal(t, []string{
		"/api/v1/private/planorder/cancel_all",
		"/api/v1/private/order/cancel_all",
	}, hits)
}

func TestLocalOrderIDUnique(t *testing.T) {
	c, err := NewClient(Config{APIKey: "key", APISecret: "secret"}, nil, nil, nil)
	require.NoError(t, err)

	const workers, perWorker = 8, 250
	ids := make(chan string, workers*perWorker)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				ids <- c.LocalOrderID()
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]struct{})
	for id := range ids {
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, workers*perWorker)
}
