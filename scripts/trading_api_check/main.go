package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"mexc-gateway/pkg/config"
	"mexc-gateway/pkg/exchanges/common"
	"mexc-gateway/pkg/exchanges/mexc"
	"mexc-gateway/pkg/logging"
)

// trading_api_check runs the read-only MEXC REST calls the gateway makes on
// connect and prints what comes back. Nothing is placed or cancelled.
//
// Usage:
//
//	go run ./scripts/trading_api_check
//
// Uses the same environment as the gateway (MEXC_API_KEY, MEXC_API_SECRET,
// MEXC_REST_HOST, PROXY_URL). CHECK_SYMBOL picks the symbol for the kline
// check (default BTC_USDT).

type printSink struct{ log *zap.Logger }

func (s printSink) ApplyOrder(u common.OrderUpdate) {
	s.log.Info("open order", zap.String("category", string(u.Category)), zap.String("id", u.OrderID),
		zap.String("symbol", u.Symbol), zap.String("status", string(u.Status)), zap.Float64("volume", u.Volume))
}

func (s printSink) ApplyPosition(p common.Position) {
	s.log.Info("position", zap.String("symbol", p.Symbol), zap.Float64("volume", p.Volume))
}

func (s printSink) ApplyAccount(a common.Account) {
	s.log.Info("account", zap.String("currency", a.Currency), zap.Float64("balance", a.Balance), zap.Float64("frozen", a.Frozen))
}

func main() {
	logger, err := logging.New("info", "")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config load error", zap.Error(err))
	}
	symbol := os.Getenv("CHECK_SYMBOL")
	if symbol == "" {
		symbol = "BTC_USDT"
	}

	registry := common.NewContractRegistry()
	client, err := mexc.NewClient(mexc.Config{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
		BaseURL:   cfg.RestHost,
		ProxyURL:  cfg.ProxyURL,
	}, registry, printSink{log: logger}, logger)
	if err != nil {
		logger.Fatal("client", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	serverMs, err := client.ServerTime(ctx)
	if err != nil {
		logger.Fatal("server time", zap.Error(err))
	}
	logger.Info("server time", zap.Time("server", time.UnixMilli(serverMs)), zap.Duration("skew", time.Since(time.UnixMilli(serverMs))))

	contracts, err := client.QueryContracts(ctx)
	if err != nil {
		logger.Fatal("contracts", zap.Error(err))
	}
	logger.Info("contracts loaded", zap.Int("count", len(contracts)))
	if c, ok := registry.Get(symbol); ok {
		logger.Info("contract", zap.String("symbol", c.Symbol), zap.Float64("price_tick", c.PriceTick), zap.Float64("min_volume", c.MinVolume))
	}

	end := time.Now()
	bars := client.QueryHistory(ctx, common.HistoryRequest{
		Symbol:   symbol,
		Interval: common.IntervalHour,
		Start:    end.Add(-24 * time.Hour),
		End:      end,
	})
	logger.Info("klines", zap.String("symbol", symbol), zap.Int("bars", len(bars)))

	if cfg.APIKey == "" || cfg.APISecret == "" {
		logger.Info("MEXC_API_KEY/SECRET empty, skipping private checks")
		return
	}
	if _, err := client.QueryAccount(ctx); err != nil {
		logger.Error("account", zap.Error(err))
	}
	if err := client.QueryOpenOrders(ctx); err != nil {
		logger.Error("open orders", zap.Error(err))
	}
	logger.Info("check finished")
}
