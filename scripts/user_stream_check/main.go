package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"go.uber.org/zap"

	"mexc-gateway/internal/events"
	"mexc-gateway/internal/reconciliation"
	"mexc-gateway/pkg/config"
	"mexc-gateway/pkg/exchanges/common"
	"mexc-gateway/pkg/exchanges/mexc"
	"mexc-gateway/pkg/logging"
)

// This script logs in to the private MEXC websocket and prints every order,
// trade, position and balance the reconciler derives from the pushes. Place
// or cancel orders elsewhere while it runs.
//
// Usage:
//
//	go run ./scripts/user_stream_check
//
// Stops on Ctrl-C or after CHECK_DURATION (default 5m).

func main() {
	logger, err := logging.New("debug", "")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config load error", zap.Error(err))
	}
	if cfg.APIKey == "" || cfg.APISecret == "" {
		logger.Fatal("MEXC_API_KEY/SECRET are required")
	}
	duration := 5 * time.Minute
	if v := os.Getenv("CHECK_DURATION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			duration = d
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	bus := events.NewBus()
	registry := common.NewContractRegistry()
	recon := reconciliation.New(registry, bus, logger)

	// Contract steps make trade volumes round the way the gateway does.
	rest, err := mexc.NewClient(mexc.Config{BaseURL: cfg.RestHost, ProxyURL: cfg.ProxyURL}, registry, recon, logger)
	if err != nil {
		logger.Fatal("client", zap.Error(err))
	}
	if _, err := rest.QueryContracts(ctx); err != nil {
		logger.Warn("contracts", zap.Error(err))
	}

	stream, err := mexc.NewTradeStream(mexc.StreamConfig{URL: cfg.WSHost, ProxyURL: cfg.ProxyURL, ReadTimeout: cfg.WSReadTimeout}, cfg.APIKey, cfg.APISecret, recon, logger)
	if err != nil {
		logger.Fatal("stream", zap.Error(err))
	}

	subs := map[events.Event]<-chan any{}
	for _, e := range []events.Event{events.EventOrder, events.EventTrade, events.EventPosition, events.EventAccount} {
		ch, unsub := bus.Subscribe(e, 256)
		defer unsub()
		subs[e] = ch
	}

	stream.Start(ctx)
	defer stream.Close()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("user stream check finished", zap.Int("orders", len(recon.Orders())), zap.Int("trades", len(recon.Trades())))
			return
		case <-ticker.C:
			stream.OnTimer()
		case v := <-subs[events.EventOrder]:
			logger.Info("order", zap.Any("order", v))
		case v := <-subs[events.EventTrade]:
			logger.Info("trade", zap.Any("trade", v))
		case v := <-subs[events.EventPosition]:
			logger.Info("position", zap.Any("position", v))
		case v := <-subs[events.EventAccount]:
			logger.Info("account", zap.Any("account", v))
		}
	}
}
