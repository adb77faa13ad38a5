package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	"mexc-gateway/internal/api"
	"mexc-gateway/internal/events"
	"mexc-gateway/internal/gateway"
	"mexc-gateway/internal/monitor"
	"mexc-gateway/internal/persistence"
	"mexc-gateway/pkg/config"
	"mexc-gateway/pkg/db"
	"mexc-gateway/pkg/exchanges/common"
	"mexc-gateway/pkg/exchanges/mexc"
	"mexc-gateway/pkg/i18n"
	"mexc-gateway/pkg/logging"
)

const (
	buildVersion   = "0.1.0"
	timerInterval  = time.Second
	connectTimeout = 30 * time.Second
	journalFlush   = 500 * time.Millisecond
)

func main() {
	issue := flag.String("issue-token", "", "print a bearer token for this operator name and exit")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "lifetime of an issued token")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", i18n.Get("ConfigLoadFailed"), err)
		os.Exit(1)
	}
	i18n.SetLanguage(i18n.Language(cfg.Language))

	if *issue != "" {
		token, err := api.IssueToken(*issue, cfg.JWTSecret, time.Now().Add(*tokenTTL))
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Error("gateway exited", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	logger.Info(i18n.M().Starting, zap.String("version", buildVersion))
	logger.Info(i18n.M().ConfigLoaded, zap.String("port", cfg.Port), zap.Strings("symbols", cfg.Symbols))

	logger.Info(i18n.M().UsingDBPath, zap.String("path", cfg.DBPath))
	database, err := db.New(cfg.DBPath)
	if err != nil {
		logger.Error(i18n.M().DBInitFailed, zap.Error(err))
		return err
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		logger.Error(i18n.M().DBInitFailed, zap.Error(err))
		return err
	}

	bus := events.NewBus()
	journal := persistence.NewJournal(database, bus, gateway.Name, journalFlush, logger)
	journal.Start()
	defer journal.Close()

	gw, err := gateway.New(gateway.Config{
		Rest: mexc.Config{
			APIKey:            cfg.APIKey,
			APISecret:         cfg.APISecret,
			BaseURL:           cfg.RestHost,
			ProxyURL:          cfg.ProxyURL,
			RequestsPerSecond: cfg.RestRPS,
		},
		WSURL:            cfg.WSHost,
		ExecutorURL:      cfg.ExecutorURL,
		AccountPollTicks: cfg.AccountPollTicks,
		SubscribeTimeout: cfg.SubscribeTimeout,
		ReadTimeout:      cfg.WSReadTimeout,
	}, bus, logger)
	if err != nil {
		return err
	}
	defer gw.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	err = gw.Connect(connectCtx)
	cancel()
	if err != nil {
		return err
	}
	for _, symbol := range cfg.Symbols {
		subCtx, cancel := context.WithTimeout(ctx, cfg.SubscribeTimeout)
		err := gw.Subscribe(subCtx, common.SubscribeRequest{Symbol: symbol})
		cancel()
		if err != nil {
			logger.Warn(i18n.M().SubscribeRejected, zap.String("symbol", symbol), zap.Error(err))
		}
	}

	metrics := monitor.NewSystemMetrics()
	mon := &monitor.Monitor{Bus: bus, Metrics: metrics, Sink: monitor.LogSink{Log: logger}, Log: logger}
	mon.Start(ctx)
	defer mon.Wait()

	server := api.NewServer(bus, gw, gw.Reconciler(), journal, metrics, api.SystemMeta{
		Gateway: gateway.Name,
		Symbols: cfg.Symbols,
		Version: buildVersion,
	}, cfg.JWTSecret, logger)
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var wg conc.WaitGroup
	wg.Go(func() {
		logger.Info(i18n.M().ServerListening, zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(i18n.M().APIServerError, zap.Error(err))
			stop()
		}
	})
	wg.Go(func() {
		ticker := time.NewTicker(timerInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				gw.OnTimer()
			}
		}
	})

	<-ctx.Done()
	logger.Info(i18n.M().ShuttingDown)
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(shutdownCtx)
	wg.Wait()
	return nil
}
