// Package main is the entry point for the paperbot engine.
//
// The engine:
//  1. Loads configuration from the YAML file and records it as a settings
//     snapshot; earlier persisted snapshots are not merged back into it
//  2. Opens the SQLite store and runs pending migrations
//  3. Wires the broker, universe manager, ranking/feature pipeline,
//     strategy selector, risk manager, executor, and deal reconciler
//  4. Drives the control loop until SIGINT/SIGTERM, publishing a Snapshot
//     every cycle and optionally serving it over a WebSocket
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/forgefx/paperbot/internal/analytics"
	"github.com/forgefx/paperbot/internal/broker"
	"github.com/forgefx/paperbot/internal/config"
	"github.com/forgefx/paperbot/internal/engine"
	"github.com/forgefx/paperbot/internal/execution"
	"github.com/forgefx/paperbot/internal/features"
	"github.com/forgefx/paperbot/internal/notify"
	"github.com/forgefx/paperbot/internal/persistence"
	"github.com/forgefx/paperbot/internal/ranking"
	"github.com/forgefx/paperbot/internal/reconcile"
	"github.com/forgefx/paperbot/internal/risk"
	"github.com/forgefx/paperbot/internal/scheduler"
	"github.com/forgefx/paperbot/internal/snapshot"
	"github.com/forgefx/paperbot/internal/strategy"
	"github.com/forgefx/paperbot/internal/universe"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to configuration file")
	noUI := flag.Bool("no-ui", false, "disable the snapshot websocket server even if ui.enabled is true")
	logLevel := flag.String("log-level", "info", "log verbosity label written to every startup line: debug | info | warn | error")
	flag.Parse()

	logger := log.New(os.Stdout, fmt.Sprintf("[engine:%s] ", *logLevel), log.LstdFlags)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Printf("config loaded: timeframe=%s timezone=%s", cfg.Runtime.Timeframe, cfg.Runtime.Timezone)

	tz, err := time.LoadLocation(cfg.Runtime.Timezone)
	if err != nil {
		logger.Fatalf("invalid timezone %q: %v", cfg.Runtime.Timezone, err)
	}

	db, err := persistence.Open(cfg.Persistence.DBPath)
	if err != nil {
		logger.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	decisions := persistence.NewDecisionRepo(db)
	trades := persistence.NewTradeRepo(db)
	errRepo := persistence.NewErrorRepo(db)
	settings := persistence.NewSettingsRepo(db)
	heartbeats := persistence.NewHeartbeatRepo(db)

	recordStartupSnapshot(cfg, settings, logger)

	notifier := buildNotifier(cfg, logger)

	br := broker.NewDemo(demoUniverseSymbols(), 10000, 1)

	account, err := br.Account(context.Background())
	if err != nil {
		logger.Fatalf("fetching initial account state: %v", err)
	}
	if account.TradeMode != broker.AccountModeDemo {
		logger.Fatalf("refusing to start: broker trade mode %q is not DEMO", account.TradeMode)
	}

	um := universe.NewManager(br, cfg.UniverseManagerConfig(), nil, logger)
	pipeline := features.NewPipeline(br)
	ranker := ranking.NewRanker(br, pipeline, cfg.RankingConfig(), logger)
	selector := strategy.NewSelector(cfg.SelectorConfig(), strategy.NewTwoPoleMomentum(), strategy.NewRangeMeanReversion())
	riskMgr := risk.NewManager(cfg.RiskManagerConfig(), account.Equity, logger)

	cache := execution.NewIdempotencyCache()
	seedCtx, seedCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if keys, err := decisions.RecentIdempotencyKeys(seedCtx, 500); err != nil {
		logger.Printf("loading recent idempotency keys: %v", err)
	} else {
		cache.LoadRecent(keys)
	}
	seedCancel()

	executor := execution.NewExecutor(br, decisions, cache, execution.Config{
		TradingEnabled:   cfg.Execution.TradingEnabled,
		SlippagePoints:   cfg.Execution.SlippagePoints,
		MagicNumber:      cfg.Execution.MagicNumber,
		RetryMaxAttempts: cfg.Execution.Retries.MaxAttempts,
		RetryBackoff:     cfg.RetryBackoff(),
	}, logger)

	reconciler := reconcile.NewReconciler(br, trades, riskMgr, notifier, reconcile.Config{
		MagicNumber: cfg.Execution.MagicNumber,
	}, logger)

	sched := scheduler.New(br, cfg.Runtime.Timeframe, logger)

	dailyMetrics := func(ctx context.Context, date string) (float64, int, int, error) {
		m, err := analytics.ComputeDaily(ctx, db.Conn(), date, cfg.Execution.MagicNumber)
		return m.PnL, m.Wins, m.Losses, err
	}

	eng := engine.New(
		br, sched, um, pipeline, ranker, selector, riskMgr, executor, reconciler,
		decisions, dailyMetrics, heartbeats, errRepo, nil, notifier,
		engine.Config{
			Timeframe:         cfg.Runtime.Timeframe,
			Timezone:          tz,
			CloseOnExitSignal: cfg.Execution.CloseOnExitSignal,
			MagicNumber:       cfg.Execution.MagicNumber,
			LoopSleep:         time.Duration(cfg.Runtime.LoopSleepSeconds) * time.Second,
		},
		logger,
	)

	watcher := config.NewWatcher(*configPath, cfg, logger)
	watcher.OnChange(func(_, newCfg *config.Config) {
		eng.Commands().Send(engine.Command{Kind: engine.CommandApplyConfig, Payload: newCfg.RiskManagerConfig()})
	})
	if err := watcher.Start(); err != nil {
		logger.Printf("config watcher disabled: %v", err)
	}
	defer watcher.Stop()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var httpServer *http.Server
	if !*noUI && cfg.UI.Enabled {
		httpServer = startSnapshotServer(ctx, eng, cfg, logger)
	}

	logger.Println("engine starting")
	if err := eng.Run(ctx); err != nil && err != context.Canceled {
		logger.Printf("engine stopped with error: %v", err)
	}

	gracefulShutdown(httpServer, logger)
	logger.Println("engine stopped")
}

func recordStartupSnapshot(cfg *config.Config, settings *persistence.SettingsRepo, logger *log.Logger) {
	data, err := json.Marshal(cfg)
	if err != nil {
		logger.Printf("marshaling config for settings snapshot: %v", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := settings.InsertSnapshot(ctx, "startup", string(data)); err != nil {
		logger.Printf("recording startup settings snapshot: %v", err)
	}
}

func buildNotifier(cfg *config.Config, logger *log.Logger) *notify.TelegramNotifier {
	ncfg := notify.FromEnv(cfg.Notifications.TelegramEnabled, float64(cfg.Notifications.ThrottleSeconds))
	notifier := notify.NewTelegramNotifier(ncfg, logger)
	if !notifier.Available() {
		logger.Println("telegram notifications disabled or unconfigured")
	}
	return notifier
}

// demoUniverseSymbols seeds the paper broker with a small, representative
// cross-asset set so the ranker and correlation filter have something to
// choose between from the first cycle on.
func demoUniverseSymbols() []broker.SymbolMeta {
	return []broker.SymbolMeta{
		{
			Name: "EURUSD", AssetClass: broker.AssetClassForex, TradeAllowed: true,
			Point: 0.0001, Digits: 5, VolumeMin: 0.01, VolumeMax: 50, VolumeStep: 0.01,
			TradeTickValue: 1, TradeTickSize: 0.0001, TradeContractSize: 100000,
		},
		{
			Name: "GBPUSD", AssetClass: broker.AssetClassForex, TradeAllowed: true,
			Point: 0.0001, Digits: 5, VolumeMin: 0.01, VolumeMax: 50, VolumeStep: 0.01,
			TradeTickValue: 1, TradeTickSize: 0.0001, TradeContractSize: 100000,
		},
		{
			Name: "USDJPY", AssetClass: broker.AssetClassForex, TradeAllowed: true,
			Point: 0.01, Digits: 3, VolumeMin: 0.01, VolumeMax: 50, VolumeStep: 0.01,
			TradeTickValue: 1, TradeTickSize: 0.01, TradeContractSize: 100000,
		},
		{
			Name: "XAUUSD", AssetClass: broker.AssetClassMetals, TradeAllowed: true,
			Point: 0.01, Digits: 2, VolumeMin: 0.01, VolumeMax: 20, VolumeStep: 0.01,
			TradeTickValue: 1, TradeTickSize: 0.01, TradeContractSize: 100,
		},
		{
			Name: "US500", AssetClass: broker.AssetClassIndices, TradeAllowed: true,
			Point: 0.1, Digits: 1, VolumeMin: 0.1, VolumeMax: 20, VolumeStep: 0.1,
			TradeTickValue: 1, TradeTickSize: 0.1, TradeContractSize: 1,
		},
	}
}

func startSnapshotServer(ctx context.Context, eng *engine.Engine, cfg *config.Config, logger *log.Logger) *http.Server {
	broadcaster := snapshot.NewBroadcaster(logger)
	go broadcaster.Run()

	var interval time.Duration
	if cfg.UI.RefreshHz > 0 {
		interval = time.Second / time.Duration(cfg.UI.RefreshHz)
	}
	publisher := snapshot.NewPublisher(eng, broadcaster, interval, logger)
	go publisher.Run(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", snapshot.Handler(broadcaster, logger))

	port := cfg.UI.Port
	if port == 0 {
		port = 8080
	}
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf("snapshot server error: %v", err)
		}
	}()
	logger.Printf("snapshot websocket server listening on :%d/ws", port)

	go func() {
		<-ctx.Done()
		broadcaster.Shutdown()
	}()

	return srv
}

func gracefulShutdown(srv *http.Server, logger *log.Logger) {
	if srv == nil {
		return
	}
	logger.Println("[shutdown] stopping snapshot server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Printf("[shutdown] snapshot server error: %v", err)
	} else {
		logger.Println("[shutdown] snapshot server stopped")
	}
}
