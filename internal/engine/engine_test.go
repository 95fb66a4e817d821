package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/forgefx/paperbot/internal/analytics"
	"github.com/forgefx/paperbot/internal/broker"
	"github.com/forgefx/paperbot/internal/execution"
	"github.com/forgefx/paperbot/internal/features"
	"github.com/forgefx/paperbot/internal/persistence"
	"github.com/forgefx/paperbot/internal/ranking"
	"github.com/forgefx/paperbot/internal/reconcile"
	"github.com/forgefx/paperbot/internal/risk"
	"github.com/forgefx/paperbot/internal/scheduler"
	"github.com/forgefx/paperbot/internal/strategy"
	"github.com/forgefx/paperbot/internal/universe"
)

type flatStrategy struct{}

func (flatStrategy) Name() string { return "flat_only" }
func (flatStrategy) GenerateSignal(strategy.Context) strategy.Signal {
	return strategy.Signal{Side: broker.SideFlat, Reason: "no opinion"}
}

func demoSymbols() []broker.SymbolMeta {
	return []broker.SymbolMeta{
		{
			Name: "EURUSD", AssetClass: broker.AssetClassForex, TradeAllowed: true,
			Point: 0.0001, Digits: 5, VolumeMin: 0.01, VolumeMax: 10, VolumeStep: 0.01,
			TradeTickValue: 1, TradeTickSize: 0.0001, TradeContractSize: 100000,
		},
		{
			Name: "XAUUSD", AssetClass: broker.AssetClassMetals, TradeAllowed: true,
			Point: 0.01, Digits: 2, VolumeMin: 0.01, VolumeMax: 10, VolumeStep: 0.01,
			TradeTickValue: 1, TradeTickSize: 0.01, TradeContractSize: 100,
		},
	}
}

func newTestEngine(t *testing.T) (*Engine, *broker.Demo) {
	t.Helper()
	br := broker.NewDemo(demoSymbols(), 10000, 42)

	db, err := persistence.Open(filepath.Join(t.TempDir(), "paperbot.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	um := universe.NewManager(br, universe.Config{
		PreferredSymbols:    []string{"EURUSD", "XAUUSD"},
		IncludeAssetClasses: map[broker.AssetClass]bool{broker.AssetClassForex: true, broker.AssetClassMetals: true},
		MaxSymbolsTotal:     10,
	}, nil, nil)

	pipeline := features.NewPipeline(br)
	ranker := ranking.NewRanker(br, pipeline, ranking.Config{
		TopN:      2,
		Timeframe: "H1",
		Filters:   ranking.Filters{MinBarsRequired: 20},
		Weights:   ranking.Weights{Volatility: 0.25, Trend: 0.25, Momentum: 0.25, Cost: 0.25},
	}, nil)

	selector := strategy.NewSelector(strategy.SelectorConfig{Mode: strategy.ModeManual, ManualActive: "flat_only"}, flatStrategy{})

	riskMgr := risk.NewManager(risk.Config{
		RiskPerTrade: 0.01, MaxDailyLossPct: 0.05, MaxDrawdownPct: 0.1,
		MaxOpenPositionsTotal: 5, MaxOpenPositionsPerSymbol: 1,
		SLTPMode: risk.SLTPModeRR, RR: risk.RRConfig{StopPoints: 100, TakePoints: 200},
	}, 10000, nil)

	decisions := persistence.NewDecisionRepo(db)
	trades := persistence.NewTradeRepo(db)

	executor := execution.NewExecutor(br, decisions, execution.NewIdempotencyCache(), execution.Config{
		TradingEnabled: true, MagicNumber: 778899, RetryMaxAttempts: 1,
	}, nil)

	reconciler := reconcile.NewReconciler(br, trades, riskMgr, nil, reconcile.Config{MagicNumber: 778899}, nil)

	sched := scheduler.New(br, "H1", nil)

	dailyMetrics := func(ctx context.Context, date string) (float64, int, int, error) {
		m, err := analytics.ComputeDaily(ctx, db.Conn(), date, 778899)
		return m.PnL, m.Wins, m.Losses, err
	}

	heartbeats := persistence.NewHeartbeatRepo(db)
	errRepo := persistence.NewErrorRepo(db)

	e := New(br, sched, um, pipeline, ranker, selector, riskMgr, executor, reconciler,
		decisions, dailyMetrics, heartbeats, errRepo, nil, nil,
		Config{Timeframe: "H1", Timezone: time.UTC, CloseOnExitSignal: true, MagicNumber: 778899, LoopSleep: 50 * time.Millisecond},
		nil,
	)
	return e, br
}

func TestRunCycle_NoSignalRecordsDecisionAndPublishesSnapshot(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	if _, err := e.universe.Refresh(ctx); err != nil {
		t.Fatalf("refresh universe: %v", err)
	}

	e.runCycle(ctx, time.Now().UTC())

	snap := e.Snapshot()
	if snap.LastCycleID == "" {
		t.Fatal("expected a cycle ID to be recorded")
	}
	if len(snap.TopRanked) == 0 {
		t.Fatal("expected at least one ranked symbol")
	}

	keys, err := e.decisions.(*persistence.DecisionRepo).RecentIdempotencyKeys(ctx, 10)
	if err != nil {
		t.Fatalf("read recorded decisions: %v", err)
	}
	if len(keys) == 0 {
		t.Fatal("expected a no-signal decision to be recorded")
	}
}

func TestCommandQueue_PauseStopsNewEntries(t *testing.T) {
	e, _ := newTestEngine(t)
	e.commands.Send(Command{Kind: CommandPause})
	quit := e.handleCommand(<-e.commands.Commands())
	if quit {
		t.Fatal("pause command should not quit the loop")
	}
	if !e.manualPaused {
		t.Fatal("expected manualPaused to be true after pause command")
	}
}

func TestCommandQueue_QuitSignalsStop(t *testing.T) {
	e, _ := newTestEngine(t)
	if quit := e.handleCommand(Command{Kind: CommandQuit}); !quit {
		t.Fatal("expected quit command to return true")
	}
}
