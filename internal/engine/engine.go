// Package engine wires the scheduler, universe manager, ranker, strategy
// selector, risk manager, executor, and deal reconciler into one control
// loop, publishing a read-only Snapshot every cycle and accepting operator
// Commands without ever blocking the trading loop on a UI.
package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/forgefx/paperbot/internal/broker"
	"github.com/forgefx/paperbot/internal/execution"
	"github.com/forgefx/paperbot/internal/features"
	"github.com/forgefx/paperbot/internal/notify"
	"github.com/forgefx/paperbot/internal/persistence"
	"github.com/forgefx/paperbot/internal/ranking"
	"github.com/forgefx/paperbot/internal/reconcile"
	"github.com/forgefx/paperbot/internal/risk"
	"github.com/forgefx/paperbot/internal/scheduler"
	"github.com/forgefx/paperbot/internal/strategy"
	"github.com/forgefx/paperbot/internal/telemetry"
	"github.com/forgefx/paperbot/internal/universe"
	"github.com/google/uuid"
)

// HeartbeatStore persists one liveness record per cycle. Satisfied by
// *persistence.HeartbeatRepo.
type HeartbeatStore interface {
	Insert(ctx context.Context, hb persistence.Heartbeat) error
}

// ErrorStore persists error/warning events for later audit. Satisfied by
// *persistence.ErrorRepo.
type ErrorStore interface {
	Insert(ctx context.Context, cycleID, severity, message, traceback string, contextData map[string]any) error
}

// DailyMetricsFunc computes today's PnL, wins and losses once per cycle
// (internal/analytics.ComputeDaily matches this shape). It is a function
// value so the engine stays testable with a stub.
type DailyMetricsFunc func(ctx context.Context, date string) (pnl float64, wins, losses int, err error)

// Config controls engine-level behavior not already owned by one of its
// component configs.
type Config struct {
	Timeframe         string
	Timezone          *time.Location
	CloseOnExitSignal bool
	MagicNumber       int64
	LoopSleep         time.Duration
}

// Engine owns the single control-loop goroutine that ticks the scheduler,
// refreshes the universe, ranks candidates, evaluates strategies, checks
// risk, and executes trades — then publishes a Snapshot and drains any
// pending operator Commands.
type Engine struct {
	br         broker.Broker
	sched      *scheduler.CandleCloseScheduler
	universe   *universe.Manager
	pipeline   *features.Pipeline
	ranker     *ranking.Ranker
	selector   *strategy.Selector
	riskMgr    *risk.Manager
	executor   *execution.Executor
	reconciler *reconcile.Reconciler
	decisions  execution.DecisionStore
	dailyMetrics DailyMetricsFunc
	heartbeats HeartbeatStore
	errors     ErrorStore
	probe      telemetry.Probe
	notifier   notify.Notifier
	cfg        Config
	logger     *log.Logger

	snapshot *SnapshotStore
	commands *CommandQueue

	manualPaused   bool
	riskPausedPrev *bool
	lastSummaryDay string
}

// New constructs an Engine from its fully-wired components. Any of
// dailyMetrics/notifier may be nil: a nil dailyMetrics leaves today's PnL
// unset in the snapshot, and a nil notifier silently drops notifications.
func New(
	br broker.Broker,
	sched *scheduler.CandleCloseScheduler,
	um *universe.Manager,
	pipeline *features.Pipeline,
	ranker *ranking.Ranker,
	selector *strategy.Selector,
	riskMgr *risk.Manager,
	executor *execution.Executor,
	reconciler *reconcile.Reconciler,
	decisions execution.DecisionStore,
	dailyMetrics DailyMetricsFunc,
	heartbeats HeartbeatStore,
	errStore ErrorStore,
	probe telemetry.Probe,
	notifier notify.Notifier,
	cfg Config,
	logger *log.Logger,
) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.Timezone == nil {
		cfg.Timezone = time.UTC
	}
	if cfg.LoopSleep <= 0 {
		cfg.LoopSleep = 5 * time.Second
	}
	if probe == nil {
		probe = telemetry.NewDefaultProbe()
	}
	return &Engine{
		br: br, sched: sched, universe: um, pipeline: pipeline, ranker: ranker,
		selector: selector, riskMgr: riskMgr, executor: executor, reconciler: reconciler,
		decisions: decisions, dailyMetrics: dailyMetrics, heartbeats: heartbeats, errors: errStore, probe: probe,
		notifier: notifier, cfg: cfg, logger: logger,
		snapshot: NewSnapshotStore(), commands: NewCommandQueue(16),
	}
}

// Snapshot returns the engine's published read model.
func (e *Engine) Snapshot() Snapshot {
	return e.snapshot.Current()
}

// Commands returns the queue external callers post operator commands to.
func (e *Engine) Commands() *CommandQueue {
	return e.commands
}

// Run drives the control loop until ctx is canceled or a quit Command is
// received. It ticks at cfg.LoopSleep, polling the scheduler for a newly
// closed candle and running one cycle whenever it sees one; the deal
// reconciler is ticked every loop regardless, since fills can happen
// between candle closes.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.LoopSleep)
	defer ticker.Stop()

	anchor, ok := e.universe.Anchor()
	if !ok {
		if _, err := e.universe.Refresh(ctx); err != nil {
			e.logger.Printf("engine: initial universe refresh failed: %v", err)
		}
		anchor, _ = e.universe.Anchor()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-e.commands.Commands():
			if quit := e.handleCommand(cmd); quit {
				return nil
			}
		case <-ticker.C:
			if anchor == "" {
				anchor, _ = e.universe.Anchor()
			}
			if anchor == "" {
				continue
			}
			closeTime, ok, err := e.sched.Poll(ctx, anchor)
			if err != nil {
				e.recordError(ctx, fmt.Sprintf("scheduler poll: %v", err), "")
				continue
			}
			if !ok {
				e.reconcileOnly(ctx)
				continue
			}
			e.runCycle(ctx, closeTime)
		}
	}
}

func (e *Engine) handleCommand(cmd Command) (quit bool) {
	switch cmd.Kind {
	case CommandPause:
		e.manualPaused = true
	case CommandResume:
		e.manualPaused = false
	case CommandRefreshUniverse:
		if _, err := e.universe.Refresh(context.Background()); err != nil {
			e.logger.Printf("engine: manual universe refresh failed: %v", err)
		}
	case CommandApplyConfig:
		if cfg, ok := cmd.Payload.(risk.Config); ok {
			e.riskMgr.UpdateConfig(cfg)
		}
	case CommandQuit:
		return true
	}
	return false
}

func (e *Engine) reconcileOnly(ctx context.Context) {
	if e.reconciler == nil {
		return
	}
	if err := e.reconciler.Sync(ctx); err != nil {
		e.recordError(ctx, fmt.Sprintf("deal reconciliation: %v", err), "")
	}
}

func (e *Engine) runCycle(ctx context.Context, closeTime time.Time) {
	cycleID := uuid.NewString()[:12]
	start := time.Now()
	stage := map[string]float64{}
	closeISO := closeTime.UTC().Format(time.RFC3339)

	if e.pipeline != nil {
		e.pipeline.Reset()
	}

	candidates, err := e.universe.Refresh(ctx)
	if err != nil {
		e.logger.Printf("engine: universe refresh: %v", err)
		candidates = e.universe.Current()
	}
	if len(candidates) == 0 {
		e.snapshot.Publish(Snapshot{LastCycleID: cycleID, LastCandleCloseTimeUTC: closeISO})
		return
	}

	account, err := e.br.Account(ctx)
	if err != nil {
		e.recordError(ctx, fmt.Sprintf("fetch account: %v", err), cycleID)
		return
	}
	positions, err := e.br.ListPositions(ctx)
	if err != nil {
		e.recordError(ctx, fmt.Sprintf("list positions: %v", err), cycleID)
		return
	}

	nowLocal := closeTime.In(e.cfg.Timezone)
	eqState := e.riskMgr.UpdateEquityState(account.Equity, nowLocal)
	e.handleRiskPauseTransition(eqState)

	t0 := time.Now()
	rankResult, err := e.ranker.Rank(ctx, candidates)
	stage["rank_ms"] = float64(time.Since(t0).Milliseconds())
	if err != nil {
		e.recordError(ctx, fmt.Sprintf("ranking: %v", err), cycleID)
		return
	}
	ranked := rankResult.Selected

	posBySymbol := make(map[string]broker.Position, len(positions))
	var posViews []PositionView
	var ownPositions []broker.Position
	for _, p := range positions {
		if p.Magic != 0 && e.cfg.MagicNumber != 0 && p.Magic != e.cfg.MagicNumber {
			continue
		}
		posBySymbol[p.Symbol] = p
		ownPositions = append(ownPositions, p)
		posViews = append(posViews, PositionView{
			Symbol: p.Symbol, Side: string(p.Side), Volume: p.Volume,
			Price: p.PriceOpen, SL: p.SL, TP: p.TP, Profit: p.Profit,
		})
	}

	t1 := time.Now()
	var events []string
	for _, r := range ranked {
		events = append(events, e.processSymbol(ctx, cycleID, closeISO, r, posBySymbol, eqState, ownPositions)...)
	}
	stage["strategy_risk_exec_ms"] = float64(time.Since(t1).Milliseconds())

	e.reconcileOnly(ctx)

	today := nowLocal.Format("2006-01-02")
	var pnl float64
	var wins, losses int
	if e.dailyMetrics != nil {
		pnl, wins, losses, err = e.dailyMetrics(ctx, today)
		if err != nil {
			e.logger.Printf("engine: daily metrics: %v", err)
		}
	}

	var topViews []RankedSymbolView
	for _, r := range ranked {
		topViews = append(topViews, RankedSymbolView{Symbol: r.Symbol, Score: r.Score, Reasons: r.Reasons})
	}

	e.maybeSendDailySummary(today, pnl, wins, losses, account.Equity)

	var recentEvents []string
	for _, ev := range events {
		recentEvents = appendRing(recentEvents, ev, 20)
	}

	resources := e.probe.Sample()
	telemetry.RecordSnapshot(resources)

	latencyMs := float64(time.Since(start).Milliseconds())
	e.snapshot.Publish(Snapshot{
		Connected:              true,
		Paused:                 e.manualPaused || eqState.Paused,
		PauseReason:            eqState.PauseReason,
		TradingEnabled:         e.executor != nil,
		LastCycleID:            cycleID,
		LastCandleCloseTimeUTC: closeISO,
		LastCycleLatencyMs:     latencyMs,
		StageTimingsMs:         stage,
		TopRanked:              topViews,
		ExcludedSymbols:        rankResult.Excluded,
		OpenPositions:          posViews,
		TodayPnL:               pnl,
		Wins:                   wins,
		Losses:                 losses,
		LastEvents:             recentEvents,
		ResourceCPUPct:         resources.CPUPct,
		ResourceTempC:          resources.TempC,
	})

	telemetry.CycleLatency.Observe(latencyMs / 1000)
	telemetry.EquityGauge.Set(eqState.CurrentEquity)
	telemetry.DrawdownPctGauge.Set(eqState.DrawdownPct)
	telemetry.OpenPositionsGauge.Set(float64(len(posViews)))

	if e.heartbeats != nil {
		hb := persistence.Heartbeat{
			CycleID: cycleID, Status: "ok", CycleLatencyMs: latencyMs, BrokerConnected: true,
			Equity: eqState.CurrentEquity, Balance: account.Balance,
			DailyStartEquity: eqState.DailyStartEquity, DailyPnL: pnl,
			PeakEquity: eqState.PeakEquity, DrawdownPct: eqState.DrawdownPct,
			OpenPositions: len(posViews),
			CPUPct:        resources.CPUPct, RAMPct: resources.RAMPct, DiskPct: resources.DiskPct,
			NetRxBps: resources.NetRxBps, NetTxBps: resources.NetTxBps, TempC: resources.TempC,
		}
		if err := e.heartbeats.Insert(ctx, hb); err != nil {
			e.logger.Printf("engine: persisting heartbeat: %v", err)
		}
	}

	e.logger.Printf("engine: cycle %s complete in %.0fms (%d ranked)", cycleID, latencyMs, len(ranked))
}

// maybeSendDailySummary notifies once per calendar day, the first cycle
// processed on or after that day's boundary — mirroring how the daily PnL
// itself resets at the same boundary.
func (e *Engine) maybeSendDailySummary(today string, pnl float64, wins, losses int, equity float64) {
	if e.notifier == nil || today == e.lastSummaryDay {
		return
	}
	e.lastSummaryDay = today
	e.notifier.Notify("daily_summary_"+today, notify.DailySummaryMessage(today, &pnl, wins, losses, &equity))
}

// processSymbol runs one ranked candidate through strategy selection, the
// close/reversal/skip branches, and (if warranted) a risk-gated entry. It
// returns a short human-readable event string for each action taken, for
// the snapshot's rolling event log.
func (e *Engine) processSymbol(
	ctx context.Context,
	cycleID, candleCloseISO string,
	r ranking.RankedSymbol,
	positions map[string]broker.Position,
	eqState risk.EquityState,
	allPositions []broker.Position,
) []string {
	var events []string
	if r.Bundle == nil {
		return events
	}

	meta, err := e.br.SymbolInfo(ctx, r.Symbol)
	if err != nil {
		e.logger.Printf("engine: symbol info for %s: %v", r.Symbol, err)
		return events
	}
	quote, err := e.br.GetQuote(ctx, r.Symbol)
	if err != nil {
		e.logger.Printf("engine: quote for %s: %v", r.Symbol, err)
		return events
	}

	pos, inPosition := positions[r.Symbol]
	var curPos *broker.Position
	if inPosition {
		curPos = &pos
	}

	sctx := strategy.Context{
		Symbol:             r.Symbol,
		Timeframe:          e.cfg.Timeframe,
		CandleCloseTimeUTC: mustParseRFC3339(candleCloseISO),
		Quote:              quote,
		SymbolMeta:         meta,
		CurrentPosition:    curPos,
		Bundle:             r.Bundle,
	}

	selection := e.selector.Select(r.Bundle.ADX14)
	if selection.Strategy == nil {
		key := execution.MakeIdempotencyKey(r.Symbol, e.cfg.Timeframe, candleCloseISO, "none", broker.SideFlat)
		e.insertSkip(ctx, cycleID, r, candleCloseISO, "none", key, "no_signal", selection.Reason)
		return events
	}

	signal := selection.Strategy.GenerateSignal(sctx)

	if e.manualPaused {
		key := execution.MakeIdempotencyKey(r.Symbol, e.cfg.Timeframe, candleCloseISO, selection.Name, signal.Side)
		e.insertSkip(ctx, cycleID, r, candleCloseISO, selection.Name, key, "risk_blocked", "manually paused")
		return events
	}

	if signal.Side == broker.SideFlat && signal.HasTag("exit") && e.cfg.CloseOnExitSignal && inPosition {
		closeSide := broker.SideShort
		if pos.Side == broker.SideShort {
			closeSide = broker.SideLong
		}
		key := execution.MakeIdempotencyKey(r.Symbol, e.cfg.Timeframe, candleCloseISO, selection.Name, broker.SideFlat)
		rep := e.executor.CloseTrade(ctx, execution.CloseParams{
			CycleID: cycleID, Symbol: r.Symbol, Timeframe: e.cfg.Timeframe,
			CandleCloseTimeUTC: candleCloseISO, Strategy: selection.Name,
			PositionID: pos.PositionID, CloseSide: closeSide, Volume: pos.Volume,
			Reason: "exit signal", IdempotencyKey: key,
		})
		if rep.Success && e.notifier != nil {
			e.notifier.Notify("trade_close_"+r.Symbol, notify.TradeCloseMessage(r.Symbol, string(pos.Side), pos.Volume, &pos.Profit, "exit signal"))
		}
		events = append(events, fmt.Sprintf("%s: exit-signal close (%v)", r.Symbol, rep.Success))
		return events
	}

	if (signal.Side == broker.SideLong || signal.Side == broker.SideShort) && inPosition && signal.Side != pos.Side {
		closeSide := broker.SideShort
		if pos.Side == broker.SideShort {
			closeSide = broker.SideLong
		}
		key := execution.MakeIdempotencyKey(r.Symbol, e.cfg.Timeframe, candleCloseISO, selection.Name, broker.SideFlat)
		rep := e.executor.CloseTrade(ctx, execution.CloseParams{
			CycleID: cycleID, Symbol: r.Symbol, Timeframe: e.cfg.Timeframe,
			CandleCloseTimeUTC: candleCloseISO, Strategy: selection.Name,
			PositionID: pos.PositionID, CloseSide: closeSide, Volume: pos.Volume,
			Reason: "reversal", IdempotencyKey: key,
		})
		if rep.Success && e.notifier != nil {
			e.notifier.Notify("trade_close_"+r.Symbol, notify.TradeCloseMessage(r.Symbol, string(pos.Side), pos.Volume, &pos.Profit, "reversal"))
		}
		events = append(events, fmt.Sprintf("%s: reversal close (%v)", r.Symbol, rep.Success))
		if !rep.Success {
			return events
		}
		// The symbol is now flat: fall through to the entry checks below so
		// a reversal produces one close and one same-cycle open, instead of
		// waiting a full cycle to re-enter.
		inPosition = false
		allPositions = withoutPosition(allPositions, pos.PositionID)
	}

	if inPosition && signal.Side == pos.Side {
		key := execution.MakeIdempotencyKey(r.Symbol, e.cfg.Timeframe, candleCloseISO, selection.Name, signal.Side)
		e.insertSkip(ctx, cycleID, r, candleCloseISO, selection.Name, key, "skipped", "already in position")
		return events
	}

	if signal.Side != broker.SideLong && signal.Side != broker.SideShort {
		key := execution.MakeIdempotencyKey(r.Symbol, e.cfg.Timeframe, candleCloseISO, selection.Name, signal.Side)
		e.insertSkip(ctx, cycleID, r, candleCloseISO, selection.Name, key, "no_signal", signal.Reason)
		return events
	}

	decision := e.riskMgr.CheckEntry(r.Symbol, signal.Side, quote.Bid, r.Bundle.ATR14, meta, allPositions, mustParseRFC3339(candleCloseISO))
	if !decision.Approved {
		key := execution.MakeIdempotencyKey(r.Symbol, e.cfg.Timeframe, candleCloseISO, selection.Name, signal.Side)
		e.insertSkip(ctx, cycleID, r, candleCloseISO, selection.Name, key, "risk_blocked", decision.Reason)
		return events
	}

	key := execution.MakeIdempotencyKey(r.Symbol, e.cfg.Timeframe, candleCloseISO, selection.Name, signal.Side)
	sl, tp := decision.SL, decision.TP
	rep := e.executor.OpenTrade(ctx, execution.OpenParams{
		CycleID: cycleID, Symbol: r.Symbol, Timeframe: e.cfg.Timeframe,
		CandleCloseTimeUTC: candleCloseISO, Strategy: selection.Name,
		Side: signal.Side, Volume: decision.Volume, SL: sl, TP: tp,
		RankScore: r.Score, IdempotencyKey: key,
	})
	if rep.Success && e.notifier != nil {
		e.notifier.Notify("trade_open_"+r.Symbol, notify.TradeOpenMessage(r.Symbol, string(signal.Side), decision.Volume, &quote.Bid, &sl, &tp, selection.Name, &r.Score))
	}
	events = append(events, fmt.Sprintf("%s: entry %v (%v)", r.Symbol, signal.Side, rep.Success))
	return events
}

func (e *Engine) insertSkip(ctx context.Context, cycleID string, r ranking.RankedSymbol, candleCloseISO, strategyName, idempotencyKey, status, reason string) {
	if e.decisions == nil {
		return
	}
	inserted, err := e.decisions.TryInsert(ctx, execution.Decision{
		CycleID:            cycleID,
		Symbol:             r.Symbol,
		Timeframe:          e.cfg.Timeframe,
		CandleCloseTimeUTC: candleCloseISO,
		RankScore:          r.Score,
		Strategy:           strategyName,
		Status:             execution.DecisionSkipped,
		Result:             map[string]any{"status": status, "reason": reason},
		IdempotencyKey:     idempotencyKey,
	})
	if err != nil {
		e.logger.Printf("engine: recording %s decision for %s: %v", status, r.Symbol, err)
	}
	_ = inserted
}

// withoutPosition returns positions with the entry matching id removed, so
// a same-cycle reversal close doesn't leave the freshly-closed position
// still counted by the risk check that follows it.
func withoutPosition(positions []broker.Position, id string) []broker.Position {
	out := make([]broker.Position, 0, len(positions))
	for _, p := range positions {
		if p.PositionID != id {
			out = append(out, p)
		}
	}
	return out
}

func mustParseRFC3339(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Now().UTC()
	}
	return t
}

func (e *Engine) handleRiskPauseTransition(eq risk.EquityState) {
	if e.riskPausedPrev == nil {
		paused := eq.Paused
		e.riskPausedPrev = &paused
		return
	}
	if eq.Paused == *e.riskPausedPrev {
		return
	}
	*e.riskPausedPrev = eq.Paused
	if e.notifier == nil {
		return
	}
	if eq.Paused {
		e.notifier.Notify("risk_pause", notify.RiskPauseMessage(eq.PauseReason))
	} else {
		e.notifier.Notify("risk_unpause", notify.RiskUnpauseMessage())
	}
}

func (e *Engine) recordError(ctx context.Context, message, cycleID string) {
	e.logger.Printf("engine: %s", message)
	if e.errors != nil {
		if err := e.errors.Insert(ctx, cycleID, "error", message, "", nil); err != nil {
			e.logger.Printf("engine: persisting error record: %v", err)
		}
	}
	if e.notifier != nil {
		e.notifier.Notify("", notify.ErrorMessage(message, cycleID))
	}
}
