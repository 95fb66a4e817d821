package execution

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/forgefx/paperbot/internal/broker"
)

// DecisionStatus mirrors the lifecycle of one persisted trading decision.
type DecisionStatus string

const (
	DecisionSkipped DecisionStatus = "skipped"
	DecisionOpened  DecisionStatus = "opened"
	DecisionClosed  DecisionStatus = "closed"
	DecisionError   DecisionStatus = "error"
)

// Decision is the row the executor writes before and after every broker
// call, giving a full audit trail even when the process crashes mid-call.
type Decision struct {
	CycleID             string
	Symbol              string
	Timeframe           string
	CandleCloseTimeUTC  string
	RankScore           float64
	Strategy            string
	Order               broker.OrderRequest
	Status              DecisionStatus
	Result              map[string]any
	IdempotencyKey      string
}

// DecisionStore persists decisions. TryInsert must be atomic on
// IdempotencyKey: it returns inserted=false without error when the key
// already exists, which is how the executor detects a duplicate submission.
type DecisionStore interface {
	TryInsert(ctx context.Context, d Decision) (inserted bool, err error)
	UpdateStatus(ctx context.Context, idempotencyKey string, status DecisionStatus, result map[string]any) error
}

// Config controls how the executor talks to the broker.
type Config struct {
	TradingEnabled   bool
	SlippagePoints   int
	MagicNumber      int64
	RetryMaxAttempts int
	RetryBackoff     []time.Duration
	VerifyDelay      time.Duration
}

// Report is the outcome of one open/close attempt, returned to the engine
// for logging and notification.
type Report struct {
	Action  string // "open" or "close"
	Success bool
	Reason  string
	Order   *broker.OrderRequest
	Result  *broker.OrderResult
}

// Executor places and closes trades with idempotency protection, retry
// handling, and a demo/contest-only trading gate.
type Executor struct {
	br     broker.Broker
	cfg    Config
	store  DecisionStore
	cache  *IdempotencyCache
	logger *log.Logger
}

// NewExecutor wires a broker, decision store, and idempotency cache. Pass a
// nil logger to use the standard library default.
func NewExecutor(br broker.Broker, store DecisionStore, cache *IdempotencyCache, cfg Config, logger *log.Logger) *Executor {
	if logger == nil {
		logger = log.Default()
	}
	return &Executor{br: br, cfg: cfg, store: store, cache: cache, logger: logger}
}

// OpenParams carries everything needed to open a new position.
type OpenParams struct {
	CycleID            string
	Symbol             string
	Timeframe          string
	CandleCloseTimeUTC string
	Strategy           string
	Side               broker.Side
	Volume             float64
	SL, TP             float64
	RankScore          float64
	IdempotencyKey     string
}

// OpenTrade submits a new market order, recording a decision row before and
// after the broker call so the attempt survives a crash mid-flight.
func (e *Executor) OpenTrade(ctx context.Context, p OpenParams) Report {
	if !e.cfg.TradingEnabled {
		return Report{Action: "open", Success: false, Reason: "trading disabled"}
	}
	if gated, reason := e.tradeModeGate(ctx); gated {
		return Report{Action: "open", Success: false, Reason: reason}
	}

	if e.cache.Contains(p.IdempotencyKey) {
		return Report{Action: "open", Success: false, Reason: "duplicate idempotency key"}
	}

	order := broker.OrderRequest{
		Symbol:          p.Symbol,
		Side:            p.Side,
		Volume:          p.Volume,
		SL:              p.SL,
		TP:              p.TP,
		DeviationPoints: e.cfg.SlippagePoints,
		Magic:           e.cfg.MagicNumber,
		Comment:         fmt.Sprintf("pb:%.12s", p.IdempotencyKey),
		IdempotencyKey:  p.IdempotencyKey,
	}

	inserted, err := e.store.TryInsert(ctx, Decision{
		CycleID:            p.CycleID,
		Symbol:             p.Symbol,
		Timeframe:          p.Timeframe,
		CandleCloseTimeUTC: p.CandleCloseTimeUTC,
		RankScore:          p.RankScore,
		Strategy:           p.Strategy,
		Order:              order,
		Status:             DecisionSkipped,
		IdempotencyKey:     p.IdempotencyKey,
	})
	if err != nil {
		e.logger.Printf("execution: failed recording decision for %s: %v", p.Symbol, err)
	}
	if !inserted {
		e.cache.Add(p.IdempotencyKey)
		return Report{Action: "open", Success: false, Reason: "duplicate idempotency key", Order: &order}
	}
	e.cache.Add(p.IdempotencyKey)

	res, err := CallWithRetries(ctx, func() (*broker.OrderResult, error) {
		return e.br.PlaceOrder(ctx, order)
	}, e.cfg.RetryMaxAttempts, e.cfg.RetryBackoff)

	if err != nil {
		e.updateDecision(ctx, p.IdempotencyKey, DecisionError, map[string]any{"error": err.Error()})
		return Report{Action: "open", Success: false, Reason: err.Error(), Order: &order}
	}
	if !res.Success {
		e.updateDecision(ctx, p.IdempotencyKey, DecisionError, map[string]any{"success": false, "retcode": res.Retcode})
		return Report{Action: "open", Success: false, Reason: fmt.Sprintf("retcode=%d", res.Retcode), Order: &order, Result: res}
	}

	e.updateDecision(ctx, p.IdempotencyKey, DecisionOpened, map[string]any{"success": true, "order_ticket": res.OrderTicket})
	e.verifyOpen(ctx, p.Symbol)
	return Report{Action: "open", Success: true, Reason: "opened", Order: &order, Result: res}
}

// CloseParams carries everything needed to close an existing position.
type CloseParams struct {
	CycleID            string
	Symbol             string
	Timeframe          string
	CandleCloseTimeUTC string
	Strategy           string
	PositionID         string
	CloseSide          broker.Side
	Volume             float64
	Reason             string
	IdempotencyKey     string
}

// CloseTrade closes an existing position. It submits the close as an order
// with PositionID set rather than via ModifyPosition, matching how a real
// MT5-style broker routes both opens and closes through the order path.
func (e *Executor) CloseTrade(ctx context.Context, p CloseParams) Report {
	if !e.cfg.TradingEnabled {
		return Report{Action: "close", Success: false, Reason: "trading disabled"}
	}
	if gated, reason := e.tradeModeGate(ctx); gated {
		return Report{Action: "close", Success: false, Reason: reason}
	}

	if e.cache.Contains(p.IdempotencyKey) {
		return Report{Action: "close", Success: false, Reason: "duplicate idempotency key"}
	}

	order := broker.OrderRequest{
		Symbol:          p.Symbol,
		Side:            p.CloseSide,
		Volume:          p.Volume,
		DeviationPoints: e.cfg.SlippagePoints,
		Magic:           e.cfg.MagicNumber,
		Comment:         fmt.Sprintf("pb:%.12s", p.IdempotencyKey),
		IdempotencyKey:  p.IdempotencyKey,
		PositionID:      p.PositionID,
	}

	inserted, err := e.store.TryInsert(ctx, Decision{
		CycleID:            p.CycleID,
		Symbol:             p.Symbol,
		Timeframe:          p.Timeframe,
		CandleCloseTimeUTC: p.CandleCloseTimeUTC,
		Strategy:           p.Strategy,
		Order:              order,
		Status:             DecisionSkipped,
		IdempotencyKey:     p.IdempotencyKey,
	})
	if err != nil {
		e.logger.Printf("execution: failed recording decision for %s: %v", p.Symbol, err)
	}
	if !inserted {
		e.cache.Add(p.IdempotencyKey)
		return Report{Action: "close", Success: false, Reason: "duplicate idempotency key", Order: &order}
	}
	e.cache.Add(p.IdempotencyKey)

	res, err := CallWithRetries(ctx, func() (*broker.OrderResult, error) {
		return e.br.PlaceOrder(ctx, order)
	}, e.cfg.RetryMaxAttempts, e.cfg.RetryBackoff)

	if err != nil {
		e.updateDecision(ctx, p.IdempotencyKey, DecisionError, map[string]any{"error": err.Error(), "reason": p.Reason})
		return Report{Action: "close", Success: false, Reason: err.Error(), Order: &order}
	}
	if !res.Success {
		e.updateDecision(ctx, p.IdempotencyKey, DecisionError, map[string]any{"success": false, "retcode": res.Retcode, "reason": p.Reason})
		return Report{Action: "close", Success: false, Reason: fmt.Sprintf("retcode=%d", res.Retcode), Order: &order, Result: res}
	}

	e.updateDecision(ctx, p.IdempotencyKey, DecisionClosed, map[string]any{"success": true, "reason": p.Reason})
	e.verifyClosed(ctx, p.PositionID)
	return Report{Action: "close", Success: true, Reason: "closed", Order: &order, Result: res}
}

func (e *Executor) tradeModeGate(ctx context.Context) (bool, string) {
	ai, err := e.br.Account(ctx)
	if err != nil || ai == nil {
		return false, ""
	}
	if ai.TradeMode != broker.AccountModeDemo && ai.TradeMode != broker.AccountModeContest {
		return true, fmt.Sprintf("paper-only gate: trade_mode=%s", ai.TradeMode)
	}
	return false, ""
}

func (e *Executor) updateDecision(ctx context.Context, key string, status DecisionStatus, result map[string]any) {
	if err := e.store.UpdateStatus(ctx, key, status, result); err != nil {
		e.logger.Printf("execution: failed updating decision %s: %v", key, err)
	}
}

func (e *Executor) verifyOpen(ctx context.Context, symbol string) {
	if e.cfg.VerifyDelay > 0 {
		time.Sleep(e.cfg.VerifyDelay)
	}
	positions, err := e.br.ListPositions(ctx)
	if err != nil {
		e.logger.Printf("execution: post-trade verification failed: %v", err)
		return
	}
	for _, p := range positions {
		if p.Symbol == symbol && (p.Magic == 0 || p.Magic == e.cfg.MagicNumber) {
			return
		}
	}
	e.logger.Printf("execution: post-trade verification: position not found for %s", symbol)
}

func (e *Executor) verifyClosed(ctx context.Context, positionID string) {
	if e.cfg.VerifyDelay > 0 {
		time.Sleep(e.cfg.VerifyDelay)
	}
	positions, err := e.br.ListPositions(ctx)
	if err != nil {
		e.logger.Printf("execution: post-close verification failed: %v", err)
		return
	}
	for _, p := range positions {
		if p.PositionID == positionID {
			e.logger.Printf("execution: post-close verification: position %s still present", positionID)
			return
		}
	}
}
