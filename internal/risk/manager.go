// Package risk implements the hard risk guardrails for the trading
// system.
//
// Design rules:
//   - Risk rules are implemented in Go, not left to a strategy's judgment.
//   - They cannot be overridden by any strategy.
//   - Every approved entry carries a stop loss.
//   - Capital preservation takes priority over returns: the manager
//     prefers not trading over approving a marginal trade.
package risk

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/forgefx/paperbot/internal/broker"
)

// EquityState is the manager's running view of account health, rebuilt
// from the broker's account snapshot each cycle.
type EquityState struct {
	Date             time.Time // calendar day this state covers, for daily reset
	DailyStartEquity float64
	PeakEquity       float64
	CurrentEquity    float64
	DrawdownPct      float64
	DailyLossPct     float64
	Paused           bool
	PauseReason      string
}

// Manager enforces all risk rules. It is the final gatekeeper before any
// order is placed, and it is deliberately strict: it rejects entries that
// violate any rule even if a strategy reports high confidence.
type Manager struct {
	mu sync.Mutex

	cfg    Config
	equity EquityState

	lossStreak   int
	cooloffUntil time.Time

	logger *log.Logger
}

// NewManager creates a risk manager seeded with the broker's starting
// equity.
func NewManager(cfg Config, initialEquity float64, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	now := time.Now().UTC()
	return &Manager{
		cfg: cfg,
		equity: EquityState{
			Date:             now.Truncate(24 * time.Hour),
			DailyStartEquity: initialEquity,
			PeakEquity:       initialEquity,
			CurrentEquity:    initialEquity,
		},
		logger: logger,
	}
}

// UpdateConfig replaces the risk configuration atomically, used by config
// hot-reload to pick up new limits without restarting the engine.
func (m *Manager) UpdateConfig(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = cfg
}

// EquityState returns a copy of the current equity tracking state.
func (m *Manager) EquityState() EquityState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.equity
}

// UpdateEquityState refreshes peak/drawdown/daily-loss tracking from the
// latest account equity and engages or lifts the pause gate. now is
// threaded through rather than read internally so tests are deterministic.
func (m *Manager) UpdateEquityState(equity float64, now time.Time) EquityState {
	m.mu.Lock()
	defer m.mu.Unlock()

	day := now.Truncate(24 * time.Hour)
	if day.After(m.equity.Date) {
		m.equity.Date = day
		m.equity.DailyStartEquity = equity
		m.lossStreak = 0
		m.cooloffUntil = time.Time{}
	}

	m.equity.CurrentEquity = equity
	if equity > m.equity.PeakEquity {
		m.equity.PeakEquity = equity
	}

	if m.equity.PeakEquity > 0 {
		m.equity.DrawdownPct = (m.equity.PeakEquity - equity) / m.equity.PeakEquity * 100
	}
	if m.equity.DailyStartEquity > 0 {
		m.equity.DailyLossPct = (m.equity.DailyStartEquity - equity) / m.equity.DailyStartEquity * 100
	}

	switch {
	case m.cfg.MaxDrawdownPct > 0 && m.equity.DrawdownPct >= m.cfg.MaxDrawdownPct:
		m.pauseLocked(fmt.Sprintf("drawdown %.2f%% >= limit %.2f%%", m.equity.DrawdownPct, m.cfg.MaxDrawdownPct))
	case m.cfg.MaxDailyLossPct > 0 && m.equity.DailyLossPct >= m.cfg.MaxDailyLossPct:
		m.pauseLocked(fmt.Sprintf("daily loss %.2f%% >= limit %.2f%%", m.equity.DailyLossPct, m.cfg.MaxDailyLossPct))
	default:
		if m.equity.Paused {
			m.logger.Printf("risk: resuming, equity recovered within limits")
		}
		m.equity.Paused = false
		m.equity.PauseReason = ""
	}

	return m.equity
}

func (m *Manager) pauseLocked(reason string) {
	if !m.equity.Paused {
		m.logger.Printf("risk: PAUSED: %s", reason)
	}
	m.equity.Paused = true
	m.equity.PauseReason = reason
}

// OnNewDeals updates the loss-streak counter from freshly reconciled
// closing deals and engages a cooloff if the configured number of
// consecutive losses is reached.
func (m *Manager) OnNewDeals(deals []broker.Deal) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, d := range deals {
		if d.Entry != "out" {
			continue
		}
		if d.Profit < 0 {
			m.lossStreak++
		} else {
			m.lossStreak = 0
		}
	}

	if m.cfg.Cooloff.Enabled && m.cfg.Cooloff.Losses > 0 && m.lossStreak >= m.cfg.Cooloff.Losses {
		until := time.Now().UTC().Add(time.Duration(m.cfg.Cooloff.Minutes) * time.Minute)
		if until.After(m.cooloffUntil) {
			m.cooloffUntil = until
			m.logger.Printf("risk: cooloff engaged after %d consecutive losses, until %s", m.lossStreak, until.Format(time.RFC3339))
		}
	}
}

// InCooloff reports whether new entries are currently blocked by the
// loss-streak cooloff.
func (m *Manager) InCooloff(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return now.Before(m.cooloffUntil)
}

// CheckEntry evaluates whether a new entry is allowed and, if so, computes
// its stop-loss, take-profit, and position size. openPositions is the
// full current book; symbol/side/entry/atr describe the proposed trade.
func (m *Manager) CheckEntry(symbol string, side broker.Side, entry, atr float64, meta *broker.SymbolMeta, openPositions []broker.Position, now time.Time) Decision {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.equity.Paused {
		return Decision{Reason: fmt.Sprintf("risk paused: %s", m.equity.PauseReason)}
	}
	if now.Before(m.cooloffUntil) {
		return Decision{Reason: fmt.Sprintf("cooloff active until %s", m.cooloffUntil.Format(time.RFC3339))}
	}

	if m.cfg.MaxOpenPositionsTotal > 0 && len(openPositions) >= m.cfg.MaxOpenPositionsTotal {
		return Decision{Reason: fmt.Sprintf("at total position limit: %d/%d", len(openPositions), m.cfg.MaxOpenPositionsTotal)}
	}

	sameSymbol := 0
	for _, p := range openPositions {
		if p.Symbol == symbol {
			sameSymbol++
		}
	}
	if m.cfg.MaxOpenPositionsPerSymbol > 0 && sameSymbol >= m.cfg.MaxOpenPositionsPerSymbol {
		return Decision{Reason: fmt.Sprintf("at per-symbol position limit for %s: %d/%d", symbol, sameSymbol, m.cfg.MaxOpenPositionsPerSymbol)}
	}

	if meta == nil {
		return Decision{Reason: "missing symbol metadata"}
	}

	var sl, tp float64
	switch m.cfg.SLTPMode {
	case SLTPModeATR:
		sl, tp = SLTPATR(side, entry, atr, m.cfg.ATR.SLMult, m.cfg.ATR.TPMult)
	default:
		sl, tp = SLTPRR(side, entry, meta.Point, m.cfg.RR.StopPoints, m.cfg.RR.TakePoints)
	}

	stopPoints := abs(entry-sl) / meta.Point
	if stopPoints <= 0 {
		return Decision{Reason: "computed stop distance is zero"}
	}

	volume := ComputeVolume(m.equity.CurrentEquity, m.cfg.RiskPerTrade, stopPoints, meta)
	if volume <= 0 {
		return Decision{Reason: "computed position size is zero"}
	}

	return Decision{Approved: true, SL: sl, TP: tp, Volume: volume}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
