// Package config - watcher.go provides config hot-reload support.
//
// The watcher polls the config file for changes (stat-based, every 5
// seconds) and invokes registered callbacks when risk parameters change.
//
// Only risk configuration is reloadable. Broker selection, persistence
// path, and other structural settings require an engine restart.
package config

import (
	"log"
	"os"
	"sync"
	"time"
)

// Watcher monitors the config file for changes and invokes callbacks when
// risk-related fields change. It uses stat-based polling so no external
// filesystem-notification dependency is required.
type Watcher struct {
	path     string
	logger   *log.Logger
	mu       sync.RWMutex
	current  *Config
	lastMod  time.Time
	onChange []func(old, new *Config)
	done     chan struct{}
	stopped  bool
}

// NewWatcher creates a watcher for the given config file path. initial is
// the currently loaded config. The watcher does not start until Start()
// is called.
func NewWatcher(path string, initial *Config, logger *log.Logger) *Watcher {
	if logger == nil {
		logger = log.New(log.Writer(), "", log.LstdFlags)
	}
	return &Watcher{
		path:    path,
		logger:  logger,
		current: initial,
		done:    make(chan struct{}),
	}
}

// OnChange registers a callback invoked when the config file changes and
// the new config passes validation and differs in its risk section.
// Multiple callbacks may be registered.
func (w *Watcher) OnChange(fn func(old, new *Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = append(w.onChange, fn)
}

// Start begins polling the config file for changes in a background
// goroutine. Returns an error if the initial file stat fails.
func (w *Watcher) Start() error {
	info, err := os.Stat(w.path)
	if err != nil {
		return err
	}
	w.lastMod = info.ModTime()
	w.logger.Printf("[config-watcher] watching %s for changes (poll interval: 5s)", w.path)

	go w.pollLoop()
	return nil
}

// Stop stops the watcher. Safe to call multiple times.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.stopped {
		w.stopped = true
		close(w.done)
		w.logger.Println("[config-watcher] stopped")
	}
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

func (w *Watcher) pollLoop() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.checkForChanges()
		}
	}
}

func (w *Watcher) checkForChanges() {
	info, err := os.Stat(w.path)
	if err != nil {
		w.logger.Printf("[config-watcher] stat error: %v", err)
		return
	}
	if !info.ModTime().After(w.lastMod) {
		return
	}
	w.lastMod = info.ModTime()

	newCfg, err := Load(w.path)
	if err != nil {
		w.logger.Printf("[config-watcher] reload error (keeping old config): %v", err)
		return
	}

	w.mu.RLock()
	oldCfg := w.current
	w.mu.RUnlock()

	if !riskConfigChanged(oldCfg.Risk, newCfg.Risk) {
		w.logger.Printf("[config-watcher] file changed but risk config unchanged, skipping")
		return
	}
	w.logRiskChanges(oldCfg.Risk, newCfg.Risk)

	w.mu.Lock()
	w.current = newCfg
	callbacks := make([]func(old, new *Config), len(w.onChange))
	copy(callbacks, w.onChange)
	w.mu.Unlock()

	for _, fn := range callbacks {
		fn(oldCfg, newCfg)
	}
}

func riskConfigChanged(old, new RiskConfig) bool {
	if old.RiskPerTrade != new.RiskPerTrade {
		return true
	}
	if old.MaxDailyLossPct != new.MaxDailyLossPct || old.MaxDrawdownPct != new.MaxDrawdownPct {
		return true
	}
	if old.MaxOpenPositionsTotal != new.MaxOpenPositionsTotal || old.MaxOpenPositionsPerSymbol != new.MaxOpenPositionsPerSymbol {
		return true
	}
	if old.SLTPMode != new.SLTPMode || old.RR != new.RR || old.ATR != new.ATR {
		return true
	}
	if old.Cooloff != new.Cooloff {
		return true
	}
	if old.CircuitBreaker != new.CircuitBreaker {
		return true
	}
	return false
}

func (w *Watcher) logRiskChanges(old, new RiskConfig) {
	if old.RiskPerTrade != new.RiskPerTrade {
		w.logger.Printf("[config-watcher] risk_per_trade: %.4f -> %.4f", old.RiskPerTrade, new.RiskPerTrade)
	}
	if old.MaxDailyLossPct != new.MaxDailyLossPct {
		w.logger.Printf("[config-watcher] max_daily_loss_pct: %.2f -> %.2f", old.MaxDailyLossPct, new.MaxDailyLossPct)
	}
	if old.MaxDrawdownPct != new.MaxDrawdownPct {
		w.logger.Printf("[config-watcher] max_drawdown_pct: %.2f -> %.2f", old.MaxDrawdownPct, new.MaxDrawdownPct)
	}
	if old.Cooloff != new.Cooloff {
		w.logger.Printf("[config-watcher] cooloff: enabled=%v losses=%d minutes=%d", new.Cooloff.Enabled, new.Cooloff.Losses, new.Cooloff.Minutes)
	}
	if old.CircuitBreaker != new.CircuitBreaker {
		w.logger.Printf("[config-watcher] circuit_breaker: consecutive=%d hourly=%d cooldown=%dmin",
			new.CircuitBreaker.MaxConsecutiveFailures, new.CircuitBreaker.MaxFailuresPerHour, new.CircuitBreaker.CooldownMinutes)
	}
}
