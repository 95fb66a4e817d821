// Package config provides application-wide configuration management.
// All configuration is loaded from a YAML file and environment variables.
// No configuration is hardcoded in strategy, risk, or broker logic.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/forgefx/paperbot/internal/broker"
	"github.com/forgefx/paperbot/internal/ranking"
	"github.com/forgefx/paperbot/internal/risk"
	"github.com/forgefx/paperbot/internal/strategy"
	"github.com/forgefx/paperbot/internal/universe"
)

// Config holds the complete hierarchical configuration for the engine.
// Loaded from the YAML file at startup and shared read-only with every
// component. Persisted settings snapshots are not merged into it; the
// Watcher reloads the file and forwards only risk-section changes.
type Config struct {
	Runtime       RuntimeConfig       `yaml:"runtime"`
	Universe      UniverseConfig      `yaml:"universe"`
	Ranking       RankingConfig       `yaml:"ranking"`
	Strategy      StrategyConfig      `yaml:"strategy"`
	Risk          RiskConfig          `yaml:"risk"`
	Execution     ExecutionConfig     `yaml:"execution"`
	Notifications NotificationConfig `yaml:"notifications"`
	Persistence   PersistenceConfig  `yaml:"persistence"`
	UI            UIConfig           `yaml:"ui"`
}

// RuntimeConfig controls the engine's clock and candle cadence.
type RuntimeConfig struct {
	Timezone         string `yaml:"timezone"`
	Timeframe        string `yaml:"timeframe"`
	WarmupBars       int    `yaml:"warmup_bars"`
	LoopSleepSeconds int    `yaml:"loop_sleep_seconds"`
}

// UniverseConfig controls symbol discovery and caps.
type UniverseConfig struct {
	UseSymbolDiscovery      bool            `yaml:"use_symbol_discovery"`
	DiscoveryIntervalMinutes int            `yaml:"discovery_interval_minutes"`
	PreferredSymbols        []string        `yaml:"preferred_symbols"`
	IncludeAssetClasses     AssetClassFlags `yaml:"include_asset_classes"`
	DiscoveryLimits         DiscoveryLimits `yaml:"discovery_limits"`
}

// AssetClassFlags toggles which asset classes discovery may pull from.
type AssetClassFlags struct {
	Forex   bool `yaml:"forex"`
	Metals  bool `yaml:"metals"`
	Indices bool `yaml:"indices"`
	Stocks  bool `yaml:"stocks"`
}

// DiscoveryLimits caps how many discovered symbols enter the universe.
type DiscoveryLimits struct {
	MaxSymbolsTotal int            `yaml:"max_symbols_total"`
	MaxPerClass     map[string]int `yaml:"max_per_class"`
}

// RankingConfig controls the ranker's filters, weights, and correlation pass.
type RankingConfig struct {
	TopN            int               `yaml:"top_n"`
	MinBarsRequired int               `yaml:"min_bars_required"`
	Filters         RankingFilters    `yaml:"filters"`
	Weights         RankingWeights    `yaml:"weights"`
	Correlation     RankingCorrelation `yaml:"correlation"`
}

// RankingFilters gates which symbols are eligible to be ranked at all.
type RankingFilters struct {
	MaxSpreadPoints     float64 `yaml:"max_spread_points"`
	MaxSpreadToATRRatio float64 `yaml:"max_spread_to_atr_ratio"`
	MarketOpenRequired  bool    `yaml:"market_open_required"`
}

// RankingWeights weights the four ranking components; need not sum to one.
type RankingWeights struct {
	Volatility float64 `yaml:"volatility"`
	Trend      float64 `yaml:"trend"`
	Momentum   float64 `yaml:"momentum"`
	Cost       float64 `yaml:"cost"`
}

// RankingCorrelation controls the greedy correlation-pruning pass.
type RankingCorrelation struct {
	Enabled    bool    `yaml:"enabled"`
	WindowBars int     `yaml:"window_bars"`
	MaxAbsCorr float64 `yaml:"max_abs_corr"`
}

// StrategyConfig selects manual or rule-based strategy selection.
type StrategyConfig struct {
	Mode         string             `yaml:"mode"` // manual | rule_based
	ManualActive string             `yaml:"manual_active"`
	RuleBased    RuleBasedThresholds `yaml:"rule_based"`
}

// RuleBasedThresholds are the ADX bands the rule-based selector switches on.
type RuleBasedThresholds struct {
	AdxTrending float64 `yaml:"adx_trending"`
	AdxRanging  float64 `yaml:"adx_ranging"`
}

// RiskConfig mirrors internal/risk.Config in YAML form.
type RiskConfig struct {
	RiskPerTrade              float64            `yaml:"risk_per_trade"`
	MaxDailyLossPct           float64            `yaml:"max_daily_loss_pct"`
	MaxDrawdownPct            float64            `yaml:"max_drawdown_pct"`
	MaxOpenPositionsTotal     int                `yaml:"max_open_positions_total"`
	MaxOpenPositionsPerSymbol int                `yaml:"max_open_positions_per_symbol"`
	SLTPMode                  string             `yaml:"sltp_mode"` // rr | atr
	RR                        RRConfigYAML       `yaml:"rr"`
	ATR                       ATRConfigYAML      `yaml:"atr"`
	Cooloff                   CooloffConfigYAML  `yaml:"cooloff"`
	CircuitBreaker            CircuitBreakerYAML `yaml:"circuit_breaker"`
}

type RRConfigYAML struct {
	StopPoints float64 `yaml:"stop_points"`
	TakePoints float64 `yaml:"take_points"`
}

type ATRConfigYAML struct {
	Period int     `yaml:"period"`
	SLMult float64 `yaml:"sl_mult"`
	TPMult float64 `yaml:"tp_mult"`
}

type CooloffConfigYAML struct {
	Enabled bool `yaml:"enabled"`
	Losses  int  `yaml:"losses"`
	Minutes int  `yaml:"minutes"`
}

type CircuitBreakerYAML struct {
	MaxConsecutiveFailures int `yaml:"max_consecutive_failures"`
	MaxFailuresPerHour     int `yaml:"max_failures_per_hour"`
	CooldownMinutes        int `yaml:"cooldown_minutes"`
}

// ExecutionConfig controls order dispatch behavior.
type ExecutionConfig struct {
	TradingEnabled    bool          `yaml:"trading_enabled"`
	CloseOnExitSignal bool          `yaml:"close_on_exit_signal"`
	SlippagePoints    int           `yaml:"slippage_points"`
	MagicNumber       int64         `yaml:"magic_number"`
	Retries           RetriesConfig `yaml:"retries"`
}

// RetriesConfig is the retry/backoff schedule for broker order calls.
type RetriesConfig struct {
	MaxAttempts     int       `yaml:"max_attempts"`
	BackoffSeconds  []float64 `yaml:"backoff_seconds"`
}

// NotificationConfig controls Telegram delivery and throttling.
type NotificationConfig struct {
	TelegramEnabled  bool   `yaml:"telegram_enabled"`
	ThrottleSeconds  int    `yaml:"throttle_seconds"`
	DailySummaryTime string `yaml:"daily_summary_time"` // "HH:MM"
}

// PersistenceConfig points at the SQLite database file.
type PersistenceConfig struct {
	DBPath string `yaml:"db_path"`
}

// UIConfig controls the snapshot websocket server.
type UIConfig struct {
	Enabled    bool `yaml:"enabled"`
	RefreshHz  int  `yaml:"refresh_hz"`
	Port       int  `yaml:"port"`
}

// Load reads and parses the YAML configuration file, expanding environment
// variables first so secrets like broker credentials never need to live in
// the file itself.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is an operator-provided config file
	if err != nil {
		return nil, fmt.Errorf("config: read file %q: %w", path, err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml %q: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks that all required fields are present and sane.
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Runtime.Timezone); err != nil {
		return fmt.Errorf("runtime.timezone invalid: %w", err)
	}
	if c.Runtime.WarmupBars < 50 {
		return fmt.Errorf("runtime.warmup_bars must be >= 50, got %d", c.Runtime.WarmupBars)
	}
	if c.Runtime.LoopSleepSeconds <= 0 {
		return fmt.Errorf("runtime.loop_sleep_seconds must be positive")
	}
	if c.Runtime.Timeframe == "" {
		return fmt.Errorf("runtime.timeframe is required")
	}

	if c.Ranking.TopN <= 0 {
		return fmt.Errorf("ranking.top_n must be positive")
	}
	for _, w := range []float64{c.Ranking.Weights.Volatility, c.Ranking.Weights.Trend, c.Ranking.Weights.Momentum, c.Ranking.Weights.Cost} {
		if w < 0 {
			return fmt.Errorf("ranking.weights must be non-negative")
		}
	}

	switch c.Strategy.Mode {
	case "manual", "rule_based":
	default:
		return fmt.Errorf("strategy.mode must be 'manual' or 'rule_based', got %q", c.Strategy.Mode)
	}
	if c.Strategy.Mode == "manual" && c.Strategy.ManualActive == "" {
		return fmt.Errorf("strategy.manual_active is required when mode is 'manual'")
	}

	if c.Risk.RiskPerTrade <= 0 || c.Risk.RiskPerTrade > 1 {
		return fmt.Errorf("risk.risk_per_trade must be in (0, 1], got %f", c.Risk.RiskPerTrade)
	}
	switch c.Risk.SLTPMode {
	case "rr", "atr":
	default:
		return fmt.Errorf("risk.sltp_mode must be 'rr' or 'atr', got %q", c.Risk.SLTPMode)
	}

	if c.Persistence.DBPath == "" {
		return fmt.Errorf("persistence.db_path is required")
	}

	return nil
}

// RiskManagerConfig translates the YAML risk section into internal/risk's
// own Config type, keeping the two packages decoupled.
func (c *Config) RiskManagerConfig() risk.Config {
	mode := risk.SLTPModeRR
	if c.Risk.SLTPMode == "atr" {
		mode = risk.SLTPModeATR
	}
	return risk.Config{
		RiskPerTrade:              c.Risk.RiskPerTrade,
		MaxDailyLossPct:           c.Risk.MaxDailyLossPct,
		MaxDrawdownPct:            c.Risk.MaxDrawdownPct,
		MaxOpenPositionsTotal:     c.Risk.MaxOpenPositionsTotal,
		MaxOpenPositionsPerSymbol: c.Risk.MaxOpenPositionsPerSymbol,
		SLTPMode:                  mode,
		RR:                        risk.RRConfig{StopPoints: c.Risk.RR.StopPoints, TakePoints: c.Risk.RR.TakePoints},
		ATR:                       risk.ATRConfig{Period: c.Risk.ATR.Period, SLMult: c.Risk.ATR.SLMult, TPMult: c.Risk.ATR.TPMult},
		Cooloff: risk.CooloffConfig{
			Enabled: c.Risk.Cooloff.Enabled,
			Losses:  c.Risk.Cooloff.Losses,
			Minutes: c.Risk.Cooloff.Minutes,
		},
		CircuitBreaker: risk.CircuitBreakerConfig{
			MaxConsecutiveFailures: c.Risk.CircuitBreaker.MaxConsecutiveFailures,
			MaxFailuresPerHour:     c.Risk.CircuitBreaker.MaxFailuresPerHour,
			CooldownMinutes:        c.Risk.CircuitBreaker.CooldownMinutes,
		},
	}
}

// UniverseManagerConfig translates the YAML universe section into
// internal/universe's own Config type.
func (c *Config) UniverseManagerConfig() universe.Config {
	classes := map[broker.AssetClass]bool{
		broker.AssetClassForex:   c.Universe.IncludeAssetClasses.Forex,
		broker.AssetClassMetals:  c.Universe.IncludeAssetClasses.Metals,
		broker.AssetClassIndices: c.Universe.IncludeAssetClasses.Indices,
		broker.AssetClassStocks:  c.Universe.IncludeAssetClasses.Stocks,
	}
	maxPerClass := make(map[broker.AssetClass]int, len(c.Universe.DiscoveryLimits.MaxPerClass))
	for k, v := range c.Universe.DiscoveryLimits.MaxPerClass {
		maxPerClass[assetClassFromYAML(k)] = v
	}
	return universe.Config{
		UseDiscovery:        c.Universe.UseSymbolDiscovery,
		DiscoveryInterval:   time.Duration(c.Universe.DiscoveryIntervalMinutes) * time.Minute,
		PreferredSymbols:    c.Universe.PreferredSymbols,
		IncludeAssetClasses: classes,
		MaxSymbolsTotal:     c.Universe.DiscoveryLimits.MaxSymbolsTotal,
		MaxPerClass:         maxPerClass,
	}
}

func assetClassFromYAML(key string) broker.AssetClass {
	switch strings.ToLower(key) {
	case "forex":
		return broker.AssetClassForex
	case "metals":
		return broker.AssetClassMetals
	case "indices":
		return broker.AssetClassIndices
	case "stocks":
		return broker.AssetClassStocks
	default:
		return broker.AssetClass(key)
	}
}

// SelectorConfig translates the YAML strategy section into
// internal/strategy's own SelectorConfig type.
func (c *Config) SelectorConfig() strategy.SelectorConfig {
	mode := strategy.ModeManual
	if c.Strategy.Mode == "rule_based" {
		mode = strategy.ModeRuleBased
	}
	return strategy.SelectorConfig{
		Mode:         mode,
		ManualActive: c.Strategy.ManualActive,
		AdxTrending:  c.Strategy.RuleBased.AdxTrending,
		AdxRanging:   c.Strategy.RuleBased.AdxRanging,
	}
}

// RankingConfig translates the YAML ranking section into internal/ranking's
// own Config type.
func (c *Config) RankingConfig() ranking.Config {
	return ranking.Config{
		TopN:      c.Ranking.TopN,
		Timeframe: c.Runtime.Timeframe,
		Filters: ranking.Filters{
			MinBarsRequired:     c.Ranking.MinBarsRequired,
			MaxSpreadPoints:     c.Ranking.Filters.MaxSpreadPoints,
			MaxSpreadToATRRatio: c.Ranking.Filters.MaxSpreadToATRRatio,
			MarketOpenRequired:  c.Ranking.Filters.MarketOpenRequired,
		},
		Weights: ranking.Weights{
			Volatility: c.Ranking.Weights.Volatility,
			Trend:      c.Ranking.Weights.Trend,
			Momentum:   c.Ranking.Weights.Momentum,
			Cost:       c.Ranking.Weights.Cost,
		},
		Correlation: ranking.Correlation{
			Enabled:    c.Ranking.Correlation.Enabled,
			WindowBars: c.Ranking.Correlation.WindowBars,
			MaxAbsCorr: c.Ranking.Correlation.MaxAbsCorr,
		},
	}
}

// RetryBackoff converts the configured backoff seconds into durations.
func (c *Config) RetryBackoff() []time.Duration {
	out := make([]time.Duration, len(c.Execution.Retries.BackoffSeconds))
	for i, s := range c.Execution.Retries.BackoffSeconds {
		out[i] = time.Duration(s * float64(time.Second))
	}
	return out
}
