package config

import (
	"os"
	"path/filepath"
	"testing"
)

func validYAML() string {
	return `
runtime:
  timezone: "UTC"
  timeframe: "H1"
  warmup_bars: 100
  loop_sleep_seconds: 5
universe:
  use_symbol_discovery: true
  discovery_interval_minutes: 60
  preferred_symbols: ["EURUSD", "XAUUSD"]
  include_asset_classes:
    forex: true
    metals: true
    indices: false
    stocks: false
  discovery_limits:
    max_symbols_total: 20
    max_per_class:
      forex: 10
      metals: 5
ranking:
  top_n: 3
  min_bars_required: 60
  filters:
    max_spread_points: 30
    max_spread_to_atr_ratio: 0.2
    market_open_required: true
  weights:
    volatility: 0.3
    trend: 0.3
    momentum: 0.2
    cost: 0.2
  correlation:
    enabled: true
    window_bars: 50
    max_abs_corr: 0.8
strategy:
  mode: "rule_based"
  manual_active: ""
  rule_based:
    adx_trending: 25
    adx_ranging: 18
risk:
  risk_per_trade: 0.01
  max_daily_loss_pct: 5
  max_drawdown_pct: 10
  max_open_positions_total: 3
  max_open_positions_per_symbol: 1
  sltp_mode: "rr"
  rr:
    stop_points: 20
    take_points: 40
  atr:
    period: 14
    sl_mult: 1.5
    tp_mult: 3.0
  cooloff:
    enabled: true
    losses: 3
    minutes: 30
  circuit_breaker:
    max_consecutive_failures: 5
    max_failures_per_hour: 10
    cooldown_minutes: 15
execution:
  trading_enabled: true
  close_on_exit_signal: true
  slippage_points: 10
  magic_number: 123456
  retries:
    max_attempts: 3
    backoff_seconds: [1, 2, 4]
notifications:
  telegram_enabled: false
  throttle_seconds: 300
  daily_summary_time: "18:00"
persistence:
  db_path: "./data/paperbot.db"
ui:
  enabled: true
  refresh_hz: 2
  port: 8090
`
}

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	return path
}

func TestLoad_ValidConfigParsesAndValidates(t *testing.T) {
	path := writeTempConfig(t, validYAML())
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Runtime.Timeframe != "H1" {
		t.Errorf("expected timeframe H1, got %q", cfg.Runtime.Timeframe)
	}
	if cfg.Ranking.TopN != 3 {
		t.Errorf("expected top_n 3, got %d", cfg.Ranking.TopN)
	}
}

func TestLoad_RejectsLowWarmupBars(t *testing.T) {
	body := replaceLine(validYAML(), "warmup_bars:", `  warmup_bars: 10`)
	path := writeTempConfig(t, body)
	if _, err := Load(path); err == nil {
		t.Errorf("expected validation error, got nil")
	}
}

func TestLoad_RejectsMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Errorf("expected error for missing file")
	}
}

func TestLoad_ExpandsEnvironmentVariables(t *testing.T) {
	os.Setenv("PAPERBOT_TEST_DB_PATH", "./data/from_env.db")
	defer os.Unsetenv("PAPERBOT_TEST_DB_PATH")

	body := validYAML()
	// replace the db_path line with one referencing the env var
	body = replaceLine(body, "db_path:", `  db_path: "${PAPERBOT_TEST_DB_PATH}"`)
	path := writeTempConfig(t, body)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Persistence.DBPath != "./data/from_env.db" {
		t.Errorf("expected env-expanded db path, got %q", cfg.Persistence.DBPath)
	}
}

func TestValidate_RejectsBadSLTPMode(t *testing.T) {
	body := replaceLine(validYAML(), "sltp_mode:", `  sltp_mode: "bogus"`)
	path := writeTempConfig(t, body)
	if _, err := Load(path); err == nil {
		t.Errorf("expected validation error for invalid sltp_mode")
	}
}

func TestRiskManagerConfig_TranslatesATRMode(t *testing.T) {
	body := replaceLine(validYAML(), "sltp_mode:", `  sltp_mode: "atr"`)
	path := writeTempConfig(t, body)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rc := cfg.RiskManagerConfig()
	if string(rc.SLTPMode) != "atr" {
		t.Errorf("expected atr sltp mode translated, got %v", rc.SLTPMode)
	}
}

func TestUniverseManagerConfig_TranslatesAssetClasses(t *testing.T) {
	path := writeTempConfig(t, validYAML())
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	uc := cfg.UniverseManagerConfig()
	if !uc.UseDiscovery {
		t.Errorf("expected discovery enabled")
	}
	if len(uc.PreferredSymbols) != 2 {
		t.Errorf("expected 2 preferred symbols, got %d", len(uc.PreferredSymbols))
	}
}

// replaceLine finds the first line containing marker and replaces it with
// replacement, used to tweak one field of the fixture YAML per test.
func replaceLine(body, marker, replacement string) string {
	lines := splitLines(body)
	for i, l := range lines {
		if contains(l, marker) {
			lines[i] = replacement
			break
		}
	}
	return joinLines(lines)
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

func joinLines(lines []string) string {
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "\n"
		}
		out += l
	}
	return out
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && indexOf(s, substr) >= 0
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
