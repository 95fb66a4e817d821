package main

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

const doctorTestConfigYAML = `
runtime:
  timezone: UTC
  timeframe: H1
  warmup_bars: 50
  loop_sleep_seconds: 5
universe:
  preferred_symbols: [EURUSD]
  include_asset_classes:
    forex: true
ranking:
  top_n: 2
  min_bars_required: 20
  weights:
    volatility: 0.25
    trend: 0.25
    momentum: 0.25
    cost: 0.25
strategy:
  mode: manual
  manual_active: two_pole_momentum
risk:
  risk_per_trade: 0.01
  max_daily_loss_pct: 0.05
  max_drawdown_pct: 0.1
  max_open_positions_total: 5
  max_open_positions_per_symbol: 1
  sltp_mode: rr
  rr:
    stop_points: 100
    take_points: 200
execution:
  trading_enabled: false
  magic_number: 778899
persistence:
  db_path: %s
ui:
  enabled: false
`

func writeDoctorTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "paperbot.db")
	path := filepath.Join(dir, "config.yaml")
	contents := fmt.Sprintf(doctorTestConfigYAML, dbPath)
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write test config: %v", err)
	}
	return path
}

func TestRun_SucceedsAgainstDemoBroker(t *testing.T) {
	path := writeDoctorTestConfig(t)
	if code := run([]string{"--config", path, "--bars", "60"}); code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
}

func TestRun_FailsOnMissingConfig(t *testing.T) {
	if code := run([]string{"--config", "/nonexistent/config.yaml"}); code != 2 {
		t.Fatalf("expected exit code 2 for missing config, got %d", code)
	}
}
