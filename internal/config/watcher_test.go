package config

import (
	"os"
	"testing"
	"time"
)

func TestWatcher_DetectsRiskConfigChange(t *testing.T) {
	path := writeTempConfig(t, validYAML())
	initial, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	w := NewWatcher(path, initial, nil)
	var gotOld, gotNew *Config
	called := make(chan struct{}, 1)
	w.OnChange(func(old, new *Config) {
		gotOld, gotNew = old, new
		called <- struct{}{}
	})
	if err := w.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer w.Stop()

	// force a detectable mtime bump and a risk-field change
	time.Sleep(10 * time.Millisecond)
	changed := replaceLine(validYAML(), "risk_per_trade:", `  risk_per_trade: 0.02`)
	if err := os.WriteFile(path, []byte(changed), 0o600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	if err := os.Chtimes(path, time.Now().Add(time.Hour), time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	select {
	case <-called:
	case <-time.After(7 * time.Second):
		t.Fatalf("timed out waiting for change callback")
	}

	if gotOld.Risk.RiskPerTrade != 0.01 {
		t.Errorf("expected old risk_per_trade 0.01, got %v", gotOld.Risk.RiskPerTrade)
	}
	if gotNew.Risk.RiskPerTrade != 0.02 {
		t.Errorf("expected new risk_per_trade 0.02, got %v", gotNew.Risk.RiskPerTrade)
	}
	if w.Current().Risk.RiskPerTrade != 0.02 {
		t.Errorf("expected Current() to reflect the reload")
	}
}

func TestRiskConfigChanged_FalseWhenIdentical(t *testing.T) {
	a := RiskConfig{RiskPerTrade: 0.01, SLTPMode: "rr"}
	b := RiskConfig{RiskPerTrade: 0.01, SLTPMode: "rr"}
	if riskConfigChanged(a, b) {
		t.Errorf("expected no change for identical risk configs")
	}
}

func TestRiskConfigChanged_TrueOnCooloffDifference(t *testing.T) {
	a := RiskConfig{Cooloff: CooloffConfigYAML{Losses: 3}}
	b := RiskConfig{Cooloff: CooloffConfigYAML{Losses: 4}}
	if !riskConfigChanged(a, b) {
		t.Errorf("expected change detected on cooloff difference")
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	path := writeTempConfig(t, validYAML())
	cfg, _ := Load(path)
	w := NewWatcher(path, cfg, nil)
	if err := w.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	w.Stop()
	w.Stop() // must not panic
}
