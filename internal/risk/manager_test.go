package risk

import (
	"testing"
	"time"

	"github.com/forgefx/paperbot/internal/broker"
)

func baseConfig() Config {
	return Config{
		RiskPerTrade:              0.01,
		MaxDailyLossPct:           5,
		MaxDrawdownPct:            10,
		MaxOpenPositionsTotal:     3,
		MaxOpenPositionsPerSymbol: 1,
		SLTPMode:                  SLTPModeRR,
		RR:                        RRConfig{StopPoints: 20, TakePoints: 40},
		Cooloff:                   CooloffConfig{Enabled: true, Losses: 3, Minutes: 30},
	}
}

func TestUpdateEquityState_PausesOnDrawdownBreach(t *testing.T) {
	m := NewManager(baseConfig(), 10000, nil)
	now := time.Now().UTC()

	state := m.UpdateEquityState(8900, now) // 11.0% drawdown from peak 10000
	if !state.Paused {
		t.Fatalf("expected pause on drawdown breach, got %+v", state)
	}
}

func TestUpdateEquityState_ResumesWhenBackWithinLimits(t *testing.T) {
	m := NewManager(baseConfig(), 10000, nil)
	now := time.Now().UTC()

	m.UpdateEquityState(8900, now)
	state := m.UpdateEquityState(9800, now)
	if state.Paused {
		t.Errorf("expected resume once equity recovers, got %+v", state)
	}
}

func TestUpdateEquityState_DailyResetOnNewDay(t *testing.T) {
	m := NewManager(baseConfig(), 10000, nil)
	day1 := time.Now().UTC() // same calendar day the manager was created on
	day2 := day1.Add(24 * time.Hour)

	m.UpdateEquityState(9800, day1)
	state := m.UpdateEquityState(9800, day2)
	if state.DailyLossPct != 0 {
		t.Errorf("expected daily loss reset to 0 on new day, got %v", state.DailyLossPct)
	}
}

func TestUpdateEquityState_DailyResetClearsLossStreakAndCooloff(t *testing.T) {
	m := NewManager(baseConfig(), 10000, nil)
	day1 := time.Now().UTC() // same calendar day the manager was created on
	day2 := day1.Add(24 * time.Hour)

	m.UpdateEquityState(9800, day1)
	m.OnNewDeals([]broker.Deal{
		{Entry: "out", Profit: -10},
		{Entry: "out", Profit: -5},
		{Entry: "out", Profit: -1},
	})
	if !m.InCooloff(day1) {
		t.Fatalf("expected cooloff engaged late on day 1")
	}

	m.UpdateEquityState(9800, day2)
	if m.InCooloff(day2) {
		t.Errorf("expected cooloff to be cleared on a new calendar day")
	}
	if m.lossStreak != 0 {
		t.Errorf("expected loss streak reset on a new calendar day, got %d", m.lossStreak)
	}
}

func TestCheckEntry_RejectsWhenPaused(t *testing.T) {
	m := NewManager(baseConfig(), 10000, nil)
	now := time.Now().UTC()
	m.UpdateEquityState(8900, now) // forces pause

	decision := m.CheckEntry("EURUSD", broker.SideLong, 1.1000, 0.001, testMeta(), nil, now)
	if decision.Approved {
		t.Errorf("expected rejection while paused, got %+v", decision)
	}
}

func TestCheckEntry_RejectsAtPositionCap(t *testing.T) {
	m := NewManager(baseConfig(), 10000, nil)
	now := time.Now().UTC()

	open := []broker.Position{{Symbol: "A"}, {Symbol: "B"}, {Symbol: "C"}}
	decision := m.CheckEntry("EURUSD", broker.SideLong, 1.1000, 0.001, testMeta(), open, now)
	if decision.Approved {
		t.Errorf("expected rejection at total position cap, got %+v", decision)
	}
}

func TestCheckEntry_RejectsDuplicateSymbol(t *testing.T) {
	m := NewManager(baseConfig(), 10000, nil)
	now := time.Now().UTC()

	open := []broker.Position{{Symbol: "EURUSD"}}
	decision := m.CheckEntry("EURUSD", broker.SideLong, 1.1000, 0.001, testMeta(), open, now)
	if decision.Approved {
		t.Errorf("expected rejection for duplicate symbol position, got %+v", decision)
	}
}

func TestCheckEntry_ApprovesWithSLTPAndVolume(t *testing.T) {
	m := NewManager(baseConfig(), 10000, nil)
	now := time.Now().UTC()

	decision := m.CheckEntry("EURUSD", broker.SideLong, 1.1000, 0.001, testMeta(), nil, now)
	if !decision.Approved {
		t.Fatalf("expected approval, got %+v", decision)
	}
	if decision.SL >= 1.1000 || decision.TP <= 1.1000 {
		t.Errorf("unexpected SL/TP for long entry: %+v", decision)
	}
	if decision.Volume <= 0 {
		t.Errorf("expected positive volume, got %v", decision.Volume)
	}
}

func TestOnNewDeals_EngagesCooloffAfterLossStreak(t *testing.T) {
	m := NewManager(baseConfig(), 10000, nil)
	now := time.Now().UTC()

	losses := []broker.Deal{
		{Entry: "out", Profit: -10},
		{Entry: "out", Profit: -5},
		{Entry: "out", Profit: -1},
	}
	m.OnNewDeals(losses)

	if !m.InCooloff(now) {
		t.Errorf("expected cooloff engaged after 3 consecutive losses")
	}
}

func TestOnNewDeals_WinResetsStreak(t *testing.T) {
	m := NewManager(baseConfig(), 10000, nil)
	now := time.Now().UTC()

	m.OnNewDeals([]broker.Deal{{Entry: "out", Profit: -10}, {Entry: "out", Profit: -5}})
	m.OnNewDeals([]broker.Deal{{Entry: "out", Profit: 20}})
	m.OnNewDeals([]broker.Deal{{Entry: "out", Profit: -10}, {Entry: "out", Profit: -5}})

	if m.InCooloff(now) {
		t.Errorf("expected no cooloff: win should have reset the streak before the second pair of losses")
	}
}
