package strategy

import (
	"testing"

	"github.com/forgefx/paperbot/internal/broker"
	"github.com/forgefx/paperbot/internal/features"
)

func ctxWith(bundle *features.Bundle, pos *broker.Position) Context {
	return Context{Symbol: "EURUSD", Bundle: bundle, CurrentPosition: pos}
}

func TestTwoPoleMomentum_EntersLongOnUpCrossWithRisingEMA50(t *testing.T) {
	s := NewTwoPoleMomentum()
	bundle := &features.Bundle{ATR14: 0.001, ADX14: 30, TwoPoleHist: 0.0005, TwoPoleCross: 1, TwoPoleSlope: -0.0002, EMA50Slope: 0.0002}

	sig := s.GenerateSignal(ctxWith(bundle, nil))
	if sig.Side != broker.SideLong {
		t.Fatalf("expected LONG entry, got %v (%s)", sig.Side, sig.Reason)
	}
	if sig.Confidence <= 0.25 || sig.Confidence > 1 {
		t.Errorf("expected confidence in (0.25, 1], got %v", sig.Confidence)
	}
}

func TestTwoPoleMomentum_NoEntryWithoutAlignment(t *testing.T) {
	s := NewTwoPoleMomentum()
	bundle := &features.Bundle{ATR14: 0.001, ADX14: 10, TwoPoleHist: 0.0001, TwoPoleCross: 1, EMA50Slope: -0.0002}

	sig := s.GenerateSignal(ctxWith(bundle, nil))
	if sig.Side != broker.SideFlat {
		t.Errorf("expected FLAT when cross/EMA50-slope disagree, got %v", sig.Side)
	}
}

func TestTwoPoleMomentum_ExitsOnOpposingCross(t *testing.T) {
	s := NewTwoPoleMomentum()
	bundle := &features.Bundle{ATR14: 0.001, ADX14: 30, TwoPoleCross: -1}
	pos := &broker.Position{Side: broker.SideLong}

	sig := s.GenerateSignal(ctxWith(bundle, pos))
	if sig.Side != broker.SideFlat || !sig.HasTag("exit") {
		t.Errorf("expected flat exit signal, got %+v", sig)
	}
}

func TestRangeMeanReversion_EntersLongWhenOversold(t *testing.T) {
	s := NewRangeMeanReversion()
	bundle := &features.Bundle{RSI14: 20}

	sig := s.GenerateSignal(ctxWith(bundle, nil))
	if sig.Side != broker.SideLong {
		t.Fatalf("expected LONG entry, got %v", sig.Side)
	}
	if sig.Confidence != 0.5 {
		t.Errorf("expected confidence 0.5 for RSI 20, got %v", sig.Confidence)
	}
}

func TestRangeMeanReversion_EntersShortWhenOverbought(t *testing.T) {
	s := NewRangeMeanReversion()
	bundle := &features.Bundle{RSI14: 90}

	sig := s.GenerateSignal(ctxWith(bundle, nil))
	if sig.Side != broker.SideShort {
		t.Fatalf("expected SHORT entry, got %v", sig.Side)
	}
	if sig.Confidence != 1 {
		t.Errorf("expected confidence clamped to 1, got %v", sig.Confidence)
	}
}

func TestRangeMeanReversion_ExitsOnMidlineCross(t *testing.T) {
	s := NewRangeMeanReversion()
	bundle := &features.Bundle{RSI14: 55}
	pos := &broker.Position{Side: broker.SideLong}

	sig := s.GenerateSignal(ctxWith(bundle, pos))
	if sig.Side != broker.SideFlat || !sig.HasTag("exit") {
		t.Errorf("expected exit signal, got %+v", sig)
	}
}

func TestRangeMeanReversion_HoldsWhenNoCross(t *testing.T) {
	s := NewRangeMeanReversion()
	bundle := &features.Bundle{RSI14: 45}
	pos := &broker.Position{Side: broker.SideLong}

	sig := s.GenerateSignal(ctxWith(bundle, pos))
	if sig.Side != broker.SideFlat || sig.HasTag("exit") {
		t.Errorf("expected hold without exit tag, got %+v", sig)
	}
}

func TestSelector_ManualMode(t *testing.T) {
	momentum := NewTwoPoleMomentum()
	reversion := NewRangeMeanReversion()
	sel := NewSelector(SelectorConfig{Mode: ModeManual, ManualActive: "range_mean_reversion"}, momentum, reversion)

	selection := sel.Select(50)
	if selection.Strategy == nil || selection.Name != "range_mean_reversion" {
		t.Errorf("expected manual strategy selected, got %+v", selection)
	}
}

func TestSelector_RuleBasedPicksByADX(t *testing.T) {
	momentum := NewTwoPoleMomentum()
	reversion := NewRangeMeanReversion()
	cfg := SelectorConfig{Mode: ModeRuleBased, AdxTrending: 25, AdxRanging: 18}
	sel := NewSelector(cfg, momentum, reversion)

	if sel.Select(30).Name != "two_pole_momentum" {
		t.Errorf("expected two_pole_momentum for trending ADX")
	}
	if sel.Select(10).Name != "range_mean_reversion" {
		t.Errorf("expected range_mean_reversion for ranging ADX")
	}
	mid := sel.Select(20)
	if mid.Strategy != nil {
		t.Errorf("expected nil strategy in the neutral ADX zone, got %+v", mid)
	}
}
