package strategy

import (
	"fmt"

	"github.com/forgefx/paperbot/internal/broker"
	"github.com/forgefx/paperbot/internal/indicators"
)

// TwoPoleMomentum trades breaks in the two-pole oscillator's histogram:
// a zero-line cross combined with a same-direction EMA50 slope is read
// as the start of a new momentum leg, so a cross only triggers an entry
// when it agrees with the broader trend rather than the oscillator's
// own short-term slope.
type TwoPoleMomentum struct{}

// NewTwoPoleMomentum constructs the strategy. It holds no configuration —
// the oscillator period is fixed in internal/features so every caller
// scores off the same series.
func NewTwoPoleMomentum() *TwoPoleMomentum {
	return &TwoPoleMomentum{}
}

func (s *TwoPoleMomentum) Name() string { return "two_pole_momentum" }

func (s *TwoPoleMomentum) GenerateSignal(ctx Context) Signal {
	if ctx.InPosition() {
		if sig, ok := s.evaluateExit(ctx); ok {
			return sig
		}
		return Signal{Side: broker.SideFlat, Reason: "holding, no exit condition"}
	}
	return s.evaluateEntry(ctx)
}

func (s *TwoPoleMomentum) evaluateExit(ctx Context) (Signal, bool) {
	b := ctx.Bundle
	side := ctx.CurrentPosition.Side

	exitLong := side == broker.SideLong && b.TwoPoleCross < 0
	exitShort := side == broker.SideShort && b.TwoPoleCross > 0
	if !exitLong && !exitShort {
		return Signal{}, false
	}

	return Signal{
		Side:   broker.SideFlat,
		Reason: fmt.Sprintf("two-pole momentum reversed against %s position", side),
		Tags:   []string{"exit"},
	}, true
}

func (s *TwoPoleMomentum) evaluateEntry(ctx Context) Signal {
	b := ctx.Bundle

	confidence := momentumConfidence(b.TwoPoleHist, b.ATR14, b.ADX14)

	switch {
	case b.TwoPoleCross > 0 && b.EMA50Slope > 0:
		return Signal{
			Side:       broker.SideLong,
			Confidence: confidence,
			Reason:     fmt.Sprintf("two-pole hist crossed up with rising EMA50 (adx=%.1f)", b.ADX14),
		}
	case b.TwoPoleCross < 0 && b.EMA50Slope < 0:
		return Signal{
			Side:       broker.SideShort,
			Confidence: confidence,
			Reason:     fmt.Sprintf("two-pole hist crossed down with falling EMA50 (adx=%.1f)", b.ADX14),
		}
	default:
		return Signal{Side: broker.SideFlat, Reason: "no qualifying cross/EMA50-slope alignment"}
	}
}

// momentumConfidence blends the normalized histogram magnitude and trend
// strength into a single [0, 1] confidence score, with a 0.25 floor so a
// bare qualifying cross is never reported as zero-conviction.
func momentumConfidence(hist, atr, adx float64) float64 {
	histComponent := 0.0
	if atr > 0 {
		histComponent = indicators.Clamp(abs(hist)/atr, 0, 1)
	}
	adxComponent := indicators.Clamp(adx/50, 0, 1)
	return indicators.Clamp(0.25+0.45*histComponent+0.30*adxComponent, 0, 1)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
