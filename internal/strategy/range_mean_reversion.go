package strategy

import (
	"fmt"

	"github.com/forgefx/paperbot/internal/broker"
	"github.com/forgefx/paperbot/internal/indicators"
)

// RangeMeanReversion trades RSI extremes, betting that an overbought or
// oversold reading reverts toward the midline. It exits the moment RSI
// crosses back through 50 rather than waiting for the opposite extreme.
type RangeMeanReversion struct {
	oversold   float64
	overbought float64
}

// NewRangeMeanReversion constructs the strategy with the standard 30/70
// RSI thresholds.
func NewRangeMeanReversion() *RangeMeanReversion {
	return &RangeMeanReversion{oversold: 30, overbought: 70}
}

func (s *RangeMeanReversion) Name() string { return "range_mean_reversion" }

func (s *RangeMeanReversion) GenerateSignal(ctx Context) Signal {
	if ctx.InPosition() {
		if sig, ok := s.evaluateExit(ctx); ok {
			return sig
		}
		return Signal{Side: broker.SideFlat, Reason: "holding, RSI has not crossed midline"}
	}
	return s.evaluateEntry(ctx)
}

func (s *RangeMeanReversion) evaluateExit(ctx Context) (Signal, bool) {
	rsi := ctx.Bundle.RSI14
	side := ctx.CurrentPosition.Side

	exitLong := side == broker.SideLong && rsi >= 50
	exitShort := side == broker.SideShort && rsi <= 50
	if !exitLong && !exitShort {
		return Signal{}, false
	}

	return Signal{
		Side:   broker.SideFlat,
		Reason: fmt.Sprintf("RSI %.1f crossed midline against %s position", rsi, side),
		Tags:   []string{"exit"},
	}, true
}

func (s *RangeMeanReversion) evaluateEntry(ctx Context) Signal {
	rsi := ctx.Bundle.RSI14

	switch {
	case rsi <= s.oversold:
		return Signal{
			Side:       broker.SideLong,
			Confidence: indicators.Clamp((s.oversold-rsi)/20, 0, 1),
			Reason:     fmt.Sprintf("RSI %.1f oversold", rsi),
		}
	case rsi >= s.overbought:
		return Signal{
			Side:       broker.SideShort,
			Confidence: indicators.Clamp((rsi-s.overbought)/20, 0, 1),
			Reason:     fmt.Sprintf("RSI %.1f overbought", rsi),
		}
	default:
		return Signal{Side: broker.SideFlat, Reason: fmt.Sprintf("RSI %.1f within range", rsi)}
	}
}
