package risk

import (
	"math"

	"github.com/forgefx/paperbot/internal/broker"
)

// ComputeVolume sizes a position so that a stop-loss hit at stopPoints
// away from entry loses exactly riskPerTrade fraction of equity, clamped
// to the symbol's volume bounds and rounded down to its volume step.
//
// moneyPerPoint converts a one-point adverse move into account-currency
// loss per lot: tick value scaled from tick size to point size.
func ComputeVolume(equity, riskPerTrade, stopPoints float64, meta *broker.SymbolMeta) float64 {
	if stopPoints <= 0 || meta == nil || meta.TradeTickSize <= 0 {
		return 0
	}

	moneyPerPoint := meta.TradeTickValue * meta.Point / meta.TradeTickSize
	if moneyPerPoint <= 0 {
		return 0
	}

	riskMoney := equity * riskPerTrade
	volume := riskMoney / (stopPoints * moneyPerPoint)

	volume = clamp(volume, meta.VolumeMin, meta.VolumeMax)
	volume = roundDownToStep(volume, meta.VolumeStep)

	if volume < meta.VolumeMin {
		volume = meta.VolumeMin
	}
	return volume
}

func roundDownToStep(v, step float64) float64 {
	if step <= 0 {
		return v
	}
	return math.Floor(v/step) * step
}

func clamp(v, lo, hi float64) float64 {
	if hi > 0 && v > hi {
		v = hi
	}
	if v < lo {
		v = lo
	}
	return v
}
