package risk

import "github.com/forgefx/paperbot/internal/broker"

// SLTPRR computes stop-loss/take-profit prices a fixed number of points
// away from entry, oriented by side.
func SLTPRR(side broker.Side, entry, point, stopPoints, takePoints float64) (sl, tp float64) {
	switch side {
	case broker.SideShort:
		return entry + stopPoints*point, entry - takePoints*point
	default: // SideLong
		return entry - stopPoints*point, entry + takePoints*point
	}
}

// SLTPATR computes stop-loss/take-profit prices as ATR multiples away from
// entry, oriented by side.
func SLTPATR(side broker.Side, entry, atr, slMult, tpMult float64) (sl, tp float64) {
	switch side {
	case broker.SideShort:
		return entry + slMult*atr, entry - tpMult*atr
	default: // SideLong
		return entry - slMult*atr, entry + tpMult*atr
	}
}
