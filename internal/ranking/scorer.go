package ranking

import "math"

// Weights controls the relative importance of each normalized component
// in the combined rank score. All weights must be >= 0; they need not sum
// to 1 since computeScore divides by their total.
type Weights struct {
	Volatility float64
	Trend      float64
	Momentum   float64
	Cost       float64
}

// computeScore combines the normalized component scores into a single
// [0, 1] rank score. Cost is inverted (low cost -> high score) before
// weighting, since cost is a normalized spread-to-ATR ratio where lower is
// better but every other component is already oriented so higher is better.
func computeScore(volNorm, trendNorm, momentumNorm, costNorm float64, w Weights) float64 {
	costScore := 1 - costNorm

	totalWeight := w.Volatility + w.Trend + w.Momentum + w.Cost
	if totalWeight < 1e-12 {
		totalWeight = 1e-12
	}

	score := (w.Volatility*volNorm + w.Trend*trendNorm + w.Momentum*momentumNorm + w.Cost*costScore) / totalWeight
	return clampFloat(score, 0, 1)
}

// reasonsFor builds the human-readable rationale strings a decision record
// carries alongside a symbol's score, using the same raw (unnormalized)
// thresholds an operator would recognize from the config file.
func reasonsFor(adx14, spreadToATR, atr14Pct, momentum float64) []string {
	var reasons []string
	if adx14 >= 25 {
		reasons = append(reasons, "strong trend (ADX)")
	}
	if spreadToATR <= 0.10 {
		reasons = append(reasons, "low cost")
	}
	if atr14Pct >= 0.004 {
		reasons = append(reasons, "good volatility")
	}
	if momentum >= 0.5 {
		reasons = append(reasons, "good momentum")
	}
	if len(reasons) == 0 {
		reasons = append(reasons, "meets filters")
	}
	return reasons
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
