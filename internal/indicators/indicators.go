// Package indicators provides shared technical indicator calculations.
//
// These are used by the ranker, the feature pipeline, and both strategies.
// All functions are stateless and deterministic — given the same candle
// slice, they return the same result. Each indicator returns a full series
// aligned index-for-index with its input so callers can inspect history
// (e.g. to detect a cross on the most recent bar) rather than just the
// latest value.
package indicators

import (
	"math"

	"github.com/forgefx/paperbot/internal/broker"
)

// TrueRange returns the true range series: max(high-low, |high-prevClose|,
// |low-prevClose|). The first element has no previous close, so it is
// simply high-low.
func TrueRange(candles []broker.Candle) []float64 {
	tr := make([]float64, len(candles))
	for i, c := range candles {
		if i == 0 {
			tr[i] = c.High - c.Low
			continue
		}
		prevClose := candles[i-1].Close
		tr1 := c.High - c.Low
		tr2 := math.Abs(c.High - prevClose)
		tr3 := math.Abs(c.Low - prevClose)
		tr[i] = math.Max(tr1, math.Max(tr2, tr3))
	}
	return tr
}

// RMA applies Wilder smoothing (an exponential moving average with
// alpha = 1/period) to values. The first `period` elements are seeded with
// a simple average; RMA is undefined for an empty input.
func RMA(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 || period <= 0 {
		return out
	}
	if len(values) < period {
		period = len(values)
	}

	var seedSum float64
	for i := 0; i < period; i++ {
		seedSum += values[i]
		out[i] = seedSum / float64(i+1)
	}
	avg := seedSum / float64(period)
	out[period-1] = avg
	for i := period; i < len(values); i++ {
		avg = (avg*float64(period-1) + values[i]) / float64(period)
		out[i] = avg
	}
	return out
}

// ATR returns the Average True Range series using Wilder smoothing.
func ATR(candles []broker.Candle, period int) []float64 {
	return RMA(TrueRange(candles), period)
}

// SMA returns the simple moving average series. Elements before the first
// full window hold a partial average rather than zero.
func SMA(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if period <= 0 {
		return out
	}
	var sum float64
	for i, v := range values {
		sum += v
		start := i - period + 1
		if start < 0 {
			start = 0
		}
		window := i - start + 1
		if i >= period {
			sum -= values[i-period]
		}
		out[i] = sum / float64(window)
	}
	return out
}

// EMA returns the exponential moving average series, seeded with the first
// value.
func EMA(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	if period <= 0 {
		period = 1
	}
	alpha := 2.0 / (float64(period) + 1.0)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// RSI returns the Relative Strength Index series (0-100) using Wilder
// smoothing of gains and losses. Edge cases match Wilder's original
// definition: no movement at all is neutral (50), all gains is maxed (100),
// all losses is floored (0).
func RSI(candles []broker.Candle, period int) []float64 {
	out := make([]float64, len(candles))
	if len(candles) == 0 {
		return out
	}
	gains := make([]float64, len(candles))
	losses := make([]float64, len(candles))
	for i := 1; i < len(candles); i++ {
		change := candles[i].Close - candles[i-1].Close
		if change > 0 {
			gains[i] = change
		} else {
			losses[i] = -change
		}
	}

	avgGain := RMA(gains, period)
	avgLoss := RMA(losses, period)

	for i := range candles {
		g, l := avgGain[i], avgLoss[i]
		switch {
		case g == 0 && l == 0:
			out[i] = 50
		case l == 0:
			out[i] = 100
		case g == 0:
			out[i] = 0
		default:
			rs := g / l
			out[i] = 100 - (100 / (1 + rs))
		}
	}
	return out
}

// ADX returns the Average Directional Index series along with the smoothed
// +DI and -DI series it is derived from.
func ADX(candles []broker.Candle, period int) (adx, plusDI, minusDI []float64) {
	n := len(candles)
	adx = make([]float64, n)
	plusDI = make([]float64, n)
	minusDI = make([]float64, n)
	if n == 0 {
		return
	}

	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	for i := 1; i < n; i++ {
		upMove := candles[i].High - candles[i-1].High
		downMove := candles[i-1].Low - candles[i].Low
		if upMove > downMove && upMove > 0 {
			plusDM[i] = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM[i] = downMove
		}
	}

	smoothedTR := RMA(TrueRange(candles), period)
	smoothedPlusDM := RMA(plusDM, period)
	smoothedMinusDM := RMA(minusDM, period)

	dx := make([]float64, n)
	for i := 0; i < n; i++ {
		if smoothedTR[i] == 0 {
			continue
		}
		plusDI[i] = 100 * smoothedPlusDM[i] / smoothedTR[i]
		minusDI[i] = 100 * smoothedMinusDM[i] / smoothedTR[i]
		sum := plusDI[i] + minusDI[i]
		if sum == 0 {
			continue
		}
		dx[i] = 100 * math.Abs(plusDI[i]-minusDI[i]) / sum
	}
	adx = RMA(dx, period)
	return
}

// SuperSmoother2Pole applies Ehlers' two-pole super smoother filter,
// which tracks price with far less lag than an equivalent SMA/EMA while
// suppressing high-frequency noise.
func SuperSmoother2Pole(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	if period <= 0 {
		period = 1
	}

	a1 := math.Exp(-1.414 * math.Pi / float64(period))
	b1 := 2 * a1 * math.Cos(1.414*math.Pi/float64(period))
	c2 := b1
	c3 := -a1 * a1
	c1 := 1 - c2 - c3

	out[0] = values[0]
	if len(values) > 1 {
		out[1] = values[1]
	}
	for i := 2; i < len(values); i++ {
		out[i] = c1*(values[i]+values[i-1])/2 + c2*out[i-1] + c3*out[i-2]
	}
	return out
}

// TwoPoleOscillator derives a momentum oscillator from the two-pole super
// smoother: osc is the deviation of raw price from the filtered line,
// signal is an EMA of osc, hist is their difference, and cross flags the
// bar on which hist crosses zero (+1 upward, -1 downward, 0 otherwise).
// slope is the bar-over-bar change of the smoothed line.
func TwoPoleOscillator(values []float64, period, signalPeriod int) (smooth, osc, signal, hist, cross, slope []float64) {
	n := len(values)
	smooth = SuperSmoother2Pole(values, period)
	osc = make([]float64, n)
	slope = make([]float64, n)
	for i := range values {
		osc[i] = values[i] - smooth[i]
		if i > 0 {
			slope[i] = smooth[i] - smooth[i-1]
		}
	}
	signal = EMA(osc, signalPeriod)
	hist = make([]float64, n)
	cross = make([]float64, n)
	for i := range values {
		hist[i] = osc[i] - signal[i]
		if i == 0 {
			continue
		}
		if hist[i] > 0 && hist[i-1] <= 0 {
			cross[i] = 1
		} else if hist[i] < 0 && hist[i-1] >= 0 {
			cross[i] = -1
		}
	}
	return
}

// Last returns the final element of a series, or 0 for an empty series.
func Last(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1]
}

// Clamp restricts v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
