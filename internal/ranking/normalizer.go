package ranking

import (
	"math"
	"sort"
)

// robustMinMax rescales values to [0, 1] after clipping outliers to the
// median +/- 3*IQR band, which keeps a single wild reading (a stale quote,
// a spike) from compressing the rest of the universe to near-zero spread.
// A zero IQR (every value identical or too few points to have spread) falls
// back to a plain min-max scale; a fully constant input maps every element
// to 0.5. Non-finite inputs propagate as NaN.
func robustMinMax(values []float64) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}

	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			for i := range out {
				out[i] = math.NaN()
			}
			return out
		}
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	median := percentile(sorted, 0.5)
	q1 := percentile(sorted, 0.25)
	q3 := percentile(sorted, 0.75)
	iqr := q3 - q1

	lo, hi := sorted[0], sorted[len(sorted)-1]
	if iqr > 0 {
		lo = median - 3*iqr
		hi = median + 3*iqr
	}

	clipped := make([]float64, len(values))
	for i, v := range values {
		clipped[i] = clampFloat(v, lo, hi)
	}

	cmin, cmax := clipped[0], clipped[0]
	for _, v := range clipped {
		if v < cmin {
			cmin = v
		}
		if v > cmax {
			cmax = v
		}
	}

	span := cmax - cmin
	for i, v := range clipped {
		if span == 0 {
			out[i] = 0.5
			continue
		}
		out[i] = (v - cmin) / span
	}
	return out
}

// percentile computes a linear-interpolated percentile over an
// already-sorted slice.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	idx := p * float64(len(sorted)-1)
	lo := int(math.Floor(idx))
	hi := int(math.Ceil(idx))
	if lo == hi {
		return sorted[lo]
	}
	frac := idx - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
