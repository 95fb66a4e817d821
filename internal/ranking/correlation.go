package ranking

import (
	"fmt"
	"math"
)

// correlationResult is the outcome of one greedy correlation pass: the
// admitted symbols in final order, and the reason every other symbol was
// left out (either it clashed with an admitted symbol, or the top-N cutoff
// was already full before correlation ever considered it).
type correlationResult struct {
	selected []string
	excluded map[string]string
}

// greedyCorrelationFilter walks symbols in descending score order and
// admits each one only if its bar-to-bar return series is not too
// correlated with any symbol already admitted. This keeps the top-N list
// from being dominated by a cluster of near-identical instruments (e.g.
// five EUR crosses) at the expense of diversification. If fewer than topN
// symbols survive the correlation constraint, the remaining best-scoring
// symbols are appended regardless of correlation so the ranker still
// returns a full list; only the names that never make it back in are
// reported as excluded.
func greedyCorrelationFilter(ordered []string, returns map[string][]float64, maxAbsCorr float64, topN int) correlationResult {
	selected := make([]string, 0, topN)
	type rejection struct {
		symbol string
		reason string
	}
	rejected := make([]rejection, 0, len(ordered))

	for _, symbol := range ordered {
		if len(selected) >= topN {
			rejected = append(rejected, rejection{symbol, fmt.Sprintf("rank cutoff: top_n=%d already filled", topN)})
			continue
		}
		if partner, corr, ok := correlatesWithAny(symbol, selected, returns, maxAbsCorr); ok {
			rejected = append(rejected, rejection{symbol, fmt.Sprintf("correlated %.2f with %s (max_abs_corr=%.2f)", corr, partner, maxAbsCorr)})
			continue
		}
		selected = append(selected, symbol)
	}

	excluded := make(map[string]string, len(rejected))
	for _, rej := range rejected {
		if len(selected) >= topN {
			excluded[rej.symbol] = rej.reason
			continue
		}
		selected = append(selected, rej.symbol)
	}

	return correlationResult{selected: selected, excluded: excluded}
}

// correlatesWithAny reports the first already-admitted symbol whose return
// series correlates with symbol's beyond maxAbsCorr, if any.
func correlatesWithAny(symbol string, selected []string, returns map[string][]float64, maxAbsCorr float64) (partner string, corr float64, correlated bool) {
	a := returns[symbol]
	for _, other := range selected {
		b := returns[other]
		c := pearsonCorrelation(a, b)
		if math.Abs(c) > maxAbsCorr {
			return other, c, true
		}
	}
	return "", 0, false
}

// pearsonCorrelation computes Pearson's r over the overlapping length of
// a and b. Returns 0 if either series has no variance or the series are
// too short to correlate.
func pearsonCorrelation(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n < 2 {
		return 0
	}
	a, b = a[len(a)-n:], b[len(b)-n:]

	var sumA, sumB float64
	for i := 0; i < n; i++ {
		sumA += a[i]
		sumB += b[i]
	}
	meanA := sumA / float64(n)
	meanB := sumB / float64(n)

	var cov, varA, varB float64
	for i := 0; i < n; i++ {
		da := a[i] - meanA
		db := b[i] - meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}
	if varA == 0 || varB == 0 {
		return 0
	}
	return cov / math.Sqrt(varA*varB)
}

// returnsSeries converts a closing-price series to simple bar-to-bar
// percentage returns.
func returnsSeries(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, (closes[i]-closes[i-1])/closes[i-1])
	}
	return out
}
