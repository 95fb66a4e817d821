package ranking

import "testing"

func TestGreedyCorrelationFilter_RejectsHighlyCorrelated(t *testing.T) {
	returns := map[string][]float64{
		"A": {0.01, 0.02, -0.01, 0.03, -0.02, 0.01},
		"B": {0.01, 0.02, -0.01, 0.03, -0.02, 0.01}, // identical to A
		"C": {-0.02, 0.01, 0.02, -0.03, 0.01, -0.01},
	}
	order := []string{"A", "B", "C"}

	result := greedyCorrelationFilter(order, returns, 0.8, 2)
	if len(result.selected) != 2 {
		t.Fatalf("expected 2 selected, got %v", result.selected)
	}
	if result.selected[0] != "A" || result.selected[1] != "C" {
		t.Errorf("expected A then C (B rejected as near-duplicate of A), got %v", result.selected)
	}
	reason, ok := result.excluded["B"]
	if !ok || reason == "" {
		t.Fatalf("expected B to carry an exclusion reason, got %q", reason)
	}
}

func TestGreedyCorrelationFilter_PadsWhenTooFewSurvive(t *testing.T) {
	returns := map[string][]float64{
		"A": {0.01, 0.02, -0.01, 0.03},
		"B": {0.01, 0.02, -0.01, 0.03}, // duplicate of A
	}
	order := []string{"A", "B"}

	result := greedyCorrelationFilter(order, returns, 0.5, 2)
	if len(result.selected) != 2 {
		t.Fatalf("expected padding to fill the requested topN, got %v", result.selected)
	}
	if len(result.excluded) != 0 {
		t.Errorf("expected no exclusions once padding fills topN, got %v", result.excluded)
	}
}

func TestPearsonCorrelation_PerfectAndZeroVariance(t *testing.T) {
	a := []float64{1, 2, 3, 4}
	b := []float64{2, 4, 6, 8}
	if got := pearsonCorrelation(a, b); got < 0.999 {
		t.Errorf("expected ~1.0 correlation for proportional series, got %v", got)
	}

	flat := []float64{5, 5, 5, 5}
	if got := pearsonCorrelation(a, flat); got != 0 {
		t.Errorf("expected 0 correlation against a zero-variance series, got %v", got)
	}
}

func TestReturnsSeries_ComputesSimpleReturns(t *testing.T) {
	closes := []float64{100, 110, 99}
	got := returnsSeries(closes)
	want := []float64{0.10, -0.10}
	for i := range want {
		if diff := got[i] - want[i]; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("returnsSeries[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}
