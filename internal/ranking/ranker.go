// Package ranking scores and orders the trading universe each cycle so
// strategies only run against the symbols most worth trading right now.
package ranking

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/forgefx/paperbot/internal/broker"
	"github.com/forgefx/paperbot/internal/features"
)

// maxConcurrentFetches bounds how many symbols are fetched from the broker
// at once during a ranking pass, so a large universe doesn't open an
// unbounded number of in-flight requests.
const maxConcurrentFetches = 8

// Filters excludes symbols from ranking before any scoring happens.
type Filters struct {
	MinBarsRequired     int
	MaxSpreadPoints     float64
	MaxSpreadToATRRatio float64
	MarketOpenRequired  bool
	MaxQuoteAge         time.Duration
}

// Correlation controls the diversification pass applied after scoring.
type Correlation struct {
	Enabled    bool
	WindowBars int
	MaxAbsCorr float64
}

// Config is the full ranking configuration for one cycle.
type Config struct {
	TopN        int
	Timeframe   string
	Filters     Filters
	Weights     Weights
	Correlation Correlation
}

// RankedSymbol is one entry of a completed ranking pass.
type RankedSymbol struct {
	Symbol  string
	Score   float64
	Reasons []string
	Bundle  *features.Bundle
}

// Result is the full output of one ranking pass: every symbol that passed
// the pre-score filters and was scored (Ranked), the top-N survivors after
// the correlation pass that the engine actually trades (Selected), and
// every symbol dropped along the way with the reason it was dropped
// (Excluded), so a correlation-based rejection is traceable back to the
// admitted symbol it clashed with.
type Result struct {
	Ranked   []RankedSymbol
	Selected []RankedSymbol
	Excluded map[string]string
}

// Ranker fetches candles/quotes/metadata for each candidate symbol,
// filters out symbols that fail basic liquidity/cost checks, scores the
// survivors, and returns the top N after an optional correlation pass.
type Ranker struct {
	br       broker.Broker
	pipeline *features.Pipeline
	cfg      Config
	logger   *log.Logger
}

// NewRanker creates a Ranker bound to br via pipeline, which should be
// shared with the strategy stage so candle fetches aren't duplicated.
func NewRanker(br broker.Broker, pipeline *features.Pipeline, cfg Config, logger *log.Logger) *Ranker {
	if logger == nil {
		logger = log.Default()
	}
	return &Ranker{br: br, pipeline: pipeline, cfg: cfg, logger: logger}
}

// Rank filters and scores candidates, returning the full scored list, the
// top-N survivors after the correlation pass, and the reason every dropped
// symbol was excluded.
func (r *Ranker) Rank(ctx context.Context, candidates []string) (Result, error) {
	type survivor struct {
		symbol string
		bundle *features.Bundle
	}

	// Each candidate's broker round-trips (symbol info, quote, candles) are
	// independent, so fetch them concurrently, bounded to avoid hammering
	// the broker with one goroutine per universe symbol.
	bundles := make([]*features.Bundle, len(candidates))
	rejectReasons := make([]string, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFetches)
	for i, symbol := range candidates {
		i, symbol := i, symbol
		g.Go(func() error {
			bundle, reason := r.fetchAndFilter(gctx, symbol)
			if bundle != nil {
				bundles[i] = bundle
			} else {
				rejectReasons[i] = reason
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	excluded := make(map[string]string)
	var survivors []survivor
	for i, bundle := range bundles {
		if bundle != nil {
			survivors = append(survivors, survivor{symbol: candidates[i], bundle: bundle})
		} else if rejectReasons[i] != "" {
			excluded[candidates[i]] = rejectReasons[i]
		}
	}

	if len(survivors) == 0 {
		return Result{Excluded: excluded}, nil
	}

	volRaw := make([]float64, len(survivors))
	trendRaw := make([]float64, len(survivors))
	momentumRaw := make([]float64, len(survivors))
	costRaw := make([]float64, len(survivors))
	for i, s := range survivors {
		volRaw[i] = s.bundle.ATR14Pct
		trendRaw[i] = s.bundle.ADX14
		momentumRaw[i] = s.bundle.Momentum
		costRaw[i] = s.bundle.SpreadToATR
	}

	volNorm := robustMinMax(volRaw)
	trendNorm := robustMinMax(trendRaw)
	momentumNorm := robustMinMax(momentumRaw)
	costNorm := robustMinMax(costRaw)

	ranked := make([]RankedSymbol, len(survivors))
	for i, s := range survivors {
		score := 0.0
		if isFinite(volNorm[i]) && isFinite(trendNorm[i]) && isFinite(momentumNorm[i]) && isFinite(costNorm[i]) {
			score = computeScore(volNorm[i], trendNorm[i], momentumNorm[i], costNorm[i], r.cfg.Weights)
		}
		ranked[i] = RankedSymbol{
			Symbol:  s.symbol,
			Score:   score,
			Reasons: reasonsFor(s.bundle.ADX14, s.bundle.SpreadToATR, s.bundle.ATR14Pct, s.bundle.Momentum),
			Bundle:  s.bundle,
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })

	topN := r.cfg.TopN
	if topN <= 0 || topN > len(ranked) {
		topN = len(ranked)
	}

	if !r.cfg.Correlation.Enabled {
		selected := ranked[:topN]
		for _, dropped := range ranked[topN:] {
			excluded[dropped.Symbol] = fmt.Sprintf("rank cutoff: outside top_n=%d", topN)
		}
		return Result{Ranked: ranked, Selected: selected, Excluded: excluded}, nil
	}

	byName := make(map[string]RankedSymbol, len(ranked))
	order := make([]string, len(ranked))
	returns := make(map[string][]float64, len(ranked))
	for i, rs := range ranked {
		byName[rs.Symbol] = rs
		order[i] = rs.Symbol
		closes := make([]float64, len(rs.Bundle.Candles))
		for j, c := range rs.Bundle.Candles {
			closes[j] = c.Close
		}
		window := r.cfg.Correlation.WindowBars
		if window > 0 && window < len(closes) {
			closes = closes[len(closes)-window:]
		}
		returns[rs.Symbol] = returnsSeries(closes)
	}

	corr := greedyCorrelationFilter(order, returns, r.cfg.Correlation.MaxAbsCorr, topN)
	filtered := make([]RankedSymbol, len(corr.selected))
	for i, name := range corr.selected {
		filtered[i] = byName[name]
	}
	for symbol, reason := range corr.excluded {
		excluded[symbol] = reason
	}
	return Result{Ranked: ranked, Selected: filtered, Excluded: excluded}, nil
}

// fetchAndFilter fetches one candidate's symbol info, quote, and candles
// and runs the pre-scoring filters. bundle is nil if the symbol was
// rejected or a fetch failed, with reason explaining why; rejections are
// never returned as errors, since one bad symbol must never abort the
// rest of the ranking pass.
func (r *Ranker) fetchAndFilter(ctx context.Context, symbol string) (bundle *features.Bundle, reason string) {
	meta, err := r.br.SymbolInfo(ctx, symbol)
	if err != nil {
		r.logger.Printf("ranking: symbol info for %s: %v", symbol, err)
		return nil, fmt.Sprintf("symbol info: %v", err)
	}
	if !meta.TradeAllowed {
		return nil, "trade not allowed"
	}

	quote, err := r.br.GetQuote(ctx, symbol)
	if err != nil {
		r.logger.Printf("ranking: quote for %s: %v", symbol, err)
		return nil, fmt.Sprintf("quote: %v", err)
	}
	if r.cfg.Filters.MaxQuoteAge > 0 && time.Since(quote.TimeUTC) > r.cfg.Filters.MaxQuoteAge {
		return nil, fmt.Sprintf("stale quote: age > %s", r.cfg.Filters.MaxQuoteAge)
	}
	if r.cfg.Filters.MaxSpreadPoints > 0 && quote.SpreadPoints > r.cfg.Filters.MaxSpreadPoints {
		return nil, fmt.Sprintf("spread %.1f points > max %.1f", quote.SpreadPoints, r.cfg.Filters.MaxSpreadPoints)
	}

	count := r.cfg.Filters.MinBarsRequired
	if count < 50 {
		count = 50
	}
	candles, err := r.pipeline.Candles(ctx, symbol, r.cfg.Timeframe, count)
	if err != nil {
		r.logger.Printf("ranking: %v", err)
		return nil, fmt.Sprintf("candles: %v", err)
	}
	if len(candles) < r.cfg.Filters.MinBarsRequired {
		return nil, fmt.Sprintf("only %d bars, need %d", len(candles), r.cfg.Filters.MinBarsRequired)
	}

	b, err := features.Extract(symbol, candles, quote, meta)
	if err != nil {
		r.logger.Printf("ranking: features for %s: %v", symbol, err)
		return nil, fmt.Sprintf("features: %v", err)
	}
	if r.cfg.Filters.MaxSpreadToATRRatio > 0 && b.SpreadToATR > r.cfg.Filters.MaxSpreadToATRRatio {
		return nil, fmt.Sprintf("spread/ATR %.2f > max %.2f", b.SpreadToATR, r.cfg.Filters.MaxSpreadToATRRatio)
	}

	return b, ""
}
