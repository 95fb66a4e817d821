// Package features extracts the raw feature set the ranker and strategies
// score symbols on, and caches the candle fetch that feeds both stages so a
// single broker round trip serves an entire cycle.
package features

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/forgefx/paperbot/internal/broker"
	"github.com/forgefx/paperbot/internal/indicators"
)

// Bundle holds the derived features for one symbol at the current candle
// close. Raw fields feed both the ranker's scoring and the strategies'
// signal generation so they are computed exactly once per cycle.
type Bundle struct {
	Symbol string

	ATR14    float64
	ATR14Pct float64 // ATR14 / close, used as a volatility proxy
	ADX14    float64
	PlusDI14 float64
	MinusDI14 float64
	RSI14    float64

	// EMA50 and its one-bar slope gate the momentum strategy's entries:
	// a qualifying cross must agree with the direction of the broader
	// trend, not just the two-pole smoother's own slope.
	EMA50      float64
	EMA50Slope float64

	// Momentum is |two-pole histogram| / ATR14, falling back to the
	// 20-bar absolute return when ATR14 is zero.
	Momentum float64

	SpreadToATR float64 // quote spread in price terms / ATR14

	TwoPoleHist  float64
	TwoPoleCross float64
	TwoPoleSlope float64

	Candles []broker.Candle
}

// Extract computes a Bundle from a candle series, the latest quote, and the
// symbol's tick metadata. candles must be ordered oldest-first and end at
// or after the most recently closed bar.
func Extract(symbol string, candles []broker.Candle, quote *broker.Quote, meta *broker.SymbolMeta) (*Bundle, error) {
	if len(candles) == 0 {
		return nil, fmt.Errorf("features: no candles for %s", symbol)
	}

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}

	atrSeries := indicators.ATR(candles, 14)
	atr14 := indicators.Last(atrSeries)

	adxSeries, plusDI, minusDI := indicators.ADX(candles, 14)
	rsiSeries := indicators.RSI(candles, 14)

	_, _, _, hist, cross, slope := indicators.TwoPoleOscillator(closes, 20, 9)

	ema50 := indicators.EMA(closes, 50)
	ema50Last := indicators.Last(ema50)
	ema50Slope := 0.0
	if len(ema50) > 1 {
		ema50Slope = ema50[len(ema50)-1] - ema50[len(ema50)-2]
	}

	lastClose := closes[len(closes)-1]
	atrPct := 0.0
	if lastClose != 0 {
		atrPct = atr14 / lastClose
	}

	momentum := 0.0
	lastHist := indicators.Last(hist)
	if atr14 > 0 {
		momentum = math.Abs(lastHist) / atr14
	} else if len(closes) > 20 {
		past := closes[len(closes)-21]
		if past != 0 {
			momentum = math.Abs((lastClose - past) / past)
		}
	}

	spreadToATR := 0.0
	if quote != nil && meta != nil && atr14 > 0 {
		spreadInPrice := quote.SpreadPoints * meta.Point
		spreadToATR = spreadInPrice / atr14
	}

	return &Bundle{
		Symbol:       symbol,
		ATR14:        atr14,
		ATR14Pct:     atrPct,
		ADX14:        indicators.Last(adxSeries),
		PlusDI14:     indicators.Last(plusDI),
		MinusDI14:    indicators.Last(minusDI),
		RSI14:        indicators.Last(rsiSeries),
		EMA50:        ema50Last,
		EMA50Slope:   ema50Slope,
		Momentum:     momentum,
		SpreadToATR:  spreadToATR,
		TwoPoleHist:  lastHist,
		TwoPoleCross: indicators.Last(cross),
		TwoPoleSlope: indicators.Last(slope),
		Candles:      candles,
	}, nil
}

// Pipeline caches the candle fetch per symbol/timeframe for the duration of
// a single engine cycle, so the ranker's fetch-and-filter pass and each
// strategy's signal generation share one broker round trip instead of
// issuing redundant requests.
type Pipeline struct {
	br    broker.Broker
	mu    sync.Mutex
	cache map[string][]broker.Candle
}

// NewPipeline creates a Pipeline bound to br. Call Reset at the start of
// each cycle to drop the previous cycle's cache.
func NewPipeline(br broker.Broker) *Pipeline {
	return &Pipeline{br: br, cache: make(map[string][]broker.Candle)}
}

// Reset clears the cycle-scoped candle cache.
func (p *Pipeline) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache = make(map[string][]broker.Candle)
}

// Candles returns count candles for symbol/timeframe, fetching from the
// broker only on first use within the current cycle.
func (p *Pipeline) Candles(ctx context.Context, symbol, timeframe string, count int) ([]broker.Candle, error) {
	key := symbol + "|" + timeframe

	p.mu.Lock()
	if cached, ok := p.cache[key]; ok && len(cached) >= count {
		p.mu.Unlock()
		return cached, nil
	}
	p.mu.Unlock()

	candles, err := p.br.Candles(ctx, symbol, timeframe, count)
	if err != nil {
		return nil, fmt.Errorf("features: fetch candles for %s: %w", symbol, err)
	}

	p.mu.Lock()
	p.cache[key] = candles
	p.mu.Unlock()
	return candles, nil
}
