package features

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/forgefx/paperbot/internal/broker"
)

func makeTrendingCandles(n int) []broker.Candle {
	candles := make([]broker.Candle, n)
	price := 100.0
	for i := 0; i < n; i++ {
		price += 0.5
		candles[i] = broker.Candle{
			OpenTime: time.Date(2026, 1, 1, 0, i, 0, 0, time.UTC),
			Open:     price - 0.2,
			High:     price + 0.3,
			Low:      price - 0.3,
			Close:    price,
			Volume:   1000,
		}
	}
	return candles
}

func TestExtract_ProducesPositiveVolatilityOnTrendingSeries(t *testing.T) {
	candles := makeTrendingCandles(60)
	quote := &broker.Quote{Symbol: "EURUSD", SpreadPoints: 10}
	meta := &broker.SymbolMeta{Point: 0.0001}

	bundle, err := Extract("EURUSD", candles, quote, meta)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bundle.ATR14 <= 0 {
		t.Errorf("expected positive ATR14, got %.6f", bundle.ATR14)
	}
	if bundle.ADX14 <= 0 {
		t.Errorf("expected positive ADX14 on trending series, got %.6f", bundle.ADX14)
	}
	if math.IsNaN(bundle.Momentum) || bundle.Momentum < 0 {
		t.Errorf("expected non-negative momentum, got %v", bundle.Momentum)
	}
	if bundle.EMA50 <= 0 {
		t.Errorf("expected positive EMA50, got %.6f", bundle.EMA50)
	}
	if bundle.EMA50Slope <= 0 {
		t.Errorf("expected positive EMA50 slope on a steadily rising series, got %.6f", bundle.EMA50Slope)
	}
}

func TestExtract_ErrorsOnEmptyCandles(t *testing.T) {
	if _, err := Extract("EURUSD", nil, nil, nil); err == nil {
		t.Errorf("expected error for empty candle slice")
	}
}

type fakeBroker struct {
	broker.Broker
	calls int
}

func (f *fakeBroker) Candles(_ context.Context, symbol, timeframe string, count int) ([]broker.Candle, error) {
	f.calls++
	return makeTrendingCandles(count), nil
}

func TestPipeline_CachesWithinCycle(t *testing.T) {
	fb := &fakeBroker{}
	p := NewPipeline(fb)
	ctx := context.Background()

	if _, err := p.Candles(ctx, "EURUSD", "M15", 50); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := p.Candles(ctx, "EURUSD", "M15", 50); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fb.calls != 1 {
		t.Errorf("expected 1 broker call across a cycle, got %d", fb.calls)
	}

	p.Reset()
	if _, err := p.Candles(ctx, "EURUSD", "M15", 50); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fb.calls != 2 {
		t.Errorf("expected cache to clear after Reset, got %d calls", fb.calls)
	}
}
