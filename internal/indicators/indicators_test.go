package indicators

import (
	"math"
	"testing"
	"time"

	"github.com/forgefx/paperbot/internal/broker"
)

// makeCandles builds candles with known closes for indicator testing.
func makeCandles(closes []float64) []broker.Candle {
	candles := make([]broker.Candle, len(closes))
	for i, c := range closes {
		candles[i] = broker.Candle{
			OpenTime: time.Date(2026, 1, 1+i, 0, 0, 0, 0, time.UTC),
			Open:     c - 1,
			High:     c + 2,
			Low:      c - 2,
			Close:    c,
			Volume:   1000 + float64(i*10),
		}
	}
	return candles
}

func almostEqual(a, b, tolerance float64) bool {
	return math.Abs(a-b) < tolerance
}

func TestATR_Basic(t *testing.T) {
	candles := makeCandles([]float64{
		100, 102, 104, 103, 105, 107, 106, 108, 110, 109,
		111, 113, 112, 114, 116, 115,
	})

	atr := ATR(candles, 14)
	if Last(atr) <= 0 {
		t.Errorf("expected positive ATR, got %.4f", Last(atr))
	}
}

func TestATR_EmptyCandles(t *testing.T) {
	atr := ATR(nil, 14)
	if len(atr) != 0 {
		t.Errorf("expected empty series for empty candles, got %v", atr)
	}
}

func TestRSI_NeutralOnNoMovement(t *testing.T) {
	candles := makeCandles([]float64{100, 100, 100, 100, 100, 100, 100, 100, 100, 100, 100, 100, 100, 100, 100})
	rsi := RSI(candles, 14)
	if !almostEqual(Last(rsi), 50, 0.001) {
		t.Errorf("expected neutral RSI 50, got %.4f", Last(rsi))
	}
}

func TestRSI_MaxedOnAllGains(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	rsi := RSI(makeCandles(closes), 14)
	if !almostEqual(Last(rsi), 100, 0.001) {
		t.Errorf("expected RSI 100 on all gains, got %.4f", Last(rsi))
	}
}

func TestRSI_FlooredOnAllLosses(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 200 - float64(i)
	}
	rsi := RSI(makeCandles(closes), 14)
	if !almostEqual(Last(rsi), 0, 0.001) {
		t.Errorf("expected RSI 0 on all losses, got %.4f", Last(rsi))
	}
}

func TestADX_TrendingSeriesScoresHigherThanFlat(t *testing.T) {
	trending := make([]float64, 40)
	for i := range trending {
		trending[i] = 100 + float64(i)*1.5
	}
	flat := make([]float64, 40)
	for i := range flat {
		flat[i] = 100 + math.Sin(float64(i))*0.5
	}

	adxTrend, _, _ := ADX(makeCandles(trending), 14)
	adxFlat, _, _ := ADX(makeCandles(flat), 14)

	if Last(adxTrend) <= Last(adxFlat) {
		t.Errorf("expected trending ADX (%.2f) > flat ADX (%.2f)", Last(adxTrend), Last(adxFlat))
	}
}

func TestSuperSmoother2Pole_TracksConstantSeries(t *testing.T) {
	values := make([]float64, 30)
	for i := range values {
		values[i] = 50
	}
	smooth := SuperSmoother2Pole(values, 10)
	if !almostEqual(Last(smooth), 50, 0.01) {
		t.Errorf("expected smoothed constant series to stay at 50, got %.4f", Last(smooth))
	}
}

func TestTwoPoleOscillator_CrossFlagsSignChange(t *testing.T) {
	values := make([]float64, 60)
	for i := range values {
		values[i] = 100 + 10*math.Sin(float64(i)/5)
	}
	_, _, _, hist, cross, _ := TwoPoleOscillator(values, 20, 9)

	sawCross := false
	for i := 1; i < len(hist); i++ {
		if cross[i] == 1 && !(hist[i] > 0 && hist[i-1] <= 0) {
			t.Fatalf("cross=1 at %d not backed by hist sign change", i)
		}
		if cross[i] == -1 && !(hist[i] < 0 && hist[i-1] >= 0) {
			t.Fatalf("cross=-1 at %d not backed by hist sign change", i)
		}
		if cross[i] != 0 {
			sawCross = true
		}
	}
	if !sawCross {
		t.Errorf("expected at least one cross on an oscillating series")
	}
}

func TestClamp(t *testing.T) {
	cases := []struct {
		v, lo, hi, want float64
	}{
		{5, 0, 10, 5},
		{-1, 0, 10, 0},
		{11, 0, 10, 10},
	}
	for _, c := range cases {
		if got := Clamp(c.v, c.lo, c.hi); got != c.want {
			t.Errorf("Clamp(%v,%v,%v) = %v, want %v", c.v, c.lo, c.hi, got, c.want)
		}
	}
}
