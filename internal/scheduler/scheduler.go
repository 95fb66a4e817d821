// Package scheduler turns a broker's own candle clock into discrete "new
// closed candle" events, so bars, server gaps, and weekends are all handled
// implicitly rather than by reasoning about wall-clock time.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/forgefx/paperbot/internal/broker"
)

// timeframeSeconds maps a timeframe code to its bar length in seconds.
var timeframeSeconds = map[string]int64{
	"M1":  60,
	"M5":  300,
	"M15": 900,
	"M30": 1800,
	"H1":  3600,
	"H4":  14400,
	"D1":  86400,
}

// TimeframeDuration returns the bar length for a supported timeframe code,
// or an error if the code is unrecognized.
func TimeframeDuration(timeframe string) (time.Duration, error) {
	secs, ok := timeframeSeconds[timeframe]
	if !ok {
		return 0, fmt.Errorf("scheduler: unsupported timeframe %q", timeframe)
	}
	return time.Duration(secs) * time.Second, nil
}

// CandleCloseScheduler polls a broker's candle series for an anchor symbol
// and reports each newly closed bar's close time exactly once, in strictly
// increasing order.
type CandleCloseScheduler struct {
	br        broker.Broker
	timeframe string
	logger    *log.Logger

	lastCloseTime time.Time
}

// New creates a scheduler for the given timeframe. Pass a nil logger to use
// the standard library default.
func New(br broker.Broker, timeframe string, logger *log.Logger) *CandleCloseScheduler {
	if logger == nil {
		logger = log.Default()
	}
	return &CandleCloseScheduler{br: br, timeframe: timeframe, logger: logger}
}

// Poll fetches the last three bars on anchorSymbol and returns the close
// time of the most recently closed bar (the second-to-last, since the last
// bar may still be forming), but only the first time it is observed — a
// repeated poll before the next bar closes returns ok=false. Fewer than
// three bars (e.g. market just opened) also returns ok=false so the caller
// retries on the next tick.
func (s *CandleCloseScheduler) Poll(ctx context.Context, anchorSymbol string) (closeTime time.Time, ok bool, err error) {
	candles, err := s.br.Candles(ctx, anchorSymbol, s.timeframe, 3)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("scheduler: fetch candles for %s: %w", anchorSymbol, err)
	}
	if len(candles) < 3 {
		return time.Time{}, false, nil
	}

	closed := candles[len(candles)-2]
	barLen, err := TimeframeDuration(s.timeframe)
	if err != nil {
		return time.Time{}, false, err
	}
	ct := closed.OpenTime.Add(barLen).UTC()

	if !ct.After(s.lastCloseTime) {
		return time.Time{}, false, nil
	}
	s.lastCloseTime = ct
	s.logger.Printf("scheduler: new closed candle on %s at %s", anchorSymbol, ct.Format(time.RFC3339))
	return ct, true, nil
}

// LastCloseTime returns the close time of the most recently reported
// candle, or the zero time if none has been reported yet.
func (s *CandleCloseScheduler) LastCloseTime() time.Time {
	return s.lastCloseTime
}
