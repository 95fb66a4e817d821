// Package strategy defines the strategy framework.
//
// Design rules:
//   - A strategy is a pure decision engine: same input -> same output.
//   - Strategies are stateless and hold no mutable state between calls.
//   - A strategy never places orders — it produces a Signal, which risk
//     management and the executor turn into an order only after passing
//     every gate.
package strategy

import (
	"time"

	"github.com/forgefx/paperbot/internal/broker"
	"github.com/forgefx/paperbot/internal/features"
)

// Signal is a strategy's recommendation for one symbol at one candle
// close. A Flat side with no "exit" tag means "no opinion" — the selector
// and engine treat it as skip, not as a request to close.
type Signal struct {
	Side        broker.Side
	Confidence  float64
	Reason      string
	SuggestedSL float64
	SuggestedTP float64
	Tags        []string
	Extra       map[string]any
}

// HasTag reports whether the signal carries the given tag.
func (s Signal) HasTag(tag string) bool {
	for _, t := range s.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Context is everything a strategy needs to decide on one symbol. It is
// assembled once per symbol per cycle and shared across whichever
// strategy the selector picks.
type Context struct {
	Symbol             string
	Timeframe          string
	CandleCloseTimeUTC time.Time
	Quote              *broker.Quote
	SymbolMeta         *broker.SymbolMeta
	CurrentPosition    *broker.Position // nil if flat
	Bundle             *features.Bundle
}

// InPosition reports whether the engine currently holds a position in
// this symbol.
func (c Context) InPosition() bool {
	return c.CurrentPosition != nil
}

// Strategy is the interface every trading strategy implements.
type Strategy interface {
	// Name returns the strategy's identifier, used in decisions, trades,
	// and config (rule_based mode selects by this name).
	Name() string

	// GenerateSignal produces a Signal for ctx. It must be a pure
	// function of its input: no I/O, no randomness, no shared state.
	GenerateSignal(ctx Context) Signal
}
