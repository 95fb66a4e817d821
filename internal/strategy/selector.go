package strategy

import "fmt"

// Mode controls how the selector picks a strategy for a symbol.
type Mode string

const (
	ModeManual    Mode = "manual"
	ModeRuleBased Mode = "rule_based"
)

// SelectorConfig configures strategy selection.
type SelectorConfig struct {
	Mode         Mode
	ManualActive string // strategy name used when Mode == ModeManual
	AdxTrending  float64
	AdxRanging   float64
}

// Selection is the outcome of a selector pass. Strategy is nil when no
// strategy applies this cycle (e.g. ADX sits in the neutral zone between
// AdxRanging and AdxTrending) — callers must treat a nil Strategy as "no
// signal", not as an error.
type Selection struct {
	Strategy Strategy
	Name     string
	Reason   string
}

// Selector chooses which registered strategy, if any, should evaluate a
// symbol this cycle.
type Selector struct {
	cfg      SelectorConfig
	registry map[string]Strategy
}

// NewSelector builds a Selector over the given strategies, keyed by each
// strategy's Name().
func NewSelector(cfg SelectorConfig, strategies ...Strategy) *Selector {
	registry := make(map[string]Strategy, len(strategies))
	for _, st := range strategies {
		registry[st.Name()] = st
	}
	return &Selector{cfg: cfg, registry: registry}
}

// Select picks a strategy for the current ADX14 reading.
func (sel *Selector) Select(adx14 float64) Selection {
	switch sel.cfg.Mode {
	case ModeManual:
		st, ok := sel.registry[sel.cfg.ManualActive]
		if !ok {
			return Selection{Reason: fmt.Sprintf("manual strategy %q not registered", sel.cfg.ManualActive)}
		}
		return Selection{Strategy: st, Name: st.Name(), Reason: "manual mode"}

	case ModeRuleBased:
		switch {
		case adx14 >= sel.cfg.AdxTrending:
			if st, ok := sel.registry["two_pole_momentum"]; ok {
				return Selection{Strategy: st, Name: st.Name(), Reason: fmt.Sprintf("adx %.1f >= trending threshold %.1f", adx14, sel.cfg.AdxTrending)}
			}
		case adx14 <= sel.cfg.AdxRanging:
			if st, ok := sel.registry["range_mean_reversion"]; ok {
				return Selection{Strategy: st, Name: st.Name(), Reason: fmt.Sprintf("adx %.1f <= ranging threshold %.1f", adx14, sel.cfg.AdxRanging)}
			}
		}
		return Selection{Reason: fmt.Sprintf("adx %.1f in neutral zone (%.1f, %.1f)", adx14, sel.cfg.AdxRanging, sel.cfg.AdxTrending)}

	default:
		return Selection{Reason: fmt.Sprintf("unknown selector mode %q", sel.cfg.Mode)}
	}
}
