package execution

import (
	"testing"

	"github.com/forgefx/paperbot/internal/broker"
)

func TestMakeIdempotencyKey_StableForSameInputs(t *testing.T) {
	a := MakeIdempotencyKey("EURUSD", "H1", "2026-01-01T00:00:00Z", "two_pole_momentum", broker.SideLong)
	b := MakeIdempotencyKey("EURUSD", "H1", "2026-01-01T00:00:00Z", "two_pole_momentum", broker.SideLong)
	if a != b {
		t.Errorf("expected identical inputs to produce identical keys")
	}
}

func TestMakeIdempotencyKey_DiffersOnSide(t *testing.T) {
	a := MakeIdempotencyKey("EURUSD", "H1", "2026-01-01T00:00:00Z", "two_pole_momentum", broker.SideLong)
	b := MakeIdempotencyKey("EURUSD", "H1", "2026-01-01T00:00:00Z", "two_pole_momentum", broker.SideShort)
	if a == b {
		t.Errorf("expected differing side to produce a different key")
	}
}

func TestIdempotencyCache_ContainsAndAdd(t *testing.T) {
	c := NewIdempotencyCache()
	if c.Contains("k1") {
		t.Errorf("expected empty cache to not contain key")
	}
	c.Add("k1")
	if !c.Contains("k1") {
		t.Errorf("expected cache to contain key after Add")
	}
}

func TestIdempotencyCache_LoadRecentSeedsKeys(t *testing.T) {
	c := NewIdempotencyCache()
	c.LoadRecent([]string{"a", "b", ""})
	if !c.Contains("a") || !c.Contains("b") {
		t.Errorf("expected seeded keys to be present")
	}
	if c.Contains("") {
		t.Errorf("expected empty key to be skipped")
	}
}
