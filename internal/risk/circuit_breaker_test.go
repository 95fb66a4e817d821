package risk

import (
	"testing"
	"time"
)

func TestCircuitBreaker_TripsOnConsecutiveFailures(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxConsecutiveFailures: 3, CooldownMinutes: 5}, nil)

	cb.RecordFailure("timeout")
	cb.RecordFailure("timeout")
	if cb.IsTripped() {
		t.Fatalf("should not trip before reaching threshold")
	}
	cb.RecordFailure("timeout")
	if !cb.IsTripped() {
		t.Fatalf("expected trip after 3 consecutive failures")
	}
	if cb.TripReason() == "" {
		t.Errorf("expected non-empty trip reason")
	}
}

func TestCircuitBreaker_TripsOnHourlyThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxConsecutiveFailures: 100, MaxFailuresPerHour: 2}, nil)

	cb.RecordFailure("a")
	if cb.IsTripped() {
		t.Fatalf("should not trip before reaching hourly threshold")
	}
	cb.RecordFailure("b")
	if !cb.IsTripped() {
		t.Fatalf("expected trip after reaching hourly failure threshold")
	}
}

func TestCircuitBreaker_RecordSuccessResetsConsecutiveOnly(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxConsecutiveFailures: 3, MaxFailuresPerHour: 10}, nil)

	cb.RecordFailure("a")
	cb.RecordFailure("b")
	cb.RecordSuccess()
	if cb.ConsecutiveFailures() != 0 {
		t.Errorf("expected consecutive failures reset to 0, got %d", cb.ConsecutiveFailures())
	}
	if cb.HourlyFailures() != 2 {
		t.Errorf("expected hourly failures to remain at 2, got %d", cb.HourlyFailures())
	}
}

func TestCircuitBreaker_CooldownAutoResets(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxConsecutiveFailures: 1, CooldownMinutes: 1}, nil)

	cb.RecordFailure("boom")
	if !cb.IsTripped() {
		t.Fatalf("expected immediate trip")
	}
	// Backdate the trip past the 1-minute cooldown so the next IsTripped
	// call auto-resets.
	cb.trippedAt = time.Now().Add(-2 * time.Minute)
	if cb.IsTripped() {
		t.Errorf("expected auto-reset once cooldown (1 min) has elapsed")
	}
}

func TestCircuitBreaker_ManualReset(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxConsecutiveFailures: 1, CooldownMinutes: 60}, nil)

	cb.RecordFailure("boom")
	if !cb.IsTripped() {
		t.Fatalf("expected trip")
	}
	cb.Reset()
	if cb.IsTripped() {
		t.Errorf("expected not tripped after manual reset")
	}
	if cb.ConsecutiveFailures() != 0 {
		t.Errorf("expected counters cleared after reset")
	}
}

func TestCircuitBreaker_UpdateConfigAppliesImmediately(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxConsecutiveFailures: 5}, nil)
	cb.UpdateConfig(CircuitBreakerConfig{MaxConsecutiveFailures: 1})

	cb.RecordFailure("boom")
	if !cb.IsTripped() {
		t.Errorf("expected updated threshold of 1 to trip immediately")
	}
}
