package routing

import (
	"testing"
	"time"
)

func TestBreakerOpensAfterMaxFailures(t *testing.T) {
	cb := NewCircuitBreaker("dep-1", 3, time.Minute)

	if !cb.Allow() {
		t.Fatal("closed breaker must allow")
	}
	cb.RecordFailure()
	cb.RecordFailure()
	if cb.State() != CircuitClosed {
		t.Error("breaker should stay closed below the failure threshold")
	}
	cb.RecordFailure()
	if cb.State() != CircuitOpen {
		t.Error("breaker should open at the failure threshold")
	}
	if cb.Allow() {
		t.Error("open breaker must reject before cooldown")
	}
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	cb := NewCircuitBreaker("dep-1", 1, 10*time.Millisecond)

	cb.RecordFailure()
	if cb.Allow() {
		t.Fatal("breaker should be open")
	}

	time.Sleep(20 * time.Millisecond)
	if !cb.Allow() {
		t.Fatal("breaker should allow one probe after cooldown")
	}
	if cb.Allow() {
		t.Error("only one probe may run at a time")
	}

	cb.RecordSuccess()
	if cb.State() != CircuitClosed {
		t.Error("successful probe should close the breaker")
	}
	if !cb.Allow() {
		t.Error("closed breaker must allow again")
	}
}

func TestBreakerReopensOnFailedProbe(t *testing.T) {
	cb := NewCircuitBreaker("dep-1", 1, 10*time.Millisecond)

	cb.RecordFailure()
	time.Sleep(20 * time.Millisecond)
	if !cb.Allow() {
		t.Fatal("probe should be allowed")
	}
	cb.RecordFailure()
	if cb.State() != CircuitOpen {
		t.Error("failed probe should reopen the breaker")
	}
}
