package clients

import (
	"errors"
	"testing"
	"time"

	fsCircuitbreaker "github.com/failsafe-go/failsafe-go/circuitbreaker"
)

func TestCircuitBreaker_StartsInClosedState(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig("speech"))

	if cb.State() != StateClosed {
		t.Fatalf("expected circuit breaker to start in CLOSED state, got %s", cb.State().String())
	}
	if cb.Name() != "speech" {
		t.Fatalf("expected name speech, got %s", cb.Name())
	}
}

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	var transitions []string
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test-trip",
		FailureThreshold: 2,
		Delay:            time.Second,
		OnStateChange: func(_ string, from, to CircuitBreakerState) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	_ = cb.Call(func() error { return errors.New("fail") })
	if cb.IsOpen() {
		t.Fatal("expected breaker to stay closed after one failure")
	}
	_ = cb.Call(func() error { return errors.New("fail") })
	if !cb.IsOpen() {
		t.Fatalf("expected OPEN after two failures, got %s", cb.State())
	}
	if len(transitions) != 1 || transitions[0] != "closed->open" {
		t.Fatalf("unexpected transitions %v", transitions)
	}

	called := false
	err := cb.Call(func() error { called = true; return nil })
	if !errors.Is(err, fsCircuitbreaker.ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}
	if called {
		t.Fatal("open breaker must not run the call")
	}
}

func TestCircuitBreaker_HalfOpenProbeCloses(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test-half-open",
		FailureThreshold: 1,
		Delay:            30 * time.Millisecond,
	})

	_ = cb.Call(func() error { return errors.New("fail") })
	if !cb.IsOpen() {
		t.Fatalf("expected OPEN, got %s", cb.State())
	}

	time.Sleep(50 * time.Millisecond)

	if err := cb.Call(func() error { return nil }); err != nil {
		t.Fatalf("expected half-open probe to pass, got %v", err)
	}
	if cb.State() != StateClosed {
		t.Fatalf("expected CLOSED after successful probe, got %s", cb.State())
	}
}

func TestCircuitBreakerState_String(t *testing.T) {
	cases := map[CircuitBreakerState]string{
		StateClosed:             "closed",
		StateHalfOpen:           "half-open",
		StateOpen:               "open",
		CircuitBreakerState(42): "unknown",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Fatalf("state %d: expected %q, got %q", state, want, got)
		}
	}
}
