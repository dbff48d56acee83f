package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errBackend = errors.New("backend down")

func failingCall(context.Context) error { return errBackend }
func okCall(context.Context) error      { return nil }

func TestBreakerStaysClosedOnSuccess(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 2, Timeout: time.Minute})
	for i := 0; i < 10; i++ {
		if err := b.Call(context.Background(), okCall); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if b.State() != StateClosed {
		t.Fatalf("expected closed, got %s", b.State())
	}
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 3, Timeout: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := b.Call(ctx, failingCall); !errors.Is(err, errBackend) {
			t.Fatalf("call %d: expected backend error, got %v", i, err)
		}
	}
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %s", b.State())
	}
	if err := b.Call(ctx, okCall); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestBreakerFailureCountResetsOnSuccess(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 3, Timeout: time.Minute})
	ctx := context.Background()

	b.Call(ctx, failingCall)
	b.Call(ctx, failingCall)
	b.Call(ctx, okCall)
	b.Call(ctx, failingCall)
	b.Call(ctx, failingCall)

	if b.State() != StateClosed {
		t.Fatalf("expected closed after interleaved success, got %s", b.State())
	}
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 1, Timeout: 10 * time.Second, HalfOpenMax: 1})
	now := time.Now()
	b.now = func() time.Time { return now }
	ctx := context.Background()

	b.Call(ctx, failingCall)
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %s", b.State())
	}

	// Advance past the timeout; a probe call is allowed.
	now = now.Add(11 * time.Second)
	if b.State() != StateHalfOpen {
		t.Fatalf("expected half-open, got %s", b.State())
	}
	if err := b.Call(ctx, okCall); err != nil {
		t.Fatalf("probe call: %v", err)
	}
	if b.State() != StateClosed {
		t.Fatalf("expected closed after probe success, got %s", b.State())
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 1, Timeout: 10 * time.Second, HalfOpenMax: 1})
	now := time.Now()
	b.now = func() time.Time { return now }
	ctx := context.Background()

	b.Call(ctx, failingCall)
	now = now.Add(11 * time.Second)

	if err := b.Call(ctx, failingCall); !errors.Is(err, errBackend) {
		t.Fatalf("probe: %v", err)
	}
	if b.State() != StateOpen {
		t.Fatalf("expected reopened, got %s", b.State())
	}
}

func TestBreakerHalfOpenLimitsProbes(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 1, Timeout: 10 * time.Second, HalfOpenMax: 1})
	now := time.Now()
	b.now = func() time.Time { return now }
	ctx := context.Background()

	b.Call(ctx, failingCall)
	now = now.Add(11 * time.Second)
	b.State() // trigger transition to half-open

	slow := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- b.Call(ctx, func(context.Context) error {
			<-slow
			return nil
		})
	}()
	// Wait for the probe to claim its slot.
	time.Sleep(10 * time.Millisecond)

	if err := b.Call(ctx, okCall); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("second probe should be rejected, got %v", err)
	}
	close(slow)
	if err := <-done; err != nil {
		t.Fatalf("first probe: %v", err)
	}
}

func TestBreakerDefaults(t *testing.T) {
	b := NewBreaker(BreakerOpts{})
	if b.opts.FailThreshold != DefaultBreakerOpts.FailThreshold {
		t.Fatal("FailThreshold default not applied")
	}
	if b.opts.Timeout != DefaultBreakerOpts.Timeout {
		t.Fatal("Timeout default not applied")
	}
	if b.opts.HalfOpenMax != DefaultBreakerOpts.HalfOpenMax {
		t.Fatal("HalfOpenMax default not applied")
	}
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateClosed:   "closed",
		StateOpen:     "open",
		StateHalfOpen: "half-open",
		State(99):     "unknown",
	}
	for s, want := range cases {
		if s.String() != want {
			t.Fatalf("State(%d).String() = %q, want %q", s, s.String(), want)
		}
	}
}
