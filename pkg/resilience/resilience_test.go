package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errBackend = errors.New("backend down")

func failing(_ context.Context) error { return errBackend }
func succeeding(_ context.Context) error { return nil }

func TestBreaker_TripsAfterThreshold(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 3, Timeout: time.Minute})
	ctx := context.Background()

	for range 3 {
		if err := b.Call(ctx, failing); !errors.Is(err, errBackend) {
			t.Fatalf("got %v, want backend error", err)
		}
	}
	if b.State() != StateOpen {
		t.Fatalf("state = %s, want open", b.State())
	}
	if err := b.Call(ctx, succeeding); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("open breaker let a call through: %v", err)
	}
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 2, Timeout: time.Minute})
	ctx := context.Background()

	b.Call(ctx, failing)
	b.Call(ctx, succeeding)
	b.Call(ctx, failing)
	if b.State() != StateClosed {
		t.Errorf("state = %s, want closed after interleaved success", b.State())
	}
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	clock := time.Now()
	b := NewBreaker(BreakerOpts{FailThreshold: 1, Timeout: 10 * time.Second})
	b.now = func() time.Time { return clock }
	ctx := context.Background()

	b.Call(ctx, failing)
	if b.State() != StateOpen {
		t.Fatalf("state = %s, want open", b.State())
	}

	clock = clock.Add(11 * time.Second)
	if b.State() != StateHalfOpen {
		t.Fatalf("state = %s, want half-open after timeout", b.State())
	}
	if err := b.Call(ctx, succeeding); err != nil {
		t.Fatalf("probe call failed: %v", err)
	}
	if b.State() != StateClosed {
		t.Errorf("state = %s, want closed after successful probe", b.State())
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := time.Now()
	b := NewBreaker(BreakerOpts{FailThreshold: 1, Timeout: 10 * time.Second})
	b.now = func() time.Time { return clock }
	ctx := context.Background()

	b.Call(ctx, failing)
	clock = clock.Add(11 * time.Second)
	b.Call(ctx, failing)
	if b.State() != StateOpen {
		t.Errorf("state = %s, want open after failed probe", b.State())
	}
}

func TestLimiter_AllowDrainsBurst(t *testing.T) {
	l := NewLimiter(LimiterOpts{Rate: 1, Burst: 2})

	if !l.Allow() || !l.Allow() {
		t.Fatal("burst tokens should be available immediately")
	}
	if l.Allow() {
		t.Error("third call should be limited")
	}
}

func TestLimiter_Refills(t *testing.T) {
	clock := time.Now()
	l := NewLimiter(LimiterOpts{Rate: 10, Burst: 1})
	l.now = func() time.Time { return clock }

	if !l.Allow() {
		t.Fatal("first token missing")
	}
	if l.Allow() {
		t.Fatal("bucket should be empty")
	}
	clock = clock.Add(200 * time.Millisecond)
	if !l.Allow() {
		t.Error("token should have refilled")
	}
}

func TestLimiter_WaitCancelled(t *testing.T) {
	l := NewLimiter(LimiterOpts{Rate: 0.001, Burst: 1})
	l.Allow() // drain

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("got %v, want DeadlineExceeded", err)
	}
}

func TestLimiter_WaitEventuallyProceeds(t *testing.T) {
	l := NewLimiter(LimiterOpts{Rate: 100, Burst: 1})
	l.Allow() // drain

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := l.Wait(ctx); err != nil {
		t.Errorf("wait failed: %v", err)
	}
}
