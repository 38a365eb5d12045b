package breaker

import (
	"errors"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(threshold int, open time.Duration) (*Breaker, *fakeClock) {
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	b := New(Config{Enabled: true, FailureThreshold: threshold, OpenDuration: open, HalfOpenMaxInFlight: 1})
	b.now = clk.now
	return b, clk
}

func fail(t *testing.T, b *Breaker) {
	t.Helper()
	if _, err := b.Allow(); err != nil {
		t.Fatalf("unexpected rejection: %v", err)
	}
	b.Done(false)
}

func TestOpensAfterConsecutiveFailures(t *testing.T) {
	b, _ := newTestBreaker(3, 10*time.Second)

	fail(t, b)
	fail(t, b)
	if s := b.Stats().State; s != Closed {
		t.Fatalf("expected closed after 2 failures, got %s", s)
	}
	fail(t, b)

	retry, err := b.Allow()
	if !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}
	if retry != 10*time.Second {
		t.Fatalf("expected 10s retry, got %s", retry)
	}
	if st := b.Stats(); st.State != Open || st.RetryAfterSec != 10 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	b, _ := newTestBreaker(2, time.Second)

	fail(t, b)
	if _, err := b.Allow(); err != nil {
		t.Fatal(err)
	}
	b.Done(true)
	fail(t, b)

	if s := b.Stats().State; s != Closed {
		t.Fatalf("expected closed, got %s", s)
	}
}

func TestHalfOpenTrialClosesOnSuccess(t *testing.T) {
	b, clk := newTestBreaker(1, 5*time.Second)
	fail(t, b)

	clk.advance(5 * time.Second)
	if _, err := b.Allow(); err != nil {
		t.Fatalf("expected trial call, got %v", err)
	}
	if _, err := b.Allow(); !errors.Is(err, ErrOpen) {
		t.Fatalf("expected second trial to be rejected, got %v", err)
	}
	b.Done(true)

	if s := b.Stats().State; s != Closed {
		t.Fatalf("expected closed, got %s", s)
	}
}

func TestHalfOpenTrialReopensOnFailure(t *testing.T) {
	b, clk := newTestBreaker(2, 5*time.Second)
	fail(t, b)
	fail(t, b)

	clk.advance(6 * time.Second)
	fail(t, b)

	st := b.Stats()
	if st.State != Open || st.Failures != 2 {
		t.Fatalf("expected reopened breaker, got %+v", st)
	}
}

func TestDisabledAlwaysAllows(t *testing.T) {
	b := New(Config{Enabled: false, FailureThreshold: 1})
	for i := 0; i < 5; i++ {
		if _, err := b.Allow(); err != nil {
			t.Fatal(err)
		}
		b.Done(false)
	}

	var nilBreaker *Breaker
	if _, err := nilBreaker.Allow(); err != nil {
		t.Fatal(err)
	}
	nilBreaker.Done(false)
}

func TestReleaseHandsBackHalfOpenSlot(t *testing.T) {
	b, clk := newTestBreaker(1, time.Second)
	fail(t, b)
	clk.advance(time.Second)

	if _, err := b.Allow(); err != nil {
		t.Fatalf("expected trial admission, got %v", err)
	}
	if _, err := b.Allow(); !errors.Is(err, ErrOpen) {
		t.Fatalf("expected second trial to be rejected, got %v", err)
	}
	b.Release()

	if st := b.Stats(); st.State != HalfOpen || st.HalfInFlight != 0 {
		t.Fatalf("release must not decide the state, got %+v", st)
	}
	if _, err := b.Allow(); err != nil {
		t.Fatalf("expected a fresh trial after release, got %v", err)
	}
}

func TestReleaseInClosedStateKeepsFailures(t *testing.T) {
	b, _ := newTestBreaker(3, time.Second)
	fail(t, b)
	if _, err := b.Allow(); err != nil {
		t.Fatal(err)
	}
	b.Release()
	if st := b.Stats(); st.State != Closed || st.Failures != 1 {
		t.Fatalf("unexpected stats %+v", st)
	}
}
