package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestMemoryLimiterBurstThenDeny(t *testing.T) {
	m := NewMemoryLimiter(time.Minute, time.Hour)
	defer m.Close()

	frozen := time.Unix(1_700_000_000, 0)
	m.now = func() time.Time { return frozen }

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		dec, err := m.Allow(ctx, "ip:1.2.3.4", 1, 3, 1)
		if err != nil {
			t.Fatal(err)
		}
		if !dec.Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
	}

	dec, err := m.Allow(ctx, "ip:1.2.3.4", 1, 3, 1)
	if err != nil {
		t.Fatal(err)
	}
	if dec.Allowed {
		t.Fatal("4th request should be denied")
	}
	if dec.RetryAfterSeconds != 1 {
		t.Fatalf("expected retry after 1s, got %d", dec.RetryAfterSeconds)
	}

	other, _ := m.Allow(ctx, "ip:5.6.7.8", 1, 3, 1)
	if !other.Allowed {
		t.Fatal("buckets must be independent per key")
	}
}

func TestMemoryLimiterRefills(t *testing.T) {
	m := NewMemoryLimiter(time.Minute, time.Hour)
	defer m.Close()

	now := time.Unix(1_700_000_000, 0)
	m.now = func() time.Time { return now }

	ctx := context.Background()
	if dec, _ := m.Allow(ctx, "k", 2, 1, 1); !dec.Allowed {
		t.Fatal("first request should pass")
	}
	if dec, _ := m.Allow(ctx, "k", 2, 1, 1); dec.Allowed {
		t.Fatal("second request should be limited")
	}
	now = now.Add(600 * time.Millisecond)
	if dec, _ := m.Allow(ctx, "k", 2, 1, 1); !dec.Allowed {
		t.Fatal("bucket should have refilled")
	}
}

func TestMemoryLimiterSweepDropsIdleBuckets(t *testing.T) {
	m := NewMemoryLimiter(time.Minute, time.Hour)
	defer m.Close()

	now := time.Unix(1_700_000_000, 0)
	m.now = func() time.Time { return now }

	_, _ = m.Allow(context.Background(), "a", 1, 1, 1)
	now = now.Add(30 * time.Second)
	_, _ = m.Allow(context.Background(), "b", 1, 1, 1)

	now = now.Add(45 * time.Second)
	m.sweep()

	if m.Len() != 1 {
		t.Fatalf("expected only the recent bucket to survive, have %d", m.Len())
	}
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestMemoryLimiterRoundsFractionalBurstUp(t *testing.T) {
	m := NewMemoryLimiter(time.Minute, time.Hour)
	defer m.Close()

	frozen := time.Unix(1_700_000_000, 0)
	m.now = func() time.Time { return frozen }

	ctx := context.Background()
	dec, err := m.Allow(ctx, "ip:1.2.3.4", 1, 0.5, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !dec.Allowed {
		t.Fatal("a burst of 0.5 must still admit one request")
	}
	if dec, _ := m.Allow(ctx, "ip:1.2.3.4", 1, 0.5, 1); dec.Allowed {
		t.Fatal("second request should be denied")
	}
}
