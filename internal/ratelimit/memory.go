package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type memEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// MemoryLimiter keeps one x/time/rate bucket per key in process memory.
// Buckets idle for longer than ttl are dropped by a background sweep.
type MemoryLimiter struct {
	mu     sync.Mutex
	m      map[string]*memEntry
	ttl    time.Duration
	now    func() time.Time
	stopCh chan struct{}
	once   sync.Once
}

func NewMemoryLimiter(ttl time.Duration, cleanupEvery time.Duration) *MemoryLimiter {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if cleanupEvery <= 0 {
		cleanupEvery = time.Minute
	}
	ml := &MemoryLimiter{
		m:      make(map[string]*memEntry),
		ttl:    ttl,
		now:    time.Now,
		stopCh: make(chan struct{}),
	}
	go ml.gcLoop(cleanupEvery)
	return ml
}

func (m *MemoryLimiter) gcLoop(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			m.sweep()
		case <-m.stopCh:
			return
		}
	}
}

func (m *MemoryLimiter) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for k, e := range m.m {
		if now.Sub(e.lastSeen) > m.ttl {
			delete(m.m, k)
		}
	}
}

func (m *MemoryLimiter) Allow(_ context.Context, key string, rps float64, burst float64, cost float64) (Decision, error) {
	now := m.now()

	m.mu.Lock()
	e := m.m[key]
	if e == nil {
		// A bucket must hold at least one whole token or nothing ever passes.
		e = &memEntry{lim: rate.NewLimiter(rate.Limit(rps), max(1, int(math.Ceil(burst))))}
		m.m[key] = e
	}
	e.lastSeen = now
	lim := e.lim
	m.mu.Unlock()

	n := int(math.Ceil(cost))
	dec := Decision{LimitRPS: rps, Burst: burst}
	if lim.AllowN(now, n) {
		dec.Allowed = true
		dec.Remaining = math.Max(0, lim.TokensAt(now))
		return dec, nil
	}

	missing := float64(n) - lim.TokensAt(now)
	dec.RetryAfterSeconds = 1
	if rps > 0 && missing > 0 {
		dec.RetryAfterSeconds = int(math.Ceil(missing / rps))
	}
	return dec, nil
}

func (m *MemoryLimiter) Backend() string { return "memory" }

// Len reports how many buckets are currently tracked.
func (m *MemoryLimiter) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.m)
}

func (m *MemoryLimiter) Close() error {
	m.once.Do(func() { close(m.stopCh) })
	return nil
}
