// Package breaker implements a consecutive-failure circuit breaker for the
// upstream delay client.
package breaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by Allow while the breaker rejects calls.
var ErrOpen = errors.New("circuit open")

type State string

const (
	Closed   State = "closed"
	Open     State = "open"
	HalfOpen State = "half_open"
)

type Config struct {
	Enabled             bool
	FailureThreshold    int           // consecutive failures to open
	OpenDuration        time.Duration // how long to stay open
	HalfOpenMaxInFlight int           // trial calls allowed while half-open
}

type Breaker struct {
	cfg Config
	now func() time.Time

	mu           sync.Mutex
	state        State
	fails        int
	openedAt     time.Time
	halfInFlight int
}

func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenDuration <= 0 {
		cfg.OpenDuration = 10 * time.Second
	}
	if cfg.HalfOpenMaxInFlight <= 0 {
		cfg.HalfOpenMaxInFlight = 1
	}
	return &Breaker{cfg: cfg, now: time.Now, state: Closed}
}

func (b *Breaker) Enabled() bool { return b != nil && b.cfg.Enabled }

type Stats struct {
	State         State     `json:"state"`
	Failures      int       `json:"failures"`
	OpenedAt      time.Time `json:"opened_at"`
	RetryAfterSec int       `json:"retry_after_seconds"`
	HalfInFlight  int       `json:"half_open_in_flight"`
}

func (b *Breaker) Stats() Stats {
	if b == nil {
		return Stats{State: Closed}
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	retry := 0
	if b.state == Open {
		if rem := b.cfg.OpenDuration - b.now().Sub(b.openedAt); rem > 0 {
			retry = ceilSeconds(rem)
		}
	}
	return Stats{
		State:         b.state,
		Failures:      b.fails,
		OpenedAt:      b.openedAt,
		RetryAfterSec: retry,
		HalfInFlight:  b.halfInFlight,
	}
}

// Allow reserves a call. On success the caller must report the outcome with
// Done. On rejection it returns ErrOpen and how long to wait.
func (b *Breaker) Allow() (time.Duration, error) {
	if !b.Enabled() {
		return 0, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.allowLocked(b.now())
}

func (b *Breaker) allowLocked(now time.Time) (time.Duration, error) {
	switch b.state {
	case Open:
		elapsed := now.Sub(b.openedAt)
		if elapsed < b.cfg.OpenDuration {
			return b.cfg.OpenDuration - elapsed, ErrOpen
		}
		b.state = HalfOpen
		b.fails = 0
		b.halfInFlight = 0
		return b.allowLocked(now)
	case HalfOpen:
		if b.halfInFlight >= b.cfg.HalfOpenMaxInFlight {
			return time.Second, ErrOpen
		}
		b.halfInFlight++
		return 0, nil
	default:
		return 0, nil
	}
}

// Done records the outcome of a call admitted by Allow.
func (b *Breaker) Done(success bool) {
	if !b.Enabled() {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		if success {
			b.fails = 0
			return
		}
		b.fails++
		if b.fails >= b.cfg.FailureThreshold {
			b.trip()
		}
	case HalfOpen:
		if b.halfInFlight > 0 {
			b.halfInFlight--
		}
		if success {
			b.state = Closed
			b.fails = 0
			return
		}
		b.trip()
		b.fails = b.cfg.FailureThreshold
	}
}

// Release gives back a slot taken by Allow without recording an outcome.
// Use it when the caller abandoned the call and nothing was learned about
// the upstream.
func (b *Breaker) Release() {
	if !b.Enabled() {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == HalfOpen && b.halfInFlight > 0 {
		b.halfInFlight--
	}
}

func (b *Breaker) trip() {
	b.state = Open
	b.openedAt = b.now()
}

func ceilSeconds(d time.Duration) int {
	return int((d + time.Second - 1) / time.Second)
}
