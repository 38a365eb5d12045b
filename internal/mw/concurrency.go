package mw

import (
	"net/http"

	"github.com/unajo/vt/internal/httpx"
)

// Semaphore caps in-flight work for one endpoint. It is shared by the HTTP
// and gRPC transports so both count against the same budget.
type Semaphore struct {
	ch chan struct{}
}

// NewSemaphore returns a disabled semaphore when maxInFlight <= 0.
func NewSemaphore(maxInFlight int) *Semaphore {
	if maxInFlight <= 0 {
		return &Semaphore{}
	}
	return &Semaphore{ch: make(chan struct{}, maxInFlight)}
}

func (s *Semaphore) Enabled() bool { return s != nil && s.ch != nil }

func (s *Semaphore) Cap() int {
	if !s.Enabled() {
		return 0
	}
	return cap(s.ch)
}

func (s *Semaphore) InUse() int {
	if !s.Enabled() {
		return 0
	}
	return len(s.ch)
}

func (s *Semaphore) TryAcquire() bool {
	if !s.Enabled() {
		return true
	}
	select {
	case s.ch <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *Semaphore) Release() {
	if !s.Enabled() {
		return
	}
	select {
	case <-s.ch:
	default:
	}
}

// ConcurrencyLimit rejects requests when the endpoint is at capacity.
func ConcurrencyLimit(sem *Semaphore, next http.Handler) http.Handler {
	if !sem.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !sem.TryAcquire() {
			httpx.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{
				"error":         "too_busy",
				"message":       "endpoint is at max concurrency",
				"endpoint":      EndpointName(r.Context()),
				"max_in_flight": sem.Cap(),
			})
			return
		}
		defer sem.Release()
		next.ServeHTTP(w, r)
	})
}
