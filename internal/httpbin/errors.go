package httpbin

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTimeout wraps calls that did not finish within the client timeout.
	ErrTimeout = errors.New("upstream timeout")
	// ErrCircuitOpen is returned without calling the upstream.
	ErrCircuitOpen = errors.New("upstream circuit open")
	// ErrUnreachable wraps transport level failures.
	ErrUnreachable = errors.New("upstream unreachable")
)

// StatusError reports a non-2xx answer from the upstream.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned %d for %s", e.Code, e.URL)
}

// CircuitOpenError is returned while the breaker rejects calls. It matches
// ErrCircuitOpen under errors.Is.
type CircuitOpenError struct {
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("%s, retry in %s", ErrCircuitOpen, e.RetryAfter.Round(time.Second))
}

func (e *CircuitOpenError) Unwrap() error { return ErrCircuitOpen }
