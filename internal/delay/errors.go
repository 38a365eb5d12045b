package delay

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/unajo/vt/internal/httpbin"
)

const (
	KindInvalidSeconds      = "invalid_seconds"
	KindUpstreamStatus      = "upstream_status"
	KindUpstreamUnreachable = "upstream_unreachable"
	KindTimeout             = "timeout"
	KindCircuitOpen         = "circuit_open"
	KindCanceled            = "canceled"
	KindInternal            = "internal"
)

// Kind classifies an error returned by Handle.
func Kind(err error) string {
	var se *httpbin.StatusError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidSeconds):
		return KindInvalidSeconds
	case errors.Is(err, httpbin.ErrCircuitOpen):
		return KindCircuitOpen
	case errors.Is(err, httpbin.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.As(err, &se):
		return KindUpstreamStatus
	case errors.Is(err, httpbin.ErrUnreachable):
		return KindUpstreamUnreachable
	case errors.Is(err, context.Canceled):
		return KindCanceled
	default:
		return KindInternal
	}
}

var kindToStatus = map[string]int{
	KindInvalidSeconds:      http.StatusBadRequest,
	KindUpstreamStatus:      http.StatusBadGateway,
	KindUpstreamUnreachable: http.StatusBadGateway,
	KindTimeout:             http.StatusGatewayTimeout,
	KindCircuitOpen:         http.StatusServiceUnavailable,
	KindCanceled:            http.StatusRequestTimeout,
}

// HTTPStatus maps an error from Handle to a response code.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if s, ok := kindToStatus[Kind(err)]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// RetryAfter reports how long to wait before retrying when err came from an
// open breaker.
func RetryAfter(err error) (time.Duration, bool) {
	var open *httpbin.CircuitOpenError
	if errors.As(err, &open) {
		return open.RetryAfter, true
	}
	return 0, false
}
