// Package fakebin serves an httpbin compatible GET /delay/{seconds} for
// local runs and tests.
package fakebin

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/unajo/vt/internal/httpx"
)

// MaxSeconds matches httpbin, which never sleeps longer than ten seconds.
const MaxSeconds = 10

type server struct {
	unit time.Duration
}

// New returns the handler. unit is the length of one requested second;
// zero means time.Second.
func New(unit time.Duration) http.Handler {
	if unit <= 0 {
		unit = time.Second
	}
	s := server{unit: unit}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /delay/{seconds}", s.delay)
	return mux
}

func (s server) delay(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.ParseFloat(r.PathValue("seconds"), 64)
	if err != nil || n < 0 {
		httpx.WriteJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid delay"})
		return
	}
	n = min(n, MaxSeconds)

	if err := SleepOrDone(r.Context(), time.Duration(n*float64(s.unit))); err != nil {
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"args":    map[string]any{},
		"headers": flatten(r.Header),
		"origin":  r.RemoteAddr,
		"url":     "http://" + r.Host + r.URL.RequestURI(),
	})
}

// SleepOrDone waits for d or until ctx is done, whichever comes first.
func SleepOrDone(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func flatten(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}
