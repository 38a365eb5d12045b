package delay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/unajo/vt/internal/httpbin"
	"github.com/unajo/vt/internal/logging"
)

// fakeUpstream records every call and fails with err when set.
type fakeUpstream struct {
	mu    sync.Mutex
	calls []int64
	err   error
	hold  func(seconds int64) time.Duration
}

func (f *fakeUpstream) Delay(ctx context.Context, seconds int64) error {
	f.mu.Lock()
	f.calls = append(f.calls, seconds)
	err, hold := f.err, f.hold
	f.mu.Unlock()

	if hold != nil {
		select {
		case <-time.After(hold(seconds)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (f *fakeUpstream) Calls() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.calls...)
}

func TestHandleSuccess(t *testing.T) {
	t.Parallel()

	up := &fakeUpstream{}
	svc := New(up, logging.Discard())

	resp, err := svc.Handle(context.Background(), 5)
	if err != nil {
		t.Fatal(err)
	}
	want := Response{Done: true, Message: "Delay of 5 seconds completed successfully"}
	if resp != want {
		t.Fatalf("got %+v, want %+v", resp, want)
	}
	if calls := up.Calls(); len(calls) != 1 || calls[0] != 5 {
		t.Fatalf("expected exactly one call with 5, got %v", calls)
	}
}

func TestHandleUpstreamFailure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		wantKind string
		wantCode int
	}{
		{"unreachable", fmt.Errorf("%w: dial tcp: connection refused", httpbin.ErrUnreachable), KindUpstreamUnreachable, http.StatusBadGateway},
		{"status", &httpbin.StatusError{Code: 500, URL: "http://u/delay/5"}, KindUpstreamStatus, http.StatusBadGateway},
		{"timeout", fmt.Errorf("%w after 1s", httpbin.ErrTimeout), KindTimeout, http.StatusGatewayTimeout},
		{"breaker", httpbin.ErrCircuitOpen, KindCircuitOpen, http.StatusServiceUnavailable},
		{"canceled", fmt.Errorf("upstream call abandoned: %w", context.Canceled), KindCanceled, http.StatusRequestTimeout},
		{"unknown", errors.New("boom"), KindInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc := New(&fakeUpstream{err: tt.err}, logging.Discard())
			resp, err := svc.Handle(context.Background(), 5)
			if !errors.Is(err, tt.err) {
				t.Fatalf("expected %v, got %v", tt.err, err)
			}
			if resp.Done {
				t.Fatal("expected done=false")
			}
			if want := "Error: " + tt.err.Error(); resp.Message != want {
				t.Fatalf("message = %q, want %q", resp.Message, want)
			}
			if got := Kind(err); got != tt.wantKind {
				t.Fatalf("kind = %q, want %q", got, tt.wantKind)
			}
			if got := HTTPStatus(err); got != tt.wantCode {
				t.Fatalf("status = %d, want %d", got, tt.wantCode)
			}
		})
	}
}

func TestHandleRejectsNegativeWithoutCallingUpstream(t *testing.T) {
	t.Parallel()

	up := &fakeUpstream{}
	resp, err := New(up, logging.Discard()).Handle(context.Background(), -1)
	if !errors.Is(err, ErrInvalidSeconds) || resp.Done {
		t.Fatalf("expected invalid seconds, got resp=%+v err=%v", resp, err)
	}
	if len(up.Calls()) != 0 {
		t.Fatal("upstream must not be called")
	}
	if HTTPStatus(err) != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", HTTPStatus(err))
	}
}

func TestParseSeconds(t *testing.T) {
	t.Parallel()

	good := map[string]int64{"0": 0, "5": 5, " 12 ": 12, "3600": 3600}
	for in, want := range good {
		got, err := ParseSeconds(in)
		if err != nil || got != want {
			t.Fatalf("ParseSeconds(%q) = %d, %v", in, got, err)
		}
	}
	for _, in := range []string{"", "-1", "1.5", "abc", "0x10", "99999999999999999999"} {
		if _, err := ParseSeconds(in); !errors.Is(err, ErrInvalidSeconds) {
			t.Fatalf("ParseSeconds(%q): expected ErrInvalidSeconds, got %v", in, err)
		}
	}
}

func TestConcurrentCallsAreIndependent(t *testing.T) {
	t.Parallel()

	up := &fakeUpstream{hold: func(s int64) time.Duration { return time.Duration(10-s) * time.Millisecond }}
	svc := New(up, logging.Discard())

	const n = 10
	results := make([]Response, n)
	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			resp, err := svc.Handle(ctx, int64(i))
			results[i] = resp
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	for i, resp := range results {
		if want := fmt.Sprintf("Delay of %d seconds completed successfully", i); !resp.Done || resp.Message != want {
			t.Fatalf("result %d: got %+v", i, resp)
		}
	}
	if len(up.Calls()) != n {
		t.Fatalf("expected %d upstream calls, got %d", n, len(up.Calls()))
	}
}

func TestProbeAndDogsAreConstant(t *testing.T) {
	t.Parallel()

	svc := New(&fakeUpstream{}, logging.Discard())
	for i := 0; i < 3; i++ {
		if p := svc.Probe(); len(p) != 1 || !p["Test"] {
			t.Fatalf("unexpected probe %v", p)
		}
		dogs := svc.Dogs()
		if len(dogs) != 1 || dogs[0] != (Dog{ID: 1, Name: "bark", Description: "a dog that barks"}) {
			t.Fatalf("unexpected dogs %v", dogs)
		}
	}
}

func TestSmokeCheckSwallowsErrors(t *testing.T) {
	t.Parallel()

	up := &fakeUpstream{err: httpbin.ErrUnreachable}
	New(up, logging.Discard()).SmokeCheck(context.Background(), 0)
	if calls := up.Calls(); len(calls) != 1 || calls[0] != 0 {
		t.Fatalf("expected one smoke call, got %v", calls)
	}
}

func TestRetryAfterFromOpenBreaker(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("delay: %w", &httpbin.CircuitOpenError{RetryAfter: 12 * time.Second})
	wait, ok := RetryAfter(err)
	if !ok || wait != 12*time.Second {
		t.Fatalf("RetryAfter = %s, %v", wait, ok)
	}
	if HTTPStatus(err) != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", HTTPStatus(err))
	}
	if _, ok := RetryAfter(httpbin.ErrUnreachable); ok {
		t.Fatal("only breaker rejections carry a retry hint")
	}
}
