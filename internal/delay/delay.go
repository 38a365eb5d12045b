// Package delay implements the delay proxy: forward a delay to the upstream
// service and acknowledge once it has elapsed.
package delay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidSeconds rejects anything that is not a non-negative integer.
var ErrInvalidSeconds = errors.New("seconds must be a non-negative integer")

// Upstream performs one delay call and reports whether it succeeded.
type Upstream interface {
	Delay(ctx context.Context, seconds int64) error
}

// Response is the acknowledgment sent back to callers.
type Response struct {
	Done    bool   `json:"done"`
	Message string `json:"message,omitempty"`
}

type Dog struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

var fixedDog = Dog{ID: 1, Name: "bark", Description: "a dog that barks"}

type Service struct {
	upstream Upstream
	log      *slog.Logger
}

func New(upstream Upstream, log *slog.Logger) *Service {
	if upstream == nil {
		panic("delay.New: nil upstream")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{upstream: upstream, log: log}
}

// Handle forwards seconds to the upstream and blocks until it answers.
// Failures are returned both as an error and as a done=false response so
// every transport reports them the same way.
func (s *Service) Handle(ctx context.Context, seconds int64) (Response, error) {
	if seconds < 0 {
		return Failed(ErrInvalidSeconds), ErrInvalidSeconds
	}

	start := time.Now()
	err := s.upstream.Delay(ctx, seconds)
	attrs := []slog.Attr{
		slog.Int64("seconds", seconds),
		slog.Duration("elapsed", time.Since(start)),
	}
	if err != nil {
		attrs = append(attrs, slog.String("kind", Kind(err)), slog.String("error", err.Error()))
		s.log.LogAttrs(ctx, slog.LevelWarn, "delay failed", attrs...)
		return Failed(err), err
	}
	s.log.LogAttrs(ctx, slog.LevelInfo, "delay completed", attrs...)
	return Response{Done: true, Message: completedMessage(seconds)}, nil
}

// Failed is the done=false acknowledgment for err.
func Failed(err error) Response {
	return Response{Done: false, Message: "Error: " + err.Error()}
}

func completedMessage(seconds int64) string {
	return fmt.Sprintf("Delay of %d seconds completed successfully", seconds)
}

// ParseSeconds accepts a base-10 non-negative integer.
func ParseSeconds(raw string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSeconds, raw)
	}
	return n, nil
}

// Probe is the constant liveness payload served at /test.
func (s *Service) Probe() map[string]bool {
	return map[string]bool{"Test": true}
}

// Dogs returns the single fixed record served by the RPC All call.
func (s *Service) Dogs() []Dog {
	return []Dog{fixedDog}
}

// SmokeCheck makes one upstream call and logs the outcome. It never fails
// the caller; the result is only informational.
func (s *Service) SmokeCheck(ctx context.Context, seconds int64) {
	resp, err := s.Handle(ctx, seconds)
	if err != nil {
		s.log.WarnContext(ctx, "smoke check failed", slog.String("message", resp.Message))
		return
	}
	s.log.InfoContext(ctx, "smoke check ok", slog.String("message", resp.Message))
}
