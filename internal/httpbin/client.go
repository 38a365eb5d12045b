// Package httpbin is the client for the upstream delay service, any server
// exposing httpbin's GET /delay/{seconds}.
package httpbin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/unajo/vt/internal/breaker"
)

const (
	outcomeOK          = "ok"
	outcomeStatus      = "status"
	outcomeTimeout     = "timeout"
	outcomeUnreachable = "unreachable"
	outcomeCanceled    = "canceled"
	outcomeRejected    = "rejected"
)

const maxDrainBytes = 1 << 20

// Pool tunes the transport built for upstream calls. Zero fields keep
// net/http's defaults.
type Pool struct {
	DialTimeout         time.Duration
	TLSHandshakeTimeout time.Duration
	IdleConnTimeout     time.Duration
	MaxIdleConns        int
	MaxIdleConnsPerHost int
}

type Options struct {
	BaseURL string
	// Timeout bounds each call end to end. Zero means 30s.
	Timeout time.Duration
	Pool    Pool
	// Transport replaces the transport built from Pool.
	Transport http.RoundTripper
	Breaker   *breaker.Breaker
	Metrics   *Metrics
	Log       *slog.Logger
}

type Client struct {
	base    *url.URL
	timeout time.Duration
	http    *http.Client
	breaker *breaker.Breaker
	metrics *Metrics
	log     *slog.Logger
}

func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("httpbin: base url required")
	}
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("httpbin: invalid base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("httpbin: base url must be absolute, got %q", opts.BaseURL)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	transport := opts.Transport
	if transport == nil {
		transport = newTransport(opts.Pool, timeout)
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		base:    base,
		timeout: timeout,
		http:    &http.Client{Transport: transport},
		breaker: opts.Breaker,
		metrics: opts.Metrics,
		log:     log,
	}, nil
}

func newTransport(p Pool, timeout time.Duration) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	if p.DialTimeout > 0 {
		t.DialContext = (&net.Dialer{Timeout: p.DialTimeout, KeepAlive: 30 * time.Second}).DialContext
	}
	if p.TLSHandshakeTimeout > 0 {
		t.TLSHandshakeTimeout = p.TLSHandshakeTimeout
	}
	if p.IdleConnTimeout > 0 {
		t.IdleConnTimeout = p.IdleConnTimeout
	}
	if p.MaxIdleConns > 0 {
		t.MaxIdleConns = p.MaxIdleConns
	}
	if p.MaxIdleConnsPerHost > 0 {
		t.MaxIdleConnsPerHost = p.MaxIdleConnsPerHost
	}
	// httpbin sends nothing, headers included, until the delay has elapsed,
	// so the header wait is the whole call budget.
	t.ResponseHeaderTimeout = timeout
	return t
}

func (c *Client) Breaker() *breaker.Breaker { return c.breaker }

// DelayURL is the upstream address for a delay of the given seconds.
func (c *Client) DelayURL(seconds int64) string {
	return c.base.JoinPath("delay", strconv.FormatInt(seconds, 10)).String()
}

// Delay performs exactly one GET {base}/delay/{seconds} and waits for it.
// There are no retries.
func (c *Client) Delay(ctx context.Context, seconds int64) error {
	if retry, err := c.breaker.Allow(); err != nil {
		c.metrics.observe(outcomeRejected, 0)
		return &CircuitOpenError{RetryAfter: retry}
	}

	start := time.Now()
	outcome, err := c.get(ctx, c.DelayURL(seconds))
	elapsed := time.Since(start)

	if outcome == outcomeCanceled {
		// An abandoned call says nothing about upstream health.
		c.breaker.Release()
	} else {
		c.breaker.Done(outcome == outcomeOK || isClientStatus(err))
	}
	c.metrics.observe(outcome, elapsed)
	c.log.DebugContext(ctx, "upstream delay call",
		slog.Int64("seconds", seconds),
		slog.String("outcome", outcome),
		slog.Duration("elapsed", elapsed),
	)
	return err
}

func (c *Client) get(ctx context.Context, target string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, target, nil)
	if err != nil {
		return outcomeUnreachable, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return outcomeCanceled, fmt.Errorf("upstream call abandoned: %w", ctx.Err())
		case callCtx.Err() != nil || isNetTimeout(err):
			return outcomeTimeout, fmt.Errorf("%w after %s: %v", ErrTimeout, c.timeout, err)
		default:
			return outcomeUnreachable, fmt.Errorf("%w: %v", ErrUnreachable, err)
		}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return outcomeStatus, &StatusError{Code: resp.StatusCode, URL: target}
	}
	return outcomeOK, nil
}

func isNetTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// A 4xx says nothing about upstream health.
func isClientStatus(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code >= 400 && se.Code < 500
}
