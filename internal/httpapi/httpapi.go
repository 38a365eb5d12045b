// Package httpapi serves the delay proxy over HTTP together with health,
// metrics and admin endpoints.
package httpapi

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/unajo/vt/internal/breaker"
	"github.com/unajo/vt/internal/config"
	"github.com/unajo/vt/internal/delay"
	"github.com/unajo/vt/internal/httpx"
	"github.com/unajo/vt/internal/mw"
	"github.com/unajo/vt/internal/netx"
	"github.com/unajo/vt/internal/ratelimit"
)

const (
	EndpointDelay = "delay"
	EndpointTest  = "test"
)

// Semaphores holds the per-endpoint in-flight caps. The delay semaphore is
// shared with the gRPC server.
type Semaphores struct {
	Delay *mw.Semaphore
	Test  *mw.Semaphore
}

type Options struct {
	Config   *config.Config
	Service  *delay.Service
	Breaker  *breaker.Breaker
	Limiter  ratelimit.Limiter
	Auth     mw.AuthHandler // nil when auth.mode is empty
	Metrics  *mw.Metrics
	Gatherer prometheus.Gatherer
	Sems     Semaphores
	Trusted  *netx.CIDRSet
	AdminKey string
	Log      *slog.Logger
	// StartedAt feeds uptime in /-/status. Zero means now.
	StartedAt time.Time
}

type api struct {
	Options
	ipr mw.IPResolver
}

// NewHandler builds the root handler with every route wired.
func NewHandler(opts Options) http.Handler {
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.StartedAt.IsZero() {
		opts.StartedAt = time.Now()
	}
	a := &api{Options: opts, ipr: mw.IPResolver{Trusted: opts.Trusted}}
	cfg := opts.Config

	mux := http.NewServeMux()
	mux.Handle("GET /delay/{seconds}",
		a.wrap(EndpointDelay, cfg.Endpoints.Delay, opts.Sems.Delay, http.HandlerFunc(a.handleDelay)))
	mux.Handle("GET /test",
		a.wrap(EndpointTest, cfg.Endpoints.Test, opts.Sems.Test, http.HandlerFunc(a.handleTest)))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	if opts.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	mux.Handle("GET /-/status", a.wrapAdmin("admin_status", http.HandlerFunc(a.handleStatus)))
	mux.Handle("GET /-/limits", a.wrapAdmin("admin_limits", http.HandlerFunc(a.handleLimits)))
	mux.Handle("GET /-/config", a.wrapAdmin("admin_config", http.HandlerFunc(a.handleConfig)))

	if cfg.Server.Gzip {
		return gziphandler.GzipHandler(mux)
	}
	return mux
}

// wrap applies the per-endpoint chain. Listed innermost first; the request
// passes RequestID first and reaches ConcurrencyLimit last.
func (a *api) wrap(name string, ep config.EndpointConfig, sem *mw.Semaphore, h http.Handler) http.Handler {
	h = mw.ConcurrencyLimit(sem, h)

	// Auth sits outside the limiter so user scope can key on the subject.
	rl := mw.RateLimit(a.Limiter, a.ipr, a.Log, mw.RateLimitConfig{
		Enabled:  ep.RateLimit.Enabled,
		RPS:      ep.RateLimit.RPS,
		Burst:    ep.RateLimit.Burst,
		Scope:    ep.RateLimit.Scope,
		Endpoint: name,
	}, h)
	switch {
	case ep.AuthRequired && a.Auth != nil:
		h = mw.RequireAuth(a.Auth, rl)
	case a.Auth != nil:
		h = mw.OptionalAuth(a.Auth, rl)
	default:
		h = rl
	}

	h = mw.Recover(a.Log, h)
	h = mw.AccessLog(a.Log, h)
	if a.Metrics != nil {
		h = mw.Instrument(a.Metrics, h)
	}
	h = mw.WithEndpoint(h, name)
	return mw.RequestID(h)
}

func (a *api) wrapAdmin(name string, h http.Handler) http.Handler {
	h = mw.RequireAdminKey(a.AdminKey, h)
	h = mw.AccessLog(a.Log, h)
	if a.Metrics != nil {
		h = mw.Instrument(a.Metrics, h)
	}
	h = mw.WithEndpoint(h, name)
	return mw.RequestID(h)
}

func (a *api) handleDelay(w http.ResponseWriter, r *http.Request) {
	seconds, err := delay.ParseSeconds(r.PathValue("seconds"))
	if err != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, delay.Failed(err))
		return
	}
	resp, err := a.Service.Handle(r.Context(), seconds)
	if err != nil {
		if wait, ok := delay.RetryAfter(err); ok {
			w.Header().Set("Retry-After", strconv.Itoa(max(1, int(math.Ceil(wait.Seconds())))))
		}
		httpx.WriteJSON(w, delay.HTTPStatus(err), resp)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, delay.Response{Done: true})
}

func (a *api) handleTest(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, a.Service.Probe())
}
