// Package app wires the configured components into running HTTP and gRPC
// servers.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"

	"github.com/unajo/vt/internal/breaker"
	"github.com/unajo/vt/internal/config"
	"github.com/unajo/vt/internal/delay"
	"github.com/unajo/vt/internal/httpapi"
	"github.com/unajo/vt/internal/httpbin"
	"github.com/unajo/vt/internal/mw"
	"github.com/unajo/vt/internal/netx"
	"github.com/unajo/vt/internal/ratelimit"
	"github.com/unajo/vt/internal/rpc"
	"github.com/unajo/vt/internal/rpc/vtpb"
)

type Options struct {
	Config *config.Config
	Log    *slog.Logger
	// AdminKey guards /-/ endpoints. Empty hides them.
	AdminKey string
}

type App struct {
	cfg     *config.Config
	log     *slog.Logger
	limiter ratelimit.Limiter
	svc     *delay.Service
	http    *http.Server
	grpc    *grpc.Server
	health  *health.Server
}

// New builds every component but does not listen yet. Close releases the
// rate limiter backend.
func New(ctx context.Context, opts Options) (*App, error) {
	cfg, log := opts.Config, opts.Log
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	if log == nil {
		log = slog.Default()
	}

	trusted, err := netx.ParseCIDRSet(cfg.Server.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("server.trusted_proxies: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	cb := cfg.Endpoints.Delay.CircuitBreaker
	br := breaker.New(breaker.Config{
		Enabled:             cb.Enabled,
		FailureThreshold:    cb.FailureThreshold,
		OpenDuration:        time.Duration(cb.OpenSeconds) * time.Second,
		HalfOpenMaxInFlight: cb.HalfOpenMaxInFlight,
	})

	up := cfg.Upstream
	client, err := httpbin.New(httpbin.Options{
		BaseURL: cfg.HTTPBin.URL,
		Timeout: time.Duration(cfg.HTTPBin.TimeoutSeconds) * time.Second,
		Pool: httpbin.Pool{
			DialTimeout:         time.Duration(up.DialTimeoutSeconds) * time.Second,
			TLSHandshakeTimeout: time.Duration(up.TLSHandshakeTimeoutSeconds) * time.Second,
			IdleConnTimeout:     time.Duration(up.IdleConnTimeoutSeconds) * time.Second,
			MaxIdleConns:        up.MaxIdleConns,
			MaxIdleConnsPerHost: up.MaxIdleConnsPerHost,
		},
		Breaker: br,
		Metrics: httpbin.NewMetrics(reg),
		Log:     log,
	})
	if err != nil {
		return nil, err
	}
	svc := delay.New(client, log)

	var auth mw.AuthHandler
	if cfg.Auth.Mode == "hmac" {
		auth = mw.HMACAuthenticator{Secret: []byte(cfg.Auth.HMACSecret), Leeway: 30 * time.Second}
	}

	limiter := newLimiter(ctx, cfg.RateLimit, log)
	sems := httpapi.Semaphores{
		Delay: mw.NewSemaphore(cfg.Endpoints.Delay.Concurrency.MaxInFlight),
		Test:  mw.NewSemaphore(cfg.Endpoints.Test.Concurrency.MaxInFlight),
	}

	handler := httpapi.NewHandler(httpapi.Options{
		Config:   cfg,
		Service:  svc,
		Breaker:  br,
		Limiter:  limiter,
		Auth:     auth,
		Metrics:  mw.NewMetrics(reg),
		Gatherer: reg,
		Sems:     sems,
		Trusted:  trusted,
		AdminKey: opts.AdminKey,
		Log:      log,
	})

	s := cfg.Server
	httpSrv := &http.Server{
		Addr:              s.Addr,
		Handler:           handler,
		ReadHeaderTimeout: time.Duration(s.ReadHeaderTimeoutSeconds) * time.Second,
		ReadTimeout:       time.Duration(s.ReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(s.WriteTimeoutSeconds) * time.Second,
		IdleTimeout:       time.Duration(s.IdleTimeoutSeconds) * time.Second,
		MaxHeaderBytes:    s.MaxHeaderBytes,
		ErrorLog:          slog.NewLogLogger(log.Handler(), slog.LevelWarn),
	}

	grpcSrv, hs := rpc.NewServer(rpc.NewDogService(svc, sems.Delay), rpc.Options{
		Log:     log,
		Metrics: rpc.NewMetrics(reg),
		Guards: map[string]rpc.Guard{
			vtpb.DogService_Delay_FullMethodName: rpc.GuardFor(httpapi.EndpointDelay, cfg.Endpoints.Delay),
		},
		Auth:    auth,
		Limiter: limiter,
		Trusted: trusted,
	})

	return &App{
		cfg:     cfg,
		log:     log,
		limiter: limiter,
		svc:     svc,
		http:    httpSrv,
		grpc:    grpcSrv,
		health:  hs,
	}, nil
}

// newLimiter prefers Redis and falls back to the in-memory limiter when
// Redis cannot be reached at boot.
func newLimiter(ctx context.Context, cfg config.RateLimitBackend, log *slog.Logger) ratelimit.Limiter {
	ttl := time.Duration(cfg.Memory.TTLSeconds) * time.Second
	memory := func() ratelimit.Limiter {
		return ratelimit.NewMemoryLimiter(ttl, time.Duration(cfg.Memory.CleanupSeconds)*time.Second)
	}
	if cfg.Backend != "redis" {
		return memory()
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Warn("redis unreachable; falling back to memory limiter",
			slog.String("addr", cfg.Redis.Addr),
			slog.String("error", err.Error()),
		)
		_ = rdb.Close()
		return memory()
	}
	return ratelimit.NewRedisLimiter(rdb, ttl)
}

// ListenAndRun listens on the configured addresses and serves until ctx is
// done.
func (a *App) ListenAndRun(ctx context.Context) error {
	httpLis, err := net.Listen("tcp", a.cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen http: %w", err)
	}
	grpcLis, err := net.Listen("tcp", a.cfg.Server.GRPCAddr)
	if err != nil {
		_ = httpLis.Close()
		return fmt.Errorf("listen grpc: %w", err)
	}
	return a.Run(ctx, httpLis, grpcLis)
}

// Run serves HTTP and gRPC on the given listeners. When ctx is done, or
// either server fails, both are shut down gracefully.
func (a *App) Run(ctx context.Context, httpLis, grpcLis net.Listener) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.log.Info("http listening", slog.String("addr", httpLis.Addr().String()))
		if err := a.http.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		a.log.Info("grpc listening", slog.String("addr", grpcLis.Addr().String()))
		if err := a.grpc.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		a.shutdown()
		return nil
	})
	if a.cfg.Smoke.Enabled {
		g.Go(func() error {
			a.svc.SmokeCheck(ctx, a.cfg.Smoke.Seconds)
			return nil
		})
	}
	return g.Wait()
}

func (a *App) shutdown() {
	timeout := time.Duration(a.cfg.Server.ShutdownTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	a.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		a.grpc.GracefulStop()
		close(stopped)
	}()
	if err := a.http.Shutdown(ctx); err != nil {
		a.log.Warn("http shutdown", slog.String("error", err.Error()))
	}
	select {
	case <-stopped:
	case <-ctx.Done():
		a.grpc.Stop()
	}
	a.log.Info("shutdown complete")
}

func (a *App) Close() error {
	return a.limiter.Close()
}
