package rpc

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/logging"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/recovery"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	vtlog "github.com/unajo/vt/internal/logging"
	"github.com/unajo/vt/internal/mw"
	"github.com/unajo/vt/internal/netx"
	"github.com/unajo/vt/internal/ratelimit"
	"github.com/unajo/vt/internal/rpc/vtpb"
)

type Options struct {
	Log     *slog.Logger
	Metrics *Metrics // optional

	// Guards apply endpoint auth and rate limits per full method name.
	// Auth and Limiter may be nil to skip that check.
	Guards  map[string]Guard
	Auth    mw.AuthHandler
	Limiter ratelimit.Limiter
	Trusted *netx.CIDRSet
}

// NewServer returns a gRPC server with DogService, health and reflection
// registered. The health server reports SERVING until the caller flips it
// during shutdown.
func NewServer(svc vtpb.DogServiceServer, opts Options) (*grpc.Server, *health.Server) {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}

	interceptors := []grpc.UnaryServerInterceptor{
		logging.UnaryServerInterceptor(vtlog.GRPCLogger(log)),
	}
	if opts.Metrics != nil {
		interceptors = append(interceptors, opts.Metrics.UnaryServerInterceptor())
	}
	if len(opts.Guards) > 0 {
		if opts.Auth != nil {
			interceptors = append(interceptors, authInterceptor(opts.Auth, opts.Guards))
		}
		if opts.Limiter != nil {
			ipr := mw.IPResolver{Trusted: opts.Trusted}
			interceptors = append(interceptors, rateLimitInterceptor(opts.Limiter, ipr, opts.Guards, log))
		}
	}
	// Recovery is innermost so panics still show up as codes.Internal in
	// the log and metrics above it.
	interceptors = append(interceptors, recovery.UnaryServerInterceptor(
		recovery.WithRecoveryHandlerContext(func(ctx context.Context, p any) error {
			log.ErrorContext(ctx, "panic in rpc handler",
				slog.Any("panic", p),
				slog.String("stack", string(debug.Stack())),
			)
			return status.Error(codes.Internal, "internal error")
		}),
	))

	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(interceptors...),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle: 5 * time.Minute,
			Time:              30 * time.Second,
			Timeout:           5 * time.Second,
		}),
	)
	vtpb.RegisterDogServiceServer(s, svc)

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(vtpb.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)

	reflection.Register(s)
	return s, hs
}
