package rpc

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/unajo/vt/internal/config"
	"github.com/unajo/vt/internal/mw"
	"github.com/unajo/vt/internal/ratelimit"
)

// Guard holds the access rules of one RPC method. Rules come from the
// same endpoint config the HTTP routes use, and rate-limit keys match the
// HTTP ones, so a caller shares one bucket across both transports.
type Guard struct {
	AuthRequired bool
	RateLimit    mw.RateLimitConfig
}

func GuardFor(endpoint string, ep config.EndpointConfig) Guard {
	return Guard{
		AuthRequired: ep.AuthRequired,
		RateLimit: mw.RateLimitConfig{
			Enabled:  ep.RateLimit.Enabled,
			RPS:      ep.RateLimit.RPS,
			Burst:    ep.RateLimit.Burst,
			Scope:    ep.RateLimit.Scope,
			Endpoint: endpoint,
		},
	}
}

// forwardedHeaders are the metadata keys copied onto the request view.
var forwardedHeaders = []string{"authorization", "x-forwarded-for", "x-real-ip"}

// requestView presents call metadata as an *http.Request so that bearer
// validation and client IP resolution run the same code as HTTP.
func requestView(ctx context.Context) *http.Request {
	r := (&http.Request{Method: http.MethodPost, Header: http.Header{}}).WithContext(ctx)
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		for _, k := range forwardedHeaders {
			if v := md.Get(k); len(v) > 0 {
				r.Header.Set(k, v[0])
			}
		}
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		r.RemoteAddr = p.Addr.String()
	}
	return r
}

// authInterceptor attaches the bearer subject to the context. Methods
// whose guard requires auth fail with Unauthenticated without one.
func authInterceptor(auth mw.AuthHandler, guards map[string]Guard) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		g, ok := guards[info.FullMethod]
		if !ok {
			return handler(ctx, req)
		}
		sub, err := auth.ValidateBearer(requestView(ctx))
		if err != nil {
			if g.AuthRequired {
				return nil, status.Error(codes.Unauthenticated, "unauthorized")
			}
			return handler(ctx, req)
		}
		return handler(mw.ContextWithSubject(ctx, sub), req)
	}
}

// rateLimitInterceptor answers ResourceExhausted with a retry-after header
// once the bucket is empty. Limiter errors fail open.
func rateLimitInterceptor(limiter ratelimit.Limiter, ipr mw.IPResolver, guards map[string]Guard, log *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		g, ok := guards[info.FullMethod]
		if !ok || !g.RateLimit.Enabled {
			return handler(ctx, req)
		}
		rl := g.RateLimit
		key, actor := rl.Key(requestView(ctx), ipr)
		dec, err := limiter.Allow(ctx, key, rl.RPS, rl.Burst, 1)
		if err != nil {
			log.WarnContext(ctx, "rate limiter unavailable",
				slog.String("method", info.FullMethod),
				slog.String("backend", limiter.Backend()),
				slog.String("error", err.Error()),
			)
			return handler(ctx, req)
		}
		if !dec.Allowed {
			_ = grpc.SetHeader(ctx, metadata.Pairs("retry-after", strconv.Itoa(dec.RetryAfterSeconds)))
			return nil, status.Errorf(codes.ResourceExhausted,
				"rate limited on %s (%s scope), retry in %ds", rl.Endpoint, actor, dec.RetryAfterSeconds)
		}
		return handler(ctx, req)
	}
}
