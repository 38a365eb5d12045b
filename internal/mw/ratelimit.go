package mw

import (
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/unajo/vt/internal/httpx"
	"github.com/unajo/vt/internal/netx"
	"github.com/unajo/vt/internal/ratelimit"
)

type RateLimitConfig struct {
	Enabled  bool
	RPS      float64
	Burst    float64
	Scope    string // "user" | "ip"
	Endpoint string
}

// IPResolver finds the client address, honoring forwarding headers only
// when the direct peer is a trusted proxy.
type IPResolver struct {
	Trusted *netx.CIDRSet
}

func (r IPResolver) ClientIP(req *http.Request) string {
	remote, ok := parseRemoteAddr(req.RemoteAddr)
	if ok && r.Trusted.Contains(remote) {
		if xff := req.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip, err := netip.ParseAddr(strings.TrimSpace(first)); err == nil {
				return ip.Unmap().String()
			}
		}
		if ip, err := netip.ParseAddr(strings.TrimSpace(req.Header.Get("X-Real-Ip"))); err == nil {
			return ip.Unmap().String()
		}
	}
	if ok {
		return remote.String()
	}
	return req.RemoteAddr
}

func parseRemoteAddr(remoteAddr string) (netip.Addr, bool) {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return ip.Unmap(), true
}

// Key names the bucket a request draws from. User scope falls back to the
// client IP for anonymous callers.
func (cfg RateLimitConfig) Key(r *http.Request, ipr IPResolver) (key, actor string) {
	key = "rl:" + cfg.Endpoint + ":"
	if sub, ok := Subject(r.Context()); ok && strings.EqualFold(cfg.Scope, "user") {
		return key + "u:" + sub, "user"
	}
	return key + "ip:" + ipr.ClientIP(r), "ip"
}

// RateLimit answers 429 once the caller's bucket is empty. Limiter errors
// fail open so a Redis outage does not take the service down.
func RateLimit(limiter ratelimit.Limiter, ipr IPResolver, log *slog.Logger, cfg RateLimitConfig, next http.Handler) http.Handler {
	if !cfg.Enabled || limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, actor := cfg.Key(r, ipr)
		dec, err := limiter.Allow(r.Context(), key, cfg.RPS, cfg.Burst, 1)
		if err != nil {
			log.Warn("rate limiter unavailable",
				slog.String("rid", RID(r.Context())),
				slog.String("backend", limiter.Backend()),
				slog.String("error", err.Error()),
			)
			next.ServeHTTP(w, r)
			return
		}

		h := w.Header()
		h.Set("X-RateLimit-Endpoint", cfg.Endpoint)
		h.Set("X-RateLimit-Scope", actor)
		h.Set("X-RateLimit-Limit-RPS", trimFloat(cfg.RPS))
		h.Set("X-RateLimit-Burst", trimFloat(cfg.Burst))
		if dec.Remaining > 0 {
			h.Set("X-RateLimit-Remaining", trimFloat(dec.Remaining))
		}

		if !dec.Allowed {
			retry := dec.RetryAfterSeconds
			h.Set("Retry-After", strconv.Itoa(retry))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Duration(retry)*time.Second).Unix(), 10))
			httpx.WriteJSON(w, http.StatusTooManyRequests, map[string]any{
				"error":               "rate_limited",
				"endpoint":            cfg.Endpoint,
				"scope":               actor,
				"retry_after_seconds": retry,
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func trimFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', 2, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	if s == "" {
		s = "0"
	}
	return s
}
