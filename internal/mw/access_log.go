package mw

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/unajo/vt/internal/httpx"
)

func AccessLog(log *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &httpx.StatusWriter{ResponseWriter: w}
		start := time.Now()
		next.ServeHTTP(sw, r)

		level := slog.LevelInfo
		if sw.Code() >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		log.LogAttrs(r.Context(), level, "http_request",
			slog.String("rid", RID(r.Context())),
			slog.String("endpoint", EndpointName(r.Context())),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("remote", r.RemoteAddr),
			slog.Int("status", sw.Code()),
			slog.Int("bytes", sw.Bytes),
			slog.Duration("duration", time.Since(start)),
		)
	})
}
