package httpapi

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/unajo/vt/internal/httpx"
	"github.com/unajo/vt/internal/mw"
)

func (a *api) handleStatus(w http.ResponseWriter, _ *http.Request) {
	goVer := ""
	if info, ok := debug.ReadBuildInfo(); ok {
		goVer = info.GoVersion
	}
	backend := ""
	if a.Limiter != nil {
		backend = a.Limiter.Backend()
	}
	cfg := a.Config
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"time_utc":       time.Now().UTC().Format(time.RFC3339),
		"uptime_seconds": int(time.Since(a.StartedAt).Seconds()),
		"listen_addr":    cfg.Server.Addr,
		"grpc_addr":      cfg.Server.GRPCAddr,
		"go_version":     goVer,
		"auth_mode":      cfg.Auth.Mode,
		"rate_backend":   backend,
		"upstream_url":   cfg.HTTPBin.URL,
	})
}

func (a *api) handleLimits(w http.ResponseWriter, _ *http.Request) {
	cfg := a.Config
	rows := []map[string]any{
		a.limitsRow(EndpointDelay, a.Sems.Delay, cfg.Endpoints.Delay.RateLimit.Enabled),
		a.limitsRow(EndpointTest, a.Sems.Test, cfg.Endpoints.Test.RateLimit.Enabled),
	}
	if a.Breaker.Enabled() {
		rows[0]["circuit_breaker"] = a.Breaker.Stats()
	}
	httpx.WriteJSON(w, http.StatusOK, rows)
}

func (a *api) limitsRow(name string, sem *mw.Semaphore, rateLimited bool) map[string]any {
	row := map[string]any{"endpoint": name, "rate_limited": rateLimited}
	if sem.Enabled() {
		row["concurrency"] = map[string]any{
			"max_in_flight": sem.Cap(),
			"in_flight":     sem.InUse(),
		}
	}
	return row
}

func (a *api) handleConfig(w http.ResponseWriter, _ *http.Request) {
	out, err := a.Config.YAML()
	if err != nil {
		httpx.WriteJSON(w, http.StatusInternalServerError, map[string]any{"error": "config_render_failed"})
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(out)
}
