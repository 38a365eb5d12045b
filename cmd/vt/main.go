// Command vt runs the delay proxy: HTTP on server.addr, gRPC on
// server.grpc_addr.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/unajo/vt/internal/app"
	"github.com/unajo/vt/internal/config"
	"github.com/unajo/vt/internal/logging"
)

func main() {
	var configPath string
	var validateOnly bool
	var dumpConfig bool
	flag.StringVar(&configPath, "config", "", "path to yaml config (optional; VT_ env vars always apply)")
	flag.BoolVar(&validateOnly, "validate-config", false, "validate config and exit")
	flag.BoolVar(&dumpConfig, "dump-config", false, "print the effective config as yaml and exit")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		logging.New("info").Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log := logging.New(cfg.Log.Level)

	if dumpConfig {
		out, err := cfg.YAML()
		if err != nil {
			log.Error("failed to render config", slog.String("error", err.Error()))
			os.Exit(1)
		}
		_, _ = os.Stdout.Write(out)
		return
	}
	if validateOnly {
		log.Info("config ok")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, app.Options{
		Config:   cfg,
		Log:      log,
		AdminKey: os.Getenv("VT_ADMIN_KEY"),
	})
	if err != nil {
		log.Error("failed to build app", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer a.Close()

	log.Info("vt starting",
		slog.String("httpbin_url", cfg.HTTPBin.URL),
		slog.String("rate_backend", cfg.RateLimit.Backend),
		slog.String("auth_mode", cfg.Auth.Mode),
	)
	if err := a.ListenAndRun(ctx); err != nil {
		log.Error("server error", slog.String("error", err.Error()))
		_ = a.Close()
		os.Exit(1)
	}
}
