// Command upstream runs a local stand-in for httpbin's /delay endpoint.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/unajo/vt/internal/fakebin"
	"github.com/unajo/vt/internal/logging"
	"github.com/unajo/vt/internal/mw"
)

func main() {
	var addr string
	var unit time.Duration
	flag.StringVar(&addr, "addr", ":9001", "listen address")
	flag.DurationVar(&unit, "unit", time.Second, "wall time per requested second")
	flag.Parse()

	log := logging.New("info")
	srv := &http.Server{
		Addr:              addr,
		Handler:           mw.AccessLog(log, fakebin.New(unit)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("fake httpbin listening", slog.String("addr", addr), slog.Duration("unit", unit))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
