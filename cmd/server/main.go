// Command server runs the NoteDrop HTTP API.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dharsanguruparan/NoteDrop/internal/api"
	"github.com/dharsanguruparan/NoteDrop/internal/app"
	"github.com/dharsanguruparan/NoteDrop/internal/config"
	"github.com/dharsanguruparan/NoteDrop/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger := config.SetupLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := app.Open(ctx, cfg, logger, true)
	if err != nil {
		logger.Error("init dependencies", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer deps.Close()

	sessions := session.NewIssuer(cfg.SessionSecret, cfg.SessionTTL)
	if os.Getenv("NOTEDROP_SESSION_SECRET") == "" {
		logger.Warn("NOTEDROP_SESSION_SECRET not set, sessions end when the process restarts")
	}

	srv := api.New(cfg, deps.Notes, sessions, logger, deps.Health...)
	if err := srv.Serve(ctx); err != nil {
		logger.Error("server stopped", slog.String("error", err.Error()))
		deps.Close()
		os.Exit(1)
	}
	logger.Info("server stopped")
}
