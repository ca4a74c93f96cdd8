package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"securekyc/internal/app"
	"securekyc/internal/platform/config"
	"securekyc/internal/platform/httpserver"
	"securekyc/internal/platform/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	if cfg.UsesDevSigningKey() {
		log.Warn("JWT_SIGNING_KEY not set, using the development key")
	}
	if cfg.AdminAPIToken == "" {
		log.Warn("ADMIN_API_TOKEN not set, admin endpoints will refuse every request")
	}

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := httpserver.New(cfg.Addr, a.Handler())
	log.Info("starting securekyc", "addr", cfg.Addr)
	if err := httpserver.Run(ctx, srv, shutdownTimeout); err != nil {
		return err
	}
	log.Info("server stopped")
	return nil
}
