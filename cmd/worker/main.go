package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/vesper-social/vesper/internal/app"
	"github.com/vesper-social/vesper/internal/audit"
	"github.com/vesper-social/vesper/internal/platform/db"
	"github.com/vesper-social/vesper/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	server := jobs.NewServer(cfg.RedisAddr, 10)
	mux := jobs.NewMux(audit.NewRepository(pool), logger)

	go func() {
		<-ctx.Done()
		server.Shutdown()
	}()

	logger.Info("worker started", slog.String("redis", cfg.RedisAddr))
	if err := server.Run(mux); err != nil {
		logger.Error("worker", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker stopped")
}
