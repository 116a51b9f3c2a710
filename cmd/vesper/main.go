package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/vesper-social/vesper/internal/abtest"
	"github.com/vesper-social/vesper/internal/app"
	"github.com/vesper-social/vesper/internal/audit"
	"github.com/vesper-social/vesper/internal/compliance"
	"github.com/vesper-social/vesper/internal/guard"
	"github.com/vesper-social/vesper/internal/observability"
	"github.com/vesper-social/vesper/internal/platform/cache"
	"github.com/vesper-social/vesper/internal/platform/db"
	"github.com/vesper-social/vesper/internal/policy"
	"github.com/vesper-social/vesper/internal/rbac"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping server startup")
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

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	rbacRepo := rbac.NewRepository(pool)
	registry := rbac.NewRegistry(rbacRepo, logger)
	resolverCache := rbac.NewCache(redisClient, cfg.ResolverCacheTTL)
	resolver := rbac.NewResolver(registry, rbacRepo, resolverCache, logger)

	policyRepo := policy.NewRepository(pool)
	engine := policy.NewEngine(policyRepo, logger)

	complianceRepo := compliance.NewRepository(pool)
	gate := compliance.NewGate(complianceRepo, logger)

	abtestRepo := abtest.NewRepository(pool)
	targeter := abtest.NewTargeter(abtestRepo, logger)

	auditRepo := audit.NewRepository(pool)
	var queue audit.Enqueuer
	if cfg.AuditDeferred {
		client := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		defer func() {
			if err := client.Close(); err != nil {
				logger.Warn("asynq client close", slog.Any("error", err))
			}
		}()
		queue = client
	}
	recorder := audit.NewRecorder(auditRepo, queue, logger)

	g := guard.New(resolver, registry, engine, gate, targeter, recorder, metrics, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		GuardMiddleware:   guard.Middleware{Guard: g, Logger: logger},
		AccessHandler:     guard.NewHandler(logger, g, gate),
		RBACHandler:       rbac.NewHandler(logger, rbacRepo, registry, resolver),
		PolicyHandler:     policy.NewHandler(logger, policyRepo, engine),
		ComplianceHandler: compliance.NewHandler(logger, complianceRepo),
		ABTestHandler:     abtest.NewHandler(logger, abtestRepo, targeter),
		AuditHandler:      audit.NewHandler(logger, audit.NewService(auditRepo)),
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("server listening", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", slog.Any("error", err))
	}
	logger.Info("server stopped")
}
