package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/civicpulse/civicpulse/internal/app"
	"github.com/civicpulse/civicpulse/internal/auth"
	"github.com/civicpulse/civicpulse/internal/observability"
	"github.com/civicpulse/civicpulse/internal/permissions"
	"github.com/civicpulse/civicpulse/internal/platform/cache"
	"github.com/civicpulse/civicpulse/internal/platform/db"
	"github.com/civicpulse/civicpulse/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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
		logger.Error("connect postgres", slog.Any("error", err))
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

	registry := permissions.NewRegistry()
	permissionRepo := permissions.NewRepository(pool)
	permissionService := permissions.NewService(permissionRepo, registry, logger, permissions.ServiceConfig{
		CacheTTL:  cfg.PermissionCacheTTL,
		CacheSize: cfg.PermissionCacheSize,
		Metrics:   metrics,
	})

	if err := permissions.Seed(ctx, permissionRepo, registry, logger); err != nil {
		logger.Error("seed permission system", slog.Any("error", err))
		os.Exit(1)
	}

	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("connect job queue", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("job queue close", slog.Any("error", err))
		}
	}()
	maintenance := jobs.NewScheduler(jobsClient)

	tokenStore := auth.NewTokenStore(redisClient, cfg.AuthTokenTTL)
	authService := auth.NewService(pool, tokenStore, logger)
	authHandler := auth.NewHandler(logger, authService)
	authMiddleware := &auth.Middleware{Tokens: tokenStore, Logger: logger}

	guard := permissions.Guard{
		Resolver:  permissionService,
		Principal: auth.PrincipalID,
		Routes:    permissions.DefaultRouteTable(),
		Logger:    logger,
		Metrics:   metrics,
	}
	permissionsHandler := permissions.NewHandler(logger, permissionService, guard, auth.PrincipalID, cfg.PermissionFailOpen, maintenance)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		AuthMiddleware:     authMiddleware,
		AuthHandler:        authHandler,
		PermissionsHandler: permissionsHandler,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
