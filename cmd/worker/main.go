package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/civicpulse/civicpulse/internal/app"
	"github.com/civicpulse/civicpulse/internal/permissions"
	"github.com/civicpulse/civicpulse/jobs"
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

	pool, err := pgxpool.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	registry := permissions.NewRegistry()
	permissionRepo := permissions.NewRepository(pool)
	permissionService := permissions.NewService(permissionRepo, registry, logger, permissions.ServiceConfig{})

	syncJob := jobs.NewPermissionsSyncJob(permissionService, logger)
	purgeJob := jobs.NewPermissionsPurgeJob(permissionService, logger)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskPermissionsSync, Handler: syncJob.Handle},
			{Type: jobs.TaskPermissionsPurgeExpired, Handler: purgeJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "@every 1h", Task: jobs.NewPermissionsSyncTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "@every 10m", Task: jobs.NewPermissionsPurgeExpiredTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
