package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/machawaste/wastelink-backend/internal/cron"
	"github.com/machawaste/wastelink-backend/internal/ledger"
	"github.com/machawaste/wastelink-backend/pkg/config"
	"github.com/machawaste/wastelink-backend/pkg/db"
	"github.com/machawaste/wastelink-backend/pkg/instance"
	"github.com/machawaste/wastelink-backend/pkg/logger"
	"github.com/machawaste/wastelink-backend/pkg/metrics"
	"github.com/machawaste/wastelink-backend/pkg/migrate"
	"github.com/machawaste/wastelink-backend/pkg/outbox"
	"github.com/machawaste/wastelink-backend/pkg/redis"
)

func main() {
	once := flag.Bool("once", false, "run a single cycle and exit")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	lock, closeLock, err := buildLock(cfg, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}
	defer closeLock()

	ledgerService, err := ledger.NewService(ledger.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}
	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:       logg,
		DB:           dbClient,
		Outbox:       outbox.NewRepository(dbClient.DB()),
		DeadLetters:  outbox.NewDLQRepository(dbClient.DB()),
		Retention:    daysOf(cfg.Cron.OutboxRetentionDays),
		DLQRetention: daysOf(cfg.Cron.DLQRetentionDays),
		MinAttempts:  cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox retention job", err)
		os.Exit(1)
	}
	reconcileJob, err := cron.NewLedgerReconcileJob(cron.LedgerReconcileJobParams{
		Logger:    logg,
		Ledger:    ledgerService,
		BatchSize: cfg.Cron.ReconcileBatchSize,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger reconcile job", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(retentionJob, reconcileJob),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
		Schedule: cfg.Cron.Schedule,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
	})

	if *once {
		if err := service.RunOnce(ctx); err != nil {
			logg.Error(ctx, "cron cycle failed", err)
			os.Exit(1)
		}
		return
	}

	logg.Info(ctx, "starting cron worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

// buildLock uses a Redis lease when Redis is configured so only one worker
// runs a cycle; otherwise cycles are only serialized within this process.
func buildLock(cfg *config.Config, logg *logger.Logger) (cron.Lock, func(), error) {
	if !cfg.Redis.Enabled() {
		logg.Warn(context.Background(), "redis not configured; cron lock is process local")
		return &cron.LocalLock{}, func() {}, nil
	}
	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		return nil, nil, err
	}
	env := cfg.App.Env
	if env == "" {
		env = "local"
	}
	lock, err := redis.NewLock(redisClient, redisClient.LockKey("cron-worker", env), cfg.Cron.Interval)
	if err != nil {
		_ = redisClient.Close()
		return nil, nil, err
	}
	return lock, func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}, nil
}

func daysOf(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}
