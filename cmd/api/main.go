package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/machawaste/wastelink-backend/api/controllers"
	"github.com/machawaste/wastelink-backend/api/routes"
	"github.com/machawaste/wastelink-backend/internal/ledger"
	"github.com/machawaste/wastelink-backend/internal/lifecycle"
	"github.com/machawaste/wastelink-backend/internal/listings"
	"github.com/machawaste/wastelink-backend/internal/matches"
	"github.com/machawaste/wastelink-backend/pkg/config"
	"github.com/machawaste/wastelink-backend/pkg/db"
	"github.com/machawaste/wastelink-backend/pkg/instance"
	"github.com/machawaste/wastelink-backend/pkg/logger"
	"github.com/machawaste/wastelink-backend/pkg/metrics"
	"github.com/machawaste/wastelink-backend/pkg/migrate"
	"github.com/machawaste/wastelink-backend/pkg/outbox"
	"github.com/machawaste/wastelink-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, dbClient.Close())
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	health := map[string]controllers.Pinger{"db": dbClient}

	var guard lifecycle.ListingGuard
	if cfg.FeatureFlags.DistributedLocks && cfg.Redis.Enabled() {
		redisClient, redisErr := redis.New(ctx, cfg.Redis, logg)
		if redisErr != nil {
			return redisErr
		}
		defer func() {
			err = multierr.Append(err, redisClient.Close())
		}()
		health["redis"] = redisClient

		guard, err = lifecycle.NewRedisGuard(redisClient, cfg.Lifecycle.LockTimeout, cfg.Lifecycle.GuardTTL, logg)
		if err != nil {
			return err
		}
		logg.Info(ctx, "distributed listing guard enabled")
	}

	conn := dbClient.DB()
	ledgerService, err := ledger.NewService(ledger.NewRepository(conn))
	if err != nil {
		return err
	}
	lifecycleService, err := lifecycle.NewService(lifecycle.ServiceParams{
		DB:       dbClient,
		Ledger:   ledgerService,
		Listings: listings.NewRepository(conn),
		Matches:  matches.NewRepository(conn),
		Outbox:   outbox.NewService(outbox.NewRepository(conn), logg),
		Guard:    guard,
		Metrics:  metrics.NewLifecycleMetrics(prometheus.DefaultRegisterer),
		Logger:   logg,
		Config:   cfg.Lifecycle,
	})
	if err != nil {
		return err
	}

	var deadLetters controllers.DeadLetterReader
	if cfg.FeatureFlags.OpsRoutes {
		deadLetters = outbox.NewDLQRepository(conn)
		logg.Info(ctx, "ops routes enabled")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:      cfg,
			Logger:      logg,
			Lifecycle:   lifecycleService,
			Health:      health,
			Gatherer:    prometheus.DefaultGatherer,
			HTTPMetrics: metrics.NewHTTPMetrics(prometheus.DefaultRegisterer),
			DeadLetters: deadLetters,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logg.Info(ctx, "api server shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
