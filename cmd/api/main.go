package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/multiwallet/internal/config"
	"github.com/congo-pay/multiwallet/internal/events"
	"github.com/congo-pay/multiwallet/internal/infra"
	"github.com/congo-pay/multiwallet/internal/logging"
	"github.com/congo-pay/multiwallet/internal/routes"
	"github.com/congo-pay/multiwallet/internal/scheduler"
	"github.com/congo-pay/multiwallet/internal/server"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)
	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
	logger.Info("server exited cleanly")
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx := context.Background()

	var db *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		if err := infra.Migrate(ctx, cfg.DatabaseURL, logger); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		pool, err := infra.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pool.Close()
		db = pool
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory ledger")
	}

	var cache *redis.Client
	if cfg.RedisURL != "" {
		client, err := infra.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer func() {
			if err := client.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}()
		cache = client
	} else {
		logger.Warn("REDIS_URL not set, using in-memory OTP store")
	}

	var broker events.Publisher = events.Fallback{Logger: logger}
	if cfg.RabbitMQURL != "" {
		producer, err := events.NewProducer(cfg.RabbitMQURL, logger)
		if err != nil {
			logger.Warn("rabbitmq unavailable, events will be dropped", "error", err)
		} else {
			broker = producer
		}
	}
	defer broker.Close()

	srv, err := server.New(routes.Deps{Cfg: cfg, DB: db, Cache: cache, Broker: broker, Logger: logger})
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}

	sweeper, err := scheduler.New(srv.Services().Payments, cfg.SweepSchedule, logger)
	if err != nil {
		return err
	}
	sweeper.Start()
	defer func() { <-sweeper.Stop().Done() }()

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-srvErrCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
