package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/safeutils/safe-decoder-service/internal/abis"
	"github.com/safeutils/safe-decoder-service/internal/api"
	"github.com/safeutils/safe-decoder-service/internal/decoder"
	"github.com/safeutils/safe-decoder-service/internal/infrastructure/cache"
	"github.com/safeutils/safe-decoder-service/internal/infrastructure/repository"
	"github.com/safeutils/safe-decoder-service/migrations"
	"github.com/safeutils/safe-decoder-service/shared/config"
	"github.com/safeutils/safe-decoder-service/shared/logging"
	"github.com/safeutils/safe-decoder-service/shared/migration"
	"github.com/safeutils/safe-decoder-service/shared/monitoring"
	"github.com/safeutils/safe-decoder-service/shared/postgres"
	"github.com/safeutils/safe-decoder-service/shared/redis"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.Load()

	logger := logging.NewLogger(&logging.Config{
		Level:       logging.LogLevel(cfg.LogLevel),
		Service:     cfg.ServiceName,
		Environment: cfg.Environment,
		Output:      os.Stdout,
		PrettyLog:   cfg.Environment == "development",
	})

	if err := cfg.Validate(); err != nil {
		logger.Fatalf("Invalid configuration: %v", err)
	}

	if err := monitoring.InitSentry(monitoring.SentryConfig{
		DSN:         cfg.SentryDSN,
		Environment: cfg.Environment,
		Release:     cfg.ServiceVersion,
	}); err != nil {
		logger.WithError(err).Warn("Sentry initialization failed")
	}
	defer monitoring.FlushSentry()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database
	db, err := postgres.NewPostgres(postgres.PostgresConfig{
		DatabaseURL:     cfg.Database.DatabaseURL,
		PoolSize:        cfg.Database.PoolSize,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	})
	if err != nil {
		logger.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if err := db.HealthCheck(ctx); err != nil {
		logger.Fatalf("Failed to ping database: %v", err)
	}

	migrator := migration.NewMigrator(db.GetClient(), migrations.Files, migrations.Dir)
	if err := migrator.Migrate(); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}

	// Response cache
	redisClient, err := redis.NewRedis(redis.RedisConfig{RedisURL: cfg.Redis.RedisURL})
	if err != nil {
		logger.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	if err := redisClient.HealthCheck(ctx); err != nil {
		logger.Fatalf("Failed to ping Redis: %v", err)
	}

	metrics := monitoring.Default()

	abiRepo := repository.NewAbiRepository(db.GetClient())
	sourceRepo := repository.NewAbiSourceRepository(db.GetClient())
	contractRepo := repository.NewContractRepository(db.GetClient())

	if err := abis.Seed(ctx, abiRepo, sourceRepo, logger); err != nil {
		logger.Fatalf("Failed to seed bundled ABIs: %v", err)
	}

	decoderService, err := decoder.NewService(abiRepo, contractRepo, logger, metrics)
	if err != nil {
		logger.Fatalf("Failed to create decoder: %v", err)
	}
	if err := decoderService.Init(ctx); err != nil {
		logger.Fatalf("Failed to load ABIs into decoder: %v", err)
	}

	responseCache := cache.NewContractCache(redisClient, cfg.Redis.DefaultTTL)

	handlers := api.NewHandlers(contractRepo, decoderService, responseCache,
		logger, metrics, cfg.ServiceVersion, cfg.Contracts.LogoBaseURL)
	router := api.NewRouter(handlers, cfg.Environment)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.APIPort),
		Handler: router,
	}

	go func() {
		logger.Infof("API server listening on :%d", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down API server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("HTTP server shutdown failed")
	}
}
