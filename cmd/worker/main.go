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

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/safeutils/safe-decoder-service/internal/decoder"
	"github.com/safeutils/safe-decoder-service/internal/infrastructure/cache"
	"github.com/safeutils/safe-decoder-service/internal/infrastructure/events"
	"github.com/safeutils/safe-decoder-service/internal/infrastructure/providers"
	"github.com/safeutils/safe-decoder-service/internal/infrastructure/repository"
	"github.com/safeutils/safe-decoder-service/internal/infrastructure/tasks"
	"github.com/safeutils/safe-decoder-service/internal/metadata"
	"github.com/safeutils/safe-decoder-service/internal/safecontracts"
	"github.com/safeutils/safe-decoder-service/shared/config"
	"github.com/safeutils/safe-decoder-service/shared/logging"
	"github.com/safeutils/safe-decoder-service/shared/messaging"
	"github.com/safeutils/safe-decoder-service/shared/monitoring"
	"github.com/safeutils/safe-decoder-service/shared/postgres"
	"github.com/safeutils/safe-decoder-service/shared/redis"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.Load()

	logger := logging.NewLogger(&logging.Config{
		Level:       logging.LogLevel(cfg.LogLevel),
		Service:     cfg.ServiceName + "-worker",
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

	// Database. Migrations are owned by the API server; the worker only
	// needs a healthy connection.
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

	// Upstream metadata providers, tried in order.
	pool := providers.NewPool(
		[]providers.MetadataProvider{
			providers.NewEtherscanProvider(cfg.Providers.EtherscanAPIKey,
				cfg.Providers.EtherscanMaxRequests, cfg.Providers.RequestTimeout),
			providers.NewSourcifyProvider(cfg.Providers.RequestTimeout),
			providers.NewBlockscoutProvider(cfg.Providers.BlockscoutAPIKey,
				cfg.Providers.RequestTimeout),
		},
		map[string]int{
			"etherscan":  cfg.Providers.EtherscanMaxRequests,
			"sourcify":   cfg.Providers.SourcifyMaxRequests,
			"blockscout": cfg.Providers.BlockscoutMaxRequests,
		},
		logger, metrics)

	attemptCache := cache.NewAttemptCache(redisClient)
	responseCache := cache.NewContractCache(redisClient, cfg.Redis.DefaultTTL)

	enqueuer, err := tasks.NewEnqueuer(cfg.Redis.RedisURL)
	if err != nil {
		logger.Fatalf("Failed to create task enqueuer: %v", err)
	}
	defer enqueuer.Close()

	metadataService := metadata.NewService(pool, contractRepo, abiRepo, sourceRepo,
		attemptCache, responseCache, enqueuer, logger, metrics)

	safeContractsService := safecontracts.NewService(contractRepo,
		cfg.Contracts.TrustedForDelegateCall, logger)

	// The event consumer only splits MultiSend batches, so the decoder is
	// used without loading the full ABI registry.
	decoderService, err := decoder.NewService(abiRepo, contractRepo, logger, metrics)
	if err != nil {
		logger.Fatalf("Failed to create decoder: %v", err)
	}

	taskHandlers := tasks.NewHandlers(metadataService, contractRepo,
		safeContractsService, enqueuer, cfg.Contracts.MaxDownloadRetries, logger)
	taskServer, err := tasks.NewServer(tasks.ServerConfig{
		RedisURL: cfg.Redis.RedisURL,
	}, taskHandlers, logger)
	if err != nil {
		logger.Fatalf("Failed to create task server: %v", err)
	}

	go func() {
		if err := taskServer.Start(); err != nil {
			logger.Fatalf("Task server failed: %v", err)
		}
	}()

	// A broken broker connection is not fatal: events only accelerate
	// metadata downloads the periodic rescan would trigger anyway.
	var consumer *events.Consumer
	rabbit, err := messaging.NewRabbitMQ(messaging.RabbitMQConfig{
		AMQPURL:       cfg.Messaging.AMQPURL,
		PrefetchCount: cfg.Messaging.PrefetchCount,
	})
	if err != nil {
		logger.WithError(err).Error("Failed to connect to RabbitMQ, continuing without event consumer")
	} else {
		defer rabbit.Close()
		consumer = events.NewConsumer(rabbit, events.ConsumerConfig{
			Exchange:  cfg.Messaging.Exchange,
			QueueName: cfg.Messaging.QueueName,
		}, enqueuer, decoderService, logger, metrics)
		if err := consumer.Start(ctx); err != nil {
			logger.WithError(err).Error("Failed to start event consumer, continuing without it")
			consumer = nil
		}
	}

	// Curate the canonical Safe deployments once at startup; the hourly
	// task keeps them fresh afterwards.
	go func() {
		if _, err := safeContractsService.Update(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.WithError(err).Error("Startup well known contracts update failed")
		}
	}()

	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.WorkerPort),
		Handler: newWorkerMux(),
	}
	go func() {
		logger.Infof("Worker metrics listening on :%d", cfg.WorkerPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Metrics server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down worker")

	if consumer != nil {
		consumer.Stop()
	}
	taskServer.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Metrics server shutdown failed")
	}
}

func newWorkerMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`"OK"`))
	})
	return mux
}
