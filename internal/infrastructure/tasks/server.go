package tasks

import (
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/safeutils/safe-decoder-service/shared/logging"
)

// ServerConfig tunes the task worker and its cron schedule.
type ServerConfig struct {
	RedisURL    string
	Concurrency int
}

// Server runs the task worker and the cron scheduler feeding it.
type Server struct {
	server    *asynq.Server
	scheduler *asynq.Scheduler
	mux       *asynq.ServeMux
	logger    *logging.Logger
}

// NewServer creates the worker and registers the periodic tasks:
// the midnight missing-metadata rescan, the 05:00 proxy refresh and the
// hourly well known contracts update.
func NewServer(config ServerConfig, handlers *Handlers, logger *logging.Logger) (*Server, error) {
	opt, err := asynq.ParseRedisURI(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	concurrency := config.Concurrency
	if concurrency <= 0 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{QueueDefault: 1},
	})

	mux := asynq.NewServeMux()
	handlers.Register(mux)

	scheduler := asynq.NewScheduler(opt, nil)
	entries := []struct {
		spec     string
		taskType string
	}{
		{"0 0 * * *", TypeRescanMissingMetadata},
		{"0 5 * * *", TypeRefreshProxies},
		{"0 * * * *", TypeUpdateWellKnownContracts},
	}
	for _, entry := range entries {
		task := asynq.NewTask(entry.taskType, nil)
		if _, err := scheduler.Register(entry.spec, task, asynq.Queue(QueueDefault)); err != nil {
			return nil, fmt.Errorf("register periodic task %s: %w", entry.taskType, err)
		}
	}

	return &Server{
		server:    server,
		scheduler: scheduler,
		mux:       mux,
		logger:    logger,
	}, nil
}

// Start launches the worker and the scheduler. Blocks until Shutdown.
func (s *Server) Start() error {
	if err := s.scheduler.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	s.logger.Info("Task worker started")
	return s.server.Run(s.mux)
}

// Shutdown stops the scheduler and drains the worker.
func (s *Server) Shutdown() {
	s.scheduler.Shutdown()
	s.server.Shutdown()
	s.logger.Info("Task worker stopped")
}
