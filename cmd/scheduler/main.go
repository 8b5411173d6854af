package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/tripshield/inquiry-desk/internal/config"
	"github.com/tripshield/inquiry-desk/internal/queue"
	"github.com/tripshield/inquiry-desk/internal/repository"
	"github.com/tripshield/inquiry-desk/internal/scheduler"
)

func main() {
	logger := log.New(os.Stdout, "[inquiry-scheduler] ", log.LstdFlags|log.LUTC|log.Lmicroseconds)
	_ = godotenv.Load()
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	taskQueue, closer := setupQueue(ctx, cfg, logger)
	defer closer()

	logger.Printf("scheduler started interval=%s", cfg.PollInterval)
	scheduler.New(taskQueue, logger, scheduler.Config{
		Interval: cfg.PollInterval,
	}).Run(ctx)
	logger.Printf("scheduler stopped")
}

func setupQueue(ctx context.Context, cfg config.Config, logger *log.Logger) (queue.Queue, func()) {
	queueCfg := queue.Config{
		MaxAttempts: cfg.TaskMaxAttempts,
		BackoffBase: cfg.RetryBackoffBase,
		BackoffCap:  cfg.RetryBackoffCap,
	}

	// A scheduler on a memory queue feeds no one; it exists so the binary
	// still starts in local experiments.
	if cfg.DatabaseURL == "" {
		logger.Printf("DATABASE_URL not configured, using in-memory queue")
		return queue.NewMemoryQueue(queueCfg), func() {}
	}

	pool, err := repository.NewPool(ctx, cfg.DatabaseURL, int32(cfg.DatabaseMaxConns))
	if err != nil {
		logger.Printf("failed to initialize postgres, fallback to memory: %v", err)
		return queue.NewMemoryQueue(queueCfg), func() {}
	}

	taskQueue := queue.NewPostgresQueue(pool, queueCfg)
	if err := taskQueue.EnsureSchema(ctx); err != nil {
		logger.Printf("failed to ensure queue schema, fallback to memory: %v", err)
		pool.Close()
		return queue.NewMemoryQueue(queueCfg), func() {}
	}

	logger.Printf("postgres queue initialized")
	return taskQueue, pool.Close
}
