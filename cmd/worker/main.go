package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tripshield/inquiry-desk/internal/config"
	"github.com/tripshield/inquiry-desk/internal/domain"
	"github.com/tripshield/inquiry-desk/internal/extraction"
	"github.com/tripshield/inquiry-desk/internal/mailbox"
	"github.com/tripshield/inquiry-desk/internal/observability"
	"github.com/tripshield/inquiry-desk/internal/queue"
	"github.com/tripshield/inquiry-desk/internal/repository"
	"github.com/tripshield/inquiry-desk/internal/worker"
)

func main() {
	logger := log.New(os.Stdout, "[inquiry-worker] ", log.LstdFlags|log.LUTC|log.Lmicroseconds)
	_ = godotenv.Load()
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores := setupStores(ctx, cfg, logger)
	defer stores.close()

	observability.StartMetricsServer(cfg.MetricsAddr, logger)

	processor := worker.NewProcessor(worker.Dependencies{
		Queue:     stores.queue,
		Inquiries: stores.inquiries,
		Cursors:   stores.cursors,
		Mailbox:   buildMailbox(cfg, logger),
		Extractor: buildExtractor(cfg, logger),
		Logger:    logger,
	}, worker.Config{
		IdleSleep:      cfg.WorkerIdleSleep,
		ReapInterval:   cfg.ReapInterval,
		StaleTimeout:   cfg.StaleTaskTimeout,
		PollLookback:   cfg.PollLookback,
		MaxAttempts:    cfg.TaskMaxAttempts,
		RequiredFields: domain.ResolveRequiredFields(cfg.RequiredFields),
	})

	logger.Printf("worker started")
	processor.Start(ctx)
	logger.Printf("worker stopped")
}

type stores struct {
	queue     queue.Queue
	inquiries repository.InquiriesRepository
	cursors   repository.CursorsRepository
	close     func()
}

func memoryStores(queueCfg queue.Config) stores {
	return stores{
		queue:     queue.NewMemoryQueue(queueCfg),
		inquiries: repository.NewMemoryInquiriesRepository(),
		cursors:   repository.NewMemoryCursorsRepository(),
		close:     func() {},
	}
}

func setupStores(ctx context.Context, cfg config.Config, logger *log.Logger) stores {
	queueCfg := queue.Config{
		MaxAttempts: cfg.TaskMaxAttempts,
		BackoffBase: cfg.RetryBackoffBase,
		BackoffCap:  cfg.RetryBackoffCap,
	}

	// A worker on memory stores sees nothing the api process enqueues, so
	// this fallback only serves local experiments.
	if cfg.DatabaseURL == "" {
		logger.Printf("DATABASE_URL not configured, using in-memory stores")
		return memoryStores(queueCfg)
	}

	pool, err := repository.NewPool(ctx, cfg.DatabaseURL, int32(cfg.DatabaseMaxConns))
	if err != nil {
		logger.Printf("failed to initialize postgres, fallback to memory: %v", err)
		return memoryStores(queueCfg)
	}
	if err := repository.Migrate(ctx, pool); err != nil {
		logger.Printf("failed to migrate schema, fallback to memory: %v", err)
		pool.Close()
		return memoryStores(queueCfg)
	}

	taskQueue := queue.NewPostgresQueue(pool, queueCfg)
	if err := taskQueue.EnsureSchema(ctx); err != nil {
		logger.Printf("failed to ensure queue schema, fallback to memory: %v", err)
		pool.Close()
		return memoryStores(queueCfg)
	}

	logger.Printf("postgres stores initialized")
	return stores{
		queue:     taskQueue,
		inquiries: repository.NewPostgresInquiriesRepository(pool),
		cursors:   repository.NewPostgresCursorsRepository(pool),
		close:     pool.Close,
	}
}

func buildExtractor(cfg config.Config, logger *log.Logger) *extraction.Extractor {
	client := extraction.NewChatClient(extraction.ChatClientConfig{
		APIKey:     cfg.OpenAIAPIKey,
		BaseURL:    cfg.OpenAIBaseURL,
		Timeout:    time.Duration(cfg.OpenAITimeoutMS) * time.Millisecond,
		MaxRetries: cfg.OpenAIMaxRetries,
	})
	if !client.Available() {
		logger.Printf("OPENAI_API_KEY not configured, extraction falls back to local parsing")
	}

	return extraction.NewExtractor(extraction.ExtractorDependencies{
		Router: extraction.NewModelRouter(extraction.ModelRouterConfig{
			ExtractPrimary:  cfg.OpenAIModelExtractPrimary,
			ExtractFallback: cfg.OpenAIModelExtractFallback,
			IntentPrimary:   cfg.OpenAIModelIntentPrimary,
			IntentFallback:  cfg.OpenAIModelIntentFallback,
		}),
		Client: client,
		Cache: extraction.NewResultCache(extraction.CacheConfig{
			TTL:        cfg.ExtractionCacheTTL,
			MaxEntries: cfg.ExtractionCacheMaxEntries,
		}),
		Logger: logger,
	})
}

func buildMailbox(cfg config.Config, logger *log.Logger) *mailbox.GraphClient {
	client := mailbox.NewGraphClient(mailbox.GraphClientConfig{
		TenantID:     cfg.GraphTenantID,
		ClientID:     cfg.GraphClientID,
		ClientSecret: cfg.GraphClientSecret,
		Mailbox:      cfg.GraphMailbox,
		BaseURL:      cfg.GraphBaseURL,
		PageSize:     cfg.GraphPageSize,
		Timeout:      time.Duration(cfg.GraphTimeoutMS) * time.Millisecond,
	})
	if !client.Available() {
		logger.Printf("graph mailbox not configured, email polling disabled")
	}
	return client
}
