package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tripshield/inquiry-desk/internal/auth"
	"github.com/tripshield/inquiry-desk/internal/config"
	"github.com/tripshield/inquiry-desk/internal/domain"
	"github.com/tripshield/inquiry-desk/internal/extraction"
	httpserver "github.com/tripshield/inquiry-desk/internal/http"
	"github.com/tripshield/inquiry-desk/internal/http/handlers"
	"github.com/tripshield/inquiry-desk/internal/mailbox"
	"github.com/tripshield/inquiry-desk/internal/queue"
	"github.com/tripshield/inquiry-desk/internal/repository"
	"github.com/tripshield/inquiry-desk/internal/scheduler"
	"github.com/tripshield/inquiry-desk/internal/service"
	"github.com/tripshield/inquiry-desk/internal/worker"
)

func main() {
	logger := log.New(os.Stdout, "[inquiry-desk] ", log.LstdFlags|log.LUTC|log.Lmicroseconds)
	_ = godotenv.Load()
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores := setupStores(ctx, cfg, logger)
	defer stores.close()

	sessions, sessionsCloser := setupSessions(ctx, cfg, logger)
	defer sessionsCloser()

	if err := auth.EnsureAdminUser(ctx, stores.users, cfg.AdminUsername, cfg.AdminPassword, logger); err != nil {
		logger.Printf("admin user seeding failed: %v", err)
	}

	requiredFields := domain.ResolveRequiredFields(cfg.RequiredFields)
	extractor := buildExtractor(cfg, logger)
	graph := buildMailbox(cfg, logger)

	inquiryService := service.NewInquiryService(stores.inquiries, requiredFields)
	intakeService := service.NewIntakeService(stores.queue, stores.inquiries, logger)

	api := handlers.NewAPI(handlers.APIDependencies{
		Inquiries:     inquiryService,
		Intake:        intakeService,
		Users:         stores.users,
		Sessions:      sessions,
		WebhookSecret: cfg.WhatsAppWebhookSecret,
		SessionTTL:    cfg.SessionTTL,
		Ping:          stores.ping,
		Logger:        logger,
	})

	handler := httpserver.NewRouter(httpserver.RouterDependencies{
		API:            api,
		Sessions:       sessions,
		Logger:         logger,
		CORSOrigins:    cfg.CORSAllowedOrigins,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	})

	if cfg.WorkerEnabled {
		processor := worker.NewProcessor(worker.Dependencies{
			Queue:     stores.queue,
			Inquiries: stores.inquiries,
			Cursors:   stores.cursors,
			Mailbox:   graph,
			Extractor: extractor,
			Logger:    logger,
		}, worker.Config{
			IdleSleep:      cfg.WorkerIdleSleep,
			ReapInterval:   cfg.ReapInterval,
			StaleTimeout:   cfg.StaleTaskTimeout,
			PollLookback:   cfg.PollLookback,
			MaxAttempts:    cfg.TaskMaxAttempts,
			RequiredFields: requiredFields,
		})
		go processor.Start(ctx)
		logger.Printf("embedded worker started")

		if graph.Available() {
			pollScheduler := scheduler.New(stores.queue, logger, scheduler.Config{
				Interval: cfg.PollInterval,
			})
			go pollScheduler.Run(ctx)
			logger.Printf("embedded poll scheduler started interval=%s", cfg.PollInterval)
		}
	} else {
		logger.Printf("worker disabled by configuration")
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Printf("api listening on :%s", cfg.Port)
		errChan <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Printf("shutdown signal received")
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("server failed: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	}
}

type stores struct {
	queue     queue.Queue
	inquiries repository.InquiriesRepository
	cursors   repository.CursorsRepository
	users     repository.UsersRepository
	ping      func(context.Context) error
	close     func()
}

func memoryStores(queueCfg queue.Config) stores {
	return stores{
		queue:     queue.NewMemoryQueue(queueCfg),
		inquiries: repository.NewMemoryInquiriesRepository(),
		cursors:   repository.NewMemoryCursorsRepository(),
		users:     repository.NewMemoryUsersRepository(),
		close:     func() {},
	}
}

func setupStores(ctx context.Context, cfg config.Config, logger *log.Logger) stores {
	queueCfg := queue.Config{
		MaxAttempts: cfg.TaskMaxAttempts,
		BackoffBase: cfg.RetryBackoffBase,
		BackoffCap:  cfg.RetryBackoffCap,
	}

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
		users:     repository.NewPostgresUsersRepository(pool),
		ping:      pool.Ping,
		close:     pool.Close,
	}
}

func setupSessions(ctx context.Context, cfg config.Config, logger *log.Logger) (auth.SessionStore, func()) {
	if cfg.RedisAddr == "" {
		logger.Printf("REDIS_ADDR not configured, using in-memory sessions")
		return auth.NewMemorySessionStore(cfg.SessionTTL), func() {}
	}

	store, err := auth.NewRedisSessionStore(ctx, auth.RedisSessionConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		TTL:      cfg.SessionTTL,
	})
	if err != nil {
		logger.Printf("failed to initialize redis sessions, fallback to memory: %v", err)
		return auth.NewMemorySessionStore(cfg.SessionTTL), func() {}
	}
	logger.Printf("redis session store initialized")
	return store, func() {
		_ = store.Close()
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
