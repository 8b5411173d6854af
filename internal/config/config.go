package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config centralizes runtime settings for the api, worker, and scheduler
// binaries.
type Config struct {
	Port        string
	MetricsAddr string

	DatabaseURL      string
	DatabaseMaxConns int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	OpenAIAPIKey               string
	OpenAIBaseURL              string
	OpenAITimeoutMS            int
	OpenAIMaxRetries           int
	OpenAIModelExtractPrimary  string
	OpenAIModelExtractFallback string
	OpenAIModelIntentPrimary   string
	OpenAIModelIntentFallback  string
	ExtractionCacheTTL         time.Duration
	ExtractionCacheMaxEntries  int

	GraphTenantID     string
	GraphClientID     string
	GraphClientSecret string
	GraphMailbox      string
	GraphBaseURL      string
	GraphPageSize     int
	GraphTimeoutMS    int

	WhatsAppWebhookSecret string

	WorkerEnabled    bool
	WorkerIdleSleep  time.Duration
	TaskMaxAttempts  int
	RetryBackoffBase time.Duration
	RetryBackoffCap  time.Duration
	StaleTaskTimeout time.Duration
	ReapInterval     time.Duration

	PollInterval time.Duration
	PollLookback time.Duration

	RequiredFields []string

	RateLimitRPS       float64
	RateLimitBurst     int
	CORSAllowedOrigins []string

	SessionTTL    time.Duration
	AdminUsername string
	AdminPassword string
}

func Load() Config {
	return Config{
		Port:        getEnv("PORT", "8080"),
		MetricsAddr: getEnv("METRICS_ADDR", ":9091"),

		DatabaseURL:      getEnv("DATABASE_URL", ""),
		DatabaseMaxConns: getEnvInt("DATABASE_MAX_CONNS", 10),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		OpenAIAPIKey:               getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:              getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAITimeoutMS:            getEnvInt("OPENAI_TIMEOUT_MS", 20000),
		OpenAIMaxRetries:           getEnvInt("OPENAI_MAX_RETRIES", 2),
		OpenAIModelExtractPrimary:  getEnv("OPENAI_MODEL_EXTRACT_PRIMARY", "gpt-4o-mini"),
		OpenAIModelExtractFallback: getEnv("OPENAI_MODEL_EXTRACT_FALLBACK", "gpt-4.1-mini"),
		OpenAIModelIntentPrimary:   getEnv("OPENAI_MODEL_INTENT_PRIMARY", "gpt-4o-mini"),
		OpenAIModelIntentFallback:  getEnv("OPENAI_MODEL_INTENT_FALLBACK", "gpt-4.1-nano"),
		ExtractionCacheTTL:         getEnvDuration("EXTRACTION_CACHE_TTL", 30*time.Minute),
		ExtractionCacheMaxEntries:  getEnvInt("EXTRACTION_CACHE_MAX_ENTRIES", 2000),

		GraphTenantID:     getEnv("GRAPH_TENANT_ID", ""),
		GraphClientID:     getEnv("GRAPH_CLIENT_ID", ""),
		GraphClientSecret: getEnv("GRAPH_CLIENT_SECRET", ""),
		GraphMailbox:      getEnv("GRAPH_MAILBOX", ""),
		GraphBaseURL:      getEnv("GRAPH_BASE_URL", "https://graph.microsoft.com/v1.0"),
		GraphPageSize:     getEnvInt("GRAPH_PAGE_SIZE", 50),
		GraphTimeoutMS:    getEnvInt("GRAPH_TIMEOUT_MS", 30000),

		WhatsAppWebhookSecret: getEnv("WHATSAPP_WEBHOOK_SECRET", ""),

		WorkerEnabled:    getEnvBool("WORKER_ENABLED", true),
		WorkerIdleSleep:  getEnvDuration("WORKER_IDLE_SLEEP", 5*time.Second),
		TaskMaxAttempts:  getEnvInt("TASK_MAX_ATTEMPTS", 3),
		RetryBackoffBase: getEnvDuration("RETRY_BACKOFF_BASE", time.Minute),
		RetryBackoffCap:  getEnvDuration("RETRY_BACKOFF_CAP", time.Hour),
		StaleTaskTimeout: getEnvDuration("STALE_TASK_TIMEOUT", 10*time.Minute),
		ReapInterval:     getEnvDuration("REAP_INTERVAL", time.Minute),

		PollInterval: getEnvDuration("POLL_INTERVAL", 2*time.Minute),
		PollLookback: getEnvDuration("POLL_LOOKBACK", 30*time.Minute),

		RequiredFields: getEnvStrings("REQUIRED_FIELDS", nil),

		RateLimitRPS:       getEnvFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst:     getEnvInt("RATE_LIMIT_BURST", 40),
		CORSAllowedOrigins: getEnvStrings("CORS_ALLOWED_ORIGINS", nil),

		SessionTTL:    getEnvDuration("SESSION_TTL", 12*time.Hour),
		AdminUsername: getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword: getEnv("ADMIN_PASSWORD", ""),
	}
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvStrings(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return fallback
	}
	return result
}
