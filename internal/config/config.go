package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"caseflow-pipeline/internal/pkg/logger"
)

type Config struct {
	Environment string

	HTTP       HTTPConfig
	Redis      RedisConfig
	Mongo      MongoConfig
	Generation GenerationConfig
	Retrieval  RetrievalConfig
	Lookup     LookupConfig
	Trust      TrustConfig
	Pipeline   PipelineConfig
	Delivery   DeliveryConfig
	Log        logger.LogConfig
}

type HTTPConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type RedisConfig struct {
	URL          string
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	UpdateStreamMaxLen int64
	StatusTTL          time.Duration
}

type MongoConfig struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
}

type GenerationConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int64
	Temperature float64
	Timeout     time.Duration
	MaxRetries  int
	RetryDelay  time.Duration
}

type RetrievalConfig struct {
	IndexURL string
	APIKey   string
	TopK     int
	Timeout  time.Duration

	BreakerFailureThreshold uint32
	BreakerOpenFor          time.Duration
}

type LookupConfig struct {
	Enabled  bool
	Endpoint string
	Tool     string
	Timeout  time.Duration
}

type TrustConfig struct {
	PolicyFile   string
	ModelVersion string
}

type PipelineConfig struct {
	RetryBudget     int
	AgentTimeout    time.Duration
	MaxWorkers      int64
	ShutdownTimeout time.Duration

	DeliveryRetryInterval time.Duration
	DeliveryRetryMax      int
}

type DeliveryConfig struct {
	VideoServiceURL  string
	EmailServiceURL  string
	Timeout          time.Duration
	DefaultRecipient string
	AvatarCharacter  string
}

func Load() (*Config, error) {
	// .env is optional; real deployments use the environment directly.
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		HTTP: HTTPConfig{
			Port:         getEnvInt("PORT", 8080),
			ReadTimeout:  getEnvDuration("HTTP_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getEnvDuration("HTTP_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getEnvDuration("HTTP_IDLE_TIMEOUT", 120*time.Second),
		},
		Redis: RedisConfig{
			URL:                getEnv("REDIS_URL", "redis://localhost:6379"),
			PoolSize:           getEnvInt("REDIS_POOL_SIZE", 10),
			DialTimeout:        getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:        getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout:       getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			UpdateStreamMaxLen: int64(getEnvInt("REDIS_UPDATE_STREAM_MAXLEN", 1024)),
			StatusTTL:          getEnvDuration("REDIS_STATUS_TTL", 6*time.Hour),
		},
		Mongo: MongoConfig{
			URI:            getEnv("MONGO_URI", "mongodb://localhost:27017/caseflow"),
			Database:       getEnv("MONGO_DATABASE", "caseflow"),
			ConnectTimeout: getEnvDuration("MONGO_CONNECT_TIMEOUT", 10*time.Second),
		},
		Generation: GenerationConfig{
			APIKey:      os.Getenv("GENERATION_API_KEY"),
			BaseURL:     getEnv("GENERATION_BASE_URL", ""),
			Model:       getEnv("GENERATION_MODEL", "gpt-4o-mini"),
			MaxTokens:   int64(getEnvInt("GENERATION_MAX_TOKENS", 800)),
			Temperature: getEnvFloat("GENERATION_TEMPERATURE", 0.3),
			Timeout:     getEnvDuration("GENERATION_TIMEOUT", 45*time.Second),
			MaxRetries:  getEnvInt("GENERATION_MAX_RETRIES", 3),
			RetryDelay:  getEnvDuration("GENERATION_RETRY_DELAY", 2*time.Second),
		},
		Retrieval: RetrievalConfig{
			IndexURL:                getEnv("DOCUMENT_INDEX_URL", ""),
			APIKey:                  os.Getenv("DOCUMENT_INDEX_API_KEY"),
			TopK:                    getEnvInt("RETRIEVAL_TOP_K", 3),
			Timeout:                 getEnvDuration("RETRIEVAL_TIMEOUT", 10*time.Second),
			BreakerFailureThreshold: uint32(getEnvInt("RETRIEVAL_BREAKER_FAILURES", 5)),
			BreakerOpenFor:          getEnvDuration("RETRIEVAL_BREAKER_OPEN_FOR", 30*time.Second),
		},
		Lookup: LookupConfig{
			Enabled:  getEnvBool("DOCS_LOOKUP_ENABLED", false),
			Endpoint: getEnv("DOCS_LOOKUP_ENDPOINT", "https://learn.microsoft.com/api/mcp"),
			Tool:     getEnv("DOCS_LOOKUP_TOOL", "microsoft_docs_search"),
			Timeout:  getEnvDuration("DOCS_LOOKUP_TIMEOUT", 15*time.Second),
		},
		Trust: TrustConfig{
			PolicyFile:   getEnv("TRUST_POLICY_FILE", ""),
			ModelVersion: getEnv("TRUST_MODEL_VERSION", "trust-scorer-v1"),
		},
		Pipeline: PipelineConfig{
			RetryBudget:           getEnvInt("PIPELINE_RETRY_BUDGET", 2),
			AgentTimeout:          getEnvDuration("PIPELINE_AGENT_TIMEOUT", 60*time.Second),
			MaxWorkers:            int64(getEnvInt("PIPELINE_MAX_WORKERS", 50)),
			ShutdownTimeout:       getEnvDuration("PIPELINE_SHUTDOWN_TIMEOUT", 30*time.Second),
			DeliveryRetryInterval: getEnvDuration("DELIVERY_RETRY_INTERVAL", 1*time.Minute),
			DeliveryRetryMax:      getEnvInt("DELIVERY_RETRY_MAX", 5),
		},
		Delivery: DeliveryConfig{
			VideoServiceURL:  getEnv("VIDEO_SERVICE_URL", ""),
			EmailServiceURL:  getEnv("EMAIL_SERVICE_URL", ""),
			Timeout:          getEnvDuration("DELIVERY_TIMEOUT", 30*time.Second),
			DefaultRecipient: getEnv("DELIVERY_DEFAULT_RECIPIENT", ""),
			AvatarCharacter:  getEnv("DELIVERY_AVATAR_CHARACTER", "ava"),
		},
		Log: logger.LogConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			Format:     getEnv("LOG_FORMAT", "json"),
			Output:     getEnv("LOG_OUTPUT", "stdout"),
			FilePath:   getEnv("LOG_FILE_PATH", "logs/caseflow.log"),
			MaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 100),
			MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 5),
			MaxAgeDays: getEnvInt("LOG_MAX_AGE_DAYS", 30),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (cfg *Config) validate() error {
	if cfg.Generation.APIKey == "" {
		return fmt.Errorf("GENERATION_API_KEY is required")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", cfg.HTTP.Port)
	}
	if cfg.Pipeline.RetryBudget < 0 {
		return fmt.Errorf("PIPELINE_RETRY_BUDGET must not be negative")
	}
	if cfg.Pipeline.MaxWorkers <= 0 {
		return fmt.Errorf("PIPELINE_MAX_WORKERS must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
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
	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return fallback
}
