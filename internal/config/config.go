// Package config loads and validates application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"
)

// Pipeline modes. In "articles" mode stream entries carry whole scraped
// documents; in "notifications" mode they carry scrape-done notifications and
// the documents are fetched from the scraper repository.
const (
	ModeArticles      = "articles"
	ModeNotifications = "notifications"
)

// Config holds all application configuration
type Config struct {
	App            AppConfig
	Redis          RedisConfig
	Batch          BatchConfig
	Elastic        ElasticConfig
	ML             MLConfig
	Mongo          MongoConfig
	Health         HealthConfig
	CircuitBreaker CircuitBreakerConfig
}

// AppConfig holds application-level configuration
type AppConfig struct {
	Name            string
	Environment     string
	LogLevel        string
	LogFormat       string
	Mode            string
	ShutdownTimeout time.Duration
}

// RedisConfig holds Redis stream consumer configuration
type RedisConfig struct {
	Host          string
	Port          int
	Password      string
	DB            int
	StreamName    string
	ConsumerGroup string

	ReadCount    int64
	BlockTimeout time.Duration

	ClaimMinIdle       time.Duration
	ClaimCheckInterval time.Duration
	ClaimMaxCount      int64

	MaxRetries     int
	RetryInterval  time.Duration
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	PoolSize       int
}

// Addr returns the host:port broker endpoint.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// BatchConfig holds batcher thresholds
type BatchConfig struct {
	MaxSize int
	Timeout time.Duration
}

// ElasticConfig holds search index connection configuration
type ElasticConfig struct {
	Host          string
	User          string
	Password      string
	CACertPath    string
	TLSInsecure   bool
	EmbeddingsDim int
}

// MLConfig holds the ML collaborator endpoints
type MLConfig struct {
	ClassifierEndpoint string
	EmbeddingsEndpoint string
	RequestTimeout     time.Duration
}

// MongoConfig holds the scraper repository configuration (notification mode)
type MongoConfig struct {
	Host       string
	Port       int
	Database   string
	Collection string
}

// URI returns the mongodb connection string.
func (c *MongoConfig) URI() string {
	return fmt.Sprintf("mongodb://%s:%d", c.Host, c.Port)
}

// HealthConfig holds health check configuration
type HealthConfig struct {
	Enabled      bool
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	RedisTimeout time.Duration
}

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	ErrorThreshold         float64
	SuccessThreshold       int
	Timeout                time.Duration
	MaxConcurrentCalls     int
	RequestVolumeThreshold int
}

// Load loads configuration from environment variables and defaults
func Load() (*Config, error) {
	cfg := &Config{
		App:            loadAppConfig(),
		Redis:          loadRedisConfig(),
		Batch:          loadBatchConfig(),
		Elastic:        loadElasticConfig(),
		ML:             loadMLConfig(),
		Mongo:          loadMongoConfig(),
		Health:         loadHealthConfig(),
		CircuitBreaker: loadCircuitBreakerConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadAppConfig() AppConfig {
	return AppConfig{
		Name:            getEnv("APP_NAME", "article-analyzer"),
		Environment:     getEnv("APP_ENV", "production"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "json"),
		Mode:            getEnv("PIPELINE_MODE", ModeArticles),
		ShutdownTimeout: getDurationEnv("APP_SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		Host:          getEnv("REDIS_HOST", "localhost"),
		Port:          getIntEnv("REDIS_PORT", 6379),
		Password:      getEnv("REDIS_PASSWORD", ""),
		DB:            getIntEnv("REDIS_DB", 0),
		StreamName:    getEnv("REDIS_STREAM_NAME", "scraped_articles"),
		ConsumerGroup: getEnv("REDIS_CONSUMER_GROUP", "article_analyzer"),

		ReadCount:    int64(getIntEnv("REDIS_READ_COUNT", 10)),
		BlockTimeout: getDurationEnv("REDIS_BLOCK_TIMEOUT", 10*time.Second),

		ClaimMinIdle:       getDurationEnv("REDIS_CLAIM_MIN_IDLE", 30*time.Second),
		ClaimCheckInterval: getDurationEnv("REDIS_CLAIM_CHECK_INTERVAL", 2*time.Minute),
		ClaimMaxCount:      int64(getIntEnv("REDIS_CLAIM_MAX_COUNT", 20)),

		MaxRetries:     getIntEnv("REDIS_MAX_RETRIES", 5),
		RetryInterval:  getDurationEnv("REDIS_RETRY_INTERVAL", 1*time.Second),
		ConnectTimeout: getDurationEnv("REDIS_CONNECT_TIMEOUT", 5*time.Second),
		ReadTimeout:    getDurationEnv("REDIS_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:   getDurationEnv("REDIS_WRITE_TIMEOUT", 3*time.Second),
		PoolSize:       getIntEnv("REDIS_POOL_SIZE", runtime.NumCPU()*10),
	}
}

func loadBatchConfig() BatchConfig {
	return BatchConfig{
		MaxSize: getIntEnv("MAX_BATCH_SIZE", 300),
		Timeout: time.Duration(getIntEnv("MAX_BATCH_TIMEOUT_MILLIS", 5000)) * time.Millisecond,
	}
}

func loadElasticConfig() ElasticConfig {
	return ElasticConfig{
		Host:          getEnv("ELASTIC_HOST", "https://localhost:9200"),
		User:          getEnv("ELASTIC_USER", "elastic"),
		Password:      getEnv("ELASTIC_PASSWORD", ""),
		CACertPath:    getEnv("ELASTIC_CA_PATH", "certs/_data/ca/ca.crt"),
		TLSInsecure:   getBoolEnv("ELASTIC_TLS_INSECURE", false),
		EmbeddingsDim: getIntEnv("EMBEDDINGS_DIM", 384),
	}
}

func loadMLConfig() MLConfig {
	return MLConfig{
		ClassifierEndpoint: getEnv("CAT_CLF_ENDPOINT", ""),
		EmbeddingsEndpoint: getEnv("EMBEDDINGS_ENDPOINT", ""),
		RequestTimeout:     getDurationEnv("ML_REQUEST_TIMEOUT", 2*time.Minute),
	}
}

func loadMongoConfig() MongoConfig {
	return MongoConfig{
		Host:       getEnv("MONGO_HOST", "localhost"),
		Port:       getIntEnv("MONGO_PORT", 27017),
		Database:   getEnv("MONGO_DB_SCRAPER", "scraper"),
		Collection: getEnv("MONGO_COLLECTION_SCRAPER", "scraped_articles"),
	}
}

func loadHealthConfig() HealthConfig {
	return HealthConfig{
		Enabled:      getBoolEnv("HEALTH_ENABLED", true),
		Port:         getIntEnv("HEALTH_PORT", 8080),
		ReadTimeout:  getDurationEnv("HEALTH_READ_TIMEOUT", 5*time.Second),
		WriteTimeout: getDurationEnv("HEALTH_WRITE_TIMEOUT", 5*time.Second),
		RedisTimeout: getDurationEnv("HEALTH_REDIS_TIMEOUT", 2*time.Second),
	}
}

func loadCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		ErrorThreshold:         getFloatEnv("CB_ERROR_THRESHOLD", 50.0),
		SuccessThreshold:       getIntEnv("CB_SUCCESS_THRESHOLD", 5),
		Timeout:                getDurationEnv("CB_TIMEOUT", 30*time.Second),
		MaxConcurrentCalls:     getIntEnv("CB_MAX_CONCURRENT", 100),
		RequestVolumeThreshold: getIntEnv("CB_REQUEST_VOLUME", 20),
	}
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
