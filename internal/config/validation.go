package config

import (
	"fmt"
)

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := validateApp(c); err != nil {
		return err
	}
	if err := validateRedis(c); err != nil {
		return err
	}
	if err := validateBatch(c); err != nil {
		return err
	}
	if err := validateElastic(c); err != nil {
		return err
	}
	if err := validateML(c); err != nil {
		return err
	}
	if err := validateMongo(c); err != nil {
		return err
	}
	if err := validateHealth(c); err != nil {
		return err
	}
	return nil
}

func validateApp(c *Config) error {
	if c.App.Name == "" {
		return fmt.Errorf("app name cannot be empty")
	}
	if !isValidLogLevel(c.App.LogLevel) {
		return fmt.Errorf("invalid log level: %s", c.App.LogLevel)
	}
	if !isValidLogFormat(c.App.LogFormat) {
		return fmt.Errorf("invalid log format: %s", c.App.LogFormat)
	}
	if c.App.Mode != ModeArticles && c.App.Mode != ModeNotifications {
		return fmt.Errorf("invalid pipeline mode: %s", c.App.Mode)
	}
	if c.App.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive")
	}
	return nil
}

func isValidLogLevel(level string) bool {
	switch level {
	case "trace", "debug", "info", "warn", "error", "fatal":
		return true
	default:
		return false
	}
}

func isValidLogFormat(format string) bool {
	switch format {
	case "json", "text":
		return true
	default:
		return false
	}
}

func validateRedis(c *Config) error {
	if c.Redis.Host == "" {
		return fmt.Errorf("redis host cannot be empty")
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		return fmt.Errorf("invalid redis port: %d", c.Redis.Port)
	}
	if c.Redis.StreamName == "" {
		return fmt.Errorf("redis stream name cannot be empty")
	}
	if c.Redis.ConsumerGroup == "" {
		return fmt.Errorf("redis consumer group cannot be empty")
	}
	if c.Redis.ReadCount <= 0 {
		return fmt.Errorf("redis read count must be positive")
	}
	if c.Redis.BlockTimeout <= 0 {
		return fmt.Errorf("redis block timeout must be positive")
	}
	if c.Redis.ClaimMinIdle <= 0 {
		return fmt.Errorf("redis claim min idle must be positive")
	}
	if c.Redis.ClaimCheckInterval <= 0 {
		return fmt.Errorf("redis claim check interval must be positive")
	}
	if c.Redis.ClaimMaxCount <= 0 {
		return fmt.Errorf("redis claim max count must be positive")
	}
	return nil
}

func validateBatch(c *Config) error {
	if c.Batch.MaxSize <= 0 {
		return fmt.Errorf("max batch size must be positive")
	}
	if c.Batch.Timeout <= 0 {
		return fmt.Errorf("max batch timeout must be positive")
	}
	return nil
}

func validateElastic(c *Config) error {
	if c.Elastic.Host == "" {
		return fmt.Errorf("elastic host cannot be empty")
	}
	if c.Elastic.User == "" {
		return fmt.Errorf("elastic user cannot be empty")
	}
	if c.Elastic.Password == "" {
		return fmt.Errorf("ELASTIC_PASSWORD environment variable is not set")
	}
	if c.Elastic.EmbeddingsDim <= 0 {
		return fmt.Errorf("embeddings dimension must be positive")
	}
	return nil
}

func validateML(c *Config) error {
	if c.ML.ClassifierEndpoint == "" {
		return fmt.Errorf("CAT_CLF_ENDPOINT environment variable is not set")
	}
	if c.ML.EmbeddingsEndpoint == "" {
		return fmt.Errorf("EMBEDDINGS_ENDPOINT environment variable is not set")
	}
	if c.ML.RequestTimeout <= 0 {
		return fmt.Errorf("ml request timeout must be positive")
	}
	return nil
}

func validateMongo(c *Config) error {
	// The scraper repository is only dialed in notification mode.
	if c.App.Mode != ModeNotifications {
		return nil
	}
	if c.Mongo.Host == "" {
		return fmt.Errorf("mongo host cannot be empty")
	}
	if c.Mongo.Port <= 0 || c.Mongo.Port > 65535 {
		return fmt.Errorf("invalid mongo port: %d", c.Mongo.Port)
	}
	if c.Mongo.Database == "" || c.Mongo.Collection == "" {
		return fmt.Errorf("mongo database and collection cannot be empty")
	}
	return nil
}

func validateHealth(c *Config) error {
	if !c.Health.Enabled {
		return nil
	}
	if c.Health.Port <= 0 || c.Health.Port > 65535 {
		return fmt.Errorf("invalid health port: %d", c.Health.Port)
	}
	return nil
}
