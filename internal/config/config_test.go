package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setRequiredEnv sets the variables without defaults so Load can succeed.
func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ELASTIC_PASSWORD", "secret")
	t.Setenv("CAT_CLF_ENDPOINT", "http://classifier:8000")
	t.Setenv("EMBEDDINGS_ENDPOINT", "http://embeddings:8000")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "article-analyzer", cfg.App.Name)
	assert.Equal(t, ModeArticles, cfg.App.Mode)

	assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
	assert.Equal(t, "scraped_articles", cfg.Redis.StreamName)
	assert.Equal(t, "article_analyzer", cfg.Redis.ConsumerGroup)
	assert.Equal(t, int64(10), cfg.Redis.ReadCount)
	assert.Equal(t, 10*time.Second, cfg.Redis.BlockTimeout)
	assert.Equal(t, 30*time.Second, cfg.Redis.ClaimMinIdle)
	assert.Equal(t, 2*time.Minute, cfg.Redis.ClaimCheckInterval)
	assert.Equal(t, int64(20), cfg.Redis.ClaimMaxCount)

	assert.Equal(t, 300, cfg.Batch.MaxSize)
	assert.Equal(t, 5000*time.Millisecond, cfg.Batch.Timeout)

	assert.Equal(t, "https://localhost:9200", cfg.Elastic.Host)
	assert.Equal(t, "elastic", cfg.Elastic.User)
	assert.Equal(t, 384, cfg.Elastic.EmbeddingsDim)
	assert.False(t, cfg.Elastic.TLSInsecure)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("REDIS_HOST", "redis.internal")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("REDIS_STREAM_NAME", "scraped_articles_test")
	t.Setenv("MAX_BATCH_SIZE", "50")
	t.Setenv("MAX_BATCH_TIMEOUT_MILLIS", "750")
	t.Setenv("EMBEDDINGS_DIM", "768")
	t.Setenv("PIPELINE_MODE", "notifications")
	t.Setenv("MONGO_HOST", "mongo.internal")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr())
	assert.Equal(t, "scraped_articles_test", cfg.Redis.StreamName)
	assert.Equal(t, 50, cfg.Batch.MaxSize)
	assert.Equal(t, 750*time.Millisecond, cfg.Batch.Timeout)
	assert.Equal(t, 768, cfg.Elastic.EmbeddingsDim)
	assert.Equal(t, ModeNotifications, cfg.App.Mode)
	assert.Equal(t, "mongodb://mongo.internal:27017", cfg.Mongo.URI())
}

func TestLoadInvalidValuesFallBackToDefaults(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MAX_BATCH_SIZE", "not-a-number")
	t.Setenv("REDIS_BLOCK_TIMEOUT", "soon")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 300, cfg.Batch.MaxSize)
	assert.Equal(t, 10*time.Second, cfg.Redis.BlockTimeout)
}

func TestLoadFailsWithoutElasticPassword(t *testing.T) {
	t.Setenv("CAT_CLF_ENDPOINT", "http://classifier:8000")
	t.Setenv("EMBEDDINGS_ENDPOINT", "http://embeddings:8000")
	t.Setenv("ELASTIC_PASSWORD", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ELASTIC_PASSWORD")
}

func TestLoadFailsWithoutModelEndpoints(t *testing.T) {
	t.Setenv("ELASTIC_PASSWORD", "secret")
	t.Setenv("CAT_CLF_ENDPOINT", "")
	t.Setenv("EMBEDDINGS_ENDPOINT", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CAT_CLF_ENDPOINT")
}

func TestValidateRejectsBadValues(t *testing.T) {
	setRequiredEnv(t)

	tests := []struct {
		name   string
		mutate func(cfg *Config)
	}{
		{name: "empty stream", mutate: func(cfg *Config) { cfg.Redis.StreamName = "" }},
		{name: "empty group", mutate: func(cfg *Config) { cfg.Redis.ConsumerGroup = "" }},
		{name: "bad redis port", mutate: func(cfg *Config) { cfg.Redis.Port = 0 }},
		{name: "zero read count", mutate: func(cfg *Config) { cfg.Redis.ReadCount = 0 }},
		{name: "zero batch size", mutate: func(cfg *Config) { cfg.Batch.MaxSize = 0 }},
		{name: "zero batch timeout", mutate: func(cfg *Config) { cfg.Batch.Timeout = 0 }},
		{name: "bad log level", mutate: func(cfg *Config) { cfg.App.LogLevel = "verbose" }},
		{name: "bad mode", mutate: func(cfg *Config) { cfg.App.Mode = "streaming" }},
		{name: "zero embeddings dim", mutate: func(cfg *Config) { cfg.Elastic.EmbeddingsDim = 0 }},
		{name: "zero claim idle", mutate: func(cfg *Config) { cfg.Redis.ClaimMinIdle = 0 }},
		{name: "bad health port", mutate: func(cfg *Config) { cfg.Health.Port = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load()
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateMongoOnlyInNotificationMode(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	// Broken mongo config is fine in articles mode...
	cfg.Mongo.Host = ""
	require.NoError(t, cfg.Validate())

	// ...but rejected in notification mode.
	cfg.App.Mode = ModeNotifications
	require.Error(t, cfg.Validate())
}
