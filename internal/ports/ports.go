// Package ports defines the service interfaces (ports) used by the application to decouple implementations.
package ports

import (
	"context"
	"time"

	"github.com/beacon-news/analyzer/golang/internal/domain"
)

// RedisClient defines the interface for Redis stream operations
type RedisClient interface {
	// CreateConsumerGroup creates the group (and the stream, if missing).
	// "group already exists" is not an error.
	CreateConsumerGroup(ctx context.Context, stream, group, startID string) error

	// ReadGroup reads up to count entries for the consumer. A cursor of ">"
	// requests entries never delivered to the group; a concrete id requests
	// this consumer's pending entries after that id.
	ReadGroup(
		ctx context.Context,
		group, consumer, stream, cursor string,
		count int64,
		block time.Duration,
	) ([]StreamRecord, error)

	// Ack acknowledges entries, retiring them from the pending set.
	Ack(ctx context.Context, stream, group string, ids ...string) error

	// AutoClaim transfers pending entries idle longer than minIdle to the
	// given consumer and returns the claimed ids.
	AutoClaim(
		ctx context.Context,
		stream, group, consumer string,
		minIdle time.Duration,
		start string,
		count int64,
	) ([]string, error)

	// ConsumerName returns the per-process consumer identity.
	ConsumerName() string

	// Health check
	Ping(ctx context.Context) error
	Close() error
}

// StreamRecord is a raw stream entry as returned by the broker.
type StreamRecord struct {
	ID     string
	Values map[string]interface{}
}

// EntryHandler receives delivered stream entries. A non-nil error tears the
// consumer down; acknowledgement is the handler's responsibility.
type EntryHandler func(entry *domain.StreamEntry) error

// IndexWriter defines the bulk operations against the search index
type IndexWriter interface {
	StoreCategories(ctx context.Context, categories []domain.Category) ([]string, error)
	StoreArticles(ctx context.Context, articles []domain.EnrichedArticle) ([]string, error)
}

// Classifier assigns zero or more category labels to each text.
// The output has the same length and order as the input.
type Classifier interface {
	PredictBatch(ctx context.Context, texts []string) ([][]string, error)
}

// Embedder encodes each text into a fixed-dimension dense vector.
type Embedder interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)
}

// ScraperRepository fetches full scraped documents by id. Used when the
// stream carries scrape-done notifications instead of whole articles.
type ScraperRepository interface {
	GetArticleBatch(ctx context.Context, ids []string) ([][]byte, error)
	Close(ctx context.Context) error
}

// Logger defines the interface for logging
type Logger interface {
	Trace(msg string, fields ...Field)
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Fatal(msg string, fields ...Field)
	WithFields(fields ...Field) Logger
}

// Field represents a logging field
type Field struct {
	Key   string
	Value interface{}
}

// HealthStatus represents the health status of a component
type HealthStatus struct {
	Healthy bool
	Message string
}

// CircuitBreaker defines the interface for circuit breaker pattern
type CircuitBreaker interface {
	Execute(fn func() error) error
	GetState() string
	GetStats() CircuitBreakerStats
}

// CircuitBreakerStats represents circuit breaker statistics
type CircuitBreakerStats struct {
	Requests            uint64
	TotalSuccess        uint64
	TotalFailure        uint64
	ConsecutiveFailures uint64
	State               string
}
