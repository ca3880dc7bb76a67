// Package redis provides a Redis Streams client implementation and the consumer-group stream consumer.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/beacon-news/analyzer/golang/internal/config"
	"github.com/beacon-news/analyzer/golang/internal/ports"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// client implements ports.RedisClient using go-redis v9
type client struct {
	client       goredis.UniversalClient
	cfg          *config.RedisConfig
	logger       ports.Logger
	consumerName string
}

// NewClient creates a new Redis client using the application config
func NewClient(cfg *config.Config, logger ports.Logger) (ports.RedisClient, error) {
	return newClient(&cfg.Redis, logger)
}

func newClient(cfg *config.RedisConfig, logger ports.Logger) (*client, error) {
	c := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.ConnectTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Fresh consumer identity per process start: restarted processes must not
	// inherit their predecessor's pending entries directly. Those flow through
	// the reclaim path instead.
	u := uuid.New()
	consumerName := fmt.Sprintf("%s_%x", cfg.ConsumerGroup, u[:])

	return &client{
		client:       c,
		cfg:          cfg,
		logger:       logger.WithFields(ports.Field{Key: "component", Value: "redis-client"}),
		consumerName: consumerName,
	}, nil
}

// CreateConsumerGroup creates a new consumer group if it doesn't exist
func (c *client) CreateConsumerGroup(ctx context.Context, stream, group, startID string) error {
	// XGROUP CREATE with MKSTREAM creates the stream if it doesn't exist.
	// The "BUSYGROUP" error means the group already exists.
	return c.executeWithRetry(ctx, func(ctx context.Context) error {
		err := c.client.XGroupCreateMkStream(ctx, stream, group, startID).Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			return err
		}
		return nil
	})
}

// ReadGroup reads entries from a stream for a specific consumer
func (c *client) ReadGroup(
	ctx context.Context,
	group, consumer, stream, cursor string,
	count int64,
	block time.Duration,
) ([]ports.StreamRecord, error) {
	var records []ports.StreamRecord

	err := c.executeWithRetry(ctx, func(ctx context.Context) error {
		streams, err := c.client.XReadGroup(ctx, &goredis.XReadGroupArgs{
			Group:    group,
			Consumer: consumer,
			Streams:  []string{stream, cursor},
			Count:    count,
			Block:    block,
			NoAck:    false,
		}).Result()

		if err != nil {
			// redis.Nil means the block timeout expired with no entries
			if errors.Is(err, goredis.Nil) {
				records = nil
				return nil
			}
			// Group missing after a Redis restart: recreate and continue
			if strings.Contains(err.Error(), "NOGROUP") {
				cgErr := c.client.XGroupCreateMkStream(ctx, stream, group, "0-0").Err()
				if cgErr != nil && !strings.Contains(cgErr.Error(), "BUSYGROUP") {
					return cgErr
				}
				records = nil
				return nil
			}
			return err
		}

		records = convertXStreams(streams)
		return nil
	})

	return records, err
}

// Ack acknowledges entries in a stream
func (c *client) Ack(ctx context.Context, stream, group string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return c.executeWithRetry(ctx, func(ctx context.Context) error {
		err := c.client.XAck(ctx, stream, group, ids...).Err()
		if err != nil && strings.Contains(err.Error(), "NOGROUP") {
			// Group missing (e.g. after Redis restart). Treat as already acked.
			return nil
		}
		return err
	})
}

// AutoClaim transfers pending entries idle longer than minIdle to consumer
func (c *client) AutoClaim(
	ctx context.Context,
	stream, group, consumer string,
	minIdle time.Duration,
	start string,
	count int64,
) ([]string, error) {
	var ids []string

	err := c.executeWithRetry(ctx, func(ctx context.Context) error {
		claimed, _, err := c.client.XAutoClaimJustID(ctx, &goredis.XAutoClaimArgs{
			Stream:   stream,
			Group:    group,
			Consumer: consumer,
			MinIdle:  minIdle,
			Start:    start,
			Count:    count,
		}).Result()
		if err != nil {
			if errors.Is(err, goredis.Nil) {
				ids = nil
				return nil
			}
			return err
		}
		ids = claimed
		return nil
	})

	return ids, err
}

// Ping checks the connection to Redis
func (c *client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis client
func (c *client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// ConsumerName returns the name of the consumer
func (c *client) ConsumerName() string {
	return c.consumerName
}

// convertXStreams flattens go-redis stream results into StreamRecords.
func convertXStreams(streams []goredis.XStream) []ports.StreamRecord {
	var records []ports.StreamRecord
	for _, stream := range streams {
		for _, xmsg := range stream.Messages {
			records = append(records, ports.StreamRecord{
				ID:     xmsg.ID,
				Values: xmsg.Values,
			})
		}
	}
	return records
}

// executeWithRetry retries transient broker failures up to cfg.MaxRetries.
func (c *client) executeWithRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	var attempt int
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, goredis.Nil) {
			return nil
		}

		if !IsConnectionError(err) || attempt >= c.cfg.MaxRetries {
			return err
		}
		attempt++
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.cfg.RetryInterval):
		}
	}
}

// IsConnectionError reports whether err appears to be a transient connection/loading issue.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	es := err.Error()
	return strings.Contains(es, "LOADING") ||
		strings.Contains(es, "connect: connection refused") ||
		strings.Contains(es, "i/o timeout") ||
		strings.Contains(es, "EOF") ||
		strings.Contains(es, "read: connection reset")
}
