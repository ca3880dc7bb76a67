package redis

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/beacon-news/analyzer/golang/internal/config"
	"github.com/beacon-news/analyzer/golang/internal/domain"
	"github.com/beacon-news/analyzer/golang/internal/ports"
	"github.com/beacon-news/analyzer/golang/pkg/jsonx"
)

// reclaimPollInterval is how often the reclaim loop wakes to check the
// shutdown flag between takeover attempts.
const reclaimPollInterval = 500 * time.Millisecond

// StreamConsumer pulls stream entries through a consumer group and delivers
// them to a handler together with a deferred acknowledgement handle.
//
// The consumer maintains a two-phase cursor: pending entries first (everything
// delivered to this consumer but never acked, including entries transferred in
// by the reclaim loop), then new entries. After an empty new-entry read it
// revisits the pending phase to pick up reclaimed entries.
type StreamConsumer struct {
	cfg          *config.RedisConfig
	client       ports.RedisClient
	logger       ports.Logger
	metrics      *domain.Metrics
	payloadField string

	reclaimWg sync.WaitGroup
}

// NewStreamConsumer creates a stream consumer delivering the given entry
// field as the payload.
func NewStreamConsumer(
	cfg *config.RedisConfig,
	client ports.RedisClient,
	logger ports.Logger,
	metrics *domain.Metrics,
	payloadField string,
) *StreamConsumer {
	return &StreamConsumer{
		cfg:          cfg,
		client:       client,
		logger:       logger.WithFields(ports.Field{Key: "component", Value: "stream-consumer"}),
		metrics:      metrics,
		payloadField: payloadField,
	}
}

// Consume runs the delivery loop until ctx is cancelled, the handler
// returns an error, or a broker read fails with a non-connection error. The handler runs synchronously on the loop goroutine and
// must not block unboundedly; entries are never acked by the consumer itself.
func (sc *StreamConsumer) Consume(ctx context.Context, handler ports.EntryHandler) error {
	stream := sc.cfg.StreamName
	group := sc.cfg.ConsumerGroup
	consumer := sc.client.ConsumerName()

	if err := sc.client.CreateConsumerGroup(ctx, stream, group, "0-0"); err != nil {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	sc.reclaimWg.Add(1)
	go sc.reclaimLoop(ctx)
	defer sc.reclaimWg.Wait()

	sc.logger.Info("consumer starting",
		ports.Field{Key: "group", Value: group},
		ports.Field{Key: "consumer", Value: consumer},
		ports.Field{Key: "stream", Value: stream},
	)

	// Drain pending entries before reading new ones.
	checkPending := true

	for {
		if ctx.Err() != nil {
			sc.logger.Info("consumer shutting down, waiting for reclaim loop")
			return nil
		}

		cursor := ">"
		if checkPending {
			cursor = "0"
		}

		records, err := sc.client.ReadGroup(ctx, group, consumer, stream, cursor, sc.cfg.ReadCount, sc.cfg.BlockTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			sc.metrics.RedisErrors.Add(1)
			if IsConnectionError(err) {
				sc.logger.Error("lost connection to redis, reconnecting", ports.Field{Key: "error", Value: err})
				if rerr := sc.waitForConnection(ctx); rerr != nil {
					return nil
				}
				continue
			}
			sc.logger.Error("unknown error while consuming entries", ports.Field{Key: "error", Value: err})
			return fmt.Errorf("failed to read from stream %s: %w", stream, err)
		}

		if len(records) == 0 {
			if checkPending {
				// Pending set drained, move to the new-entry fast path.
				checkPending = false
			} else {
				// Nothing new within the block timeout. Revisit the pending
				// phase to pick up entries transferred in by the reclaim loop.
				sc.logger.Debug("no new entries within block timeout")
				checkPending = true
			}
			continue
		}

		wasPending := checkPending

		for _, record := range records {
			entry := &domain.StreamEntry{
				ID:      record.ID,
				Payload: sc.extractPayload(record.Values),
				Ack: &entryAck{
					client: sc.client,
					stream: stream,
					group:  group,
					id:     record.ID,
				},
			}

			sc.metrics.EntriesReceived.Add(1)

			if herr := handler(entry); herr != nil {
				sc.logger.Error("handler failed, tearing down consumer",
					ports.Field{Key: "entryID", Value: record.ID},
					ports.Field{Key: "error", Value: herr},
				)
				return herr
			}

			if wasPending {
				sc.logger.Debug("consumed pending entry", ports.Field{Key: "entryID", Value: record.ID})
			} else {
				sc.logger.Debug("consumed entry", ports.Field{Key: "entryID", Value: record.ID})
			}
		}
	}
}

// waitForConnection reconnects with exponential backoff starting at a random
// 500-1000ms and doubling until ping succeeds.
func (sc *StreamConsumer) waitForConnection(ctx context.Context) error {
	backoff := time.Duration(500+rand.Intn(501)) * time.Millisecond // #nosec G404 -- jitter, not crypto
	for {
		if err := sc.client.Ping(ctx); err == nil {
			sc.logger.Info("reconnected to redis")
			return nil
		}
		sc.logger.Info("redis not ready, backing off", ports.Field{Key: "backoff", Value: backoff})
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

// reclaimLoop periodically transfers pending entries stranded on dead
// consumers to this consumer. Claimed entries surface through the pending
// phase of the main loop. Errors are logged and retried; they never
// terminate the main loop.
func (sc *StreamConsumer) reclaimLoop(ctx context.Context) {
	defer sc.reclaimWg.Done()

	var sinceLastCheck time.Duration

	for {
		select {
		case <-ctx.Done():
			sc.logger.Debug("exiting reclaim loop")
			return
		case <-time.After(reclaimPollInterval):
		}

		sinceLastCheck += reclaimPollInterval
		if sinceLastCheck < sc.cfg.ClaimCheckInterval {
			continue
		}
		sinceLastCheck = 0

		ids, err := sc.client.AutoClaim(
			ctx,
			sc.cfg.StreamName,
			sc.cfg.ConsumerGroup,
			sc.client.ConsumerName(),
			sc.cfg.ClaimMinIdle,
			"0-0",
			sc.cfg.ClaimMaxCount,
		)
		if err != nil {
			sc.logger.Error("error while reclaiming entries", ports.Field{Key: "error", Value: err})
			continue
		}
		if len(ids) > 0 {
			sc.metrics.EntriesClaimed.Add(uint64(len(ids)))
			sc.logger.Debug("reclaimed pending entries", ports.Field{Key: "count", Value: len(ids)})
		}
	}
}

// extractPayload pulls the payload field out of the entry values. A value
// that already looks like JSON is forwarded as-is; anything else is encoded
// once. Entries without the payload field are forwarded whole.
func (sc *StreamConsumer) extractPayload(values map[string]interface{}) []byte {
	if raw, ok := values[sc.payloadField]; ok {
		switch v := raw.(type) {
		case []byte:
			if jsonx.IsLikelyJSONBytes(v) {
				return v
			}
			b, _ := jsonx.Marshal(string(v))
			return b
		case string:
			if jsonx.IsLikelyJSONString(v) {
				return []byte(v)
			}
			b, _ := jsonx.Marshal(v)
			return b
		default:
			b, _ := jsonx.Marshal(v)
			return b
		}
	}
	b, err := jsonx.Marshal(values)
	if err != nil {
		return []byte("{}")
	}
	return b
}

// entryAck is the deferred acknowledgement handle for a single entry. It
// issues XACK against the shared client; acking twice is harmless.
type entryAck struct {
	client ports.RedisClient
	stream string
	group  string
	id     string
}

func (a *entryAck) Ack(ctx context.Context) error {
	return a.client.Ack(ctx, a.stream, a.group, a.id)
}
