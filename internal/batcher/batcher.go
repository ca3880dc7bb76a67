// Package batcher coalesces single stream entries into size- and time-bounded batches.
package batcher

import (
	"context"
	"sync"
	"time"

	"github.com/beacon-news/analyzer/golang/internal/config"
	"github.com/beacon-news/analyzer/golang/internal/domain"
	"github.com/beacon-news/analyzer/golang/internal/ports"
)

// ReleaseFunc processes a released batch of payloads. A non-nil error keeps
// the batch's entries and acks queued; acks only fire after a nil return.
type ReleaseFunc func(ctx context.Context, payloads [][]byte) error

// Batcher accumulates stream entries and releases them downstream when
// either the size threshold is reached or the inactivity timer fires. The
// deferred acknowledgements of a batch are invoked only after the release
// callback returns success, so upstream retirement is coupled to durable
// storage.
type Batcher struct {
	cfg     *config.BatchConfig
	logger  ports.Logger
	metrics *domain.Metrics
	release ReleaseFunc

	mu      sync.Mutex
	queue   [][]byte
	acks    []domain.Acker
	touched bool

	ctx    context.Context
	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates a batcher with the configured thresholds.
func New(cfg *config.BatchConfig, logger ports.Logger, metrics *domain.Metrics, release ReleaseFunc) *Batcher {
	return &Batcher{
		cfg:     cfg,
		logger:  logger.WithFields(ports.Field{Key: "component", Value: "batcher"}),
		metrics: metrics,
		release: release,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start launches the interval goroutine. The context is also used for
// release calls and acknowledgements.
func (b *Batcher) Start(ctx context.Context) {
	b.ctx = ctx
	go b.intervalLoop()
}

// Stop terminates the interval goroutine and drains the current batch
// best-effort.
func (b *Batcher) Stop() {
	close(b.stopCh)
	<-b.doneCh

	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queue) > 0 {
		b.logger.Info("draining remaining batch on shutdown", ports.Field{Key: "size", Value: len(b.queue)})
		b.flushLocked()
	}
}

// HandleEntry implements ports.EntryHandler. The entry's payload and ack are
// appended under the lock; when the queue reaches the size threshold the
// batch is released synchronously on the caller's goroutine.
func (b *Batcher) HandleEntry(entry *domain.StreamEntry) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	// The queue was touched, so the next timer tick is skipped.
	b.touched = true

	b.queue = append(b.queue, entry.Payload)
	b.acks = append(b.acks, entry.Ack)

	if len(b.queue) >= b.cfg.MaxSize {
		b.logger.Info("max batch size reached, releasing batch",
			ports.Field{Key: "size", Value: len(b.queue)})
		b.flushLocked()
	}
	return nil
}

// intervalLoop fires once per configured timeout. A tick that follows an
// arrival is skipped; a quiet tick releases whatever has accumulated.
func (b *Batcher) intervalLoop() {
	defer close(b.doneCh)

	b.logger.Info("starting batch interval loop", ports.Field{Key: "interval", Value: b.cfg.Timeout})
	ticker := time.NewTicker(b.cfg.Timeout)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopCh:
			return
		case <-b.ctx.Done():
			return
		case <-ticker.C:
		}

		b.mu.Lock()
		if b.touched {
			b.touched = false
			b.mu.Unlock()
			b.logger.Debug("interval loop skipped iteration")
			continue
		}
		if len(b.queue) > 0 {
			b.flushLocked()
		}
		b.mu.Unlock()
	}
}

// flushLocked releases the current batch. On success every deferred ack is
// invoked and the queue resets; on failure queue and acks are retained so
// that nothing is acknowledged for a failed batch. The caller holds the lock.
func (b *Batcher) flushLocked() {
	if len(b.queue) == 0 {
		return
	}

	if err := b.release(b.ctx, b.queue); err != nil {
		b.metrics.BatchesFailed.Add(1)
		b.logger.Error("batch release failed, withholding acks",
			ports.Field{Key: "size", Value: len(b.queue)},
			ports.Field{Key: "error", Value: err},
		)
		return
	}

	b.metrics.BatchesReleased.Add(1)

	for _, ack := range b.acks {
		if ack == nil {
			continue
		}
		if err := ack.Ack(b.ctx); err != nil {
			// The entry stays pending and will be redelivered; storage is
			// idempotent, so a retry is harmless.
			b.logger.Error("failed to ack entry", ports.Field{Key: "error", Value: err})
			continue
		}
		b.metrics.EntriesAcked.Add(1)
	}

	b.queue = nil
	b.acks = nil
}
