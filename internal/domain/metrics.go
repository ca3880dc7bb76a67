package domain

import (
	"sync/atomic"
	"time"
)

// Metrics holds atomic performance metrics
type Metrics struct {
	// Throughput metrics
	EntriesReceived atomic.Uint64
	EntriesAcked    atomic.Uint64
	EntriesClaimed  atomic.Uint64

	// Batch metrics
	BatchesReleased  atomic.Uint64
	BatchesFailed    atomic.Uint64
	PayloadsRejected atomic.Uint64

	// Index metrics
	ArticlesIndexed   atomic.Uint64
	CategoriesIndexed atomic.Uint64
	IndexFailures     atomic.Uint64

	// Error metrics
	RedisErrors atomic.Uint64

	// Performance metrics
	AnalyzeTimeNs atomic.Uint64

	// Start time for rate calculations
	StartTime time.Time
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		StartTime: time.Now(),
	}
}

// GetThroughputRate returns received entries per second
func (m *Metrics) GetThroughputRate() float64 {
	elapsed := time.Since(m.StartTime).Seconds()
	if elapsed == 0 {
		return 0
	}
	return float64(m.EntriesReceived.Load()) / elapsed
}

// GetIndexRate returns indexed articles per second
func (m *Metrics) GetIndexRate() float64 {
	elapsed := time.Since(m.StartTime).Seconds()
	if elapsed == 0 {
		return 0
	}
	return float64(m.ArticlesIndexed.Load()) / elapsed
}

// GetAverageAnalyzeTime returns average per-batch analysis time in nanoseconds
func (m *Metrics) GetAverageAnalyzeTime() float64 {
	batches := m.BatchesReleased.Load()
	if batches == 0 {
		return 0
	}
	return float64(m.AnalyzeTimeNs.Load()) / float64(batches)
}

// MetricsSnapshot represents a point-in-time metrics snapshot
type MetricsSnapshot struct {
	Timestamp         time.Time
	EntriesReceived   uint64
	EntriesAcked      uint64
	EntriesClaimed    uint64
	BatchesReleased   uint64
	BatchesFailed     uint64
	PayloadsRejected  uint64
	ArticlesIndexed   uint64
	CategoriesIndexed uint64
	IndexFailures     uint64
	RedisErrors       uint64
	ThroughputRate    float64
	IndexRate         float64
	AvgAnalyzeTimeMs  float64
}

// Snapshot creates a point-in-time snapshot of metrics
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Timestamp:         time.Now(),
		EntriesReceived:   m.EntriesReceived.Load(),
		EntriesAcked:      m.EntriesAcked.Load(),
		EntriesClaimed:    m.EntriesClaimed.Load(),
		BatchesReleased:   m.BatchesReleased.Load(),
		BatchesFailed:     m.BatchesFailed.Load(),
		PayloadsRejected:  m.PayloadsRejected.Load(),
		ArticlesIndexed:   m.ArticlesIndexed.Load(),
		CategoriesIndexed: m.CategoriesIndexed.Load(),
		IndexFailures:     m.IndexFailures.Load(),
		RedisErrors:       m.RedisErrors.Load(),
		ThroughputRate:    m.GetThroughputRate(),
		IndexRate:         m.GetIndexRate(),
		AvgAnalyzeTimeMs:  m.GetAverageAnalyzeTime() / 1e6,
	}
}
