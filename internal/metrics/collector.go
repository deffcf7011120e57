// Package metrics provides in-memory runtime statistics and the Prometheus
// registry served at /metrics.
package metrics

import (
	"math"
	"sync"
	"time"
)

// OperationMetrics holds aggregated metrics for a single operation type.
type OperationMetrics struct {
	Count     int64
	Errors    int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration
}

// OperationSnapshot provides computed stats from raw metrics.
type OperationSnapshot struct {
	Count       int64   `json:"count"`
	Errors      int64   `json:"errors"`
	TotalTimeMs int64   `json:"total_time_ms"`
	AvgTimeMs   float64 `json:"avg_time_ms"`
	MinTimeMs   int64   `json:"min_time_ms"`
	MaxTimeMs   int64   `json:"max_time_ms"`
}

// Snapshot represents the full server statistics at a point in time.
type Snapshot struct {
	UptimeSeconds float64            `json:"uptime_seconds"`
	DBQuery       *OperationSnapshot `json:"db_query,omitempty"`
	DexScreener   *OperationSnapshot `json:"dexscreener,omitempty"`
	CoinGecko     *OperationSnapshot `json:"coingecko,omitempty"`
	Cache         *OperationSnapshot `json:"cache,omitempty"`
	Result        *OperationSnapshot `json:"tournament_result,omitempty"`
}

// Operation names for the collector.
const (
	OpDBQuery     = "db_query"
	OpDexScreener = "dexscreener"
	OpCoinGecko   = "coingecko"
	OpCache       = "cache"
	OpResult      = "tournament_result"
)

// Collector aggregates in-memory runtime statistics.
// All methods are thread-safe. A nil *Collector ignores all records.
type Collector struct {
	mu        sync.RWMutex
	startTime time.Time
	ops       map[string]*OperationMetrics
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		ops:       make(map[string]*OperationMetrics),
	}
}

// getOrCreate returns existing metrics or creates new ones for an operation.
// Caller must hold write lock.
func (c *Collector) getOrCreate(op string) *OperationMetrics {
	m, ok := c.ops[op]
	if !ok {
		m = &OperationMetrics{
			MinTime: time.Duration(math.MaxInt64),
		}
		c.ops[op] = m
	}
	return m
}

// RecordTiming records timing for an operation.
func (c *Collector) RecordTiming(op string, duration time.Duration) {
	c.record(op, duration, nil)
}

// RecordOutcome records timing for an operation and counts it as an error
// when err is non-nil.
func (c *Collector) RecordOutcome(op string, duration time.Duration, err error) {
	c.record(op, duration, err)
}

// Time returns a func that records the elapsed time since Time was called.
//
//	defer c.Time(metrics.OpDBQuery)()
func (c *Collector) Time(op string) func() {
	start := time.Now()
	return func() { c.RecordTiming(op, time.Since(start)) }
}

func (c *Collector) record(op string, duration time.Duration, err error) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.getOrCreate(op)
	m.Count++
	m.TotalTime += duration
	if err != nil {
		m.Errors++
	}

	if duration < m.MinTime {
		m.MinTime = duration
	}
	if duration > m.MaxTime {
		m.MaxTime = duration
	}
}

// snapshotOp creates a snapshot for an operation, returning nil if no data.
func snapshotOp(m *OperationMetrics) *OperationSnapshot {
	if m == nil || m.Count == 0 {
		return nil
	}

	return &OperationSnapshot{
		Count:       m.Count,
		Errors:      m.Errors,
		TotalTimeMs: m.TotalTime.Milliseconds(),
		AvgTimeMs:   float64(m.TotalTime.Milliseconds()) / float64(m.Count),
		MinTimeMs:   m.MinTime.Milliseconds(),
		MaxTimeMs:   m.MaxTime.Milliseconds(),
	}
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		UptimeSeconds: time.Since(c.startTime).Seconds(),
		DBQuery:       snapshotOp(c.ops[OpDBQuery]),
		DexScreener:   snapshotOp(c.ops[OpDexScreener]),
		CoinGecko:     snapshotOp(c.ops[OpCoinGecko]),
		Cache:         snapshotOp(c.ops[OpCache]),
		Result:        snapshotOp(c.ops[OpResult]),
	}
}
