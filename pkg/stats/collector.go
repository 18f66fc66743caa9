package stats

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// OperationType defines the type of operation being tracked
type OperationType string

const (
	OpInsert      OperationType = "insert"
	OpQuery       OperationType = "query"
	OpSearch      OperationType = "search"
	OpLoad        OperationType = "load"
	OpSave        OperationType = "save"
	OpMaterialize OperationType = "materialize"
)

// AtomicCollector collects engine statistics with atomic counters. The
// mutexes only guard creation of per-operation entries.
type AtomicCollector struct {
	counts   map[OperationType]*atomic.Uint64
	countsMu sync.RWMutex

	lastOpTime   map[OperationType]time.Time
	lastOpTimeMu sync.RWMutex

	totalBytesRead    atomic.Uint64
	totalBytesWritten atomic.Uint64

	errors   map[string]*atomic.Uint64
	errorsMu sync.RWMutex

	// Block counters
	blocksProbed        atomic.Uint64
	blocksSkipped       atomic.Uint64
	blocksCreated       atomic.Uint64
	materializations    atomic.Uint64
	recordsMaterialized atomic.Uint64

	loadStats LoadStats

	latencies   map[OperationType]*LatencyTracker
	latenciesMu sync.RWMutex
}

// LoadStats describes the most recent Load
type LoadStats struct {
	BlocksLoaded  atomic.Uint64
	ManifestFound atomic.Bool
	Duration      atomic.Int64 // nanoseconds
}

// LatencyTracker maintains running statistics about operation latencies
type LatencyTracker struct {
	count atomic.Uint64
	sum   atomic.Uint64 // nanoseconds
	max   atomic.Uint64
	min   atomic.Uint64 // zero until the first sample
}

// NewAtomicCollector creates a new atomic statistics collector
func NewAtomicCollector() *AtomicCollector {
	return &AtomicCollector{
		counts:     make(map[OperationType]*atomic.Uint64),
		lastOpTime: make(map[OperationType]time.Time),
		errors:     make(map[string]*atomic.Uint64),
		latencies:  make(map[OperationType]*LatencyTracker),
	}
}

// TrackOperation increments the counter for the specified operation type
func (c *AtomicCollector) TrackOperation(op OperationType) {
	c.getOrCreateCounter(op).Add(1)

	c.lastOpTimeMu.Lock()
	c.lastOpTime[op] = time.Now()
	c.lastOpTimeMu.Unlock()
}

// TrackOperationWithLatency tracks an operation and its latency
func (c *AtomicCollector) TrackOperationWithLatency(op OperationType, latencyNs uint64) {
	c.TrackOperation(op)

	tracker := c.getOrCreateLatencyTracker(op)
	tracker.count.Add(1)
	tracker.sum.Add(latencyNs)

	for {
		current := tracker.max.Load()
		if latencyNs <= current || tracker.max.CompareAndSwap(current, latencyNs) {
			break
		}
	}

	for {
		current := tracker.min.Load()
		if current != 0 && latencyNs >= current {
			break
		}
		if tracker.min.CompareAndSwap(current, latencyNs) {
			break
		}
	}
}

// TrackError increments the counter for the specified error type
func (c *AtomicCollector) TrackError(errorType string) {
	c.errorsMu.RLock()
	counter, exists := c.errors[errorType]
	c.errorsMu.RUnlock()

	if !exists {
		c.errorsMu.Lock()
		if counter, exists = c.errors[errorType]; !exists {
			counter = &atomic.Uint64{}
			c.errors[errorType] = counter
		}
		c.errorsMu.Unlock()
	}

	counter.Add(1)
}

// TrackBytes adds the specified number of bytes to the read or write counter
func (c *AtomicCollector) TrackBytes(isWrite bool, bytes uint64) {
	if isWrite {
		c.totalBytesWritten.Add(bytes)
	} else {
		c.totalBytesRead.Add(bytes)
	}
}

// TrackBlockProbe records one bloom pre-filter verdict
func (c *AtomicCollector) TrackBlockProbe(skipped bool) {
	c.blocksProbed.Add(1)
	if skipped {
		c.blocksSkipped.Add(1)
	}
}

// TrackBlockCreated increments the created-blocks counter
func (c *AtomicCollector) TrackBlockCreated() {
	c.blocksCreated.Add(1)
}

// TrackMaterialization records a block's records being read from disk
func (c *AtomicCollector) TrackMaterialization(records uint64) {
	c.materializations.Add(1)
	c.recordsMaterialized.Add(records)
}

// StartLoad resets load statistics
func (c *AtomicCollector) StartLoad() time.Time {
	c.loadStats.BlocksLoaded.Store(0)
	c.loadStats.ManifestFound.Store(false)
	c.loadStats.Duration.Store(0)
	return time.Now()
}

// FinishLoad completes load statistics
func (c *AtomicCollector) FinishLoad(startTime time.Time, blocks uint64, manifestFound bool) {
	c.loadStats.BlocksLoaded.Store(blocks)
	c.loadStats.ManifestFound.Store(manifestFound)
	c.loadStats.Duration.Store(time.Since(startTime).Nanoseconds())
}

// GetStats returns all statistics as a map
func (c *AtomicCollector) GetStats() map[string]interface{} {
	stats := make(map[string]interface{})

	c.countsMu.RLock()
	for op, counter := range c.counts {
		stats[string(op)+"_ops"] = counter.Load()
	}
	c.countsMu.RUnlock()

	c.lastOpTimeMu.RLock()
	for op, timestamp := range c.lastOpTime {
		stats["last_"+string(op)+"_time"] = timestamp.UnixNano()
	}
	c.lastOpTimeMu.RUnlock()

	stats["total_bytes_read"] = c.totalBytesRead.Load()
	stats["total_bytes_written"] = c.totalBytesWritten.Load()
	stats["blocks_probed"] = c.blocksProbed.Load()
	stats["blocks_skipped"] = c.blocksSkipped.Load()
	stats["blocks_created"] = c.blocksCreated.Load()
	stats["materializations"] = c.materializations.Load()
	stats["records_materialized"] = c.recordsMaterialized.Load()

	c.errorsMu.RLock()
	errorStats := make(map[string]uint64, len(c.errors))
	for errType, counter := range c.errors {
		errorStats[errType] = counter.Load()
	}
	c.errorsMu.RUnlock()
	stats["errors"] = errorStats

	load := map[string]interface{}{
		"blocks_loaded":  c.loadStats.BlocksLoaded.Load(),
		"manifest_found": c.loadStats.ManifestFound.Load(),
	}
	if d := c.loadStats.Duration.Load(); d > 0 {
		load["duration_ms"] = d / int64(time.Millisecond)
	}
	stats["load"] = load

	c.latenciesMu.RLock()
	for op, tracker := range c.latencies {
		count := tracker.count.Load()
		if count == 0 {
			continue
		}

		latencyStats := map[string]interface{}{
			"count":  count,
			"avg_ns": tracker.sum.Load() / count,
		}
		if min := tracker.min.Load(); min != 0 {
			latencyStats["min_ns"] = min
		}
		if max := tracker.max.Load(); max != 0 {
			latencyStats["max_ns"] = max
		}

		stats[string(op)+"_latency"] = latencyStats
	}
	c.latenciesMu.RUnlock()

	return stats
}

// GetStatsFiltered returns statistics whose key starts with prefix
func (c *AtomicCollector) GetStatsFiltered(prefix string) map[string]interface{} {
	filtered := make(map[string]interface{})
	for key, value := range c.GetStats() {
		if strings.HasPrefix(key, prefix) {
			filtered[key] = value
		}
	}
	return filtered
}

func (c *AtomicCollector) getOrCreateCounter(op OperationType) *atomic.Uint64 {
	c.countsMu.RLock()
	counter, exists := c.counts[op]
	c.countsMu.RUnlock()

	if !exists {
		c.countsMu.Lock()
		if counter, exists = c.counts[op]; !exists {
			counter = &atomic.Uint64{}
			c.counts[op] = counter
		}
		c.countsMu.Unlock()
	}

	return counter
}

func (c *AtomicCollector) getOrCreateLatencyTracker(op OperationType) *LatencyTracker {
	c.latenciesMu.RLock()
	tracker, exists := c.latencies[op]
	c.latenciesMu.RUnlock()

	if !exists {
		c.latenciesMu.Lock()
		if tracker, exists = c.latencies[op]; !exists {
			tracker = &LatencyTracker{}
			c.latencies[op] = tracker
		}
		c.latenciesMu.Unlock()
	}

	return tracker
}
