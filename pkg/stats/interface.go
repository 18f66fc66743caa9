package stats

import "time"

// Provider defines the interface for components that provide statistics
type Provider interface {
	// GetStats returns all statistics
	GetStats() map[string]interface{}

	// GetStatsFiltered returns statistics filtered by prefix
	GetStatsFiltered(prefix string) map[string]interface{}
}

// Collector interface defines methods for collecting statistics
type Collector interface {
	Provider

	// TrackOperation records a single operation
	TrackOperation(op OperationType)

	// TrackOperationWithLatency records an operation with its latency
	TrackOperationWithLatency(op OperationType, latencyNs uint64)

	// TrackError increments the counter for the specified error type
	TrackError(errorType string)

	// TrackBytes adds the specified number of bytes to the read or write counter
	TrackBytes(isWrite bool, bytes uint64)

	// TrackBlockProbe records the bloom verdict for one block during a query.
	// skipped is true when the filter ruled the block out.
	TrackBlockProbe(skipped bool)

	// TrackBlockCreated increments the created-blocks counter
	TrackBlockCreated()

	// TrackMaterialization records one block's records being read from disk
	TrackMaterialization(records uint64)

	// StartLoad resets load statistics and returns the start time
	StartLoad() time.Time

	// FinishLoad completes load statistics
	FinishLoad(startTime time.Time, blocks uint64, manifestFound bool)
}

// Ensure AtomicCollector implements the Collector interface
var _ Collector = (*AtomicCollector)(nil)
