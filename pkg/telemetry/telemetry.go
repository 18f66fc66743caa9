// ABOUTME: Telemetry abstraction over OpenTelemetry used to instrument the zeta engine
// ABOUTME: Provides metric recording, tracing and lifecycle management with a no-op fallback

package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry lets components record metrics and spans without depending
// directly on OpenTelemetry.
type Telemetry interface {
	// RecordHistogram records a histogram value with optional attributes.
	RecordHistogram(ctx context.Context, name string, value float64, attrs ...attribute.KeyValue)

	// RecordCounter records a counter increment with optional attributes.
	RecordCounter(ctx context.Context, name string, value int64, attrs ...attribute.KeyValue)

	// StartSpan creates a new tracing span with the given name and attributes.
	StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span)

	// Shutdown flushes remaining data and stops all providers.
	Shutdown(ctx context.Context) error
}

// NoopTelemetry discards everything.
type NoopTelemetry struct{}

// NewNoop creates a new no-operation telemetry instance.
func NewNoop() Telemetry {
	return &NoopTelemetry{}
}

func (n *NoopTelemetry) RecordHistogram(ctx context.Context, name string, value float64, attrs ...attribute.KeyValue) {
}

func (n *NoopTelemetry) RecordCounter(ctx context.Context, name string, value int64, attrs ...attribute.KeyValue) {
}

// StartSpan returns the original context and the span already in it, which
// is a no-op span when none was started.
func (n *NoopTelemetry) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx = contextOrBackground(ctx)
	return ctx, trace.SpanFromContext(ctx)
}

func (n *NoopTelemetry) Shutdown(ctx context.Context) error {
	return nil
}

// RecordDuration records the seconds elapsed since start in a histogram.
func RecordDuration(ctx context.Context, tel Telemetry, name string, start time.Time, attrs ...attribute.KeyValue) {
	tel.RecordHistogram(ctx, name, time.Since(start).Seconds(), attrs...)
}

// Attribute keys
const (
	AttrOperationType = "operation.type"
	AttrComponent     = "component"
	AttrStatus        = "status"
	AttrErrorType     = "error.type"
	AttrBlockID       = "block.id"
	AttrCodec         = "codec"
	AttrMatchMode     = "match.mode"
)

// Attribute values
const (
	OpTypeInsert      = "insert"
	OpTypeQuery       = "query"
	OpTypeSearch      = "search"
	OpTypeLoad        = "load"
	OpTypeSave        = "save"
	OpTypeMaterialize = "materialize"

	StatusSuccess = "success"
	StatusError   = "error"

	ComponentEngine  = "engine"
	ComponentStorage = "storage"
)

// Metric names
const (
	MetricOperationDuration = "zeta.operation.duration"
	MetricOperations        = "zeta.operations"
	MetricBlocksProbed      = "zeta.blocks.probed"
	MetricBlocksSkipped     = "zeta.blocks.skipped"
)
