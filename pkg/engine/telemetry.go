// ABOUTME: Engine-level telemetry: operation spans, latency histograms and block probe counters
// ABOUTME: Thin adapter over the telemetry interface so the engine never touches OpenTelemetry directly

package engine

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/766974616c79/zeta/pkg/format"
	"github.com/766974616c79/zeta/pkg/storage"
	"github.com/766974616c79/zeta/pkg/telemetry"
)

type engineMetrics struct {
	tel telemetry.Telemetry
}

func newEngineMetrics(tel telemetry.Telemetry) *engineMetrics {
	if tel == nil {
		tel = telemetry.NewNoop()
	}
	return &engineMetrics{tel: tel}
}

// startOperation opens a span for op. The returned function ends it and
// records the duration and outcome.
func (m *engineMetrics) startOperation(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	attrs = append(attrs, attribute.String(telemetry.AttrOperationType, op))
	ctx, span := m.tel.StartSpan(ctx, "zeta."+op, attrs...)

	return ctx, func(err error) {
		status := telemetry.StatusSuccess
		if err != nil {
			status = telemetry.StatusError
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()

		result := []attribute.KeyValue{
			attribute.String(telemetry.AttrOperationType, op),
			attribute.String(telemetry.AttrStatus, status),
		}
		if err != nil {
			result = append(result, attribute.String(telemetry.AttrErrorType, errorType(err)))
		}
		telemetry.RecordDuration(ctx, m.tel, telemetry.MetricOperationDuration, start, result...)
		m.tel.RecordCounter(ctx, telemetry.MetricOperations, 1, result...)
	}
}

func (m *engineMetrics) recordProbe(ctx context.Context, blockID int, skipped bool) {
	attrs := attribute.Int(telemetry.AttrBlockID, blockID)
	m.tel.RecordCounter(ctx, telemetry.MetricBlocksProbed, 1, attrs)
	if skipped {
		m.tel.RecordCounter(ctx, telemetry.MetricBlocksSkipped, 1, attrs)
	}
	trace.SpanFromContext(ctx).AddEvent("block.probe", trace.WithAttributes(
		attrs, attribute.Bool("skipped", skipped),
	))
}

func (m *engineMetrics) shutdown(ctx context.Context) error {
	return m.tel.Shutdown(ctx)
}

// errorType classifies err for metric attributes and error counters.
func errorType(err error) string {
	switch {
	case errors.Is(err, format.ErrCorruption):
		return "corruption"
	case errors.Is(err, storage.ErrChecksumMismatch):
		return "checksum_mismatch"
	case errors.Is(err, ErrClosed):
		return "closed"
	default:
		return "io"
	}
}
