// ABOUTME: Tests for the OpenTelemetry-backed provider using real SDK providers and exporters
// ABOUTME: Covers disabled and invalid configs, stdout export and the Prometheus scrape handler

package telemetry

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestNew(t *testing.T) {
	t.Run("disabled telemetry returns noop", func(t *testing.T) {
		tel, err := New(Config{Enabled: false})
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if _, ok := tel.(*NoopTelemetry); !ok {
			t.Errorf("Expected *NoopTelemetry, got %T", tel)
		}
	})

	t.Run("invalid config returns error", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Enabled = true
		cfg.ServiceName = ""
		if _, err := New(cfg); err == nil {
			t.Error("Expected error but got none")
		}
	})

	t.Run("valid config returns provider", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Enabled = true
		cfg.Output = io.Discard

		tel, err := New(cfg)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if _, ok := tel.(*TelemetryProvider); !ok {
			t.Fatalf("Expected *TelemetryProvider, got %T", tel)
		}
		if err := tel.Shutdown(context.Background()); err != nil {
			t.Errorf("Shutdown returned error: %v", err)
		}
	})
}

func TestProviderStdoutSpans(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.Output = &buf

	tel, err := New(cfg)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	ctx, span := tel.StartSpan(context.Background(), "engine.save", attribute.String(AttrCodec, "lz4"))
	if !span.SpanContext().IsValid() {
		t.Error("Expected a recording span with a valid context")
	}
	tel.RecordCounter(ctx, MetricOperations, 1, attribute.String(AttrOperationType, OpTypeSave))
	tel.RecordHistogram(ctx, MetricOperationDuration, 0.01)
	span.End()

	// Shutdown flushes the batcher and the periodic reader
	if err := tel.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown returned error: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "engine.save") {
		t.Errorf("Expected span name in stdout export, got %q", out)
	}
	if !strings.Contains(out, MetricOperations) {
		t.Errorf("Expected counter name in stdout export, got %q", out)
	}
}

func TestProviderPrometheusHandler(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.Exporters = []string{ExporterPrometheus}

	tel, err := New(cfg)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	defer tel.Shutdown(context.Background())

	provider := tel.(*TelemetryProvider)
	provider.RecordCounter(context.Background(), MetricOperations, 3, attribute.String(AttrOperationType, OpTypeQuery))

	srv := httptest.NewServer(provider.MetricsHandler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("scrape failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read scrape body: %v", err)
	}
	if !strings.Contains(string(body), "zeta_operations_total") {
		t.Errorf("Expected zeta_operations_total in scrape output, got:\n%s", body)
	}
}
