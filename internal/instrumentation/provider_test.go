package instrumentation

import (
	"context"
	"testing"
	"time"
)

func TestNewProvider_Disabled(t *testing.T) {
	ctx := context.Background()
	provider, err := NewProvider(ctx, Config{ServiceName: "phnx-test", Enabled: false})
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	if provider.Enabled() {
		t.Error("Enabled() should be false")
	}
	if provider.Metrics() == nil {
		t.Fatal("Metrics() should never be nil, even when disabled")
	}

	// Recording against a disabled provider must not panic.
	provider.Metrics().RecordEnqueue(ctx, "qs", time.Millisecond, StatusSuccess)

	if err := provider.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestNewProvider_PrometheusEnabled(t *testing.T) {
	ctx := context.Background()
	provider, err := NewProvider(ctx, Config{
		ServiceName:     "phnx-test",
		ServiceVersion:  "0.0.0-test",
		Enabled:         true,
		MetricsExporter: "prometheus",
		TracingExporter: "none",
	})
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	defer provider.Shutdown(ctx)

	if !provider.Enabled() {
		t.Error("Enabled() should be true")
	}

	metrics := provider.Metrics()
	metrics.RecordEnqueue(ctx, "qs", time.Millisecond, StatusSuccess)
	metrics.RecordGroupOperation(ctx, "create_group", time.Millisecond, StatusSuccess)
	metrics.RecordCredentialIssued(ctx)
	metrics.RecordConnectionFlowPhase(ctx, "reserve", time.Millisecond, StatusSuccess)
	metrics.RecordHTTPRequest(ctx, "GET", "/healthz", 200, time.Millisecond)
}

func TestNewProvider_UnknownExporter(t *testing.T) {
	ctx := context.Background()
	_, err := NewProvider(ctx, Config{
		ServiceName:     "phnx-test",
		Enabled:         true,
		MetricsExporter: "not-a-real-exporter",
	})
	if err == nil {
		t.Fatal("expected an error for an unknown metrics exporter")
	}
}
