// Package instrumentation provides OpenTelemetry metrics and tracing for
// the AS, QS and DS server processes.
//
// This package enables production-grade observability through:
//   - OpenTelemetry metrics for queue throughput, group operations,
//     credential lifecycle and connection-flow progress
//   - Distributed tracing for storage transactions and multi-phase flows
//   - A Prometheus metrics exporter (no HTTP /metrics route serves it in
//     this tree)
//   - OTLP export support for modern observability platforms
//
// # Metrics
//
// Queueing service (C2):
//   - queue_enqueue_total / queue_enqueue_duration_seconds
//   - queue_listen_total, queue_ack_total, queue_depth
//
// DS group engine (C3):
//   - group_operations_total / group_operation_duration_seconds
//
// Credential store (C1):
//   - credential_issued_total, credential_rotated_total, credential_revoked_total
//
// Connection-establishment flow (C4):
//   - connection_flow_phase_total / connection_flow_phase_duration_seconds
//
// Server/HTTP:
//   - http_requests_total / http_request_duration_seconds
//
// # Configuration
//
// Instrumentation can be configured via environment variables:
//   - INSTRUMENTATION_ENABLED: Enable/disable instrumentation (default: false)
//   - METRICS_EXPORTER: Metrics exporter type (prometheus, otlp, stdout, default: prometheus)
//   - TRACING_EXPORTER: Tracing exporter type (otlp, stdout, none, default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint for traces/metrics
//   - OTEL_TRACES_SAMPLER_ARG: Sampling rate (0.0 to 1.0, default: 0.1)
//   - OTEL_SERVICE_NAME: Service name (default: phnx-homeserver)
//
// # Example Usage
//
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.Config{
//		ServiceName:    "phnx-qs",
//		ServiceVersion: "0.1.0",
//		Enabled:        true,
//	})
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	recorder := provider.Metrics()
//	recorder.RecordEnqueue(ctx, "qs", time.Since(start), instrumentation.StatusSuccess)
package instrumentation
