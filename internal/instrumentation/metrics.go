package instrumentation

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys, shared across the counters and histograms below.
const (
	attrOperation = "operation"
	attrStatus    = "status"
	attrService   = "service"
	attrReason    = "reason"
	attrPhase     = "phase"
	attrMethod    = "method"
	attrPath      = "path"
)

// Metrics provides methods for recording the homeserver's observability
// metrics: queue throughput (C2), group operations (C3), credential
// lifecycle (C1), connection-flow progress (C4), and the health/metrics
// HTTP surface every serve-* process exposes.
type Metrics struct {
	// Queueing service (C2)
	queueEnqueueTotal   metric.Int64Counter
	queueEnqueueLatency metric.Float64Histogram
	queueListenTotal    metric.Int64Counter
	queueAckTotal       metric.Int64Counter
	queueDepth          metric.Int64Gauge

	// DS group engine (C3)
	groupOperationsTotal   metric.Int64Counter
	groupOperationDuration metric.Float64Histogram

	// Credential store (C1)
	credentialIssuedTotal   metric.Int64Counter
	credentialRotatedTotal  metric.Int64Counter
	credentialRevokedTotal  metric.Int64Counter

	// Connection-establishment flow (C4)
	connectionFlowPhaseTotal    metric.Int64Counter
	connectionFlowPhaseDuration metric.Float64Histogram

	// HTTP (health/metrics endpoints)
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram
}

// NewMetrics creates a new Metrics instance with every instrument
// registered against meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error

	m.queueEnqueueTotal, err = meter.Int64Counter(
		"queue_enqueue_total",
		metric.WithDescription("Messages enqueued into a client's persistent queue"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, fmt.Errorf("instrumentation: creating queue_enqueue_total: %w", err)
	}

	m.queueEnqueueLatency, err = meter.Float64Histogram(
		"queue_enqueue_duration_seconds",
		metric.WithDescription("Time to persist and notify one enqueue"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.5),
	)
	if err != nil {
		return nil, fmt.Errorf("instrumentation: creating queue_enqueue_duration_seconds: %w", err)
	}

	m.queueListenTotal, err = meter.Int64Counter(
		"queue_listen_total",
		metric.WithDescription("Listener attach/detach events on a client's queue stream"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("instrumentation: creating queue_listen_total: %w", err)
	}

	m.queueAckTotal, err = meter.Int64Counter(
		"queue_ack_total",
		metric.WithDescription("Sequence-number acknowledgements processed"),
		metric.WithUnit("{ack}"),
	)
	if err != nil {
		return nil, fmt.Errorf("instrumentation: creating queue_ack_total: %w", err)
	}

	m.queueDepth, err = meter.Int64Gauge(
		"queue_depth",
		metric.WithDescription("Unacknowledged messages remaining on a queue at last observation"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, fmt.Errorf("instrumentation: creating queue_depth: %w", err)
	}

	m.groupOperationsTotal, err = meter.Int64Counter(
		"group_operations_total",
		metric.WithDescription("DS group engine operations (create, join, update, remove, self-remove)"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("instrumentation: creating group_operations_total: %w", err)
	}

	m.groupOperationDuration, err = meter.Float64Histogram(
		"group_operation_duration_seconds",
		metric.WithDescription("DS group engine operation latency, including the validate-commit-fan-out transaction"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.05, 0.1, 0.5, 1.0, 2.5, 5.0),
	)
	if err != nil {
		return nil, fmt.Errorf("instrumentation: creating group_operation_duration_seconds: %w", err)
	}

	m.credentialIssuedTotal, err = meter.Int64Counter(
		"credential_issued_total",
		metric.WithDescription("Leaf credentials issued by the authentication service"),
		metric.WithUnit("{credential}"),
	)
	if err != nil {
		return nil, fmt.Errorf("instrumentation: creating credential_issued_total: %w", err)
	}

	m.credentialRotatedTotal, err = meter.Int64Counter(
		"credential_rotated_total",
		metric.WithDescription("Intermediate/signing key rotations completed"),
		metric.WithUnit("{rotation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("instrumentation: creating credential_rotated_total: %w", err)
	}

	m.credentialRevokedTotal, err = meter.Int64Counter(
		"credential_revoked_total",
		metric.WithDescription("Credentials revoked before their natural expiry"),
		metric.WithUnit("{revocation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("instrumentation: creating credential_revoked_total: %w", err)
	}

	m.connectionFlowPhaseTotal, err = meter.Int64Counter(
		"connection_flow_phase_total",
		metric.WithDescription("Connection-establishment flow phases completed (fetch, verify, reserve, prepare, deliver)"),
		metric.WithUnit("{phase}"),
	)
	if err != nil {
		return nil, fmt.Errorf("instrumentation: creating connection_flow_phase_total: %w", err)
	}

	m.connectionFlowPhaseDuration, err = meter.Float64Histogram(
		"connection_flow_phase_duration_seconds",
		metric.WithDescription("Per-phase latency of the connection-establishment flow"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.05, 0.1, 0.5, 1.0, 2.5, 5.0),
	)
	if err != nil {
		return nil, fmt.Errorf("instrumentation: creating connection_flow_phase_duration_seconds: %w", err)
	}

	m.httpRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests served on the health/metrics listener"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("instrumentation: creating http_requests_total: %w", err)
	}

	m.httpRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return nil, fmt.Errorf("instrumentation: creating http_request_duration_seconds: %w", err)
	}

	return m, nil
}

// RecordEnqueue records one message having been persisted to a queue.
func (m *Metrics) RecordEnqueue(ctx context.Context, service string, duration time.Duration, status string) {
	attrs := attribute.NewSet(
		attribute.String(attrService, service),
		attribute.String(attrStatus, status),
	)
	m.queueEnqueueTotal.Add(ctx, 1, metric.WithAttributeSet(attrs))
	m.queueEnqueueLatency.Record(ctx, duration.Seconds(), metric.WithAttributeSet(attrs))
}

// RecordListen records a listener attaching to or detaching from a stream.
func (m *Metrics) RecordListen(ctx context.Context, event string) {
	m.queueListenTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrReason, event)))
}

// RecordAck records one sequence-number acknowledgement.
func (m *Metrics) RecordAck(ctx context.Context, status string) {
	m.queueAckTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrStatus, status)))
}

// SetQueueDepth records the last-observed unacknowledged message count for a queue.
func (m *Metrics) SetQueueDepth(ctx context.Context, depth int64) {
	m.queueDepth.Record(ctx, depth)
}

// RecordGroupOperation records one DS group engine operation.
func (m *Metrics) RecordGroupOperation(ctx context.Context, operation string, duration time.Duration, status string) {
	attrs := attribute.NewSet(
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	)
	m.groupOperationsTotal.Add(ctx, 1, metric.WithAttributeSet(attrs))
	m.groupOperationDuration.Record(ctx, duration.Seconds(), metric.WithAttributeSet(attrs))
}

// RecordCredentialIssued records one leaf credential issuance.
func (m *Metrics) RecordCredentialIssued(ctx context.Context) {
	m.credentialIssuedTotal.Add(ctx, 1)
}

// RecordCredentialRotated records one intermediate/signing key rotation.
func (m *Metrics) RecordCredentialRotated(ctx context.Context) {
	m.credentialRotatedTotal.Add(ctx, 1)
}

// RecordCredentialRevoked records one credential revocation.
func (m *Metrics) RecordCredentialRevoked(ctx context.Context) {
	m.credentialRevokedTotal.Add(ctx, 1)
}

// RecordConnectionFlowPhase records completion of one phase of the
// connection-establishment flow (fetch, verify, reserve, prepare, deliver).
func (m *Metrics) RecordConnectionFlowPhase(ctx context.Context, phase string, duration time.Duration, status string) {
	attrs := attribute.NewSet(
		attribute.String(attrPhase, phase),
		attribute.String(attrStatus, status),
	)
	m.connectionFlowPhaseTotal.Add(ctx, 1, metric.WithAttributeSet(attrs))
	m.connectionFlowPhaseDuration.Record(ctx, duration.Seconds(), metric.WithAttributeSet(attrs))
}

// RecordHTTPRequest records one request served on the health/metrics listener.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	attrs := attribute.NewSet(
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.Int(attrStatus, statusCode),
	)
	m.httpRequestsTotal.Add(ctx, 1, metric.WithAttributeSet(attrs))
	m.httpRequestDuration.Record(ctx, duration.Seconds(), metric.WithAttributeSet(attrs))
}
