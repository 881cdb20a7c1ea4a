package instrumentation

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the default tracer name for this module.
const TracerName = "github.com/giantswarm/phnx-homeserver"

// Span attribute keys for the homeserver's domain operations.
const (
	// SpanAttrUserDomain is the owning domain of the user or group a span concerns.
	SpanAttrUserDomain = "phnx.user.domain"

	// SpanAttrGroupID is the group (conversation) id a span concerns.
	SpanAttrGroupID = "phnx.group.id"

	// SpanAttrOperation is the operation type (enqueue, listen, ack, create_group, ...).
	SpanAttrOperation = "phnx.operation"

	// SpanAttrPhase is the connection-establishment flow phase.
	SpanAttrPhase = "phnx.connection.phase"

	// SpanAttrEpoch is the MLS epoch a group operation concerns.
	SpanAttrEpoch = "phnx.group.epoch"
)

// SpanAttributeBuilder helps construct OpenTelemetry span attributes with
// consistent naming.
type SpanAttributeBuilder struct {
	attrs []attribute.KeyValue
}

// NewSpanAttributeBuilder creates a new SpanAttributeBuilder.
func NewSpanAttributeBuilder() *SpanAttributeBuilder {
	return &SpanAttributeBuilder{attrs: make([]attribute.KeyValue, 0, 6)}
}

// WithOperation adds the operation type attribute.
func (b *SpanAttributeBuilder) WithOperation(operation string) *SpanAttributeBuilder {
	b.attrs = append(b.attrs, attribute.String(SpanAttrOperation, operation))
	return b
}

// WithUserDomain adds the user/group owning domain attribute.
func (b *SpanAttributeBuilder) WithUserDomain(domain string) *SpanAttributeBuilder {
	b.attrs = append(b.attrs, attribute.String(SpanAttrUserDomain, domain))
	return b
}

// WithGroup adds the group id attribute.
func (b *SpanAttributeBuilder) WithGroup(groupID string) *SpanAttributeBuilder {
	b.attrs = append(b.attrs, attribute.String(SpanAttrGroupID, groupID))
	return b
}

// WithPhase adds the connection-flow phase attribute.
func (b *SpanAttributeBuilder) WithPhase(phase string) *SpanAttributeBuilder {
	b.attrs = append(b.attrs, attribute.String(SpanAttrPhase, phase))
	return b
}

// WithEpoch adds the group epoch attribute.
func (b *SpanAttributeBuilder) WithEpoch(epoch uint64) *SpanAttributeBuilder {
	b.attrs = append(b.attrs, attribute.Int64(SpanAttrEpoch, int64(epoch)))
	return b
}

// Build returns the constructed attributes.
func (b *SpanAttributeBuilder) Build() []attribute.KeyValue {
	return b.attrs
}

// StartSpan starts a new span with the given name and attributes. The
// caller is responsible for ending the span with defer span.End().
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.GetTracerProvider().Tracer(TracerName)
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// StartStorageSpan starts a span around a storage transaction.
func StartStorageSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := make([]attribute.KeyValue, 0, len(attrs)+1)
	allAttrs = append(allAttrs, attribute.String(SpanAttrOperation, operation))
	allAttrs = append(allAttrs, attrs...)

	tracer := otel.GetTracerProvider().Tracer(TracerName)
	return tracer.Start(ctx, "storage."+operation,
		trace.WithAttributes(allAttrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// StartFlowSpan starts a span for one phase of the connection-establishment flow.
func StartFlowSpan(ctx context.Context, phase string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := make([]attribute.KeyValue, 0, len(attrs)+1)
	allAttrs = append(allAttrs, attribute.String(SpanAttrPhase, phase))
	allAttrs = append(allAttrs, attrs...)

	tracer := otel.GetTracerProvider().Tracer(TracerName)
	return tracer.Start(ctx, "connection_flow."+phase,
		trace.WithAttributes(allAttrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// SetSpanError records an error on the span and sets the status to error.
func SetSpanError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess sets the span status to OK.
func SetSpanSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// AddSpanEvent adds an event to the span with optional attributes.
func AddSpanEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// GetTraceID returns the trace ID from the current span in context, or
// empty string if no valid span is present.
func GetTraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		return span.SpanContext().TraceID().String()
	}
	return ""
}

// GetSpanID returns the span ID from the current span in context, or
// empty string if no valid span is present.
func GetSpanID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		return span.SpanContext().SpanID().String()
	}
	return ""
}
