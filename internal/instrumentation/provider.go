package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Provider owns the OpenTelemetry meter and tracer providers for one
// process and the Metrics recorder built on top of them. Shutdown flushes
// and stops both providers.
type Provider struct {
	config Config

	meterProvider  *metric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	metrics        *Metrics
}

// NewProvider builds the resource, exporters and SDK providers described by
// config, registers them as the global otel providers, and returns a
// Provider ready to hand out a Metrics recorder. If config.Enabled is
// false, NewProvider still returns a usable no-op Provider so callers don't
// need to special-case instrumentation being off.
func NewProvider(ctx context.Context, config Config) (*Provider, error) {
	if !config.Enabled {
		noopMeter := otel.GetMeterProvider().Meter(config.ServiceName)
		metrics, err := NewMetrics(noopMeter)
		if err != nil {
			return nil, fmt.Errorf("instrumentation: building no-op metrics: %w", err)
		}
		return &Provider{config: config, metrics: metrics}, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("instrumentation: building resource: %w", err)
	}

	meterProvider, err := newMeterProvider(ctx, config, res)
	if err != nil {
		return nil, fmt.Errorf("instrumentation: building meter provider: %w", err)
	}
	otel.SetMeterProvider(meterProvider)

	tracerProvider, err := newTracerProvider(ctx, config, res)
	if err != nil {
		return nil, fmt.Errorf("instrumentation: building tracer provider: %w", err)
	}
	if tracerProvider != nil {
		otel.SetTracerProvider(tracerProvider)
	}

	metrics, err := NewMetrics(meterProvider.Meter(config.ServiceName))
	if err != nil {
		return nil, fmt.Errorf("instrumentation: building metrics: %w", err)
	}

	return &Provider{
		config:         config,
		meterProvider:  meterProvider,
		tracerProvider: tracerProvider,
		metrics:        metrics,
	}, nil
}

func newMeterProvider(ctx context.Context, config Config, res *resource.Resource) (*metric.MeterProvider, error) {
	switch config.MetricsExporter {
	case "otlp":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(config.OTLPEndpoint)}
		if config.OTLPInsecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		exporter, err := otlpmetrichttp.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("creating OTLP metric exporter: %w", err)
		}
		return metric.NewMeterProvider(
			metric.WithResource(res),
			metric.WithReader(metric.NewPeriodicReader(exporter)),
		), nil
	case "stdout":
		exporter, err := stdoutmetric.New()
		if err != nil {
			return nil, fmt.Errorf("creating stdout metric exporter: %w", err)
		}
		return metric.NewMeterProvider(
			metric.WithResource(res),
			metric.WithReader(metric.NewPeriodicReader(exporter)),
		), nil
	case "prometheus", "":
		exporter, err := prometheus.New()
		if err != nil {
			return nil, fmt.Errorf("creating Prometheus exporter: %w", err)
		}
		return metric.NewMeterProvider(
			metric.WithResource(res),
			metric.WithReader(exporter),
		), nil
	default:
		return nil, fmt.Errorf("unknown metrics exporter %q", config.MetricsExporter)
	}
}

func newTracerProvider(ctx context.Context, config Config, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	var spanExporter sdktrace.SpanExporter
	var err error

	switch config.TracingExporter {
	case "otlp":
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(config.OTLPEndpoint)}
		if config.OTLPInsecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		spanExporter, err = otlptracehttp.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("creating OTLP trace exporter: %w", err)
		}
	case "stdout":
		spanExporter, err = stdouttrace.New()
		if err != nil {
			return nil, fmt.Errorf("creating stdout trace exporter: %w", err)
		}
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown tracing exporter %q", config.TracingExporter)
	}

	sampler := sdktrace.ParentBased(sdktrace.TraceIDRatioBased(config.TraceSamplingRate))
	return sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(spanExporter),
		sdktrace.WithSampler(sampler),
	), nil
}

// Metrics returns the Metrics recorder. Safe to call even when
// instrumentation is disabled; every instrument records against a no-op
// meter in that case.
func (p *Provider) Metrics() *Metrics {
	return p.metrics
}

// Enabled reports whether instrumentation is actively exporting.
func (p *Provider) Enabled() bool {
	return p.config.Enabled
}

// Tracer returns a tracer named for this service, falling back to the
// global no-op tracer when instrumentation is disabled.
func (p *Provider) Tracer() trace.Tracer {
	if p.tracerProvider == nil {
		return otel.GetTracerProvider().Tracer(p.config.ServiceName)
	}
	return p.tracerProvider.Tracer(p.config.ServiceName)
}

// Shutdown flushes and stops the meter and tracer providers. Safe to call
// on a disabled Provider, where it is a no-op.
func (p *Provider) Shutdown(ctx context.Context) error {
	var firstErr error
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			firstErr = fmt.Errorf("instrumentation: shutting down meter provider: %w", err)
		}
	}
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("instrumentation: shutting down tracer provider: %w", err)
		}
	}
	return firstErr
}
