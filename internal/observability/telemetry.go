// Package observability provides OpenTelemetry setup for tracing, metrics,
// structured logging and HTTP request instrumentation.
package observability

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// ServiceNamespace groups every time engine binary in the backend.
const ServiceNamespace = "time-engine"

// instrumentationPrefix scopes tracer and meter names.
const instrumentationPrefix = ServiceNamespace + "/"

// TelemetryConfig configures trace and metric export.
type TelemetryConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	// OTLPEndpoint is the collector address. Empty keeps spans and metrics
	// in-process.
	OTLPEndpoint string
	// Insecure sends OTLP over plaintext gRPC. Otherwise the system roots
	// are used for TLS.
	Insecure bool
}

// Telemetry owns the tracer and meter providers installed as the otel globals.
type Telemetry struct {
	tracers *sdktrace.TracerProvider
	meters  *sdkmetric.MeterProvider
}

// InitTelemetry installs tracer and meter providers sharing one resource and
// the W3C trace-context and baggage propagators. The returned Telemetry must
// be shut down on exit.
func InitTelemetry(ctx context.Context, cfg TelemetryConfig) (*Telemetry, error) {
	res := NewResource(cfg)

	traceOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	metricOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}

	if cfg.OTLPEndpoint != "" {
		spanExp, err := otlptracegrpc.New(ctx, traceExporterOptions(cfg)...)
		if err != nil {
			return nil, fmt.Errorf("create OTLP trace exporter: %w", err)
		}
		metricExp, err := otlpmetricgrpc.New(ctx, metricExporterOptions(cfg)...)
		if err != nil {
			_ = spanExp.Shutdown(ctx)
			return nil, fmt.Errorf("create OTLP metric exporter: %w", err)
		}
		traceOpts = append(traceOpts, sdktrace.WithBatcher(spanExp))
		metricOpts = append(metricOpts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)))
	}

	t := &Telemetry{
		tracers: sdktrace.NewTracerProvider(traceOpts...),
		meters:  sdkmetric.NewMeterProvider(metricOpts...),
	}
	otel.SetTracerProvider(t.tracers)
	otel.SetMeterProvider(t.meters)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return t, nil
}

func traceExporterOptions(cfg TelemetryConfig) []otlptracegrpc.Option {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	return opts
}

func metricExporterOptions(cfg TelemetryConfig) []otlpmetricgrpc.Option {
	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	return opts
}

// NewResource describes the running process. Only service attributes are set
// so the schema URL never conflicts with resource.Default().
func NewResource(cfg TelemetryConfig) *resource.Resource {
	attrs := []attribute.KeyValue{
		semconv.ServiceNamespace(ServiceNamespace),
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		semconv.DeploymentEnvironment(cfg.Environment),
	}
	if host, err := os.Hostname(); err == nil {
		attrs = append(attrs, semconv.ServiceInstanceID(host))
	}
	return resource.NewWithAttributes(semconv.SchemaURL, attrs...)
}

// Shutdown flushes metrics, then spans. Both are attempted even if the first
// fails.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	var errs []error
	if t.meters != nil {
		if err := t.meters.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown metrics: %w", err))
		}
	}
	if t.tracers != nil {
		if err := t.tracers.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Tracer returns the global tracer scoped under the service namespace, e.g.
// Tracer("app") names "time-engine/app".
func Tracer(component string) trace.Tracer {
	return otel.Tracer(instrumentationPrefix + component)
}

// Meter returns the global meter scoped like Tracer.
func Meter(component string) metric.Meter {
	return otel.Meter(instrumentationPrefix + component)
}

// SpanFromContext extracts the current span from context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// TraceIDFromContext returns the active trace ID, or "" outside a trace.
func TraceIDFromContext(ctx context.Context) string {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.HasTraceID() {
		return ""
	}
	return spanCtx.TraceID().String()
}
