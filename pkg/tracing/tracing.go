package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/Ramsey-B/clover/pkg/tracing/exporters"
)

var tracer trace.Tracer

// SetTracer sets the tracer to be used for tracing.
func SetTracer(t trace.Tracer) {
	tracer = t
}

// StartSpan starts a new span with the given name and returns the context and
// span. No-ops when tracing has not been initialized.
func StartSpan(ctx context.Context, spanName string) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, spanName)
}

// GetTraceID returns the trace ID from the context.
func GetTraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return ""
	}
	return span.SpanContext().TraceID().String()
}

// SetAttributes adds string attributes to the active span, if any.
func SetAttributes(ctx context.Context, attrs map[string]string) {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return
	}
	for k, v := range attrs {
		span.SetAttributes(attribute.String(k, v))
	}
}

// Config selects the span exporter. Exporter is one of "none", "console" or
// "otlp".
type Config struct {
	ServiceName  string
	Exporter     string
	OTLPEndpoint string
	OTLPProtocol string
	OTLPInsecure bool
}

// Init installs a tracer provider and returns its shutdown function.
func Init(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	var exporter sdktrace.SpanExporter
	switch cfg.Exporter {
	case "console":
		exporter = &exporters.ConsoleExporter{}
	case "otlp":
		otlpCfg := exporters.DefaultOTLPConfig()
		if cfg.OTLPEndpoint != "" {
			otlpCfg.Endpoint = cfg.OTLPEndpoint
		}
		if cfg.OTLPProtocol != "" {
			otlpCfg.Protocol = cfg.OTLPProtocol
		}
		otlpCfg.Insecure = cfg.OTLPInsecure
		var err error
		exporter, err = exporters.NewOTLPExporter(ctx, otlpCfg)
		if err != nil {
			return nil, err
		}
	default:
		return func(context.Context) error { return nil }, nil
	}

	provider := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(provider)
	SetTracer(provider.Tracer(cfg.ServiceName))

	return provider.Shutdown, nil
}
