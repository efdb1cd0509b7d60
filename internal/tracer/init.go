package tracer

import (
	"context"

	"ai-consultation-be/internal/config"
	"ai-consultation-be/internal/pkg/logger"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

const (
	module         = "Tracer"
	serviceVersion = "1.0.0"
)

// InitTracer exports consultation rounds, persona turns and HTTP requests
// over OTLP HTTP (Jaeger accepts it on port 4318). Tracing is off unless
// OTEL_ENABLED=true. The returned function flushes pending spans.
func InitTracer(cfg *config.Config, log logger.ILogger) func(context.Context) error {
	noop := func(context.Context) error { return nil }
	if !cfg.Otel.Enabled {
		log.Info(module, "OpenTelemetry tracing is disabled", nil)
		return noop
	}

	exporter, err := otlptracehttp.New(context.Background(),
		otlptracehttp.WithEndpoint(cfg.Otel.Endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		log.Warn(module, "Failed to create OTLP exporter, tracing disabled", map[string]interface{}{"error": err.Error()})
		return noop
	}

	tp := NewProvider(cfg, sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	log.Info(module, "OpenTelemetry tracer initialized", map[string]interface{}{
		"endpoint":     cfg.Otel.Endpoint,
		"sample_ratio": cfg.Otel.SampleRatio,
	})
	return tp.Shutdown
}

// NewProvider builds the tracer provider that registers spans with the
// given processor options. Child spans follow their parent's sampling.
func NewProvider(cfg *config.Config, opts ...sdktrace.TracerProviderOption) *sdktrace.TracerProvider {
	ratio := cfg.Otel.SampleRatio
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}

	opts = append(opts,
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(cfg.Otel.ServiceName),
			semconv.ServiceVersionKey.String(serviceVersion),
			semconv.DeploymentEnvironmentKey.String(cfg.App.Environment),
		)),
	)
	return sdktrace.NewTracerProvider(opts...)
}
