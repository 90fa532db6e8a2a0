package tracing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/catalogd/registry/internal/logger"
)

const shutdownTimeout = 5 * time.Second

// Provider owns the process tracer provider. A disabled Provider hands out
// no-op tracers and never touches the global otel state.
type Provider struct {
	tp         *sdktrace.TracerProvider
	config     TracingConfig
	instanceID string
	log        zerolog.Logger
}

// NewProvider builds the exporter named by config.ExporterType, installs the
// provider and the W3C propagators globally and returns it.
func NewProvider(config TracingConfig) (*Provider, error) {
	p := &Provider{
		config:     config,
		instanceID: uuid.NewString(),
		log:        logger.WithComponent("tracing"),
	}
	if !config.Enabled {
		return p, nil
	}
	if config.Endpoint == "" {
		return nil, fmt.Errorf("tracing endpoint is required when tracing is enabled")
	}

	ctx := context.Background()
	exporter, err := newExporter(ctx, config)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceNameKey.String(config.ServiceName),
		semconv.ServiceVersionKey.String(config.ServiceVersion),
		semconv.ServiceInstanceIDKey.String(p.instanceID),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	p.tp = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(Sampler(config.SampleRatio)),
	)
	otel.SetTracerProvider(p.tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	p.log.Info().
		Str("service_name", config.ServiceName).
		Str("instance_id", p.instanceID).
		Str("endpoint", config.Endpoint).
		Str("exporter_type", config.ExporterType).
		Float64("sample_ratio", config.SampleRatio).
		Msg("Tracing provider initialized")

	return p, nil
}

// newExporter returns the OTLP exporter for config; an empty type means grpc
func newExporter(ctx context.Context, config TracingConfig) (sdktrace.SpanExporter, error) {
	switch strings.ToLower(config.ExporterType) {
	case "http":
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(config.Endpoint)}
		if config.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		if len(config.Headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(config.Headers))
		}
		exp, err := otlptracehttp.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create HTTP OTLP exporter: %w", err)
		}
		return exp, nil
	case "grpc", "":
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(config.Endpoint)}
		if config.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		if len(config.Headers) > 0 {
			opts = append(opts, otlptracegrpc.WithHeaders(config.Headers))
		}
		exp, err := otlptracegrpc.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create gRPC OTLP exporter: %w", err)
		}
		return exp, nil
	default:
		return nil, fmt.Errorf("unknown tracing exporter %q", config.ExporterType)
	}
}

// Sampler returns a parent-based sampler for ratio; ratios outside
// (0, 1) sample everything.
func Sampler(ratio float64) sdktrace.Sampler {
	if ratio <= 0 || ratio >= 1 {
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}

// GetTracer returns a tracer for a component
func (p *Provider) GetTracer(name string) trace.Tracer {
	if p.tp == nil {
		return noop.NewTracerProvider().Tracer(name)
	}
	return p.tp.Tracer(name)
}

// InstanceID identifies this process in exported spans
func (p *Provider) InstanceID() string {
	return p.instanceID
}

// Shutdown flushes pending spans. Without a deadline on ctx it waits at
// most shutdownTimeout.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tp == nil {
		return nil
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()
	}

	if err := p.tp.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown tracer provider: %w", err)
	}
	p.log.Info().Msg("Tracing provider shut down")
	return nil
}

// IsEnabled returns true if spans are exported
func (p *Provider) IsEnabled() bool {
	return p.config.Enabled && p.tp != nil
}
