package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Span exporters.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

// ProviderConfig configures trace export.
type ProviderConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string

	// Exporter is none, stdout or otlp. Empty means none.
	Exporter string
	// Endpoint is the OTLP gRPC collector address.
	Endpoint string
	// Insecure disables TLS for the collector connection.
	Insecure bool
	// SampleRate is the fraction of traces kept. Zero keeps all.
	SampleRate float64

	BatchTimeout       time.Duration
	MaxExportBatchSize int

	// Output receives stdout spans. Defaults to os.Stdout.
	Output io.Writer
}

// Provider owns the SDK tracer provider installed as the global one.
type Provider struct {
	config        ProviderConfig
	shutdownFuncs []func(context.Context) error
}

// NewProvider installs a global tracer provider exporting to the configured
// destination. With no exporter the global provider is left untouched.
func NewProvider(ctx context.Context, cfg ProviderConfig) (*Provider, error) {
	if cfg.BatchTimeout == 0 {
		cfg.BatchTimeout = 5 * time.Second
	}
	if cfg.MaxExportBatchSize == 0 {
		cfg.MaxExportBatchSize = 512
	}
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	p := &Provider{config: cfg}
	if !p.Enabled() {
		return p, nil
	}
	if err := p.setupTracing(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

// Enabled reports whether spans are exported.
func (p *Provider) Enabled() bool {
	return p.config.Exporter != "" && p.config.Exporter != ExporterNone
}

func (p *Provider) setupTracing(ctx context.Context) error {
	// Not merged with resource.Default() to avoid schema URL conflicts.
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(p.config.ServiceName),
		semconv.ServiceVersion(p.config.ServiceVersion),
		semconv.DeploymentEnvironment(p.config.Environment),
	)

	var exporter sdktrace.SpanExporter
	switch p.config.Exporter {
	case ExporterOTLP:
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(p.config.Endpoint)}
		if p.config.Insecure {
			opts = append(opts,
				otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
				otlptracegrpc.WithInsecure(),
			)
		}
		exp, err := otlptracegrpc.New(ctx, opts...)
		if err != nil {
			return fmt.Errorf("otlp exporter: %w", err)
		}
		exporter = exp
	case ExporterStdout:
		out := p.config.Output
		if out == nil {
			out = os.Stdout
		}
		exp, err := stdouttrace.New(stdouttrace.WithWriter(out), stdouttrace.WithPrettyPrint())
		if err != nil {
			return fmt.Errorf("stdout exporter: %w", err)
		}
		exporter = exp
	default:
		return fmt.Errorf("unknown trace exporter: %s", p.config.Exporter)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter,
			sdktrace.WithBatchTimeout(p.config.BatchTimeout),
			sdktrace.WithMaxExportBatchSize(p.config.MaxExportBatchSize),
		),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(p.config.SampleRate)),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	p.shutdownFuncs = append(p.shutdownFuncs, tp.Shutdown)
	return nil
}

func sampler(rate float64) sdktrace.Sampler {
	if rate <= 0 || rate >= 1 {
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
}

// Shutdown flushes pending spans and releases the exporter.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	for _, fn := range p.shutdownFuncs {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	p.shutdownFuncs = nil
	return errors.Join(errs...)
}
