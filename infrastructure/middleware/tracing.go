package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/felixgeelhaar/agent-fsm/domain/middleware"
)

// TracingConfig configures the tracing middleware.
type TracingConfig struct {
	// Tracer is the tracer to use. If nil, the global tracer named TracerName is used.
	Tracer trace.Tracer

	// TracerName names the global tracer.
	TracerName string

	// RecordArgs adds the encoded arguments as a span attribute.
	RecordArgs bool

	// MaxAttributeSize limits the size of recorded attributes.
	MaxAttributeSize int

	// SpanNamePrefix is prepended to the tool name.
	SpanNamePrefix string
}

// DefaultTracingConfig returns a sensible default configuration.
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		TracerName:       "github.com/felixgeelhaar/agent-fsm",
		RecordArgs:       false,
		MaxAttributeSize: 1024,
		SpanNamePrefix:   "tool.",
	}
}

// Tracing returns middleware that opens a span per invocation.
func Tracing(cfg TracingConfig) middleware.Middleware {
	tracer := cfg.Tracer
	if tracer == nil {
		name := cfg.TracerName
		if name == "" {
			name = DefaultTracingConfig().TracerName
		}
		tracer = otel.Tracer(name)
	}
	maxSize := cfg.MaxAttributeSize
	if maxSize <= 0 {
		maxSize = 1024
	}

	return func(next middleware.Handler) middleware.Handler {
		return func(ctx context.Context, inv *middleware.Invocation) (map[string]any, error) {
			annotations := inv.Tool.Annotations()
			attrs := []attribute.KeyValue{
				attribute.String("conversation.id", inv.ConversationID),
				attribute.String("agent.state", inv.State),
				attribute.Int("agent.turn", inv.Turn),
				attribute.String("tool.name", inv.Tool.Name()),
				attribute.Bool("tool.read_only", annotations.ReadOnly),
				attribute.Bool("tool.idempotent", annotations.Idempotent),
			}
			if len(annotations.Tags) > 0 {
				attrs = append(attrs, attribute.StringSlice("tool.tags", annotations.Tags))
			}
			if cfg.RecordArgs {
				attrs = append(attrs, attribute.String("tool.args", truncate(encode(inv.Args), maxSize)))
			}

			ctx, span := tracer.Start(ctx, cfg.SpanNamePrefix+inv.Tool.Name(),
				trace.WithSpanKind(trace.SpanKindInternal),
				trace.WithAttributes(attrs...),
			)
			defer span.End()

			result, err := next(ctx, inv)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			} else {
				span.SetStatus(codes.Ok, "")
			}
			return result, err
		}
	}
}
