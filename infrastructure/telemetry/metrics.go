// Package telemetry provides OpenTelemetry metrics and tracing for turns,
// inference calls and capability invocations.
package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/felixgeelhaar/agent-fsm/infrastructure/inference"
)

// Turn outcomes recorded on agentfsm.turns.
const (
	OutcomeBootstrap = "bootstrap"
	OutcomeCommitted = "committed"
	OutcomeFailed    = "failed"
)

// MetricsProvider provides access to metrics instruments.
type MetricsProvider struct {
	meter metric.Meter

	// Counters
	turns            metric.Int64Counter
	stateTransitions metric.Int64Counter
	toolInvocations  metric.Int64Counter
	inferenceCalls   metric.Int64Counter
	inferenceTokens  metric.Int64Counter
	rateLimitHits    metric.Int64Counter
	errors           metric.Int64Counter

	// Histograms
	turnDuration      metric.Float64Histogram
	toolDuration      metric.Float64Histogram
	inferenceDuration metric.Float64Histogram

	activeTurns metric.Int64UpDownCounter

	initOnce sync.Once
	initErr  error
}

// MetricsConfig configures the metrics provider.
type MetricsConfig struct {
	// MeterName is the name of the meter.
	MeterName string
	// MeterVersion is the version of the meter.
	MeterVersion string
}

// DefaultMetricsConfig returns a default metrics configuration.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		MeterName:    "github.com/felixgeelhaar/agent-fsm",
		MeterVersion: "1.0.0",
	}
}

// NewMetricsProvider creates a metrics provider on the global meter provider.
func NewMetricsProvider(config MetricsConfig) *MetricsProvider {
	if config.MeterName == "" {
		config = DefaultMetricsConfig()
	}

	meter := otel.GetMeterProvider().Meter(
		config.MeterName,
		metric.WithInstrumentationVersion(config.MeterVersion),
	)

	mp := &MetricsProvider{meter: meter}
	mp.initOnce.Do(func() {
		mp.initErr = mp.initInstruments()
	})
	return mp
}

func (mp *MetricsProvider) initInstruments() error {
	var err error

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
		unit string
	}{
		{&mp.turns, "agentfsm.turns", "Number of turns by outcome", "{turn}"},
		{&mp.stateTransitions, "agentfsm.state.transitions", "Number of state decisions", "{transition}"},
		{&mp.toolInvocations, "agentfsm.tool.invocations", "Number of capability invocations", "{invocation}"},
		{&mp.inferenceCalls, "agentfsm.inference.calls", "Number of inference calls", "{call}"},
		{&mp.inferenceTokens, "agentfsm.inference.tokens", "Tokens consumed by inference", "{token}"},
		{&mp.rateLimitHits, "agentfsm.ratelimit.hits", "Number of rate limited invocations", "{hit}"},
		{&mp.errors, "agentfsm.errors", "Number of errors", "{error}"},
	}
	for _, c := range counters {
		*c.dst, err = mp.meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit(c.unit))
		if err != nil {
			return err
		}
	}

	histograms := []struct {
		dst  *metric.Float64Histogram
		name string
		desc string
	}{
		{&mp.turnDuration, "agentfsm.turn.duration", "Duration of turns"},
		{&mp.toolDuration, "agentfsm.tool.duration", "Duration of capability invocations"},
		{&mp.inferenceDuration, "agentfsm.inference.duration", "Duration of inference calls"},
	}
	for _, h := range histograms {
		*h.dst, err = mp.meter.Float64Histogram(h.name, metric.WithDescription(h.desc), metric.WithUnit("ms"))
		if err != nil {
			return err
		}
	}

	mp.activeTurns, err = mp.meter.Int64UpDownCounter(
		"agentfsm.turns.active",
		metric.WithDescription("Number of turns in progress"),
		metric.WithUnit("{turn}"),
	)
	return err
}

// Error returns any initialization error.
func (mp *MetricsProvider) Error() error {
	return mp.initErr
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// RecordTurn records a finished turn.
func (mp *MetricsProvider) RecordTurn(ctx context.Context, agent, outcome string, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("agent.name", agent),
		attribute.String("turn.outcome", outcome),
	)
	mp.turns.Add(ctx, 1, attrs)
	mp.turnDuration.Record(ctx, ms(d), attrs)
}

// RecordStateTransition records a state decision.
func (mp *MetricsProvider) RecordStateTransition(ctx context.Context, fromState, toState string) {
	mp.stateTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("state.from", fromState),
		attribute.String("state.to", toState),
	))
}

// RecordInvocation records a capability invocation.
func (mp *MetricsProvider) RecordInvocation(ctx context.Context, toolName, state string, d time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("tool.name", toolName),
		attribute.String("agent.state", state),
		attribute.Bool("success", err == nil),
	)
	mp.toolInvocations.Add(ctx, 1, attrs)
	mp.toolDuration.Record(ctx, ms(d), attrs)

	if err != nil {
		mp.RecordError(ctx, "tool_invocation", map[string]string{"tool.name": toolName})
	}
}

// RecordInference records a completed provider call.
func (mp *MetricsProvider) RecordInference(ctx context.Context, provider, kind string, d time.Duration, usage inference.Usage, err error) {
	attrs := metric.WithAttributes(
		attribute.String("inference.provider", provider),
		attribute.String("inference.kind", kind),
		attribute.Bool("success", err == nil),
	)
	mp.inferenceCalls.Add(ctx, 1, attrs)
	mp.inferenceDuration.Record(ctx, ms(d), attrs)

	if usage.InputTokens > 0 {
		mp.inferenceTokens.Add(ctx, usage.InputTokens, metric.WithAttributes(
			attribute.String("inference.provider", provider),
			attribute.String("token.direction", "input"),
		))
	}
	if usage.OutputTokens > 0 {
		mp.inferenceTokens.Add(ctx, usage.OutputTokens, metric.WithAttributes(
			attribute.String("inference.provider", provider),
			attribute.String("token.direction", "output"),
		))
	}

	if err != nil {
		mp.RecordError(ctx, "inference", map[string]string{"inference.provider": provider})
	}
}

// RecordRateLimitHit records a rate limited invocation.
func (mp *MetricsProvider) RecordRateLimitHit(ctx context.Context, toolName string) {
	mp.rateLimitHits.Add(ctx, 1, metric.WithAttributes(attribute.String("tool.name", toolName)))
}

// RecordError records an error.
func (mp *MetricsProvider) RecordError(ctx context.Context, errorType string, details map[string]string) {
	attrs := []attribute.KeyValue{attribute.String("error.type", errorType)}
	for k, v := range details {
		attrs = append(attrs, attribute.String(k, v))
	}
	mp.errors.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// IncrementActiveTurns increments the in-progress turn gauge.
func (mp *MetricsProvider) IncrementActiveTurns(ctx context.Context) {
	mp.activeTurns.Add(ctx, 1)
}

// DecrementActiveTurns decrements the in-progress turn gauge.
func (mp *MetricsProvider) DecrementActiveTurns(ctx context.Context) {
	mp.activeTurns.Add(ctx, -1)
}

// NoopMetricsProvider is a no-op metrics provider for tests or when metrics are disabled.
type NoopMetricsProvider struct{}

// RecordTurn is a no-op.
func (NoopMetricsProvider) RecordTurn(context.Context, string, string, time.Duration) {}

// RecordStateTransition is a no-op.
func (NoopMetricsProvider) RecordStateTransition(context.Context, string, string) {}

// RecordInvocation is a no-op.
func (NoopMetricsProvider) RecordInvocation(context.Context, string, string, time.Duration, error) {}

// RecordInference is a no-op.
func (NoopMetricsProvider) RecordInference(context.Context, string, string, time.Duration, inference.Usage, error) {
}

// RecordRateLimitHit is a no-op.
func (NoopMetricsProvider) RecordRateLimitHit(context.Context, string) {}

// RecordError is a no-op.
func (NoopMetricsProvider) RecordError(context.Context, string, map[string]string) {}

// IncrementActiveTurns is a no-op.
func (NoopMetricsProvider) IncrementActiveTurns(context.Context) {}

// DecrementActiveTurns is a no-op.
func (NoopMetricsProvider) DecrementActiveTurns(context.Context) {}

// Metrics defines the interface for metrics recording.
type Metrics interface {
	RecordTurn(ctx context.Context, agent, outcome string, d time.Duration)
	RecordStateTransition(ctx context.Context, fromState, toState string)
	RecordInvocation(ctx context.Context, toolName, state string, d time.Duration, err error)
	RecordInference(ctx context.Context, provider, kind string, d time.Duration, usage inference.Usage, err error)
	RecordRateLimitHit(ctx context.Context, toolName string)
	RecordError(ctx context.Context, errorType string, details map[string]string)
	IncrementActiveTurns(ctx context.Context)
	DecrementActiveTurns(ctx context.Context)
}

var (
	_ Metrics            = (*MetricsProvider)(nil)
	_ Metrics            = NoopMetricsProvider{}
	_ inference.Recorder = (*MetricsProvider)(nil)
)
