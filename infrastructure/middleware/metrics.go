package middleware

import (
	"context"
	"time"

	"github.com/felixgeelhaar/agent-fsm/domain/middleware"
)

// InvocationRecorder receives one observation per invocation.
// telemetry.MetricsProvider satisfies it.
type InvocationRecorder interface {
	RecordInvocation(ctx context.Context, toolName, state string, d time.Duration, err error)
}

// Metrics returns middleware that reports invocation count, duration and
// outcome to the recorder. A nil recorder yields a pass-through middleware.
func Metrics(recorder InvocationRecorder) middleware.Middleware {
	if recorder == nil {
		return middleware.Noop()
	}
	return func(next middleware.Handler) middleware.Handler {
		return func(ctx context.Context, inv *middleware.Invocation) (map[string]any, error) {
			start := time.Now()
			result, err := next(ctx, inv)
			recorder.RecordInvocation(ctx, inv.Tool.Name(), inv.State, time.Since(start), err)
			return result, err
		}
	}
}
