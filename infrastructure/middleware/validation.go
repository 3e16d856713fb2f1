package middleware

import (
	"context"

	"github.com/felixgeelhaar/agent-fsm/domain/middleware"
)

// Validation returns middleware that checks call arguments against the
// tool's input schema before invoking it. Failures carry tool.ErrInvalidInput.
func Validation() middleware.Middleware {
	return func(next middleware.Handler) middleware.Handler {
		return func(ctx context.Context, inv *middleware.Invocation) (map[string]any, error) {
			if err := inv.Tool.InputSchema().Validate(inv.Args); err != nil {
				return nil, err
			}
			return next(ctx, inv)
		}
	}
}
