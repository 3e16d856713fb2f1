// Package middleware provides invocation middleware: logging, tracing,
// metrics, rate limiting and argument validation.
package middleware

import (
	"context"
	"encoding/json"
	"time"

	"github.com/felixgeelhaar/agent-fsm/domain/middleware"
	"github.com/felixgeelhaar/agent-fsm/infrastructure/logging"
)

// LoggingConfig configures the logging middleware.
type LoggingConfig struct {
	// LogArgs logs the call arguments (may contain sensitive data).
	LogArgs bool
	// LogResult logs the result object (may be large).
	LogResult bool
}

// Logging returns middleware that logs each invocation.
func Logging(cfg LoggingConfig) middleware.Middleware {
	return func(next middleware.Handler) middleware.Handler {
		return func(ctx context.Context, inv *middleware.Invocation) (map[string]any, error) {
			start := time.Now()

			entry := logging.Debug().
				Add(logging.ConversationID(inv.ConversationID)).
				Add(logging.State(inv.State)).
				Add(logging.Turn(inv.Turn)).
				Add(logging.ToolName(inv.Tool.Name()))
			if cfg.LogArgs {
				entry = entry.Add(logging.Str("args", truncate(encode(inv.Args), 500)))
			}
			entry.Msg("invoking tool")

			result, err := next(ctx, inv)
			duration := time.Since(start)

			if err != nil {
				logging.Warn().
					Add(logging.ConversationID(inv.ConversationID)).
					Add(logging.ToolName(inv.Tool.Name())).
					Add(logging.ErrorField(err)).
					Add(logging.Duration(duration)).
					Msg("tool invocation failed")
				return result, err
			}

			done := logging.Info().
				Add(logging.ConversationID(inv.ConversationID)).
				Add(logging.ToolName(inv.Tool.Name())).
				Add(logging.Duration(duration))
			if cfg.LogResult {
				done = done.Add(logging.Str("result", truncate(encode(result), 500)))
			}
			done.Msg("tool invoked")

			return result, nil
		}
	}
}

func encode(v map[string]any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "<unencodable>"
	}
	return string(data)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
