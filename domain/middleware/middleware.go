// Package middleware provides composable middleware around a single
// capability invocation.
package middleware

import (
	"context"

	"github.com/felixgeelhaar/agent-fsm/domain/tool"
)

// Invocation describes one capability call made by the executor.
type Invocation struct {
	// ConversationID identifies the conversation the call belongs to.
	ConversationID string
	// State is the FSM state of the turn being executed.
	State string
	// Turn is the zero-based index of that turn in the history.
	Turn int
	// Tool is the capability being invoked.
	Tool tool.Tool
	// Args are the decoded call arguments. Never nil.
	Args map[string]any
}

// Handler invokes a capability and returns its result object.
type Handler func(ctx context.Context, inv *Invocation) (map[string]any, error)

// Middleware wraps a Handler with additional behavior.
type Middleware func(next Handler) Handler

// Chain composes middleware so that Chain(A, B, C)(h) runs A -> B -> C -> h.
func Chain(middlewares ...Middleware) Middleware {
	return func(final Handler) Handler {
		handler := final
		for i := len(middlewares) - 1; i >= 0; i-- {
			handler = middlewares[i](handler)
		}
		return handler
	}
}

// Noop returns a middleware that passes through.
func Noop() Middleware {
	return func(next Handler) Handler {
		return next
	}
}

// Invoke is the terminal handler: it calls the tool itself.
func Invoke(ctx context.Context, inv *Invocation) (map[string]any, error) {
	return inv.Tool.Execute(ctx, inv.Args)
}
