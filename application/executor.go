package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/felixgeelhaar/agent-fsm/domain/conversation"
	"github.com/felixgeelhaar/agent-fsm/domain/middleware"
	"github.com/felixgeelhaar/agent-fsm/domain/tool"
	"github.com/felixgeelhaar/agent-fsm/infrastructure/logging"
)

// Executor runs the pending invocations of a step. It never fails: every
// failure is recorded as the invocation's error result.
type Executor struct {
	tools   *tool.Set
	handler middleware.Handler
	now     func() time.Time
}

// NewExecutor creates an executor over tools. Invocations run through the
// middleware chain; a nil registry calls tools directly.
func NewExecutor(tools *tool.Set, chain *middleware.Registry) *Executor {
	return &Executor{
		tools:   tools,
		handler: chain.Handler(),
		now:     time.Now,
	}
}

// Execute fills the result of every unexecuted action of step, one goroutine
// per action, and stamps the step once all have settled. A step that is
// already complete is left untouched.
func (e *Executor) Execute(ctx context.Context, conversationID string, turn int, step *conversation.Step) {
	if step.Completed() && !step.Pending() {
		return
	}

	// Each goroutine writes only its own action, so no lock is needed.
	var g errgroup.Group
	for i := range step.Actions {
		if step.Actions[i].Executed() {
			continue
		}
		inv := &middleware.Invocation{
			ConversationID: conversationID,
			State:          step.StateName,
			Turn:           turn,
			Args:           step.Actions[i].Arguments,
		}
		if inv.Args == nil {
			inv.Args = map[string]any{}
		}
		name := step.Actions[i].Name
		g.Go(func() error {
			step.Actions[i].Result = e.invoke(ctx, name, inv)
			return nil
		})
	}
	_ = g.Wait()

	step.Stamp(e.now())

	logging.Debug().
		Add(logging.ConversationID(conversationID)).
		Add(logging.Turn(turn)).
		Add(logging.State(step.StateName)).
		Add(logging.ActionCount(len(step.Actions))).
		Msg("step executed")
}

// invoke resolves and runs one capability, turning errors and panics into
// an error result. The returned map is never nil.
func (e *Executor) invoke(ctx context.Context, name string, inv *middleware.Invocation) (result map[string]any) {
	t, err := e.tools.Lookup(name)
	if err != nil {
		logging.Warn().
			Add(logging.ConversationID(inv.ConversationID)).
			Add(logging.ToolName(name)).
			Add(logging.ErrorField(err)).
			Msg("unknown capability")
		return conversation.ErrorResult(err.Error())
	}
	inv.Tool = t

	defer func() {
		if r := recover(); r != nil {
			logging.Error().
				Add(logging.ConversationID(inv.ConversationID)).
				Add(logging.ToolName(name)).
				Add(logging.Str("panic", fmt.Sprint(r))).
				Msg("capability panicked")
			result = conversation.ErrorResult(fmt.Sprintf("capability %s panicked: %v", name, r))
		}
	}()

	out, err := e.handler(ctx, inv)
	if err != nil {
		return conversation.ErrorResult(errorMessage(err))
	}
	if out == nil {
		out = map[string]any{}
	}
	return out
}

// errorMessage keeps the innermost message for timeouts so results read
// the same whichever layer gave up.
func errorMessage(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("%s: %v", tool.ErrExecutionTimeout, err)
	}
	return err.Error()
}
