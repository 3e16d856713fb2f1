package application

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/agent-fsm/domain/conversation"
	"github.com/felixgeelhaar/agent-fsm/domain/feedback"
	"github.com/felixgeelhaar/agent-fsm/domain/tool"
	"github.com/felixgeelhaar/agent-fsm/infrastructure/inference"
	"github.com/felixgeelhaar/agent-fsm/infrastructure/logging"
)

// ToolDecider chooses the capability invocations of the next turn.
type ToolDecider struct {
	tools    *tool.Set
	specs    []inference.ToolSpec
	client   *inference.Client
	prompter Prompter
	topK     int
}

// NewToolDecider creates a tool decider offering every tool of the set.
func NewToolDecider(tools *tool.Set, client *inference.Client, prompter Prompter, topK int) *ToolDecider {
	if prompter == nil {
		prompter = DefaultPrompter{}
	}
	specs := make([]inference.ToolSpec, 0, tools.Len())
	for _, t := range tools.List() {
		specs = append(specs, inference.ToolSpec{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.InputSchema().Map(),
		})
	}
	return &ToolDecider{tools: tools, specs: specs, client: client, prompter: prompter, topK: topK}
}

// Decide returns the next step in state. Its actions are unexecuted. When
// the model selects nothing, the step carries a single send_message.
func (d *ToolDecider) Decide(ctx context.Context, history *conversation.Memory, state conversation.State, exemplars []feedback.Feedback) (conversation.Step, error) {
	exemplars = limitExemplars(exemplars, d.topK)

	calls, err := d.client.SelectTools(ctx, d.prompter.ToolSelection(ToolPrompt{
		History:   history,
		State:     state,
		Exemplars: exemplars,
	}), d.specs)
	if err != nil {
		return conversation.Step{}, fmt.Errorf("select tools: %w", err)
	}

	step := conversation.Step{
		StateName: state.Name,
		Actions:   make([]conversation.Action, 0, len(calls)),
	}
	for _, call := range calls {
		if _, ok := d.tools.Get(call.Name); !ok {
			logging.Warn().
				Add(logging.State(state.Name)).
				Add(logging.ToolName(call.Name)).
				Msg("model selected an unknown capability")
		}
		step.Actions = append(step.Actions, conversation.NewAction(call.Name, decodeArguments(call.Arguments)))
	}

	if len(step.Actions) == 0 {
		logging.Debug().
			Add(logging.State(state.Name)).
			Msg("no tool selected, falling back to send_message")
		step.Actions = append(step.Actions, conversation.NewAction(tool.SendMessageName, nil))
	}
	return step, nil
}
