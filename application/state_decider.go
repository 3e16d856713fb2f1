package application

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/agent-fsm/domain/conversation"
	"github.com/felixgeelhaar/agent-fsm/domain/feedback"
	"github.com/felixgeelhaar/agent-fsm/infrastructure/inference"
	"github.com/felixgeelhaar/agent-fsm/infrastructure/logging"
)

// StateDecider chooses the state of the next turn.
type StateDecider struct {
	machine  *conversation.Machine
	client   *inference.Client
	prompter Prompter
	topK     int
}

// NewStateDecider creates a state decider. A nil or undeclared machine
// switches to free-form generation.
func NewStateDecider(machine *conversation.Machine, client *inference.Client, prompter Prompter, topK int) *StateDecider {
	if prompter == nil {
		prompter = DefaultPrompter{}
	}
	return &StateDecider{machine: machine, client: client, prompter: prompter, topK: topK}
}

// Decide returns the state for the turn after the latest step of history.
//
// The first decided turn of a declared machine starts in the initial state
// without an inference call. Without a machine the reply of a free-form
// call becomes the instruction of an unnamed state. Otherwise the model
// picks an index among the reachable states; an index outside the list
// keeps the current state.
func (d *StateDecider) Decide(ctx context.Context, history *conversation.Memory, exemplars []feedback.Feedback) (conversation.State, error) {
	last, ok := history.Last()
	if !ok {
		return conversation.State{}, conversation.ErrEmptyHistory
	}

	if !d.machine.Declared() {
		reply, err := d.client.Generate(ctx, d.prompter.FreeForm(history))
		if err != nil {
			return conversation.State{}, fmt.Errorf("generate state: %w", err)
		}
		return conversation.State{Instruction: reply}, nil
	}

	if history.Len() == 1 {
		initial, _ := d.machine.Initial()
		return initial, nil
	}

	current, ok := d.machine.State(last.StateName)
	if !ok {
		return conversation.State{}, fmt.Errorf("%w: %q", conversation.ErrUnknownState, last.StateName)
	}
	candidates, err := d.machine.NextStates(current.Name)
	if err != nil {
		return conversation.State{}, err
	}

	exemplars = limitExemplars(exemplars, d.topK)
	idx, err := d.client.Choose(ctx, d.prompter.StateSelection(StatePrompt{
		History:    history,
		Current:    current,
		Candidates: candidates,
		Exemplars:  exemplars,
	}))
	if err != nil {
		return conversation.State{}, fmt.Errorf("choose state: %w", err)
	}

	if idx < 0 || idx >= len(candidates) {
		logging.Debug().
			Add(logging.State(current.Name)).
			Add(logging.Int("index", idx)).
			Add(logging.Int("candidates", len(candidates))).
			Msg("state index out of range, staying")
		return current, nil
	}
	return candidates[idx], nil
}

// limitExemplars keeps at most topK exemplars. A topK below one keeps none.
func limitExemplars(exemplars []feedback.Feedback, topK int) []feedback.Feedback {
	if topK <= 0 {
		return nil
	}
	if len(exemplars) > topK {
		return exemplars[:topK]
	}
	return exemplars
}
