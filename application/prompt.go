package application

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/agent-fsm/domain/conversation"
	"github.com/felixgeelhaar/agent-fsm/domain/feedback"
	"github.com/felixgeelhaar/agent-fsm/infrastructure/inference"
)

// StatePrompt is the input of a constrained state selection.
type StatePrompt struct {
	History    *conversation.Memory
	Current    conversation.State
	Candidates []conversation.State
	Exemplars  []feedback.Feedback
}

// ToolPrompt is the input of a forced tool selection.
type ToolPrompt struct {
	History   *conversation.Memory
	State     conversation.State
	Exemplars []feedback.Feedback
}

// Prompter renders decision inputs into chat messages.
type Prompter interface {
	// FreeForm asks for the instruction of the next turn of an agent
	// without a state machine.
	FreeForm(history *conversation.Memory) []inference.Message

	// StateSelection asks for the index of the next state.
	StateSelection(in StatePrompt) []inference.Message

	// ToolSelection asks for the next capability invocations.
	ToolSelection(in ToolPrompt) []inference.Message
}

// DefaultPrompter renders plain-text prompts.
type DefaultPrompter struct {
	// Persona is prepended to every system message.
	Persona string
}

func (p DefaultPrompter) system(body string) inference.Message {
	if p.Persona == "" {
		return inference.System(body)
	}
	return inference.System(p.Persona + "\n\n" + body)
}

// FreeForm implements Prompter.
func (p DefaultPrompter) FreeForm(history *conversation.Memory) []inference.Message {
	return []inference.Message{
		p.system("You are deciding how a conversational agent should act next. " +
			"Read the conversation so far and reply with a short instruction for the agent's next turn."),
		inference.User("Conversation:\n" + history.Render()),
	}
}

// StateSelection implements Prompter.
func (p DefaultPrompter) StateSelection(in StatePrompt) []inference.Message {
	var b strings.Builder
	b.WriteString("Conversation:\n")
	b.WriteString(in.History.Render())

	if len(in.Exemplars) > 0 {
		b.WriteString("\nPast decisions (last action -> selected state):\n")
		for _, ex := range in.Exemplars {
			fmt.Fprintf(&b, "- %s: %s -> %s\n", ex.ObservationName, oneLine(ex.ObservationContent), ex.StateName)
		}
	}

	fmt.Fprintf(&b, "\nCurrent state: %s\n", in.Current.Name)
	b.WriteString("Candidate states:\n")
	for i, s := range in.Candidates {
		fmt.Fprintf(&b, "%d. %s", i, s.Name)
		if s.Scenario != "" {
			fmt.Fprintf(&b, ": %s", s.Scenario)
		}
		b.WriteString("\n")
	}

	return []inference.Message{
		p.system("You are choosing the state a conversational agent should be in for its next turn. " +
			"Reply with the number of exactly one candidate state and nothing else."),
		inference.User(b.String()),
	}
}

// ToolSelection implements Prompter.
func (p DefaultPrompter) ToolSelection(in ToolPrompt) []inference.Message {
	var b strings.Builder
	if in.State.Instruction != "" {
		b.WriteString("Instruction:\n")
		b.WriteString(in.State.Instruction)
		b.WriteString("\n\n")
	}

	b.WriteString("Conversation (most recent turn last):\n")
	b.WriteString(in.History.Render())

	if len(in.Exemplars) > 0 {
		b.WriteString("\nExamples (observation -> invocation):\n")
		for _, ex := range in.Exemplars {
			fmt.Fprintf(&b, "- %s: %s -> %s(%s)\n",
				ex.ObservationName, oneLine(ex.ObservationContent), ex.ActionName, oneLine(ex.ActionContent))
		}
	}

	return []inference.Message{
		p.system("You operate a conversational agent. Call one or more of the available tools to take the agent's next turn. " +
			"You must call at least one tool."),
		inference.User(b.String()),
	}
}

// observation renders the last action of a step as exemplar query text.
func observation(step *conversation.Step) (name, content string) {
	last, ok := step.LastAction()
	if !ok {
		return "", ""
	}
	data, err := json.Marshal(map[string]any{"arguments": last.Arguments, "result": last.Result})
	if err != nil {
		return last.Name, ""
	}
	return last.Name, string(data)
}

func marshalArgs(args map[string]any) (string, error) {
	if len(args) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("encode arguments: %w", err)
	}
	return string(data), nil
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

var _ Prompter = DefaultPrompter{}
