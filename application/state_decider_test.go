package application

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/felixgeelhaar/agent-fsm/domain/conversation"
	"github.com/felixgeelhaar/agent-fsm/domain/feedback"
	"github.com/felixgeelhaar/agent-fsm/infrastructure/inference"
)

func executedStep(state, action string) conversation.Step {
	return conversation.Step{
		StateName: state,
		Actions: []conversation.Action{
			{Name: action, Arguments: map[string]any{}, Result: map[string]any{"user_message": "my order is late"}},
		},
	}
}

func TestStateDecider_FirstTurnUsesInitialState(t *testing.T) {
	t.Parallel()

	client, provider := scriptedClient()
	d := NewStateDecider(supportMachine(t), client, nil, 3)

	got, err := d.Decide(context.Background(), historyWith(executedStep("", "send_message")), nil)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if got.Name != "greet" {
		t.Errorf("state = %s, want greet", got.Name)
	}
	if len(provider.Requests()) != 0 {
		t.Errorf("made %d inference calls, want 0", len(provider.Requests()))
	}
}

func TestStateDecider_Selection(t *testing.T) {
	t.Parallel()

	// From triage the candidates are [triage, resolve, escalate].
	tests := []struct {
		reply string
		want  string
	}{
		{"1", "resolve"},
		{"I pick 2.", "escalate"},
		{"no number here", "triage"},
		{"7", "triage"},
		{"-1", "triage"},
	}

	for _, tt := range tests {
		t.Run(tt.reply, func(t *testing.T) {
			t.Parallel()

			client, _ := scriptedClient(inference.TextReply(tt.reply, inference.Usage{}))
			d := NewStateDecider(supportMachine(t), client, nil, 3)
			history := historyWith(executedStep("", "send_message"), executedStep("triage", "send_message"))

			got, err := d.Decide(context.Background(), history, nil)
			if err != nil {
				t.Fatalf("Decide: %v", err)
			}
			if got.Name != tt.want {
				t.Errorf("reply %q: state = %s, want %s", tt.reply, got.Name, tt.want)
			}
		})
	}
}

func TestStateDecider_PromptListsCandidatesAndExemplars(t *testing.T) {
	t.Parallel()

	client, provider := scriptedClient(inference.TextReply("0", inference.Usage{}))
	d := NewStateDecider(supportMachine(t), client, nil, 1)
	history := historyWith(executedStep("", "send_message"), executedStep("greet", "send_message"))

	exemplars := []feedback.Feedback{
		{ObservationName: "send_message", ObservationContent: "where is my parcel", StateName: "triage", ActionName: "lookup"},
		{ObservationName: "send_message", ObservationContent: "dropped", StateName: "resolve", ActionName: "lookup"},
	}
	if _, err := d.Decide(context.Background(), history, exemplars); err != nil {
		t.Fatalf("Decide: %v", err)
	}

	reqs := provider.Requests()
	if len(reqs) != 1 {
		t.Fatalf("requests = %d, want 1", len(reqs))
	}
	prompt := reqs[0].Messages[len(reqs[0].Messages)-1].Content
	for _, want := range []string{"0. greet", "1. triage", "2. escalate: the user is upset", "where is my parcel -> triage"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
	if strings.Contains(prompt, "dropped") {
		t.Error("prompt exceeds top_k exemplars")
	}
}

func TestStateDecider_UnknownCurrentState(t *testing.T) {
	t.Parallel()

	client, provider := scriptedClient(inference.TextReply("0", inference.Usage{}))
	d := NewStateDecider(supportMachine(t), client, nil, 3)
	history := historyWith(executedStep("", "send_message"), executedStep("limbo", "send_message"))

	_, err := d.Decide(context.Background(), history, nil)
	if !errors.Is(err, conversation.ErrUnknownState) {
		t.Errorf("got %v, want ErrUnknownState", err)
	}
	if len(provider.Requests()) != 0 {
		t.Error("unknown state must fail before any inference call")
	}
}

func TestStateDecider_FreeForm(t *testing.T) {
	t.Parallel()

	client, provider := scriptedClient(inference.TextReply("Apologise and ask for the order id.", inference.Usage{}))
	d := NewStateDecider(nil, client, DefaultPrompter{Persona: "You are Ada."}, 3)

	got, err := d.Decide(context.Background(), historyWith(executedStep("", "send_message")), nil)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if got.Name != "" || got.Instruction != "Apologise and ask for the order id." {
		t.Errorf("state = %+v", got)
	}
	if !strings.HasPrefix(provider.Requests()[0].Messages[0].Content, "You are Ada.") {
		t.Error("persona not prepended to the system message")
	}
}

func TestStateDecider_TransportFailure(t *testing.T) {
	t.Parallel()

	client, _ := scriptedClient()
	d := NewStateDecider(supportMachine(t), client, nil, 3)
	history := historyWith(executedStep("", "send_message"), executedStep("greet", "send_message"))

	if _, err := d.Decide(context.Background(), history, nil); !errors.Is(err, inference.ErrScriptExhausted) {
		t.Errorf("got %v, want wrapped ErrScriptExhausted", err)
	}
}

func TestStateDecider_EmptyHistory(t *testing.T) {
	t.Parallel()

	client, _ := scriptedClient()
	d := NewStateDecider(supportMachine(t), client, nil, 3)
	if _, err := d.Decide(context.Background(), &conversation.Memory{}, nil); !errors.Is(err, conversation.ErrEmptyHistory) {
		t.Errorf("got %v, want ErrEmptyHistory", err)
	}
}

func TestLimitExemplars(t *testing.T) {
	t.Parallel()

	three := []feedback.Feedback{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	tests := []struct {
		name string
		topK int
		want int
	}{
		{name: "negative", topK: -1, want: 0},
		{name: "zero", topK: 0, want: 0},
		{name: "below length", topK: 2, want: 2},
		{name: "above length", topK: 5, want: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := limitExemplars(three, tt.topK); len(got) != tt.want {
				t.Errorf("limitExemplars(%d) = %d exemplars, want %d", tt.topK, len(got), tt.want)
			}
		})
	}
	if got := limitExemplars(nil, -3); got != nil {
		t.Errorf("limitExemplars(nil, -3) = %v", got)
	}
}
