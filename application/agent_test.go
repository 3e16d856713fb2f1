package application

import (
	"errors"
	"testing"
)

func TestNewAgent_Validation(t *testing.T) {
	t.Parallel()

	client, _ := scriptedClient()

	if _, err := NewAgent(AgentConfig{Name: "a", Tools: testTools(t)}); !errors.Is(err, ErrNoClient) {
		t.Errorf("without client: %v", err)
	}
	if _, err := NewAgent(AgentConfig{Name: "a", Client: client}); !errors.Is(err, ErrNoTools) {
		t.Errorf("without tools: %v", err)
	}
}

func TestNewAgentWithOptions_Defaults(t *testing.T) {
	t.Parallel()

	client, _ := scriptedClient()
	machine := supportMachine(t)
	a, err := NewAgentWithOptions("support",
		WithMachine(machine),
		WithTools(testTools(t)),
		WithClient(client),
	)
	if err != nil {
		t.Fatalf("NewAgentWithOptions: %v", err)
	}

	if a.Name() != "support" || a.Machine() != machine || a.Client() != client {
		t.Errorf("agent = %+v", a)
	}
	if a.Feedback() != nil {
		t.Error("feedback should be optional")
	}
	if a.orchestrator.topK != DefaultTopK {
		t.Errorf("topK = %d, want %d", a.orchestrator.topK, DefaultTopK)
	}
	if a.orchestrator.metrics == nil {
		t.Error("metrics default missing")
	}
}

func TestNewAgentWithOptions_NegativeTopKDisablesRetrieval(t *testing.T) {
	t.Parallel()

	client, _ := scriptedClient()
	a, err := NewAgentWithOptions("support", WithTools(testTools(t)), WithClient(client), WithTopK(-1))
	if err != nil {
		t.Fatalf("NewAgentWithOptions: %v", err)
	}
	if a.orchestrator.topK != -1 {
		t.Errorf("topK = %d", a.orchestrator.topK)
	}
}

func TestDefaultMiddleware(t *testing.T) {
	t.Parallel()

	if n := DefaultMiddleware().Len(); n != 2 {
		t.Errorf("default chain length = %d, want 2", n)
	}
}
