package application

import (
	"context"
	"errors"
	"testing"

	"github.com/felixgeelhaar/agent-fsm/domain/conversation"
	"github.com/felixgeelhaar/agent-fsm/domain/middleware"
	"github.com/felixgeelhaar/agent-fsm/domain/tool"
	"github.com/felixgeelhaar/agent-fsm/infrastructure/inference"
)

func echoTool(name string) tool.Tool {
	return tool.NewBuilder(name).
		WithHandler(func(_ context.Context, args map[string]any) (map[string]any, error) {
			return map[string]any{"echo": args}, nil
		}).
		MustBuild()
}

func failingTool(name string) tool.Tool {
	return tool.NewBuilder(name).
		WithHandler(func(context.Context, map[string]any) (map[string]any, error) {
			return nil, errors.New("backend unavailable")
		}).
		MustBuild()
}

func panickingTool(name string) tool.Tool {
	return tool.NewBuilder(name).
		WithHandler(func(context.Context, map[string]any) (map[string]any, error) {
			panic("nil map write")
		}).
		MustBuild()
}

func testTools(t *testing.T, extra ...tool.Tool) *tool.Set {
	t.Helper()
	set, err := tool.NewSet(append([]tool.Tool{echoTool(tool.SendMessageName)}, extra...)...)
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}
	return set
}

// supportMachine declares greet -> triage -> resolve with escalate free.
func supportMachine(t *testing.T) *conversation.Machine {
	t.Helper()
	m, err := conversation.NewMachine("greet",
		[]conversation.State{
			{Name: "greet", Instruction: "Greet the user."},
			{Name: "triage", Scenario: "the user described a problem"},
			{Name: "resolve"},
			{Name: "escalate", Scenario: "the user is upset"},
		},
		map[string][]string{
			"greet":  {"triage"},
			"triage": {"resolve"},
		},
	)
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}
	return m
}

func scriptedClient(responses ...inference.CompletionResponse) (*inference.Client, *inference.ScriptedProvider) {
	provider := inference.NewScriptedProvider(responses...)
	return inference.NewClient(provider, inference.WithRetry(1, 0, 0)), provider
}

func directChain() *middleware.Registry {
	return middleware.NewRegistry()
}

func historyWith(steps ...conversation.Step) *conversation.Memory {
	m := &conversation.Memory{}
	for _, s := range steps {
		m.Append(s)
	}
	return m
}
