package conversation_test

import (
	"strings"
	"testing"
	"time"

	"github.com/felixgeelhaar/agent-fsm/domain/conversation"
)

func TestMemory_AppendPopLast(t *testing.T) {
	t.Parallel()

	var m conversation.Memory
	if _, ok := m.Last(); ok {
		t.Fatal("Last() on empty memory should report false")
	}
	if _, ok := m.Pop(); ok {
		t.Fatal("Pop() on empty memory should report false")
	}

	m.Append(conversation.Step{StateName: "A"})
	m.Append(conversation.Step{StateName: "B"})

	last, ok := m.Last()
	if !ok || last.StateName != "B" {
		t.Fatalf("Last() = %v, %v, want B", last, ok)
	}

	last.Actions = append(last.Actions, conversation.NewAction("x", nil))
	if len(m.Steps[1].Actions) != 1 {
		t.Error("Last() should return a pointer into the history")
	}

	popped, ok := m.Pop()
	if !ok || popped.StateName != "B" || m.Len() != 1 {
		t.Errorf("Pop() = %v, %v, len %d", popped.StateName, ok, m.Len())
	}
}

func TestMemory_Clone(t *testing.T) {
	t.Parallel()

	m := &conversation.Memory{}
	m.Append(conversation.Step{
		StateName: "A",
		Actions:   []conversation.Action{conversation.NewAction("send_message", map[string]any{"message": "hi"})},
	})

	c := m.Clone()
	c.Steps[0].Actions[0].Arguments["message"] = "changed"

	if m.Steps[0].Actions[0].Arguments["message"] != "hi" {
		t.Error("Clone() should not share argument maps")
	}
}

func TestStep_PendingAndStamp(t *testing.T) {
	t.Parallel()

	s := conversation.Step{Actions: []conversation.Action{
		{Name: "a", Result: map[string]any{}},
		{Name: "b"},
	}}
	if !s.Pending() {
		t.Error("Pending() should be true with an unexecuted action")
	}
	if s.Completed() {
		t.Error("Completed() should be false before Stamp")
	}

	loc := time.FixedZone("X", 3600)
	s.Stamp(time.Date(2024, 1, 2, 3, 4, 5, 0, loc))
	if got := s.Timestamp.Format(time.RFC3339); got != "2024-01-02T02:04:05Z" {
		t.Errorf("Timestamp = %s", got)
	}

	last, ok := s.LastAction()
	if !ok || last.Name != "b" {
		t.Errorf("LastAction() = %v, %v", last, ok)
	}
}

func TestAction_Failed(t *testing.T) {
	t.Parallel()

	a := conversation.Action{Name: "x", Result: conversation.ErrorResult("boom")}
	if !a.Executed() || !a.Failed() {
		t.Errorf("ErrorResult action should be executed and failed: %+v", a)
	}
	if conversation.NewAction("y", nil).Executed() {
		t.Error("NewAction should not be executed")
	}
}

func TestMemory_Render(t *testing.T) {
	t.Parallel()

	m := &conversation.Memory{}
	m.Append(conversation.Step{
		StateName: "greeting",
		Actions: []conversation.Action{{
			Name:      "send_message",
			Arguments: map[string]any{"message": "hello"},
			Result:    map[string]any{"user_input": "hi"},
		}},
	})

	got := m.Render()
	for _, want := range []string{"Turn 1", "[state: greeting]", `send_message({"message":"hello"})`, `{"user_input":"hi"}`} {
		if !strings.Contains(got, want) {
			t.Errorf("Render() missing %q in:\n%s", want, got)
		}
	}
}
