package conversation

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Memory is the append-only turn history of one conversation. The last step
// is the turn being executed or decided. Memory is not safe for concurrent
// writers; a conversation has exactly one.
type Memory struct {
	Steps []Step `json:"steps"`
}

// Len returns the number of steps.
func (m *Memory) Len() int {
	if m == nil {
		return 0
	}
	return len(m.Steps)
}

// Empty reports whether the history has no steps.
func (m *Memory) Empty() bool {
	return m.Len() == 0
}

// Last returns a pointer to the latest step so executors can fill results
// in place.
func (m *Memory) Last() (*Step, bool) {
	if m.Empty() {
		return nil, false
	}
	return &m.Steps[len(m.Steps)-1], true
}

// Append adds a step to the end of the history.
func (m *Memory) Append(s Step) {
	m.Steps = append(m.Steps, s)
}

// Pop removes and returns the last step.
func (m *Memory) Pop() (Step, bool) {
	if m.Empty() {
		return Step{}, false
	}
	last := m.Steps[len(m.Steps)-1]
	m.Steps = m.Steps[:len(m.Steps)-1]
	return last, true
}

// Clone returns a deep copy of the history.
func (m *Memory) Clone() *Memory {
	if m == nil {
		return &Memory{}
	}
	data, err := json.Marshal(m)
	if err != nil {
		out := &Memory{Steps: make([]Step, len(m.Steps))}
		copy(out.Steps, m.Steps)
		return out
	}
	var out Memory
	if err := json.Unmarshal(data, &out); err != nil {
		return &Memory{Steps: append([]Step(nil), m.Steps...)}
	}
	return &out
}

// Render formats the history as plain text for prompts. Each step lists the
// state and each action with its arguments and result.
func (m *Memory) Render() string {
	if m.Empty() {
		return ""
	}
	var b strings.Builder
	for i, s := range m.Steps {
		fmt.Fprintf(&b, "Turn %d", i+1)
		if s.StateName != "" {
			fmt.Fprintf(&b, " [state: %s]", s.StateName)
		}
		b.WriteString("\n")
		for _, a := range s.Actions {
			fmt.Fprintf(&b, "- %s(%s)", a.Name, compactJSON(a.Arguments))
			if a.Executed() {
				fmt.Fprintf(&b, " -> %s", compactJSON(a.Result))
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

func compactJSON(v map[string]any) string {
	if len(v) == 0 {
		return "{}"
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
