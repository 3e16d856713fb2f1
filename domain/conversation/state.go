// Package conversation provides the domain model of a stateful conversation:
// the finite-state machine an agent moves through and the turn history it
// accumulates.
package conversation

// State is an immutable node of the agent's state machine.
type State struct {
	// Name identifies the state inside its machine.
	Name string `json:"name" yaml:"name"`

	// Scenario describes when the state applies. It is shown to the model
	// when choosing the next state.
	Scenario string `json:"scenario,omitempty" yaml:"scenario,omitempty"`

	// Instruction tells the model how to act while in the state.
	Instruction string `json:"instruction,omitempty" yaml:"instruction,omitempty"`
}

// IsZero reports whether the state carries no content.
func (s State) IsZero() bool {
	return s.Name == "" && s.Scenario == "" && s.Instruction == ""
}
