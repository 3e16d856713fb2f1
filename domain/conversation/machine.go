package conversation

import "fmt"

// Machine is a declared state machine. It is read-only after construction
// and safe to share between conversations.
type Machine struct {
	initial string
	states  []State
	index   map[string]State
	out     map[string][]string
	in      map[string][]string
	free    []string
}

// NewMachine validates and builds a machine.
//
// Every transition endpoint must name a declared state. A state that has no
// key in transitions and is never a transition target is free: it is
// reachable from every state. A key with an empty target list still counts as
// an outgoing entry.
func NewMachine(initial string, states []State, transitions map[string][]string) (*Machine, error) {
	m := &Machine{
		initial: initial,
		states:  make([]State, 0, len(states)),
		index:   make(map[string]State, len(states)),
		out:     make(map[string][]string, len(transitions)),
		in:      make(map[string][]string),
	}

	for _, s := range states {
		if s.Name == "" {
			return nil, ErrEmptyStateName
		}
		if _, dup := m.index[s.Name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateState, s.Name)
		}
		m.index[s.Name] = s
		m.states = append(m.states, s)
	}

	if initial != "" {
		if _, ok := m.index[initial]; !ok {
			return nil, fmt.Errorf("%w: initial state %s", ErrUnknownState, initial)
		}
	}

	// Iterate states rather than the map so the reverse index is deterministic.
	for _, s := range m.states {
		targets, ok := transitions[s.Name]
		if !ok {
			continue
		}
		m.out[s.Name] = append([]string{}, targets...)
		for _, target := range targets {
			if _, known := m.index[target]; !known {
				return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Name, target)
			}
			m.in[target] = append(m.in[target], s.Name)
		}
	}
	for from := range transitions {
		if _, known := m.index[from]; !known {
			return nil, fmt.Errorf("%w: unknown source %s", ErrInvalidTransition, from)
		}
	}

	for _, s := range m.states {
		_, hasOut := m.out[s.Name]
		_, hasIn := m.in[s.Name]
		if !hasOut && !hasIn {
			m.free = append(m.free, s.Name)
		}
	}

	return m, nil
}

// MustNewMachine is like NewMachine but panics on error.
func MustNewMachine(initial string, states []State, transitions map[string][]string) *Machine {
	m, err := NewMachine(initial, states, transitions)
	if err != nil {
		panic(err)
	}
	return m
}

// Declared reports whether the machine constrains state selection.
// A nil machine or one without an initial state does not.
func (m *Machine) Declared() bool {
	return m != nil && m.initial != ""
}

// Initial returns the initial state.
func (m *Machine) Initial() (State, bool) {
	if !m.Declared() {
		return State{}, false
	}
	return m.index[m.initial], true
}

// State returns the state with the given name.
func (m *Machine) State(name string) (State, bool) {
	if m == nil {
		return State{}, false
	}
	s, ok := m.index[name]
	return s, ok
}

// States returns the declared states in declaration order.
func (m *Machine) States() []State {
	if m == nil {
		return nil
	}
	out := make([]State, len(m.states))
	copy(out, m.states)
	return out
}

// Transitions returns the outgoing targets of a state.
func (m *Machine) Transitions(name string) []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.out[name]...)
}

// Sources returns the states with a transition into name.
func (m *Machine) Sources(name string) []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.in[name]...)
}

// FreeStates returns the states reachable from anywhere.
func (m *Machine) FreeStates() []State {
	if m == nil {
		return nil
	}
	out := make([]State, 0, len(m.free))
	for _, name := range m.free {
		out = append(out, m.index[name])
	}
	return out
}

// IsFree reports whether the named state is free.
func (m *Machine) IsFree(name string) bool {
	if m == nil {
		return false
	}
	for _, f := range m.free {
		if f == name {
			return true
		}
	}
	return false
}

// NextStates returns the candidates for the next turn: the current state,
// then its transition targets, then the free states, without duplicates.
func (m *Machine) NextStates(current string) ([]State, error) {
	if m == nil {
		return nil, ErrNoMachine
	}
	if _, ok := m.index[current]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownState, current)
	}

	seen := make(map[string]struct{}, len(m.states))
	next := make([]State, 0, len(m.states))
	add := func(name string) {
		if _, dup := seen[name]; dup {
			return
		}
		seen[name] = struct{}{}
		next = append(next, m.index[name])
	}

	add(current)
	for _, target := range m.out[current] {
		add(target)
	}
	for _, name := range m.free {
		add(name)
	}
	return next, nil
}
