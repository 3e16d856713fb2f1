package tool

import "fmt"

// SendMessageName is the capability that emits a message to the caller.
// Bootstrap and the zero-selection fallback both invoke it.
const SendMessageName = "send_message"

// Set is an immutable, ordered collection of uniquely named tools.
// It is safe to share between conversations.
type Set struct {
	tools []Tool
	index map[string]Tool
}

// NewSet builds a Set, failing fast on empty or duplicate names.
func NewSet(tools ...Tool) (*Set, error) {
	s := &Set{
		tools: make([]Tool, 0, len(tools)),
		index: make(map[string]Tool, len(tools)),
	}
	for _, t := range tools {
		if t == nil || t.Name() == "" {
			return nil, ErrEmptyName
		}
		if _, dup := s.index[t.Name()]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTool, t.Name())
		}
		s.index[t.Name()] = t
		s.tools = append(s.tools, t)
	}
	return s, nil
}

// MustNewSet is like NewSet but panics on error.
func MustNewSet(tools ...Tool) *Set {
	s, err := NewSet(tools...)
	if err != nil {
		panic(err)
	}
	return s
}

// Get returns the tool with the given name.
func (s *Set) Get(name string) (Tool, bool) {
	if s == nil {
		return nil, false
	}
	t, ok := s.index[name]
	return t, ok
}

// Lookup returns the tool with the given name or an error wrapping ErrToolNotFound.
func (s *Set) Lookup(name string) (Tool, error) {
	t, ok := s.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w %s", ErrToolNotFound, name)
	}
	return t, nil
}

// List returns the tools in declaration order.
func (s *Set) List() []Tool {
	if s == nil {
		return nil
	}
	out := make([]Tool, len(s.tools))
	copy(out, s.tools)
	return out
}

// Names returns the tool names in declaration order.
func (s *Set) Names() []string {
	if s == nil {
		return nil
	}
	names := make([]string, len(s.tools))
	for i, t := range s.tools {
		names[i] = t.Name()
	}
	return names
}

// Len returns the number of tools.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.tools)
}

// FromRegistry snapshots every tool of a registry into a Set.
func FromRegistry(r Registry) (*Set, error) {
	return NewSet(r.List()...)
}
