package application

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds constructed agents by name. The host owns it and passes it
// to whatever needs to look agents up.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*Agent
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]*Agent)}
}

// Register adds an agent under its name.
func (r *Registry) Register(a *Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[a.Name()]; exists {
		return fmt.Errorf("%w: %s", ErrAgentExists, a.Name())
	}
	r.agents[a.Name()] = a
	return nil
}

// Get returns the agent registered under name.
func (r *Registry) Get(name string) (*Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.agents[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, name)
	}
	return a, nil
}

// GetOrCreate returns the agent registered under name, building and
// registering it with build when absent.
func (r *Registry) GetOrCreate(name string, build func() (*Agent, error)) (*Agent, error) {
	if a, err := r.Get(name); err == nil {
		return a, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.agents[name]; ok {
		return a, nil
	}
	a, err := build()
	if err != nil {
		return nil, err
	}
	r.agents[name] = a
	return a, nil
}

// Remove unregisters an agent.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.agents, name)
}

// Names returns the registered names in lexical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
