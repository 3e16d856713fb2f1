package application

import (
	"github.com/felixgeelhaar/agent-fsm/domain/conversation"
	"github.com/felixgeelhaar/agent-fsm/domain/feedback"
	"github.com/felixgeelhaar/agent-fsm/domain/middleware"
	"github.com/felixgeelhaar/agent-fsm/domain/tool"
	"github.com/felixgeelhaar/agent-fsm/infrastructure/inference"
	"github.com/felixgeelhaar/agent-fsm/infrastructure/telemetry"
)

// Option configures an agent.
type Option func(*AgentConfig)

// WithMachine sets the declared state machine.
func WithMachine(m *conversation.Machine) Option {
	return func(c *AgentConfig) {
		c.Machine = m
	}
}

// WithTools sets the capability set.
func WithTools(s *tool.Set) Option {
	return func(c *AgentConfig) {
		c.Tools = s
	}
}

// WithClient sets the inference client.
func WithClient(client *inference.Client) Option {
	return func(c *AgentConfig) {
		c.Client = client
	}
}

// WithFeedback sets the exemplar store.
func WithFeedback(s feedback.Store) Option {
	return func(c *AgentConfig) {
		c.Feedback = s
	}
}

// WithMiddleware sets the invocation middleware chain.
// If not set, the agent uses DefaultMiddleware.
func WithMiddleware(m *middleware.Registry) Option {
	return func(c *AgentConfig) {
		c.Middleware = m
	}
}

// WithPrompter sets the prompt renderer.
func WithPrompter(p Prompter) Option {
	return func(c *AgentConfig) {
		c.Prompter = p
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m telemetry.Metrics) Option {
	return func(c *AgentConfig) {
		c.Metrics = m
	}
}

// WithTopK sets the number of exemplars retrieved per decision.
// Negative values disable retrieval.
func WithTopK(n int) Option {
	return func(c *AgentConfig) {
		c.TopK = n
	}
}

// NewAgentWithOptions creates an agent with functional options.
func NewAgentWithOptions(name string, opts ...Option) (*Agent, error) {
	config := AgentConfig{Name: name}
	for _, opt := range opts {
		opt(&config)
	}
	return NewAgent(config)
}
