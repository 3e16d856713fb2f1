// Package application wires the turn components into agents: the executor,
// the state and tool deciders, and the orchestrator that runs them in order.
package application

import (
	"context"

	"github.com/felixgeelhaar/agent-fsm/domain/conversation"
	"github.com/felixgeelhaar/agent-fsm/domain/feedback"
	"github.com/felixgeelhaar/agent-fsm/domain/middleware"
	"github.com/felixgeelhaar/agent-fsm/domain/tool"
	"github.com/felixgeelhaar/agent-fsm/infrastructure/inference"
	inframw "github.com/felixgeelhaar/agent-fsm/infrastructure/middleware"
	"github.com/felixgeelhaar/agent-fsm/infrastructure/resilience"
	"github.com/felixgeelhaar/agent-fsm/infrastructure/telemetry"
)

// DefaultTopK is the number of exemplars retrieved per decision.
const DefaultTopK = 5

// Agent is a configured conversational agent. Its machine and tools are
// read-only, so one Agent serves any number of conversations.
type Agent struct {
	name         string
	machine      *conversation.Machine
	tools        *tool.Set
	client       *inference.Client
	feedback     feedback.Store
	orchestrator *Orchestrator
}

// AgentConfig contains configuration for an agent.
type AgentConfig struct {
	Name    string
	Machine *conversation.Machine
	Tools   *tool.Set
	Client  *inference.Client
	// Feedback is optional; without it no exemplars are retrieved.
	Feedback   feedback.Store
	Middleware *middleware.Registry
	Prompter   Prompter
	Metrics    telemetry.Metrics
	TopK       int
}

// NewAgent creates an agent with the given configuration.
func NewAgent(config AgentConfig) (*Agent, error) {
	if config.Client == nil {
		return nil, ErrNoClient
	}
	if config.Tools.Len() == 0 {
		return nil, ErrNoTools
	}

	if config.TopK == 0 {
		config.TopK = DefaultTopK
	}
	if config.Prompter == nil {
		config.Prompter = DefaultPrompter{}
	}
	if config.Metrics == nil {
		config.Metrics = telemetry.NoopMetricsProvider{}
	}
	if config.Middleware == nil {
		config.Middleware = DefaultMiddleware()
	}

	a := &Agent{
		name:     config.Name,
		machine:  config.Machine,
		tools:    config.Tools,
		client:   config.Client,
		feedback: config.Feedback,
	}
	a.orchestrator = &Orchestrator{
		name:     config.Name,
		machine:  config.Machine,
		executor: NewExecutor(config.Tools, config.Middleware),
		states:   NewStateDecider(config.Machine, config.Client, config.Prompter, config.TopK),
		tools:    NewToolDecider(config.Tools, config.Client, config.Prompter, config.TopK),
		feedback: config.Feedback,
		client:   config.Client,
		metrics:  config.Metrics,
		topK:     config.TopK,
	}
	return a, nil
}

// DefaultMiddleware returns the invocation chain used when none is
// configured: logging around the default resilience executor.
func DefaultMiddleware() *middleware.Registry {
	return middleware.NewRegistry().Use(
		inframw.Logging(inframw.LoggingConfig{}),
		resilience.NewDefaultExecutor().Middleware(),
	)
}

// Turn advances a conversation by one turn. See Orchestrator.Turn.
func (a *Agent) Turn(ctx context.Context, conversationID string, history *conversation.Memory) (TurnResult, error) {
	return a.orchestrator.Turn(ctx, conversationID, history)
}

// Name returns the agent name.
func (a *Agent) Name() string { return a.name }

// Machine returns the declared machine, possibly nil.
func (a *Agent) Machine() *conversation.Machine { return a.machine }

// Tools returns the capability set.
func (a *Agent) Tools() *tool.Set { return a.tools }

// Client returns the inference client.
func (a *Agent) Client() *inference.Client { return a.client }

// Feedback returns the exemplar store, possibly nil.
func (a *Agent) Feedback() feedback.Store { return a.feedback }
