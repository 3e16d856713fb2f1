package application

import "errors"

var (
	// ErrNoClient indicates an agent was built without an inference client.
	ErrNoClient = errors.New("inference client is required")

	// ErrNoTools indicates an agent was built without capabilities.
	ErrNoTools = errors.New("agent has no tools")

	// ErrAgentExists indicates an agent name is already registered.
	ErrAgentExists = errors.New("agent already registered")

	// ErrAgentNotFound indicates no agent is registered under a name.
	ErrAgentNotFound = errors.New("agent not found")
)
