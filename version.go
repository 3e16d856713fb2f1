// Package agentfsm holds the release version of the agent-fsm module.
package agentfsm

// Version is the current version of agent-fsm.
const Version = "0.1.0"

// GetVersion returns the current version string.
func GetVersion() string {
	return Version
}
