// Package statemachine drives the turn protocol as a statekit statechart:
// idle → executing → deciding_state → deciding_tools → committed, with FAIL
// from any decision phase to failed and BOOTSTRAP straight to committed.
package statemachine

import (
	"github.com/felixgeelhaar/statekit"
)

// Context carries turn progress through the statechart.
type Context struct {
	ConversationID string
	Turn           int

	// ChosenState is the FSM state picked in deciding_state.
	ChosenState string
	// StateChosen is set once the state decision is recorded.
	StateChosen bool
	// Actions is the number of invocations decided in deciding_tools.
	Actions int
	// Err is the cause of a FAIL transition.
	Err error
	// Phases lists every phase entered, in order.
	Phases []Phase
}

// NewContext creates a turn context.
func NewContext(conversationID string, turn int) *Context {
	return &Context{ConversationID: conversationID, Turn: turn}
}

// Phase is a node of the turn protocol.
type Phase string

// Turn phases.
const (
	PhaseIdle          Phase = "idle"
	PhaseExecuting     Phase = "executing"
	PhaseDecidingState Phase = "deciding_state"
	PhaseDecidingTools Phase = "deciding_tools"
	PhaseCommitted     Phase = "committed"
	PhaseFailed        Phase = "failed"
)

// Event types.
const (
	EventBootstrap   statekit.EventType = "BOOTSTRAP"
	EventExecute     statekit.EventType = "EXECUTE"
	EventDecideState statekit.EventType = "DECIDE_STATE"
	EventDecideTools statekit.EventType = "DECIDE_TOOLS"
	EventCommit      statekit.EventType = "COMMIT"
	EventFail        statekit.EventType = "FAIL"
)

const (
	stateIdle          = statekit.StateID(PhaseIdle)
	stateExecuting     = statekit.StateID(PhaseExecuting)
	stateDecidingState = statekit.StateID(PhaseDecidingState)
	stateDecidingTools = statekit.StateID(PhaseDecidingTools)
	stateCommitted     = statekit.StateID(PhaseCommitted)
	stateFailed        = statekit.StateID(PhaseFailed)
)

// NewTurnMachine creates the turn protocol statechart.
func NewTurnMachine() (*statekit.MachineConfig[*Context], error) {
	return statekit.NewMachine[*Context]("turn").
		WithInitial(stateIdle).
		WithContext(&Context{}).
		WithAction("enterPhase", enterPhase).
		WithAction("recordState", recordState).
		WithAction("recordActions", recordActions).
		WithAction("recordFailure", recordFailure).
		WithGuard("stateChosen", guardStateChosen).
		WithGuard("hasActions", guardHasActions).
		State(stateIdle).
			OnEntry("enterPhase").
			On(EventBootstrap).Target(stateCommitted).Do("recordActions").
			On(EventExecute).Target(stateExecuting).
			Done().
		State(stateExecuting).
			OnEntry("enterPhase").
			On(EventDecideState).Target(stateDecidingState).
			Done().
		State(stateDecidingState).
			OnEntry("enterPhase").
			On(EventDecideTools).Target(stateDecidingTools).Do("recordState").Guard("stateChosen").
			On(EventFail).Target(stateFailed).Do("recordFailure").
			Done().
		State(stateDecidingTools).
			OnEntry("enterPhase").
			On(EventCommit).Target(stateCommitted).Do("recordActions").Guard("hasActions").
			On(EventFail).Target(stateFailed).Do("recordFailure").
			Done().
		State(stateCommitted).
			Final().
			OnEntry("enterPhase").
			Done().
		State(stateFailed).
			Final().
			OnEntry("enterPhase").
			Done().
		Build()
}
