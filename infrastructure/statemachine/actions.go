package statemachine

import (
	"github.com/felixgeelhaar/statekit"

	"github.com/felixgeelhaar/agent-fsm/infrastructure/logging"
)

// Payload carries the outcome of a phase with the event that ends it.
type Payload struct {
	// ChosenState accompanies DECIDE_TOOLS.
	ChosenState string
	// FreeForm marks a generated state of an agent without a machine.
	FreeForm bool
	// Actions accompanies COMMIT and BOOTSTRAP.
	Actions int
	// Err accompanies FAIL.
	Err error
}

// enterPhase logs entry into a phase. Actions receive **Context because the
// machine context is itself a pointer.
func enterPhase(ctx **Context, event statekit.Event) {
	if ctx == nil || *ctx == nil {
		return
	}
	c := *ctx

	logging.Debug().
		Add(logging.ConversationID(c.ConversationID)).
		Add(logging.Turn(c.Turn)).
		Add(logging.Phase(string(phaseForEvent(event.Type)))).
		Msg("turn phase")
}

// recordState stores the chosen FSM state before tools are decided.
func recordState(ctx **Context, event statekit.Event) {
	if ctx == nil || *ctx == nil {
		return
	}
	if p, ok := event.Payload.(Payload); ok {
		(*ctx).ChosenState = p.ChosenState
		(*ctx).StateChosen = true
	}
}

// recordActions stores how many invocations the committed step carries.
func recordActions(ctx **Context, event statekit.Event) {
	if ctx == nil || *ctx == nil {
		return
	}
	if p, ok := event.Payload.(Payload); ok {
		(*ctx).Actions = p.Actions
	}
}

// recordFailure stores the cause of a FAIL transition.
func recordFailure(ctx **Context, event statekit.Event) {
	if ctx == nil || *ctx == nil {
		return
	}
	c := *ctx
	if p, ok := event.Payload.(Payload); ok {
		c.Err = p.Err
	}

	logging.Warn().
		Add(logging.ConversationID(c.ConversationID)).
		Add(logging.Turn(c.Turn)).
		Add(logging.ErrorField(c.Err)).
		Msg("turn failed")
}

// phaseForEvent returns the phase an event leads into. The initial entry
// into idle has no event type.
func phaseForEvent(t statekit.EventType) Phase {
	switch t {
	case EventExecute:
		return PhaseExecuting
	case EventDecideState:
		return PhaseDecidingState
	case EventDecideTools:
		return PhaseDecidingTools
	case EventCommit, EventBootstrap:
		return PhaseCommitted
	case EventFail:
		return PhaseFailed
	default:
		return PhaseIdle
	}
}
