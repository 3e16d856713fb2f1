package statemachine

import (
	"github.com/felixgeelhaar/statekit"
)

// guardStateChosen allows DECIDE_TOOLS only when the event names a state
// or carries a free-form decision.
func guardStateChosen(_ *Context, event statekit.Event) bool {
	p, ok := event.Payload.(Payload)
	return ok && (p.ChosenState != "" || p.FreeForm)
}

// guardHasActions allows COMMIT only for a step with at least one
// invocation, so a turn can never stall.
func guardHasActions(_ *Context, event statekit.Event) bool {
	p, ok := event.Payload.(Payload)
	return ok && p.Actions > 0
}
