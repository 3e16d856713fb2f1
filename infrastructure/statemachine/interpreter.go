package statemachine

import (
	"errors"
	"fmt"

	"github.com/felixgeelhaar/statekit"
)

// ErrProtocol is returned when an event is not accepted in the current phase.
var ErrProtocol = errors.New("turn protocol violation")

// Interpreter runs one turn through the statechart.
type Interpreter struct {
	interp *statekit.Interpreter[*Context]
	ctx    *Context
}

// NewInterpreter creates an interpreter bound to ctx.
func NewInterpreter(machine *statekit.MachineConfig[*Context], ctx *Context) *Interpreter {
	interp := statekit.NewInterpreter(machine)
	interp.UpdateContext(func(c **Context) {
		*c = ctx
	})
	return &Interpreter{interp: interp, ctx: ctx}
}

// NewTurn builds the turn machine and starts an interpreter in idle.
func NewTurn(conversationID string, turn int) (*Interpreter, error) {
	machine, err := NewTurnMachine()
	if err != nil {
		return nil, fmt.Errorf("build turn machine: %w", err)
	}
	i := NewInterpreter(machine, NewContext(conversationID, turn))
	i.Start()
	return i, nil
}

// Start enters the initial phase.
func (i *Interpreter) Start() {
	i.interp.Start()
	i.ctx.Phases = append(i.ctx.Phases, i.Phase())
}

// Phase returns the current phase.
func (i *Interpreter) Phase() Phase {
	return Phase(i.interp.State().Value)
}

// Done reports whether the turn reached committed or failed.
func (i *Interpreter) Done() bool {
	return i.interp.Done()
}

// Failed reports whether the turn ended in failed.
func (i *Interpreter) Failed() bool {
	return i.interp.Matches(stateFailed)
}

// Context returns the turn context.
func (i *Interpreter) Context() *Context {
	return i.ctx
}

// send delivers an event and fails when the phase did not change.
func (i *Interpreter) send(t statekit.EventType, p Payload) error {
	from := i.Phase()
	i.interp.Send(statekit.Event{Type: t, Payload: p})
	to := i.Phase()
	if to == from {
		return fmt.Errorf("%w: %s not accepted in %s", ErrProtocol, t, from)
	}
	i.ctx.Phases = append(i.ctx.Phases, to)
	return nil
}

// Bootstrap commits the seed step of an empty history.
func (i *Interpreter) Bootstrap(actions int) error {
	return i.send(EventBootstrap, Payload{Actions: actions})
}

// Execute enters the execution phase.
func (i *Interpreter) Execute() error {
	return i.send(EventExecute, Payload{})
}

// DecideState enters the state decision phase.
func (i *Interpreter) DecideState() error {
	return i.send(EventDecideState, Payload{})
}

// DecideTools records the chosen state and enters the tool decision phase.
func (i *Interpreter) DecideTools(chosen string) error {
	return i.send(EventDecideTools, Payload{ChosenState: chosen})
}

// DecideFreeForm enters the tool decision phase after a generated state,
// which has no name.
func (i *Interpreter) DecideFreeForm() error {
	return i.send(EventDecideTools, Payload{FreeForm: true})
}

// Commit records the decided step and ends the turn.
func (i *Interpreter) Commit(actions int) error {
	return i.send(EventCommit, Payload{Actions: actions})
}

// Fail ends the turn with cause. It returns cause so callers can
// `return i.Fail(err)`; a protocol error is joined when FAIL is not accepted.
func (i *Interpreter) Fail(cause error) error {
	if err := i.send(EventFail, Payload{Err: cause}); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}
