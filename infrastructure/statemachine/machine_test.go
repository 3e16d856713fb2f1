package statemachine

import (
	"errors"
	"reflect"
	"testing"

	"github.com/felixgeelhaar/statekit"
)

func newTurn(t *testing.T) *Interpreter {
	t.Helper()
	i, err := NewTurn("c-1", 3)
	if err != nil {
		t.Fatalf("NewTurn() error = %v", err)
	}
	if i.Phase() != PhaseIdle {
		t.Fatalf("initial phase = %s, want idle", i.Phase())
	}
	return i
}

func TestNewTurnMachine(t *testing.T) {
	t.Parallel()

	machine, err := NewTurnMachine()
	if err != nil {
		t.Fatalf("NewTurnMachine() error = %v", err)
	}
	if machine == nil {
		t.Fatal("NewTurnMachine() returned nil machine")
	}
}

func TestInterpreter_CommittedTurn(t *testing.T) {
	t.Parallel()

	i := newTurn(t)
	steps := []func() error{
		i.Execute,
		i.DecideState,
		func() error { return i.DecideTools("resolve") },
		func() error { return i.Commit(2) },
	}
	for n, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d error = %v", n, err)
		}
	}

	if !i.Done() || i.Failed() {
		t.Errorf("Done() = %v, Failed() = %v, want committed", i.Done(), i.Failed())
	}
	ctx := i.Context()
	if ctx.ChosenState != "resolve" || ctx.Actions != 2 {
		t.Errorf("context = %+v", ctx)
	}
	want := []Phase{PhaseIdle, PhaseExecuting, PhaseDecidingState, PhaseDecidingTools, PhaseCommitted}
	if !reflect.DeepEqual(ctx.Phases, want) {
		t.Errorf("phases = %v, want %v", ctx.Phases, want)
	}
}

func TestInterpreter_FreeFormTurn(t *testing.T) {
	t.Parallel()

	i := newTurn(t)
	for n, step := range []func() error{i.Execute, i.DecideState, i.DecideFreeForm} {
		if err := step(); err != nil {
			t.Fatalf("step %d error = %v", n, err)
		}
	}
	if i.Phase() != PhaseDecidingTools {
		t.Errorf("phase = %s, want deciding_tools", i.Phase())
	}
	if ctx := i.Context(); ctx.ChosenState != "" || !ctx.StateChosen {
		t.Errorf("context = %+v", ctx)
	}
}

func TestInterpreter_Bootstrap(t *testing.T) {
	t.Parallel()

	i := newTurn(t)
	if err := i.Bootstrap(1); err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	if i.Phase() != PhaseCommitted {
		t.Errorf("phase = %s, want committed", i.Phase())
	}
}

func TestInterpreter_Fail(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		advance func(*Interpreter) error
	}{
		{"while deciding state", func(i *Interpreter) error {
			if err := i.Execute(); err != nil {
				return err
			}
			return i.DecideState()
		}},
		{"while deciding tools", func(i *Interpreter) error {
			if err := i.Execute(); err != nil {
				return err
			}
			if err := i.DecideState(); err != nil {
				return err
			}
			return i.DecideTools("greeting")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			i := newTurn(t)
			if err := tt.advance(i); err != nil {
				t.Fatalf("advance error = %v", err)
			}

			cause := errors.New("inference down")
			if err := i.Fail(cause); !errors.Is(err, cause) || errors.Is(err, ErrProtocol) {
				t.Errorf("Fail() = %v, want cause only", err)
			}
			if !i.Failed() || !i.Done() {
				t.Errorf("Failed() = %v, Done() = %v", i.Failed(), i.Done())
			}
			if !errors.Is(i.Context().Err, cause) {
				t.Errorf("context Err = %v", i.Context().Err)
			}
		})
	}
}

func TestInterpreter_ProtocolViolations(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		run  func(*Interpreter) error
	}{
		{"decide before execute", func(i *Interpreter) error { return i.DecideState() }},
		{"commit from idle", func(i *Interpreter) error { return i.Commit(1) }},
		{"tools without a state", func(i *Interpreter) error {
			_ = i.Execute()
			_ = i.DecideState()
			return i.DecideTools("")
		}},
		{"commit an empty step", func(i *Interpreter) error {
			_ = i.Execute()
			_ = i.DecideState()
			_ = i.DecideTools("greeting")
			return i.Commit(0)
		}},
		{"fail while executing", func(i *Interpreter) error {
			_ = i.Execute()
			return i.send(EventFail, Payload{})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if err := tt.run(newTurn(t)); !errors.Is(err, ErrProtocol) {
				t.Errorf("error = %v, want ErrProtocol", err)
			}
		})
	}
}

func TestPhaseForEvent(t *testing.T) {
	t.Parallel()

	tests := map[string]Phase{
		string(EventExecute):     PhaseExecuting,
		string(EventDecideState): PhaseDecidingState,
		string(EventDecideTools): PhaseDecidingTools,
		string(EventCommit):      PhaseCommitted,
		string(EventBootstrap):   PhaseCommitted,
		string(EventFail):        PhaseFailed,
		"":                       PhaseIdle,
	}
	for event, want := range tests {
		if got := phaseForEvent(statekit.EventType(event)); got != want {
			t.Errorf("phaseForEvent(%q) = %s, want %s", event, got, want)
		}
	}
}
