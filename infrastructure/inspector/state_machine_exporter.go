package inspector

import (
	"github.com/felixgeelhaar/agent-fsm/domain/conversation"
	"github.com/felixgeelhaar/agent-fsm/domain/inspector"
)

// MachineExporter builds the export model of a declared machine.
type MachineExporter struct {
	name    string
	machine *conversation.Machine
}

// NewMachineExporter creates a new machine exporter.
func NewMachineExporter(name string, machine *conversation.Machine) *MachineExporter {
	return &MachineExporter{name: name, machine: machine}
}

// Export exports the machine. An undeclared machine has nothing to export.
func (e *MachineExporter) Export() (*inspector.MachineExport, error) {
	initial, ok := e.machine.Initial()
	if !ok {
		return nil, inspector.ErrNoData
	}

	export := &inspector.MachineExport{
		Name:    e.name,
		Initial: initial.Name,
	}

	for _, s := range e.machine.States() {
		export.States = append(export.States, inspector.StateExport{
			Name:        s.Name,
			Scenario:    s.Scenario,
			Instruction: s.Instruction,
			Initial:     s.Name == initial.Name,
			Free:        e.machine.IsFree(s.Name),
		})
		for _, target := range e.machine.Transitions(s.Name) {
			export.Transitions = append(export.Transitions, inspector.TransitionExport{
				From: s.Name,
				To:   target,
			})
		}
	}

	return export, nil
}
