package inspector

import (
	"fmt"
	"strings"

	"github.com/felixgeelhaar/agent-fsm/domain/inspector"
)

// MermaidFormatter formats machine and history exports as Mermaid diagrams.
type MermaidFormatter struct{}

// NewMermaidFormatter creates a new Mermaid formatter.
func NewMermaidFormatter() *MermaidFormatter {
	return &MermaidFormatter{}
}

// Format formats the data as Mermaid.
func (f *MermaidFormatter) Format(data any) ([]byte, error) {
	switch v := data.(type) {
	case *inspector.MachineExport:
		return f.formatMachine(v), nil
	case *inspector.HistoryExport:
		return f.formatHistory(v), nil
	default:
		return nil, inspector.ErrInvalidFormat
	}
}

// FormatType returns the format type.
func (f *MermaidFormatter) FormatType() inspector.ExportFormat {
	return inspector.FormatMermaid
}

func (f *MermaidFormatter) formatMachine(sm *inspector.MachineExport) []byte {
	var b strings.Builder

	b.WriteString("stateDiagram-v2\n")
	if sm.Name != "" {
		fmt.Fprintf(&b, "  %%%% %s\n", sm.Name)
	}

	fmt.Fprintf(&b, "  [*] --> %s\n", mermaidID(sm.Initial))

	for _, trans := range sm.Transitions {
		fmt.Fprintf(&b, "  %s --> %s\n", mermaidID(trans.From), mermaidID(trans.To))
	}

	// Free states have no edges; declare them so they still render.
	var notes []string
	for _, state := range sm.States {
		if !state.Free {
			continue
		}
		if state.Name != sm.Initial {
			fmt.Fprintf(&b, "  state %s\n", mermaidID(state.Name))
		}
		notes = append(notes, fmt.Sprintf("  note right of %s: reachable from any state\n", mermaidID(state.Name)))
	}

	if len(notes) > 0 {
		b.WriteString("\n")
		for _, n := range notes {
			b.WriteString(n)
		}
	}

	return []byte(b.String())
}

// formatHistory renders the visited states in order, labelled by turn.
func (f *MermaidFormatter) formatHistory(h *inspector.HistoryExport) []byte {
	var b strings.Builder

	b.WriteString("stateDiagram-v2\n")
	prev := "[*]"
	for _, turn := range h.Turns {
		if turn.State == "" {
			continue
		}
		names := make([]string, 0, len(turn.Actions))
		for _, a := range turn.Actions {
			names = append(names, a.Name)
		}
		fmt.Fprintf(&b, "  %s --> %s: turn %d %s\n", prev, mermaidID(turn.State), turn.Index, strings.Join(names, ","))
		prev = mermaidID(turn.State)
	}

	return []byte(b.String())
}

func mermaidID(s string) string {
	return sanitizeDOTID(s)
}

var _ inspector.Formatter = (*MermaidFormatter)(nil)
