package inspector

import (
	"fmt"
	"strings"

	"github.com/felixgeelhaar/agent-fsm/domain/inspector"
)

// DOTFormatter formats machine exports as Graphviz DOT.
type DOTFormatter struct{}

// NewDOTFormatter creates a new DOT formatter.
func NewDOTFormatter() *DOTFormatter {
	return &DOTFormatter{}
}

// Format formats the data as DOT.
func (f *DOTFormatter) Format(data any) ([]byte, error) {
	sm, ok := data.(*inspector.MachineExport)
	if !ok {
		return nil, inspector.ErrInvalidFormat
	}

	return f.formatMachine(sm), nil
}

// FormatType returns the format type.
func (f *DOTFormatter) FormatType() inspector.ExportFormat {
	return inspector.FormatDOT
}

func (f *DOTFormatter) formatMachine(sm *inspector.MachineExport) []byte {
	var b strings.Builder

	name := "AgentStateMachine"
	if sm.Name != "" {
		name = sanitizeDOTID(sm.Name)
	}

	fmt.Fprintf(&b, "digraph %s {\n", name)
	b.WriteString("  rankdir=TB;\n")
	b.WriteString("  node [shape=box, style=rounded];\n")
	b.WriteString("  __start [shape=point];\n")
	b.WriteString("\n")

	for _, state := range sm.States {
		attrs := []string{
			fmt.Sprintf(`label=%q`, state.Name),
		}
		if state.Scenario != "" {
			attrs = append(attrs, fmt.Sprintf(`tooltip=%q`, state.Scenario))
		}

		switch {
		case state.Initial:
			attrs = append(attrs, "style=\"rounded,filled\"", "fillcolor=lightgreen")
		case state.Free:
			attrs = append(attrs, "style=\"rounded,dashed\"")
		}

		fmt.Fprintf(&b, "  %s [%s];\n", sanitizeDOTID(state.Name), strings.Join(attrs, ", "))
	}

	b.WriteString("\n")
	fmt.Fprintf(&b, "  __start -> %s;\n", sanitizeDOTID(sm.Initial))

	for _, trans := range sm.Transitions {
		fmt.Fprintf(&b, "  %s -> %s;\n", sanitizeDOTID(trans.From), sanitizeDOTID(trans.To))
	}

	b.WriteString("}\n")

	return []byte(b.String())
}

func sanitizeDOTID(s string) string {
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, ".", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}

var _ inspector.Formatter = (*DOTFormatter)(nil)
