// Package inspector renders declared machines and stored conversations as
// Mermaid, DOT or JSON.
package inspector

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/agent-fsm/domain/conversation"
	"github.com/felixgeelhaar/agent-fsm/domain/inspector"
)

// DefaultInspector provides a default implementation of Inspector.
type DefaultInspector struct {
	machine    *MachineExporter
	history    conversation.HistoryStore
	formatters map[inspector.ExportFormat]inspector.Formatter
}

// NewDefaultInspector creates a new default inspector. history may be nil
// when only the machine is exported.
func NewDefaultInspector(name string, machine *conversation.Machine, history conversation.HistoryStore) *DefaultInspector {
	i := &DefaultInspector{
		machine:    NewMachineExporter(name, machine),
		history:    history,
		formatters: make(map[inspector.ExportFormat]inspector.Formatter),
	}

	i.RegisterFormatter(NewJSONFormatter())
	i.RegisterFormatter(NewDOTFormatter())
	i.RegisterFormatter(NewMermaidFormatter())

	return i
}

// RegisterFormatter registers a formatter for a specific format.
func (i *DefaultInspector) RegisterFormatter(formatter inspector.Formatter) {
	i.formatters[formatter.FormatType()] = formatter
}

// ExportMachine exports the declared machine graph.
func (i *DefaultInspector) ExportMachine(_ context.Context, format inspector.ExportFormat) ([]byte, error) {
	data, err := i.machine.Export()
	if err != nil {
		return nil, err
	}
	return i.format(data, format)
}

// ExportHistory exports a stored conversation.
func (i *DefaultInspector) ExportHistory(ctx context.Context, conversationID string, format inspector.ExportFormat) ([]byte, error) {
	if i.history == nil {
		return nil, inspector.ErrNoHistoryStore
	}

	m, err := i.history.Load(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if m.Empty() {
		return nil, inspector.ErrNoData
	}

	return i.format(ExportHistory(conversationID, m), format)
}

func (i *DefaultInspector) format(data any, format inspector.ExportFormat) ([]byte, error) {
	formatter, ok := i.formatters[format]
	if !ok {
		return nil, fmt.Errorf("%w: %s", inspector.ErrInvalidFormat, format)
	}

	out, err := formatter.Format(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", inspector.ErrExportFailed, err)
	}
	return out, nil
}

var _ inspector.Inspector = (*DefaultInspector)(nil)
