package inspector

import "context"

// Inspector exports agent data for visualization and analysis.
type Inspector interface {
	// ExportMachine exports the declared state machine graph.
	ExportMachine(ctx context.Context, format ExportFormat) ([]byte, error)

	// ExportHistory exports a stored conversation.
	ExportHistory(ctx context.Context, conversationID string, format ExportFormat) ([]byte, error)
}

// Formatter formats export data to a specific format.
type Formatter interface {
	// Format formats the data.
	Format(data any) ([]byte, error)

	// FormatType returns the format type.
	FormatType() ExportFormat
}
