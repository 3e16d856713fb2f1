package inspector

import "time"

// ExportFormat identifies the export format.
type ExportFormat string

const (
	// FormatJSON exports as JSON.
	FormatJSON ExportFormat = "json"

	// FormatDOT exports as Graphviz DOT.
	FormatDOT ExportFormat = "dot"

	// FormatMermaid exports as Mermaid diagram.
	FormatMermaid ExportFormat = "mermaid"
)

// ParseFormat maps a user supplied name to an ExportFormat.
func ParseFormat(s string) (ExportFormat, error) {
	switch f := ExportFormat(s); f {
	case FormatJSON, FormatDOT, FormatMermaid:
		return f, nil
	case "":
		return FormatMermaid, nil
	default:
		return "", ErrInvalidFormat
	}
}

// MachineExport contains the declared state machine graph for export.
type MachineExport struct {
	// Name is the agent the machine belongs to.
	Name string `json:"name,omitempty"`

	// Initial is the initial state name.
	Initial string `json:"initial"`

	// States contains all declared states in declaration order.
	States []StateExport `json:"states"`

	// Transitions contains every declared out transition.
	Transitions []TransitionExport `json:"transitions"`
}

// StateExport represents a state in the export.
type StateExport struct {
	Name        string `json:"name"`
	Scenario    string `json:"scenario,omitempty"`
	Instruction string `json:"instruction,omitempty"`

	// Initial marks the initial state.
	Initial bool `json:"initial,omitempty"`

	// Free marks a state reachable from every other state.
	Free bool `json:"free,omitempty"`
}

// TransitionExport represents a declared transition.
type TransitionExport struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// HistoryExport contains a conversation history as a timeline.
type HistoryExport struct {
	ConversationID string       `json:"conversation_id,omitempty"`
	Turns          []TurnExport `json:"turns"`
}

// TurnExport is one turn of a conversation history.
type TurnExport struct {
	Index     int            `json:"index"`
	State     string         `json:"state"`
	Timestamp *time.Time     `json:"timestamp,omitempty"`
	Actions   []ActionExport `json:"actions"`

	StateFeedback int `json:"state_feedback"`
	ToolFeedback  int `json:"tool_feedback"`
}

// ActionExport is one capability invocation of a turn.
type ActionExport struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Result    map[string]any `json:"result,omitempty"`
	Failed    bool           `json:"failed,omitempty"`
}
