package inspector

import (
	"github.com/felixgeelhaar/agent-fsm/domain/conversation"
	"github.com/felixgeelhaar/agent-fsm/domain/inspector"
)

// ExportHistory converts a conversation history into a timeline.
func ExportHistory(conversationID string, m *conversation.Memory) *inspector.HistoryExport {
	export := &inspector.HistoryExport{
		ConversationID: conversationID,
		Turns:          make([]inspector.TurnExport, 0, m.Len()),
	}
	if m == nil {
		return export
	}

	for i, step := range m.Steps {
		turn := inspector.TurnExport{
			Index:         i,
			State:         step.StateName,
			Timestamp:     step.Timestamp,
			Actions:       make([]inspector.ActionExport, 0, len(step.Actions)),
			StateFeedback: len(step.StateFeedbacks),
			ToolFeedback:  len(step.ToolFeedbacks),
		}
		for _, a := range step.Actions {
			turn.Actions = append(turn.Actions, inspector.ActionExport{
				Name:      a.Name,
				Arguments: a.Arguments,
				Result:    a.Result,
				Failed:    a.Failed(),
			})
		}
		export.Turns = append(export.Turns, turn)
	}
	return export
}
