package application

import (
	"fmt"

	"github.com/felixgeelhaar/agent-fsm/domain/conversation"
	"github.com/felixgeelhaar/agent-fsm/domain/feedback"
	"github.com/felixgeelhaar/agent-fsm/domain/tool"
)

// Recall takes back the user's last input. It pops the final step when it
// still has unexecuted actions and reopens the send_message actions of the
// step before it, so the next turn asks the user again. The removed step
// is returned.
func Recall(history *conversation.Memory) (conversation.Step, error) {
	last, ok := history.Last()
	if !ok || !last.Pending() || history.Len() < 2 {
		return conversation.Step{}, conversation.ErrNothingToRecall
	}

	removed, _ := history.Pop()
	prev, _ := history.Last()
	for i := range prev.Actions {
		if prev.Actions[i].Name == tool.SendMessageName {
			prev.Actions[i].Result = nil
		}
	}
	prev.Timestamp = nil
	prev.StateFeedbacks = nil
	prev.ToolFeedbacks = nil
	return removed, nil
}

// Exemplar builds feedback from a decided turn of a conversation: the
// observation is the last action of the step before turn, the decision is
// the action at index action of turn.
func Exemplar(history *conversation.Memory, turn, action int) (feedback.Feedback, error) {
	if turn < 1 || turn >= history.Len() {
		return feedback.Feedback{}, fmt.Errorf("%w: turn %d of %d", feedback.ErrInvalidFeedback, turn, history.Len())
	}
	decided := history.Steps[turn]
	if action < 0 || action >= len(decided.Actions) {
		return feedback.Feedback{}, fmt.Errorf("%w: action %d of %d", feedback.ErrInvalidFeedback, action, len(decided.Actions))
	}

	obsName, obsContent := observation(&history.Steps[turn-1])
	chosen := decided.Actions[action]
	actionContent, err := marshalArgs(chosen.Arguments)
	if err != nil {
		return feedback.Feedback{}, err
	}

	fb := feedback.Feedback{
		StateName:          decided.StateName,
		ObservationName:    obsName,
		ObservationContent: obsContent,
		ActionName:         chosen.Name,
		ActionContent:      actionContent,
	}
	return fb, fb.Validate()
}
