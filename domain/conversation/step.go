package conversation

import (
	"time"

	"github.com/felixgeelhaar/agent-fsm/domain/feedback"
)

// Step is one turn of a conversation: the state the agent was in and the
// actions it decided to take.
type Step struct {
	StateName      string              `json:"state_name"`
	Actions        []Action            `json:"actions"`
	StateFeedbacks []feedback.Feedback `json:"state_feedbacks"`
	ToolFeedbacks  []feedback.Feedback `json:"tool_feedbacks"`

	// Timestamp is set once every action of the step has been executed.
	Timestamp *time.Time `json:"timestamp"`
}

// Pending reports whether any action still lacks a result.
func (s Step) Pending() bool {
	for _, a := range s.Actions {
		if !a.Executed() {
			return true
		}
	}
	return false
}

// Completed reports whether the step has been stamped.
func (s Step) Completed() bool {
	return s.Timestamp != nil
}

// LastAction returns the final action of the step.
func (s Step) LastAction() (Action, bool) {
	if len(s.Actions) == 0 {
		return Action{}, false
	}
	return s.Actions[len(s.Actions)-1], true
}

// Stamp records the completion time in UTC.
func (s *Step) Stamp(now time.Time) {
	ts := now.UTC()
	s.Timestamp = &ts
}
