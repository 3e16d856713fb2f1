// Package feedback provides the domain model for exemplars: past
// observation/decision pairs retrieved to bias the agent's next decision.
package feedback

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Tag prefixes used to scope feedback retrieval.
const (
	StateTagPrefix       = "state:"
	ObservationTagPrefix = "observation:"
)

// Feedback is one stored exemplar. It records what the agent observed
// (the last action and its result) and what it decided next, in which state.
type Feedback struct {
	ID                 string    `json:"id,omitempty"`
	ObservationName    string    `json:"observation_name"`
	ObservationContent string    `json:"observation_content"`
	ActionName         string    `json:"action_name"`
	ActionContent      string    `json:"action_content"`
	StateName          string    `json:"state_name"`
	CreatedAt          time.Time `json:"created_at"`
}

// New creates an exemplar with a fresh ID.
func New(stateName, observationName, observationContent, actionName, actionContent string) Feedback {
	return Feedback{
		ID:                 uuid.New().String(),
		StateName:          stateName,
		ObservationName:    observationName,
		ObservationContent: observationContent,
		ActionName:         actionName,
		ActionContent:      actionContent,
		CreatedAt:          time.Now().UTC(),
	}
}

// WithDefaults fills an empty ID and creation time. Stores call it on Add.
func (f Feedback) WithDefaults(now time.Time) Feedback {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = now.UTC()
	}
	return f
}

// Tags returns the derived tag set of the exemplar.
func (f Feedback) Tags() []string {
	return []string{StateTag(f.StateName), ObservationTag(f.ObservationName)}
}

// Validate checks the fields a store requires before accepting the exemplar.
func (f Feedback) Validate() error {
	if f.ObservationName == "" || f.ActionName == "" {
		return ErrInvalidFeedback
	}
	return nil
}

// HasTags reports whether every tag in want is present on the exemplar.
func (f Feedback) HasTags(want []string) bool {
	have := f.Tags()
	for _, w := range want {
		found := false
		for _, h := range have {
			if h == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// StateTag returns the tag scoping feedback to a state.
func StateTag(name string) string {
	return StateTagPrefix + name
}

// ObservationTag returns the tag scoping feedback to an observation.
func ObservationTag(name string) string {
	return ObservationTagPrefix + name
}

// Query describes a feedback search.
type Query struct {
	// Text is the free-text payload ranked against stored observations.
	Text string
	// Tags must all be present on a returned exemplar.
	Tags []string
	// TopK limits the number of results. Zero or negative returns nothing.
	TopK int
}

// Filter is the column form of a tag set, used by stores that index
// feedback by state and observation name instead of by raw tags.
type Filter struct {
	StateName       string
	ObservationName string
	// HasState and HasObservation distinguish "no constraint" from a
	// constraint on the empty name.
	HasState       bool
	HasObservation bool
}

// FilterFromTags converts a tag set into a Filter. Unknown prefixes and
// contradictory constraints are rejected.
func FilterFromTags(tags []string) (Filter, error) {
	var f Filter
	for _, tag := range tags {
		switch {
		case strings.HasPrefix(tag, StateTagPrefix):
			name := strings.TrimPrefix(tag, StateTagPrefix)
			if f.HasState && f.StateName != name {
				return Filter{}, ErrInvalidTag
			}
			f.StateName, f.HasState = name, true
		case strings.HasPrefix(tag, ObservationTagPrefix):
			name := strings.TrimPrefix(tag, ObservationTagPrefix)
			if f.HasObservation && f.ObservationName != name {
				return Filter{}, ErrInvalidTag
			}
			f.ObservationName, f.HasObservation = name, true
		default:
			return Filter{}, ErrInvalidTag
		}
	}
	return f, nil
}

// Match reports whether the exemplar satisfies the filter.
func (f Filter) Match(fb Feedback) bool {
	if f.HasState && fb.StateName != f.StateName {
		return false
	}
	if f.HasObservation && fb.ObservationName != f.ObservationName {
		return false
	}
	return true
}
