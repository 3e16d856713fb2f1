// Package tool provides the domain model for agent capabilities.
package tool

import "time"

// Annotations describe tool behavior for the resilience layer and the CLI.
type Annotations struct {
	// ReadOnly indicates the tool has no side effects.
	ReadOnly bool `json:"read_only" yaml:"read_only"`

	// Idempotent indicates repeated calls with the same arguments are safe,
	// which makes the tool eligible for retries.
	Idempotent bool `json:"idempotent" yaml:"idempotent"`

	// Timeout bounds a single invocation. Zero uses the executor default.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// Tags provide additional categorization.
	Tags []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// HasTag checks if the annotations include a specific tag.
func (a Annotations) HasTag(tag string) bool {
	for _, t := range a.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
