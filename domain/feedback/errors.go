package feedback

import "errors"

// Domain errors for feedback storage.
var (
	// ErrNotFound indicates the exemplar does not exist.
	ErrNotFound = errors.New("feedback not found")

	// ErrInvalidID indicates an empty or malformed exemplar ID.
	ErrInvalidID = errors.New("invalid feedback id")

	// ErrInvalidFeedback indicates required exemplar fields are missing.
	ErrInvalidFeedback = errors.New("invalid feedback: observation and action names are required")

	// ErrInvalidTag indicates a tag with an unknown prefix or conflicting constraints.
	ErrInvalidTag = errors.New("invalid feedback tag")

	// ErrConnectionFailed indicates the backing store could not be reached.
	ErrConnectionFailed = errors.New("feedback store connection failed")
)
