package conversation

import "errors"

// Domain errors for state machines and history.
var (
	// ErrUnknownState indicates a state name not declared in the machine.
	ErrUnknownState = errors.New("unknown state")

	// ErrDuplicateState indicates a machine declares a state name twice.
	ErrDuplicateState = errors.New("duplicate state name")

	// ErrEmptyStateName indicates a state without a name.
	ErrEmptyStateName = errors.New("state name cannot be empty")

	// ErrInvalidTransition indicates a transition endpoint that is not a declared state.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrNoMachine indicates an operation that requires a declared machine.
	ErrNoMachine = errors.New("no state machine declared")

	// ErrEmptyHistory indicates an operation that requires at least one step.
	ErrEmptyHistory = errors.New("conversation history is empty")

	// ErrConversationNotFound indicates no history is stored under the ID.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrConnectionFailed indicates the history backend could not be reached.
	ErrConnectionFailed = errors.New("history store connection failed")

	// ErrNothingToRecall indicates the last step cannot be recalled.
	ErrNothingToRecall = errors.New("nothing to recall")
)
