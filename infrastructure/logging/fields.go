package logging

import (
	"time"

	"github.com/felixgeelhaar/bolt/v3"
)

// Field is a function that applies structured data to a log event.
type Field func(*bolt.Event) *bolt.Event

// Common field constructors for turn logging.

// ConversationID adds a conversation ID field.
func ConversationID(id string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("conversation_id", id)
	}
}

// Agent adds an agent name field.
func Agent(name string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("agent", name)
	}
}

// State adds a conversation state field.
func State(name string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("state", name)
	}
}

// FromState adds a from_state field for transitions.
func FromState(name string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("from_state", name)
	}
}

// ToState adds a to_state field for transitions.
func ToState(name string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("to_state", name)
	}
}

// Phase adds a turn protocol phase field.
func Phase(name string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("phase", name)
	}
}

// Turn adds the index of the turn within its conversation.
func Turn(n int) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int("turn", n)
	}
}

// ToolName adds a tool name field.
func ToolName(name string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("tool", name)
	}
}

// ActionCount adds the number of actions in a step.
func ActionCount(n int) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int("actions", n)
	}
}

// FeedbackCount adds the number of retrieved exemplars.
func FeedbackCount(n int) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int("feedback", n)
	}
}

// Provider adds an inference provider field.
func Provider(name string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("provider", name)
	}
}

// Model adds a model field.
func Model(name string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("model", name)
	}
}

// Tokens adds input and output token counts.
func Tokens(input, output int64) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int64("input_tokens", input).Int64("output_tokens", output)
	}
}

// Calls adds an inference call count.
func Calls(n int64) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int64("calls", n)
	}
}

// Attempt adds a retry attempt field.
func Attempt(n int) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int("attempt", n)
	}
}

// Backend adds a storage backend field.
func Backend(name string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("backend", name)
	}
}

// Duration adds a duration field in milliseconds.
func Duration(d time.Duration) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int64("duration_ms", d.Milliseconds())
	}
}

// ErrorField adds an error field.
func ErrorField(err error) Field {
	return func(e *bolt.Event) *bolt.Event {
		if err == nil {
			return e
		}
		return e.Err(err)
	}
}

// Reason adds a reason field.
func Reason(reason string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("reason", reason)
	}
}

// Component adds a component field for categorization.
func Component(name string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("component", name)
	}
}

// Operation adds an operation field.
func Operation(op string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("operation", op)
	}
}

// Str adds a string field with custom key.
func Str(key, value string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str(key, value)
	}
}

// Int adds an int field with custom key.
func Int(key string, value int) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int(key, value)
	}
}

// Bool adds a bool field with custom key.
func Bool(key string, value bool) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Bool(key, value)
	}
}
