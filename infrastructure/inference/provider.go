// Package inference talks to language-model providers and exposes the three
// call shapes a turn needs: free-form generation, constrained choice and
// forced tool selection.
package inference

import (
	"context"
	"fmt"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ToolChoice controls whether the model may, must or must not call tools.
type ToolChoice string

const (
	ToolChoiceDefault  ToolChoice = ""
	ToolChoiceAuto     ToolChoice = "auto"
	ToolChoiceRequired ToolChoice = "required"
	ToolChoiceNone     ToolChoice = "none"
)

// Provider defines the interface for LLM providers.
type Provider interface {
	// Complete sends a chat completion request and returns the response.
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)

	// Name returns the provider name for logging.
	Name() string
}

// CompletionRequest represents a chat completion request.
type CompletionRequest struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
	Tools       []ToolSpec
	ToolChoice  ToolChoice
}

// Message represents a chat message.
type Message struct {
	Role      string
	Content   string
	ToolCalls []ToolCall
}

// ToolSpec describes a callable tool to the model.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToolCall is one tool invocation requested by the model. Arguments holds the
// raw JSON text exactly as the provider returned it.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// CompletionResponse represents a chat completion response.
type CompletionResponse struct {
	ID      string
	Model   string
	Message Message
	Usage   Usage
}

// Usage contains token usage information.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// APIError represents an error returned by a provider API.
type APIError struct {
	Provider string
	Status   int
	Type     string
	Message  string
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("%s error (status %d): %s: %s", e.Provider, e.Status, e.Type, e.Message)
	}
	return fmt.Sprintf("%s error (status %d): %s", e.Provider, e.Status, e.Message)
}

// System builds a system message.
func System(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// User builds a user message.
func User(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// Assistant builds an assistant message.
func Assistant(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}
