package inference

import (
	"context"
	"sync"
)

// ScriptedProvider replays canned responses in order. It records every
// request so tests can assert on prompts.
type ScriptedProvider struct {
	mu        sync.Mutex
	responses []CompletionResponse
	index     int
	loop      bool
	requests  []CompletionRequest
}

// NewScriptedProvider creates a provider that returns responses in order and
// fails with ErrScriptExhausted afterwards.
func NewScriptedProvider(responses ...CompletionResponse) *ScriptedProvider {
	return &ScriptedProvider{responses: responses}
}

// Loop makes the provider restart from the first response when exhausted.
func (p *ScriptedProvider) Loop() *ScriptedProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loop = true
	return p
}

// Name returns the provider name.
func (p *ScriptedProvider) Name() string {
	return "scripted"
}

// Complete returns the next scripted response.
func (p *ScriptedProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return CompletionResponse{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.requests = append(p.requests, req)
	if p.index >= len(p.responses) {
		if !p.loop || len(p.responses) == 0 {
			return CompletionResponse{}, ErrScriptExhausted
		}
		p.index = 0
	}
	resp := p.responses[p.index]
	p.index++
	return resp, nil
}

// Requests returns a copy of every request received so far.
func (p *ScriptedProvider) Requests() []CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]CompletionRequest, len(p.requests))
	copy(out, p.requests)
	return out
}

// Remaining returns how many responses are left before exhaustion.
func (p *ScriptedProvider) Remaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.responses) - p.index
}

// TextReply builds a response carrying plain text.
func TextReply(text string, usage Usage) CompletionResponse {
	return CompletionResponse{Message: Message{Role: RoleAssistant, Content: text}, Usage: usage}
}

// ToolReply builds a response carrying tool calls.
func ToolReply(usage Usage, calls ...ToolCall) CompletionResponse {
	return CompletionResponse{Message: Message{Role: RoleAssistant, ToolCalls: calls}, Usage: usage}
}
