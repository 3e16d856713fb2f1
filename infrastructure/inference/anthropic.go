package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const anthropicVersion = "2023-06-01"

// AnthropicProvider implements the Provider interface for the Anthropic
// messages API.
type AnthropicProvider struct {
	apiKey    string
	baseURL   string
	model     string
	maxTokens int
	client    *http.Client
}

// AnthropicConfig configures the Anthropic provider.
type AnthropicConfig struct {
	APIKey    string        // Required: Anthropic API key
	BaseURL   string        // Default: https://api.anthropic.com
	Model     string        // e.g., "claude-3-5-haiku-latest"
	MaxTokens int           // Default: 1024, the API requires a value
	Timeout   time.Duration // Default: 120s
}

// NewAnthropicProvider creates a new Anthropic provider.
func NewAnthropicProvider(config AnthropicConfig) *AnthropicProvider {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	maxTokens := config.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	return &AnthropicProvider{
		apiKey:    config.APIKey,
		baseURL:   baseURL,
		model:     config.Model,
		maxTokens: maxTokens,
		client:    newHTTPClient(config.Timeout),
	}
}

// Name returns the provider name.
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

type anthropicRequest struct {
	Model       string               `json:"model"`
	MaxTokens   int                  `json:"max_tokens"`
	Messages    []anthropicMessage   `json:"messages"`
	System      string               `json:"system,omitempty"`
	Temperature float64              `json:"temperature,omitempty"`
	Tools       []anthropicTool      `json:"tools,omitempty"`
	ToolChoice  *anthropicToolChoice `json:"tool_choice,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

type anthropicToolChoice struct {
	Type string `json:"type"`
}

type anthropicResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Role    string `json:"role"`
	Content []struct {
		Type  string          `json:"type"`
		Text  string          `json:"text,omitempty"`
		ID    string          `json:"id,omitempty"`
		Name  string          `json:"name,omitempty"`
		Input json.RawMessage `json:"input,omitempty"`
	} `json:"content"`
	Usage struct {
		InputTokens  int64 `json:"input_tokens"`
		OutputTokens int64 `json:"output_tokens"`
	} `json:"usage"`
}

// anthropicChoice maps a ToolChoice onto the messages API. "required" is
// spelled "any" there.
func anthropicChoice(c ToolChoice) *anthropicToolChoice {
	switch c {
	case ToolChoiceRequired:
		return &anthropicToolChoice{Type: "any"}
	case ToolChoiceAuto:
		return &anthropicToolChoice{Type: "auto"}
	case ToolChoiceNone:
		return &anthropicToolChoice{Type: "none"}
	default:
		return nil
	}
}

// Complete implements the Provider interface.
func (p *AnthropicProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = p.maxTokens
	}

	anthropicReq := anthropicRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
	}

	// System messages travel in their own field.
	var system []string
	for _, msg := range req.Messages {
		if msg.Role == RoleSystem {
			system = append(system, msg.Content)
			continue
		}
		anthropicReq.Messages = append(anthropicReq.Messages, anthropicMessage{Role: msg.Role, Content: msg.Content})
	}
	anthropicReq.System = strings.Join(system, "\n\n")

	for _, t := range req.Tools {
		anthropicReq.Tools = append(anthropicReq.Tools, anthropicTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.Parameters,
		})
	}
	if len(anthropicReq.Tools) > 0 {
		anthropicReq.ToolChoice = anthropicChoice(req.ToolChoice)
	}

	headers := map[string]string{
		"x-api-key":         p.apiKey,
		"anthropic-version": anthropicVersion,
	}

	var anthropicResp anthropicResponse
	if err := postJSON(ctx, p.client, p.Name(), p.baseURL+"/v1/messages", headers, anthropicReq, &anthropicResp); err != nil {
		return CompletionResponse{}, err
	}

	if len(anthropicResp.Content) == 0 {
		return CompletionResponse{}, fmt.Errorf("anthropic: %w", ErrNoChoices)
	}

	msg := Message{Role: RoleAssistant}
	var text []string
	for _, block := range anthropicResp.Content {
		switch block.Type {
		case "text":
			text = append(text, block.Text)
		case "tool_use":
			msg.ToolCalls = append(msg.ToolCalls, ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: string(block.Input),
			})
		}
	}
	msg.Content = strings.Join(text, "")

	return CompletionResponse{
		ID:      anthropicResp.ID,
		Model:   anthropicResp.Model,
		Message: msg,
		Usage: Usage{
			InputTokens:  anthropicResp.Usage.InputTokens,
			OutputTokens: anthropicResp.Usage.OutputTokens,
		},
	}, nil
}
