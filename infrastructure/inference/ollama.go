package inference

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// OllamaProvider implements the Provider interface for a local Ollama server.
// Ollama has no forced tool choice; the caller handles a reply without calls.
type OllamaProvider struct {
	baseURL string
	model   string
	client  *http.Client
}

// OllamaConfig configures the Ollama provider.
type OllamaConfig struct {
	BaseURL string        // Default: http://localhost:11434
	Model   string        // e.g., "llama3.1"
	Timeout time.Duration // Default: 120s
}

// NewOllamaProvider creates a new Ollama provider.
func NewOllamaProvider(config OllamaConfig) *OllamaProvider {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}

	return &OllamaProvider{
		baseURL: baseURL,
		model:   config.Model,
		client:  newHTTPClient(config.Timeout),
	}
}

// Name returns the provider name.
func (p *OllamaProvider) Name() string {
	return "ollama"
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Tools    []openAITool    `json:"tools,omitempty"`
	Options  *ollamaOptions  `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
}

type ollamaToolCall struct {
	Function struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaResponse struct {
	Model           string        `json:"model"`
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	PromptEvalCount int64         `json:"prompt_eval_count"`
	EvalCount       int64         `json:"eval_count"`
}

// Complete implements the Provider interface.
func (p *OllamaProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	ollamaReq := ollamaRequest{
		Model:    model,
		Messages: make([]ollamaMessage, len(req.Messages)),
	}
	for i, msg := range req.Messages {
		ollamaReq.Messages[i] = ollamaMessage{Role: msg.Role, Content: msg.Content}
	}
	if req.Temperature > 0 || req.MaxTokens > 0 {
		ollamaReq.Options = &ollamaOptions{Temperature: req.Temperature, NumPredict: req.MaxTokens}
	}
	if req.ToolChoice != ToolChoiceNone {
		for _, t := range req.Tools {
			ollamaReq.Tools = append(ollamaReq.Tools, openAITool{
				Type:     "function",
				Function: openAIFunction{Name: t.Name, Description: t.Description, Parameters: t.Parameters},
			})
		}
	}

	var ollamaResp ollamaResponse
	if err := postJSON(ctx, p.client, p.Name(), p.baseURL+"/api/chat", nil, ollamaReq, &ollamaResp); err != nil {
		return CompletionResponse{}, err
	}

	msg := Message{Role: RoleAssistant, Content: ollamaResp.Message.Content}
	for _, call := range ollamaResp.Message.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, ToolCall{
			Name:      call.Function.Name,
			Arguments: string(call.Function.Arguments),
		})
	}

	return CompletionResponse{
		Model:   ollamaResp.Model,
		Message: msg,
		Usage: Usage{
			InputTokens:  ollamaResp.PromptEvalCount,
			OutputTokens: ollamaResp.EvalCount,
		},
	}, nil
}
