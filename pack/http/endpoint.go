// Package http provides capabilities backed by HTTP endpoints. A
// config-declared tool POSTs its arguments as JSON and returns the decoded
// JSON reply as its result.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/felixgeelhaar/agent-fsm/domain/tool"
)

// Options configures the HTTP client shared by endpoint tools.
type Options struct {
	// Timeout for HTTP requests.
	Timeout time.Duration

	// MaxBodySize limits response body size (bytes).
	MaxBodySize int64

	// Client overrides the HTTP client. Timeout is ignored when set.
	Client *http.Client
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		Timeout:     30 * time.Second,
		MaxBodySize: 10 * 1024 * 1024, // 10MB
	}
}

// Endpoint declares one HTTP-backed tool.
type Endpoint struct {
	Name        string
	Description string
	URL         string
	// Method defaults to POST.
	Method      string
	Headers     map[string]string
	InputSchema tool.Schema
	Annotations tool.Annotations
}

// NewTool builds the tool for an endpoint.
func NewTool(ep Endpoint, opts ...func(*Options)) (tool.Tool, error) {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	if ep.URL == "" {
		return nil, fmt.Errorf("%w: %s has no url", tool.ErrNoHandler, ep.Name)
	}
	method := strings.ToUpper(ep.Method)
	if method == "" {
		method = http.MethodPost
	}

	client := options.Client
	if client == nil {
		client = &http.Client{Timeout: options.Timeout}
	}

	schema := ep.InputSchema
	if schema.IsEmpty() {
		schema = tool.EmptySchema()
	}

	return tool.NewBuilder(ep.Name).
		WithDescription(ep.Description).
		WithInputSchema(schema).
		WithAnnotations(ep.Annotations).
		WithHandler(func(ctx context.Context, args map[string]any) (map[string]any, error) {
			return call(ctx, client, method, ep, options.MaxBodySize, args)
		}).
		Build()
}

func call(ctx context.Context, client *http.Client, method string, ep Endpoint, limit int64, args map[string]any) (map[string]any, error) {
	payload, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", tool.ErrInvalidInput, err)
	}

	var body io.Reader
	if method != http.MethodGet && method != http.MethodHead {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, ep.URL, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range ep.Headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s returned %s: %s", ep.Name, resp.Status, strings.TrimSpace(string(data)))
	}

	return decodeResult(resp.StatusCode, data), nil
}

// decodeResult returns a JSON object reply as is and wraps anything else.
func decodeResult(status int, data []byte) map[string]any {
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err == nil && obj != nil {
		return obj
	}

	out := map[string]any{"status_code": status}
	var v any
	if err := json.Unmarshal(data, &v); err == nil {
		out["body"] = v
	} else if len(data) > 0 {
		out["body"] = string(data)
	}
	return out
}
