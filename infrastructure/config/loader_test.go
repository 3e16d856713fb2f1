package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	domainconfig "github.com/felixgeelhaar/agent-fsm/domain/config"
)

const supportYAML = `
name: support
version: "1"
description: Order support agent
agent:
  top_k: 3
  persona: You are a courteous support agent.
machine:
  initial: greet
  states:
    - name: greet
      instruction: Greet the user and ask how you can help.
    - name: triage
      scenario: the user described a problem with an order
    - name: escalate
      scenario: the user is upset or asks for a human
  transitions:
    greet: [triage]
tools:
  inline:
    - name: lookup_order
      description: Look up an order by id
      annotations:
        read_only: true
        timeout: 5s
      input_schema:
        type: object
        properties:
          order_id: {type: string}
      handler:
        type: http
        url: ${ORDERS_URL:-http://localhost:9000}/orders
  rate_limit:
    enabled: true
    rate: 10
    burst: 20
inference:
  provider: openai
  model: gpt-4o-mini
  timeout: 60s
  retry:
    enabled: true
    max_attempts: 4
    initial_delay: 250ms
feedback:
  backend: sqlite
  dsn: file:feedback.db
history:
  backend: memory
resilience:
  timeout: 30s
  circuit_breaker:
    enabled: true
    threshold: 5
    timeout: 30s
logging:
  level: debug
  format: console
`

func TestLoader_LoadFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "agent.yaml")
	if err := os.WriteFile(path, []byte(supportYAML), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := NewLoader().LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if cfg.Name != "support" || cfg.Agent.TopK != 3 {
		t.Errorf("header = %+v", cfg)
	}
	if cfg.Machine.Initial != "greet" || len(cfg.Machine.States) != 3 || cfg.Machine.Transitions["greet"][0] != "triage" {
		t.Errorf("machine = %+v", cfg.Machine)
	}
	inline := cfg.Tools.Inline[0]
	if inline.Handler.URL != "http://localhost:9000/orders" {
		t.Errorf("handler url = %s", inline.Handler.URL)
	}
	if inline.Annotations.Timeout.Duration() != 5*time.Second || !inline.Annotations.ReadOnly {
		t.Errorf("annotations = %+v", inline.Annotations)
	}
	if inline.InputSchema["type"] != "object" {
		t.Errorf("input schema = %v", inline.InputSchema)
	}
	if cfg.Inference.Retry.InitialDelay.Duration() != 250*time.Millisecond {
		t.Errorf("retry delay = %v", cfg.Inference.Retry.InitialDelay)
	}
	if cfg.Feedback.Backend != "sqlite" || cfg.Logging.Format != "console" {
		t.Errorf("stores/logging = %+v %+v", cfg.Feedback, cfg.Logging)
	}
}

func TestLoader_LoadFile_JSON(t *testing.T) {
	t.Parallel()

	content := `{
  "name": "support",
  "version": "1",
  "inference": {
    "provider": "scripted",
    "script": [
      {"text": "0"},
      {"tool_calls": [{"name": "send_message", "arguments": "{\"message\":\"hi\"}"}]}
    ]
  }
}`
	path := filepath.Join(t.TempDir(), "agent.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := NewLoader().LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(cfg.Inference.Script) != 2 || cfg.Inference.Script[1].ToolCalls[0].Name != "send_message" {
		t.Errorf("script = %+v", cfg.Inference.Script)
	}
}

func TestLoader_LoadFile_Errors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	txt := filepath.Join(dir, "agent.txt")
	if err := os.WriteFile(txt, []byte("x"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	tests := []struct {
		name string
		path string
		want error
	}{
		{"missing", filepath.Join(dir, "none.yaml"), domainconfig.ErrConfigNotFound},
		{"directory", dir, domainconfig.ErrInvalidFormat},
		{"extension", txt, domainconfig.ErrUnsupportedFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := NewLoader().LoadFile(tt.path); !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestLoader_Load(t *testing.T) {
	t.Parallel()

	minimal := "name: a\nversion: \"1\"\ninference:\n  provider: ollama\n"

	tests := []struct {
		name    string
		loader  *Loader
		content string
		format  Format
		wantErr error
	}{
		{"minimal", NewLoader(), minimal, FormatYAML, nil},
		{"empty document skips validation", NewLoaderWithOptions(WithValidation(false)), "", FormatYAML, nil},
		{"validation", NewLoader(), "name: a\nversion: \"1\"\n", FormatYAML, domainconfig.ErrValidationFailed},
		{"unknown key", NewLoader(), minimal + "max_steps: 3\n", FormatYAML, domainconfig.ErrInvalidFormat},
		{"unknown key allowed", NewLoaderWithOptions(WithKnownFields(false)), minimal + "max_steps: 3\n", FormatYAML, nil},
		{"unknown json key", NewLoader(), `{"name":"a","version":"1","inference":{"provider":"ollama"},"x":1}`, FormatJSON, domainconfig.ErrInvalidFormat},
		{"bad yaml", NewLoaderWithOptions(WithValidation(false)), "name: a\n  nested: b\n", FormatYAML, domainconfig.ErrInvalidFormat},
		{"bad json", NewLoaderWithOptions(WithValidation(false)), `{"name": nope}`, FormatJSON, domainconfig.ErrInvalidFormat},
		{"bad duration", NewLoaderWithOptions(WithValidation(false)), "resilience:\n  timeout: soon\n", FormatYAML, domainconfig.ErrInvalidFormat},
		{"format", NewLoader(), minimal, Format("toml"), domainconfig.ErrUnsupportedFormat},
		{"strict env", NewLoaderWithOptions(WithStrictEnv(true)), "name: ${AGENTFSM_UNSET_NAME}\n", FormatYAML, domainconfig.ErrMissingEnvVar},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := tt.loader.LoadString(tt.content, tt.format)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("LoadString: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoader_EnvExpansion(t *testing.T) {
	t.Setenv("AGENTFSM_TEST_AGENT", "billing")

	content := "name: ${AGENTFSM_TEST_AGENT}\nversion: \"1\"\ninference:\n  provider: ollama\n"

	cfg, err := NewLoader().LoadBytes([]byte(content), FormatYAML)
	if err != nil {
		t.Fatalf("LoadBytes: %v", err)
	}
	if cfg.Name != "billing" {
		t.Errorf("Name = %s, want billing", cfg.Name)
	}

	raw, err := NewLoaderWithOptions(WithEnvExpansion(false)).LoadString(content, FormatYAML)
	if err != nil {
		t.Fatalf("LoadString: %v", err)
	}
	if raw.Name != "${AGENTFSM_TEST_AGENT}" {
		t.Errorf("Name = %s, want the unexpanded reference", raw.Name)
	}
}
