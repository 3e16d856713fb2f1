package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/felixgeelhaar/agent-fsm/domain/inspector"
)

// supportConfig is a scripted agent whose stores live in dir. Only the
// first three script replies are consumed per process.
const supportConfig = `
name: support
version: "1"
agent:
  top_k: 3
machine:
  initial: greet
  states:
    - name: greet
      instruction: Greet the user and ask for the order id.
    - name: triage
      scenario: the user reported a problem with an order
  transitions:
    greet: [triage]
inference:
  provider: scripted
  script:
    - tool_calls:
        - name: send_message
          arguments: '{"message":"Which order?"}'
    - text: "1"
    - tool_calls:
        - name: send_message
          arguments: '{"message":"Let me check A-1."}'
feedback:
  backend: sqlite
  dsn: DIR/feedback.db
history:
  backend: sqlite
  dsn: DIR/history.db
logging:
  level: error
`

// freeConfig is a free-form agent scripted for exactly one turn: the
// generated instruction, then the tool selection.
const freeConfig = `
name: free
version: "1"
inference:
  provider: scripted
  script:
    - text: Answer briefly.
    - tool_calls:
        - name: send_message
          arguments: '{"message":"Hi"}'
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "agent.yaml")
	content = strings.ReplaceAll(content, "DIR", dir)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

// run executes one command and returns its stdout.
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var stdout bytes.Buffer
	app := New().WithOutput(&stdout, io.Discard).WithInput(strings.NewReader(stdin))
	err := app.ExecuteWithArgs(context.Background(), args)
	return stdout.String(), err
}

func mustRun(t *testing.T, stdin string, args ...string) string {
	t.Helper()
	out, err := run(t, stdin, args...)
	if err != nil {
		t.Fatalf("%v failed: %v\noutput:\n%s", args, err, out)
	}
	return out
}

func TestApp_Version(t *testing.T) {
	out := mustRun(t, "", "version")
	if !strings.Contains(out, "agentfsm version 0.1.0") {
		t.Errorf("version output = %q", out)
	}
}

func TestApp_Help(t *testing.T) {
	out := mustRun(t, "", "--help")
	for _, want := range []string{"validate", "schema", "inspect", "chat", "feedback"} {
		if !strings.Contains(out, want) {
			t.Errorf("help output missing %q", want)
		}
	}
}

func TestApp_Validate(t *testing.T) {
	path := writeConfig(t, supportConfig)

	out := mustRun(t, "", "validate", "-c", path, "--build")
	for _, want := range []string{
		"Configuration is valid",
		"Name: support",
		"Inference: scripted",
		"Machine: 2 states, 1 transitions, initial greet",
		"Feedback store: sqlite",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestApp_ValidateErrors(t *testing.T) {
	t.Run("missing config flag", func(t *testing.T) {
		_, err := run(t, "", "validate")
		if !errors.Is(err, errConfigRequired) {
			t.Errorf("err = %v, want errConfigRequired", err)
		}
	})

	t.Run("unknown initial state", func(t *testing.T) {
		path := writeConfig(t, strings.Replace(supportConfig, "initial: greet", "initial: nowhere", 1))
		if _, err := run(t, "", "validate", "-c", path); err == nil {
			t.Error("expected validation error")
		}
	})

	t.Run("strict env", func(t *testing.T) {
		path := writeConfig(t, strings.Replace(supportConfig, "name: support", "name: ${AGENTFSM_UNSET_NAME}", 1))
		if _, err := run(t, "", "validate", "-c", path, "--strict"); err == nil {
			t.Error("expected missing variable error")
		}
	})

	t.Run("explicit env file missing", func(t *testing.T) {
		path := writeConfig(t, supportConfig)
		_, err := run(t, "", "validate", "-c", path, "--env-file", filepath.Join(t.TempDir(), "nope.env"))
		if err == nil {
			t.Error("expected error for missing env file")
		}
	})
}

func TestApp_EnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, "test.env")
	if err := os.WriteFile(envPath, []byte("AGENTFSM_TEST_AGENT_NAME=from-dotenv\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Unsetenv("AGENTFSM_TEST_AGENT_NAME") })

	path := writeConfig(t, strings.Replace(supportConfig, "name: support", "name: ${AGENTFSM_TEST_AGENT_NAME}", 1))
	out := mustRun(t, "", "validate", "-c", path, "--env-file", envPath, "--strict")
	if !strings.Contains(out, "Name: from-dotenv") {
		t.Errorf("output = %s", out)
	}
}

func TestApp_Schema(t *testing.T) {
	out := mustRun(t, "", "schema")
	var doc map[string]any
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("schema is not JSON: %v", err)
	}
	if _, ok := doc["properties"].(map[string]any)["machine"]; !ok {
		t.Error("schema has no machine property")
	}

	file := filepath.Join(t.TempDir(), "schema.json")
	out = mustRun(t, "", "schema", "-o", file)
	if !strings.Contains(out, "Schema exported to") {
		t.Errorf("output = %q", out)
	}
	if data, err := os.ReadFile(file); err != nil || len(data) == 0 {
		t.Errorf("schema file: %v (%d bytes)", err, len(data))
	}
}

func TestApp_InspectMachine(t *testing.T) {
	path := writeConfig(t, supportConfig)

	tests := []struct {
		format string
		want   string
	}{
		{"mermaid", "stateDiagram-v2"},
		{"dot", "digraph support"},
		{"json", `"initial": "greet"`},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			out := mustRun(t, "", "inspect", "machine", "-c", path, "--format", tt.format)
			if !strings.Contains(out, tt.want) {
				t.Errorf("output missing %q:\n%s", tt.want, out)
			}
		})
	}

	_, err := run(t, "", "inspect", "machine", "-c", path, "--format", "svg")
	if !errors.Is(err, inspector.ErrInvalidFormat) {
		t.Errorf("err = %v, want ErrInvalidFormat", err)
	}

	freeForm := writeConfig(t, freeConfig)
	if _, err := run(t, "", "inspect", "machine", "-c", freeForm); !errors.Is(err, inspector.ErrNoData) {
		t.Errorf("err = %v, want ErrNoData", err)
	}
}

// TestApp_ConversationLifecycle chats, labels a turn, queries the store,
// resumes to recall the last reply and exports the stored conversation.
func TestApp_ConversationLifecycle(t *testing.T) {
	path := writeConfig(t, supportConfig)

	out := mustRun(t, "my order is late\nA-1\n/quit\n", "chat", "-c", path, "--conversation", "c1", "-v")
	for _, want := range []string{
		"Conversation c1 with support",
		"support: Which order?",
		"state: greet -> triage",
		"Saved c1: 3 turns, 3 inference calls",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("chat output missing %q:\n%s", want, out)
		}
	}

	out = mustRun(t, "", "feedback", "add", "-c", path, "--conversation", "c1", "--turn", "3")
	if !strings.Contains(out, "[triage] send_message:") || !strings.Contains(out, `"message":"Let me check A-1."`) {
		t.Errorf("feedback add output = %s", out)
	}
	if out := mustRun(t, "", "feedback", "count", "-c", path); strings.TrimSpace(out) != "1" {
		t.Errorf("count = %q, want 1", out)
	}

	out = mustRun(t, "", "feedback", "search", "-c", path, "--text", "A-1", "--state", "triage", "--json")
	var found []map[string]any
	if err := json.Unmarshal([]byte(out), &found); err != nil {
		t.Fatalf("search output is not JSON: %v\n%s", err, out)
	}
	if len(found) != 1 || found[0]["observation_name"] != "send_message" {
		t.Errorf("search = %v", found)
	}
	if out := mustRun(t, "", "feedback", "search", "-c", path, "--state", "greet"); !strings.Contains(out, "No feedback found") {
		t.Errorf("greet search = %q", out)
	}

	out = mustRun(t, "/recall\n/quit\n", "chat", "-c", path, "--conversation", "c1")
	for _, want := range []string{
		"support: Let me check A-1.",
		"Recalled turn 3 (send_message)",
		"support: Which order?",
		"Saved c1: 2 turns, 0 inference calls",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("resume output missing %q:\n%s", want, out)
		}
	}

	out = mustRun(t, "", "inspect", "conversations", "-c", path)
	if strings.TrimSpace(out) != "c1" {
		t.Errorf("conversations = %q", out)
	}
	out = mustRun(t, "", "inspect", "history", "c1", "-c", path, "--format", "json")
	if !strings.Contains(out, `"conversation_id": "c1"`) {
		t.Errorf("history export = %s", out)
	}
}

func TestApp_FeedbackErrors(t *testing.T) {
	path := writeConfig(t, supportConfig)

	if _, err := run(t, "", "feedback", "add", "-c", path, "--conversation", "missing", "--turn", "2"); err == nil {
		t.Error("expected error for unknown conversation")
	}

	noStore := writeConfig(t, freeConfig)
	if _, err := run(t, "", "feedback", "count", "-c", noStore); !errors.Is(err, errNoFeedbackStore) {
		t.Errorf("err = %v, want errNoFeedbackStore", err)
	}
}

func TestApp_ChatTransportFailure(t *testing.T) {
	path := writeConfig(t, freeConfig)
	out, err := run(t, "hello\nagain\n", "chat", "-c", path)
	if err == nil {
		t.Fatalf("expected turn failure, output:\n%s", out)
	}
	if !strings.Contains(err.Error(), "turn failed") {
		t.Errorf("err = %v", err)
	}
	if !strings.Contains(out, "free: Hi") {
		t.Errorf("first reply not shown:\n%s", out)
	}
}

func TestApp_ChatExportsSpans(t *testing.T) {
	path := writeConfig(t, freeConfig+"telemetry:\n  exporter: stdout\n")

	var stdout, stderr bytes.Buffer
	app := New().WithOutput(&stdout, &stderr).WithInput(strings.NewReader("/quit\n"))
	if err := app.ExecuteWithArgs(context.Background(), []string{"chat", "-c", path, "--conversation", "traced"}); err != nil {
		t.Fatalf("chat failed: %v\n%s", err, stdout.String())
	}
	if !strings.Contains(stderr.String(), `"SpanContext"`) {
		t.Errorf("no spans exported to stderr:\n%s", stderr.String())
	}
	if strings.Contains(stdout.String(), `"SpanContext"`) {
		t.Error("spans leaked into stdout")
	}
}

func TestApp_ChatNothingToRecall(t *testing.T) {
	path := writeConfig(t, freeConfig)

	out := mustRun(t, "/recall\n/history\n/quit\n", "chat", "-c", path)
	for _, want := range []string{"Nothing to recall", "Turn 1", "Saved ", ": 1 turns, 0 inference calls"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
