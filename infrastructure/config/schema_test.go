package config

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestGenerateSchema(t *testing.T) {
	t.Parallel()

	s, err := GenerateSchema()
	if err != nil {
		t.Fatalf("GenerateSchema: %v", err)
	}

	if s.Type != "object" || s.ID != SchemaID {
		t.Errorf("root = %s %s", s.Type, s.ID)
	}
	for _, name := range []string{"name", "version", "agent", "machine", "tools", "inference", "embedding", "feedback", "history", "resilience", "logging"} {
		if _, ok := s.Properties[name]; !ok {
			t.Errorf("missing property %q", name)
		}
	}
	if strings.Join(s.Required, ",") != "name,version,inference" {
		t.Errorf("required = %v", s.Required)
	}

	provider := property(s, "inference", "provider")
	if provider == nil || len(provider.Enum) != 4 {
		t.Fatalf("inference.provider = %+v", provider)
	}
	if backend := property(s, "feedback", "backend"); backend == nil || len(backend.Enum) != 5 {
		t.Errorf("feedback.backend = %+v", backend)
	}

	timeout := property(s, "resilience", "timeout")
	if timeout == nil || timeout.Type != "string" || timeout.Pattern == "" {
		t.Errorf("durations should be strings: %+v", timeout)
	}

	handler := property(s, "tools", "inline")
	if handler == nil || handler.Items == nil || property(handler.Items, "handler", "type") == nil {
		t.Fatalf("tools.inline items = %+v", handler)
	}
}

func TestProperty_MissingPath(t *testing.T) {
	t.Parallel()

	s, err := GenerateSchema()
	if err != nil {
		t.Fatalf("GenerateSchema: %v", err)
	}
	if p := property(s, "machine", "nope", "deeper"); p != nil {
		t.Errorf("property = %+v, want nil", p)
	}
	// annotate and enum on a missing path are no-ops.
	annotate(s, "x", "nope")
	enum(s, []string{"a"}, "nope")
}

func TestSchemaJSON(t *testing.T) {
	t.Parallel()

	out, err := SchemaJSON()
	if err != nil {
		t.Fatalf("SchemaJSON: %v", err)
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("schema is not JSON: %v", err)
	}
	if doc["$schema"] != "https://json-schema.org/draft/2020-12/schema" {
		t.Errorf("$schema = %v", doc["$schema"])
	}
	if !strings.Contains(out, `"scripted"`) {
		t.Error("provider enum missing from output")
	}
}
