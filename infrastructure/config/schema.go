package config

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/google/jsonschema-go/jsonschema"

	domainconfig "github.com/felixgeelhaar/agent-fsm/domain/config"
)

// SchemaID identifies the published configuration schema.
const SchemaID = "https://github.com/felixgeelhaar/agent-fsm/agent-config.schema.json"

// GenerateSchema infers the JSON Schema of an agent configuration file from
// domainconfig.AgentConfig and annotates the enumerated fields.
func GenerateSchema() (*jsonschema.Schema, error) {
	s, err := jsonschema.For[domainconfig.AgentConfig](&jsonschema.ForOptions{
		TypeSchemas: map[reflect.Type]*jsonschema.Schema{
			reflect.TypeFor[domainconfig.Duration](): {
				Type:        "string",
				Description: "Go duration such as 250ms, 30s or 1m",
				Pattern:     `^([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("infer config schema: %w", err)
	}

	s.Schema = "https://json-schema.org/draft/2020-12/schema"
	s.ID = SchemaID
	s.Title = "Agent Configuration"
	s.Description = "Configuration of an agent-fsm conversational agent"
	s.Required = []string{"name", "version", "inference"}

	annotate(s, "One-word or short name of the agent", "name")
	annotate(s, "Initial state; empty runs without a state machine", "machine", "initial")
	annotate(s, "Exemplars retrieved per decision (default 5)", "agent", "top_k")
	enum(s, []string{"openai", "anthropic", "ollama", "scripted"}, "inference", "provider")
	enum(s, []string{"hashing", "openai"}, "embedding", "provider")
	enum(s, []string{"memory", "sqlite", "redis", "badger", "postgres"}, "feedback", "backend")
	enum(s, []string{"memory", "sqlite", "filesystem", "mongodb", "dynamodb", "gcs", "s3", "azblob"}, "history", "backend")
	enum(s, []string{"trace", "debug", "info", "warn", "error"}, "logging", "level")
	enum(s, []string{"json", "console"}, "logging", "format")
	enum(s, []string{"none", "stdout", "otlp"}, "telemetry", "exporter")
	if tools := property(s, "tools", "inline"); tools != nil && tools.Items != nil {
		enum(tools.Items, []string{"http"}, "handler", "type")
		tools.Items.Required = []string{"name", "description", "handler"}
	}
	return s, nil
}

// property walks nested object properties. It returns nil when a name is
// missing.
func property(s *jsonschema.Schema, path ...string) *jsonschema.Schema {
	for _, name := range path {
		if s == nil {
			return nil
		}
		s = s.Properties[name]
	}
	return s
}

func annotate(s *jsonschema.Schema, description string, path ...string) {
	if p := property(s, path...); p != nil {
		p.Description = description
	}
}

func enum(s *jsonschema.Schema, values []string, path ...string) {
	p := property(s, path...)
	if p == nil {
		return
	}
	p.Enum = make([]any, len(values))
	for i, v := range values {
		p.Enum[i] = v
	}
}

// SchemaJSON returns the JSON Schema as indented JSON.
func SchemaJSON() (string, error) {
	s, err := GenerateSchema()
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
