package tool

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// Schema wraps a JSON Schema document describing tool arguments.
type Schema struct {
	raw json.RawMessage
}

// NewSchema creates a schema from raw JSON.
func NewSchema(raw json.RawMessage) Schema {
	return Schema{raw: raw}
}

// EmptySchema returns the schema of a tool that takes no arguments.
func EmptySchema() Schema {
	return Schema{raw: json.RawMessage(`{"type":"object","properties":{}}`)}
}

// ObjectSchema returns a schema for an object with the given properties.
func ObjectSchema(properties map[string]json.RawMessage, required []string) Schema {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	raw, _ := json.Marshal(schema)
	return Schema{raw: raw}
}

// SchemaFor infers the schema of T from its struct fields and json tags.
func SchemaFor[T any]() (Schema, error) {
	s, err := jsonschema.For[T](&jsonschema.ForOptions{})
	if err != nil {
		return Schema{}, fmt.Errorf("infer schema: %w", err)
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return Schema{}, fmt.Errorf("marshal schema: %w", err)
	}
	return Schema{raw: raw}, nil
}

// MustSchemaFor is like SchemaFor but panics on error.
func MustSchemaFor[T any]() Schema {
	s, err := SchemaFor[T]()
	if err != nil {
		panic(err)
	}
	return s
}

// Raw returns the underlying JSON schema.
func (s Schema) Raw() json.RawMessage {
	return s.raw
}

// IsEmpty returns true if the schema is empty or nil.
func (s Schema) IsEmpty() bool {
	return len(s.raw) == 0 || string(s.raw) == "{}" || string(s.raw) == "null"
}

// Validate checks args against the schema. An empty schema accepts anything.
func (s Schema) Validate(args map[string]any) error {
	if s.IsEmpty() {
		return nil
	}
	var js jsonschema.Schema
	if err := json.Unmarshal(s.raw, &js); err != nil {
		return fmt.Errorf("%w: schema: %v", ErrInvalidInput, err)
	}
	resolved, err := js.Resolve(nil)
	if err != nil {
		return fmt.Errorf("%w: schema: %v", ErrInvalidInput, err)
	}
	if args == nil {
		args = map[string]any{}
	}
	if err := resolved.Validate(args); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

// Map decodes the schema into a generic map for provider payloads.
// An empty schema becomes an object schema without properties.
func (s Schema) Map() map[string]any {
	if s.IsEmpty() {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	var m map[string]any
	if err := json.Unmarshal(s.raw, &m); err != nil || m == nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return m
}

// MarshalJSON implements json.Marshaler.
func (s Schema) MarshalJSON() ([]byte, error) {
	if s.raw == nil {
		return []byte("{}"), nil
	}
	return s.raw, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Schema) UnmarshalJSON(data []byte) error {
	s.raw = append(json.RawMessage(nil), data...)
	return nil
}
