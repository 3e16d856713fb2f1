package tool_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/felixgeelhaar/agent-fsm/domain/tool"
)

func echo(_ context.Context, args map[string]any) (map[string]any, error) {
	return args, nil
}

func TestToolBuilder_Basic(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		toolName    string
		description string
		wantErr     error
	}{
		{
			name:        "valid tool",
			toolName:    "lookup_order",
			description: "Looks up an order",
			wantErr:     nil,
		},
		{
			name:        "empty name fails",
			toolName:    "",
			description: "Should fail",
			wantErr:     tool.ErrEmptyName,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			built, err := tool.NewBuilder(tt.toolName).
				WithDescription(tt.description).
				WithHandler(echo).
				Build()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Build() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			if tt.wantErr == nil {
				if built.Name() != tt.toolName {
					t.Errorf("Name() = %v, want %v", built.Name(), tt.toolName)
				}
				if built.Description() != tt.description {
					t.Errorf("Description() = %v, want %v", built.Description(), tt.description)
				}
			}
		})
	}
}

func TestToolBuilder_Annotations(t *testing.T) {
	t.Parallel()

	built := tool.NewBuilder("search").
		ReadOnly().
		WithTimeout(2 * time.Second).
		WithTags("catalog").
		WithHandler(echo).
		MustBuild()

	a := built.Annotations()
	if !a.ReadOnly || !a.Idempotent {
		t.Errorf("ReadOnly tool should be read-only and idempotent, got %+v", a)
	}
	if a.Timeout != 2*time.Second {
		t.Errorf("Timeout = %v, want 2s", a.Timeout)
	}
	if !a.HasTag("catalog") || a.HasTag("other") {
		t.Errorf("HasTag mismatch for %v", a.Tags)
	}
}

func TestDefinition_Execute(t *testing.T) {
	t.Parallel()

	t.Run("nil args become empty map", func(t *testing.T) {
		t.Parallel()

		built := tool.NewBuilder("echo").WithHandler(echo).MustBuild()
		out, err := built.Execute(context.Background(), nil)
		if err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		if out == nil || len(out) != 0 {
			t.Errorf("Execute() = %v, want empty map", out)
		}
	})

	t.Run("missing handler", func(t *testing.T) {
		t.Parallel()

		built := tool.NewBuilder("noop").MustBuild()
		if _, err := built.Execute(context.Background(), nil); !errors.Is(err, tool.ErrNoHandler) {
			t.Errorf("Execute() error = %v, want ErrNoHandler", err)
		}
	})
}

func TestMustBuild_Panics(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Error("MustBuild() should panic on empty name")
		}
	}()
	tool.NewBuilder("").MustBuild()
}

func TestNewSet(t *testing.T) {
	t.Parallel()

	a := tool.NewBuilder("a").WithHandler(echo).MustBuild()
	b := tool.NewBuilder("b").WithHandler(echo).MustBuild()
	dupA := tool.NewBuilder("a").WithHandler(echo).MustBuild()

	tests := []struct {
		name    string
		tools   []tool.Tool
		want    []string
		wantErr error
	}{
		{name: "empty set", tools: nil, want: []string{}},
		{name: "declaration order", tools: []tool.Tool{b, a}, want: []string{"b", "a"}},
		{name: "duplicate names", tools: []tool.Tool{a, b, dupA}, wantErr: tool.ErrDuplicateTool},
		{name: "nil tool", tools: []tool.Tool{nil}, wantErr: tool.ErrEmptyName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			set, err := tool.NewSet(tt.tools...)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("NewSet() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				return
			}
			got := set.Names()
			if len(got) != len(tt.want) {
				t.Fatalf("Names() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Names()[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestSet_Lookup(t *testing.T) {
	t.Parallel()

	set := tool.MustNewSet(tool.NewBuilder("a").WithHandler(echo).MustBuild())

	if _, err := set.Lookup("a"); err != nil {
		t.Errorf("Lookup(a) error = %v", err)
	}

	_, err := set.Lookup("missing")
	if !errors.Is(err, tool.ErrToolNotFound) {
		t.Fatalf("Lookup(missing) error = %v, want ErrToolNotFound", err)
	}
	if err.Error() != "no capability named missing" {
		t.Errorf("Lookup(missing) message = %q", err.Error())
	}

	var nilSet *tool.Set
	if nilSet.Len() != 0 || nilSet.List() != nil {
		t.Error("nil Set should behave as empty")
	}
}

type orderArgs struct {
	OrderID string `json:"order_id"`
	Limit   int    `json:"limit,omitempty"`
}

func TestSchemaFor(t *testing.T) {
	t.Parallel()

	s, err := tool.SchemaFor[orderArgs]()
	if err != nil {
		t.Fatalf("SchemaFor() error = %v", err)
	}
	m := s.Map()
	if m["type"] != "object" {
		t.Errorf("type = %v, want object", m["type"])
	}
	props, ok := m["properties"].(map[string]any)
	if !ok {
		t.Fatalf("properties missing in %s", s.Raw())
	}
	if _, ok := props["order_id"]; !ok {
		t.Errorf("order_id property missing in %s", s.Raw())
	}
	if !strings.Contains(string(s.Raw()), "order_id") {
		t.Errorf("Raw() = %s", s.Raw())
	}
}

func TestSchema_Map(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		schema tool.Schema
	}{
		{name: "zero value", schema: tool.Schema{}},
		{name: "empty object", schema: tool.NewSchema([]byte(`{}`))},
		{name: "invalid json", schema: tool.NewSchema([]byte(`{`))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m := tt.schema.Map()
			if m["type"] != "object" {
				t.Errorf("Map() = %v, want object schema", m)
			}
		})
	}
}

func TestSchema_Validate(t *testing.T) {
	t.Parallel()

	s := tool.MustSchemaFor[orderArgs]()

	tests := []struct {
		name    string
		schema  tool.Schema
		args    map[string]any
		wantErr bool
	}{
		{"valid", s, map[string]any{"order_id": "A-1"}, false},
		{"missing required", s, map[string]any{}, true},
		{"wrong type", s, map[string]any{"order_id": 5.0}, true},
		{"empty schema accepts anything", tool.NewSchema(nil), map[string]any{"x": 1}, false},
		{"nil args against empty object schema", tool.EmptySchema(), nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.schema.Validate(tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, tool.ErrInvalidInput) {
				t.Errorf("Validate() error = %v, want ErrInvalidInput", err)
			}
		})
	}
}
