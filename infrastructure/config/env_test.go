package config

import (
	"errors"
	"strings"
	"testing"

	domainconfig "github.com/felixgeelhaar/agent-fsm/domain/config"
)

func fakeEnv(vars map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		v, ok := vars[name]
		return v, ok
	}
}

func TestEnvExpander_Expand(t *testing.T) {
	t.Parallel()

	env := fakeEnv(map[string]string{
		"MODEL": "gpt-4o-mini",
		"EMPTY": "",
	})

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"bracket", "${MODEL}", "gpt-4o-mini"},
		{"bare", "$MODEL", "gpt-4o-mini"},
		{"embedded", "model=${MODEL};", "model=gpt-4o-mini;"},
		{"repeated", "$MODEL ${MODEL}", "gpt-4o-mini gpt-4o-mini"},
		{"unset", "${NOPE}", ""},
		{"default when unset", "${NOPE:-http://localhost:11434}", "http://localhost:11434"},
		{"default when empty", "${EMPTY:-fallback}", "fallback"},
		{"default ignored", "${MODEL:-other}", "gpt-4o-mini"},
		{"empty default", "${NOPE:-}", ""},
		{"escaped dollar", "costs $$5", "costs $5"},
		{"plain", "no references", "no references"},
		{"number", "price: $100", "price: $100"},
		{"unterminated", "${MODEL", "${MODEL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := (&envExpander{lookup: env}).Expand(tt.input)
			if err != nil {
				t.Fatalf("Expand(%q): %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("Expand(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestEnvExpander_Required(t *testing.T) {
	t.Parallel()

	e := &envExpander{lookup: fakeEnv(map[string]string{"EMPTY": ""})}
	_, err := e.Expand("key: ${API_KEY:?set the provider key}\nother: ${EMPTY:?empty too}")
	if !errors.Is(err, domainconfig.ErrMissingEnvVar) {
		t.Fatalf("got %v, want ErrMissingEnvVar", err)
	}
	for _, want := range []string{"API_KEY: set the provider key", "EMPTY: empty too"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q lacks %q", err, want)
		}
	}
}

func TestEnvExpander_Strict(t *testing.T) {
	t.Parallel()

	strict := &envExpander{strict: true, lookup: fakeEnv(map[string]string{"EMPTY": ""})}
	if _, err := strict.Expand("${MISSING}"); !errors.Is(err, domainconfig.ErrMissingEnvVar) {
		t.Errorf("unset variable: %v", err)
	}
	if got, err := strict.Expand("[$EMPTY]"); err != nil || got != "[]" {
		t.Errorf("set but empty variable = %q, %v", got, err)
	}
	if got, err := strict.Expand("${MISSING:-ok}"); err != nil || got != "ok" {
		t.Errorf("defaulted variable = %q, %v", got, err)
	}
}

func TestExpandEnv_ProcessEnvironment(t *testing.T) {
	t.Setenv("AGENTFSM_TEST_KEY", "sk-test")

	if got := ExpandEnv("api_key: ${AGENTFSM_TEST_KEY}"); got != "api_key: sk-test" {
		t.Errorf("ExpandEnv = %q", got)
	}
	if _, err := ExpandEnvStrict("${AGENTFSM_TEST_UNSET_KEY}"); err == nil {
		t.Error("ExpandEnvStrict accepted an unset variable")
	}
}
