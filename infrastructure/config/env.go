package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	domainconfig "github.com/felixgeelhaar/agent-fsm/domain/config"
)

// envPattern matches $$, ${NAME}, ${NAME:-default}, ${NAME:?message} and $NAME.
var envPattern = regexp.MustCompile(`\$\$|\$\{([A-Za-z_][A-Za-z0-9_]*)(?::([-?])([^}]*))?\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// envExpander expands environment references in configuration text.
type envExpander struct {
	// strict reports unset variables referenced without a modifier.
	strict bool
	// lookup defaults to os.LookupEnv.
	lookup func(string) (string, bool)
}

// Expand replaces environment references in input.
//
//   - ${NAME} and $NAME expand to the value, or "" when unset
//   - ${NAME:-default} uses default when NAME is unset or empty
//   - ${NAME:?message} fails when NAME is unset or empty
//   - $$ is a literal dollar sign
func (e *envExpander) Expand(input string) (string, error) {
	lookup := e.lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}

	var missing []string
	out := envPattern.ReplaceAllStringFunc(input, func(match string) string {
		if match == "$$" {
			return "$"
		}
		groups := envPattern.FindStringSubmatch(match)
		name, op, arg := groups[1], groups[2], groups[3]
		if name == "" {
			name = groups[4]
		}

		value, ok := lookup(name)
		switch op {
		case "-":
			if value == "" {
				return arg
			}
		case "?":
			if value == "" {
				missing = append(missing, fmt.Sprintf("%s: %s", name, arg))
			}
		default:
			if !ok && e.strict {
				missing = append(missing, name)
			}
		}
		return value
	})

	if len(missing) > 0 {
		return "", fmt.Errorf("%w: %s", domainconfig.ErrMissingEnvVar, strings.Join(missing, ", "))
	}
	return out, nil
}

// ExpandEnv expands environment references, leaving unset ones empty.
func ExpandEnv(input string) string {
	out, _ := (&envExpander{}).Expand(input)
	return out
}

// ExpandEnvStrict expands environment references and fails on unset ones.
func ExpandEnvStrict(input string) (string, error) {
	return (&envExpander{strict: true}).Expand(input)
}
