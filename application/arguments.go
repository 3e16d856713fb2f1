package application

import (
	"encoding/json"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// decodeArguments turns the raw argument text of a tool call into a map.
// Malformed JSON is repaired first; a value that decodes to a JSON string
// is decoded once more. Anything that still is not an object becomes {}.
func decodeArguments(raw string) map[string]any {
	v, ok := decodeJSON(raw)
	if !ok {
		return map[string]any{}
	}
	if s, isString := v.(string); isString {
		if v, ok = decodeJSON(s); !ok {
			return map[string]any{}
		}
	}
	if m, isMap := v.(map[string]any); isMap && m != nil {
		return m
	}
	return map[string]any{}
}

func decodeJSON(raw string) (any, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, false
	}

	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v, true
	}

	fixed, err := jsonrepair.JSONRepair(raw)
	if err != nil {
		return nil, false
	}
	if err := json.Unmarshal([]byte(fixed), &v); err != nil {
		return nil, false
	}
	return v, true
}
