package params

import (
	"fmt"
	"strings"
)

// ParseOverrides turns CLI-style "key=value" pairs into a raw value map.
// Values stay strings; Validate coerces them per the declared type.
func ParseOverrides(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !found || key == "" {
			return nil, fmt.Errorf("invalid override %q: expected key=value", pair)
		}
		out[key] = value
	}
	return out, nil
}

// ParseBool accepts the override boolean tokens case-insensitively.
func ParseBool(s string) (value, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "1", "t", "y":
		return true, true
	case "false", "no", "0", "f", "n":
		return false, true
	}
	return false, false
}

// SplitSelections splits a comma-separated multi-choice value, trimming
// whitespace and dropping empty tokens.
func SplitSelections(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
