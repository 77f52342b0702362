package runtime

import (
	"fmt"
	"strings"
)

// Render interpolates {{name}} placeholders against the run context.
// Unknown variables render empty; load-time validation already rejected
// unclosed braces, so a stray "{{" here is passed through as-is.
func Render(tpl string, vars map[string]any) string {
	var b strings.Builder
	rest := tpl
	for {
		open := strings.Index(rest, "{{")
		if open < 0 {
			b.WriteString(rest)
			return b.String()
		}
		end := strings.Index(rest[open:], "}}")
		if end < 0 {
			b.WriteString(rest)
			return b.String()
		}

		b.WriteString(rest[:open])
		name := strings.TrimSpace(rest[open+2 : open+end])
		if v, ok := vars[name]; ok && v != nil {
			b.WriteString(fmt.Sprintf("%v", v))
		}
		rest = rest[open+end+2:]
	}
}
