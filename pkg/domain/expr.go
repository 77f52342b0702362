package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Expr is a parsed condition expression of the form "name op literal", or a
// bare "name" tested for truthiness. It is deliberately small: conditions
// gate transitions and parameter dependencies, they are not a scripting
// surface.
type Expr struct {
	Variable string
	Op       string // one of ==, !=, >=, <=, >, <; empty for truthiness
	Value    string
}

// Ordered longest-first so ">=" is not read as ">".
var exprOps = []string{"==", "!=", ">=", "<=", ">", "<"}

// ParseExpr parses a condition expression. Malformed expressions are
// rejected here so callers can fail at load time rather than mid-run.
func ParseExpr(s string) (*Expr, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil, fmt.Errorf("empty condition expression")
	}

	for _, op := range exprOps {
		idx := strings.Index(trimmed, op)
		if idx < 0 {
			continue
		}
		lhs := strings.TrimSpace(trimmed[:idx])
		rhs := strings.TrimSpace(trimmed[idx+len(op):])
		if lhs == "" || rhs == "" {
			return nil, fmt.Errorf("malformed condition %q: missing operand around %q", s, op)
		}
		if !validIdent(lhs) {
			return nil, fmt.Errorf("malformed condition %q: %q is not a variable name", s, lhs)
		}
		return &Expr{Variable: lhs, Op: op, Value: unquote(rhs)}, nil
	}

	if !validIdent(trimmed) {
		return nil, fmt.Errorf("malformed condition %q: expected \"name\" or \"name op value\"", s)
	}
	return &Expr{Variable: trimmed}, nil
}

// Eval evaluates the expression against a variable map. Missing variables
// compare as the empty string (and are falsy).
func (e *Expr) Eval(vars map[string]any) bool {
	raw, ok := vars[e.Variable]
	actual := ""
	if ok && raw != nil {
		actual = fmt.Sprintf("%v", raw)
	}

	if e.Op == "" {
		return truthy(actual)
	}

	// Numeric comparison when both sides parse; string comparison otherwise.
	af, aerr := strconv.ParseFloat(actual, 64)
	bf, berr := strconv.ParseFloat(e.Value, 64)
	if aerr == nil && berr == nil {
		switch e.Op {
		case "==":
			return af == bf
		case "!=":
			return af != bf
		case ">":
			return af > bf
		case "<":
			return af < bf
		case ">=":
			return af >= bf
		case "<=":
			return af <= bf
		}
	}

	switch e.Op {
	case "==":
		return actual == e.Value
	case "!=":
		return actual != e.Value
	case ">":
		return actual > e.Value
	case "<":
		return actual < e.Value
	case ">=":
		return actual >= e.Value
	case "<=":
		return actual <= e.Value
	}
	return false
}

func truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "false", "no", "n", "0", "f":
		return false
	}
	return true
}

func validIdent(s string) bool {
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return len(s) > 0
}

func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '\'' && s[len(s)-1] == '\'') || (s[0] == '"' && s[len(s)-1] == '"') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
