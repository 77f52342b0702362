package loader

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lucasmvf/pergola/pkg/domain"
)

// Validate checks a workflow definition for the errors that should surface
// before any state executes: dangling state references, malformed condition
// expressions, misordered default transitions, undeclared parameter
// references, and broken templates. Transition conditions are parsed in
// place so the engine never re-parses at run time.
func Validate(w *domain.Workflow) error {
	fail := func(detail string, err error) error {
		return &domain.LoadError{Workflow: w.Name, Detail: detail, Err: err}
	}

	if w.Name == "" {
		return fail("missing name", nil)
	}
	if len(w.States) == 0 {
		return fail("workflow declares no states", nil)
	}
	if w.InitialState == "" {
		return fail("missing initial_state", nil)
	}

	seen := make(map[string]bool, len(w.States))
	for _, st := range w.States {
		if seen[st.ID] {
			return fail(fmt.Sprintf("duplicate state %q", st.ID), nil)
		}
		seen[st.ID] = true
	}
	if !seen[w.InitialState] {
		return fail(fmt.Sprintf("initial_state %q is not a declared state", w.InitialState), nil)
	}

	if err := validateParameters(w, fail); err != nil {
		return err
	}

	// Variables a transition condition may reference: declared parameters
	// plus any state output.
	known := make(map[string]bool, len(w.Parameters))
	for _, p := range w.Parameters {
		known[p.Name] = true
	}
	for _, st := range w.States {
		if st.Output != "" {
			known[st.Output] = true
		}
	}

	for i := range w.States {
		st := &w.States[i]
		if err := checkTemplate(st.System); err != nil {
			return fail(fmt.Sprintf("state %q: system template", st.ID), err)
		}
		if err := checkTemplate(st.Prompt); err != nil {
			return fail(fmt.Sprintf("state %q: prompt template", st.ID), err)
		}
		if err := validateTransitions(st, seen, known, fail); err != nil {
			return err
		}
	}
	return nil
}

func validateTransitions(st *domain.State, states, known map[string]bool, fail func(string, error) error) error {
	for i := range st.Transitions {
		tr := &st.Transitions[i]
		if tr.To == "" {
			return fail(fmt.Sprintf("state %q: transition %d has no target", st.ID, i), nil)
		}
		if !states[tr.To] {
			return fail(fmt.Sprintf("state %q: transition to unknown state %q", st.ID, tr.To), nil)
		}
		if tr.When == "" {
			// The default rule matches unconditionally, so anything after
			// it would be unreachable.
			if i != len(st.Transitions)-1 {
				return fail(fmt.Sprintf("state %q: default transition must be the last rule", st.ID), nil)
			}
			continue
		}
		expr, err := domain.ParseExpr(tr.When)
		if err != nil {
			return fail(fmt.Sprintf("state %q: transition condition", st.ID), err)
		}
		if !known[expr.Variable] {
			return fail(fmt.Sprintf("state %q: condition references %q, which is neither a parameter nor a state output", st.ID, expr.Variable), nil)
		}
		tr.Cond = expr
	}
	return nil
}

func validateParameters(w *domain.Workflow, fail func(string, error) error) error {
	declared := make(map[string]bool, len(w.Parameters))
	for _, p := range w.Parameters {
		if p.Name == "" {
			return fail("parameter with empty name", nil)
		}
		if declared[p.Name] {
			return fail(fmt.Sprintf("duplicate parameter %q", p.Name), nil)
		}
		declared[p.Name] = true
	}

	for _, p := range w.Parameters {
		switch p.Type {
		case domain.ParamString, domain.ParamBoolean, domain.ParamNumber:
		case domain.ParamChoice, domain.ParamMultiChoice:
			if len(p.Choices) == 0 {
				return fail(fmt.Sprintf("parameter %q: %s without choices", p.Name, p.Type), nil)
			}
		case "":
			return fail(fmt.Sprintf("parameter %q: missing type", p.Name), nil)
		default:
			return fail(fmt.Sprintf("parameter %q: unknown type %q", p.Name, p.Type), nil)
		}

		if p.Pattern != "" {
			if _, err := regexp.Compile(p.Pattern); err != nil {
				return fail(fmt.Sprintf("parameter %q: pattern", p.Name), err)
			}
		}
		if p.Condition != "" {
			expr, err := domain.ParseExpr(p.Condition)
			if err != nil {
				return fail(fmt.Sprintf("parameter %q: condition", p.Name), err)
			}
			if !declared[expr.Variable] {
				return fail(fmt.Sprintf("parameter %q: condition references undeclared parameter %q", p.Name, expr.Variable), nil)
			}
			if expr.Variable == p.Name {
				return fail(fmt.Sprintf("parameter %q: condition references itself", p.Name), nil)
			}
		}
	}
	return nil
}

// checkTemplate rejects an opening "{{" with no closing "}}". Unknown
// variables are legal (they render empty); a broken brace is not.
func checkTemplate(tpl string) error {
	rest := tpl
	for {
		open := strings.Index(rest, "{{")
		if open < 0 {
			return nil
		}
		end := strings.Index(rest[open:], "}}")
		if end < 0 {
			return fmt.Errorf("unclosed {{ placeholder")
		}
		rest = rest[open+end+2:]
	}
}
