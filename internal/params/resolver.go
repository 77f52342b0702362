package params

import (
	"fmt"

	"github.com/lucasmvf/pergola/pkg/domain"
	"github.com/lucasmvf/pergola/pkg/ports"
)

// ResolveAll determines the final value for every declared parameter.
//
// Resolution iterates in passes: each pass settles the parameters whose
// condition dependencies are already settled. A pass that settles nothing
// while parameters remain signals a circular dependency, reported as a
// *domain.CycleError naming the offenders. The pass count is bounded by
// the parameter count, so cycles can never loop forever.
//
// prompter selects the mode: non-nil means interactive, and missing
// required parameters are requested from it; nil means missing required
// parameters fail immediately.
func ResolveAll(parameters []domain.Parameter, provided map[string]any, prompter ports.Prompter) (map[string]any, error) {
	values := make(map[string]any, len(parameters))
	settled := make(map[string]bool, len(parameters))
	declared := make(map[string]bool, len(parameters))
	for i := range parameters {
		declared[parameters[i].Name] = true
	}

	for pass := 0; pass <= len(parameters); pass++ {
		progress := false

		for i := range parameters {
			p := &parameters[i]
			if settled[p.Name] {
				continue
			}

			if p.Condition != "" {
				expr, err := domain.ParseExpr(p.Condition)
				if err != nil {
					return nil, &domain.ValidationError{
						Parameter: p.Name,
						Rule:      "condition",
						Reason:    err.Error(),
					}
				}
				if !declared[expr.Variable] {
					return nil, &domain.ValidationError{
						Parameter: p.Name,
						Rule:      "condition",
						Reason:    fmt.Sprintf("references undeclared parameter %q", expr.Variable),
					}
				}
				if !settled[expr.Variable] {
					// Dependency still pending; try again next pass.
					continue
				}
				if !expr.Eval(values) {
					// Condition is off: the parameter is inactive this run.
					settled[p.Name] = true
					progress = true
					continue
				}
			}

			value, present, err := resolveOne(p, provided, prompter)
			if err != nil {
				return nil, err
			}
			if present {
				values[p.Name] = value
			}
			settled[p.Name] = true
			progress = true
		}

		if len(settled) == len(parameters) {
			return values, nil
		}
		if !progress {
			break
		}
	}

	var cycle []string
	for i := range parameters {
		if !settled[parameters[i].Name] {
			cycle = append(cycle, parameters[i].Name)
		}
	}
	return nil, &domain.CycleError{Parameters: cycle}
}

// resolveOne settles a single active parameter: provided value, then
// default, then interactive prompt, then the required/optional verdict.
func resolveOne(p *domain.Parameter, provided map[string]any, prompter ports.Prompter) (any, bool, error) {
	if raw, ok := provided[p.Name]; ok {
		value, err := Validate(p, raw)
		if err != nil {
			return nil, false, err
		}
		return value, true, nil
	}

	if p.Default != nil {
		value, err := Validate(p, p.Default)
		if err != nil {
			return nil, false, err
		}
		return value, true, nil
	}

	if !p.Required {
		return nil, false, nil
	}

	if prompter == nil {
		return nil, false, &domain.ValidationError{
			Parameter: p.Name,
			Rule:      "required",
			Reason:    "missing required parameter",
		}
	}

	raw, err := prompter.Prompt(p)
	if err != nil {
		return nil, false, fmt.Errorf("prompting for parameter %q: %w", p.Name, err)
	}
	value, err := Validate(p, raw)
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}
