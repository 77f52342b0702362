// Package params validates typed workflow parameters and resolves their
// final values, including conditional interdependencies between them.
package params

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/lucasmvf/pergola/pkg/domain"
)

// stepTolerance absorbs float error when checking step alignment of
// fractional values.
const stepTolerance = 1e-9

// Validate type-coerces raw and checks every applicable rule, returning the
// coerced value or a *domain.ValidationError naming the violated rule.
func Validate(p *domain.Parameter, raw any) (any, error) {
	switch p.Type {
	case domain.ParamString, "":
		return validateString(p, raw)
	case domain.ParamBoolean:
		return validateBoolean(p, raw)
	case domain.ParamNumber:
		return validateNumber(p, raw)
	case domain.ParamChoice:
		return validateChoice(p, raw)
	case domain.ParamMultiChoice:
		return validateMultiChoice(p, raw)
	default:
		return nil, &domain.ValidationError{
			Parameter: p.Name,
			Rule:      "type",
			Reason:    fmt.Sprintf("unknown parameter type %q", p.Type),
		}
	}
}

func validateString(p *domain.Parameter, raw any) (any, error) {
	s, err := coerceString(p, raw)
	if err != nil {
		return nil, err
	}

	length := utf8.RuneCountInString(s)
	if p.MinLength != nil && length < *p.MinLength {
		return nil, &domain.ValidationError{
			Parameter: p.Name,
			Rule:      "min_length",
			Reason:    fmt.Sprintf("length %d is below minimum %d", length, *p.MinLength),
		}
	}
	if p.MaxLength != nil && length > *p.MaxLength {
		return nil, &domain.ValidationError{
			Parameter: p.Name,
			Rule:      "max_length",
			Reason:    fmt.Sprintf("length %d exceeds maximum %d", length, *p.MaxLength),
		}
	}
	if p.Pattern != "" {
		re, err := regexp.Compile(p.Pattern)
		if err != nil {
			return nil, &domain.ValidationError{
				Parameter: p.Name,
				Rule:      "pattern",
				Reason:    fmt.Sprintf("invalid pattern %q: %v", p.Pattern, err),
			}
		}
		if !re.MatchString(s) {
			return nil, &domain.ValidationError{
				Parameter: p.Name,
				Rule:      "pattern",
				Reason:    fmt.Sprintf("%q does not match %q", s, p.Pattern),
			}
		}
	}
	return s, nil
}

func validateBoolean(p *domain.Parameter, raw any) (any, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		b, ok := ParseBool(v)
		if !ok {
			return nil, &domain.ValidationError{
				Parameter: p.Name,
				Rule:      "type",
				Reason:    fmt.Sprintf("%q is not a boolean (expected true/false/yes/no/1/0/t/f/y/n)", v),
			}
		}
		return b, nil
	default:
		return nil, &domain.ValidationError{
			Parameter: p.Name,
			Rule:      "type",
			Reason:    fmt.Sprintf("expected boolean, got %T", raw),
		}
	}
}

func validateNumber(p *domain.Parameter, raw any) (any, error) {
	v, ok := coerceNumber(raw)
	if !ok {
		return nil, &domain.ValidationError{
			Parameter: p.Name,
			Rule:      "type",
			Reason:    fmt.Sprintf("%v is not a number", raw),
		}
	}

	if p.Min != nil && v < *p.Min {
		return nil, &domain.ValidationError{
			Parameter: p.Name,
			Rule:      "min",
			Reason:    fmt.Sprintf("%v is below minimum %v", v, *p.Min),
		}
	}
	if p.Max != nil && v > *p.Max {
		return nil, &domain.ValidationError{
			Parameter: p.Name,
			Rule:      "max",
			Reason:    fmt.Sprintf("%v exceeds maximum %v", v, *p.Max),
		}
	}
	if p.Step != nil && *p.Step > 0 {
		base := 0.0
		if p.Min != nil {
			base = *p.Min
		}
		q := (v - base) / *p.Step
		nearest := math.Round(q)
		tol := stepTolerance * math.Max(1, math.Abs(q))
		if math.Abs(q-nearest) > tol {
			return nil, &domain.ValidationError{
				Parameter: p.Name,
				Rule:      "step",
				Reason:    fmt.Sprintf("%v is not aligned to step %v from %v", v, *p.Step, base),
			}
		}
	}
	return v, nil
}

func validateChoice(p *domain.Parameter, raw any) (any, error) {
	s, err := coerceString(p, raw)
	if err != nil {
		return nil, err
	}
	if !containsString(p.Choices, s) {
		return nil, &domain.ValidationError{
			Parameter: p.Name,
			Rule:      "choices",
			Reason:    fmt.Sprintf("%q is not one of [%s]", s, strings.Join(p.Choices, ", ")),
		}
	}
	return s, nil
}

func validateMultiChoice(p *domain.Parameter, raw any) (any, error) {
	selections, err := coerceSelections(p, raw)
	if err != nil {
		return nil, err
	}

	for _, s := range selections {
		if !containsString(p.Choices, s) {
			return nil, &domain.ValidationError{
				Parameter: p.Name,
				Rule:      "choices",
				Reason:    fmt.Sprintf("%q is not one of [%s]", s, strings.Join(p.Choices, ", ")),
			}
		}
	}
	if p.MinSelections != nil && len(selections) < *p.MinSelections {
		return nil, &domain.ValidationError{
			Parameter: p.Name,
			Rule:      "min_selections",
			Reason:    fmt.Sprintf("%d selections, minimum is %d", len(selections), *p.MinSelections),
		}
	}
	if p.MaxSelections != nil && len(selections) > *p.MaxSelections {
		return nil, &domain.ValidationError{
			Parameter: p.Name,
			Rule:      "max_selections",
			Reason:    fmt.Sprintf("%d selections, maximum is %d", len(selections), *p.MaxSelections),
		}
	}
	return selections, nil
}

func coerceString(p *domain.Parameter, raw any) (string, error) {
	switch v := raw.(type) {
	case string:
		return v, nil
	case bool, int, int64, float64:
		return fmt.Sprintf("%v", v), nil
	default:
		return "", &domain.ValidationError{
			Parameter: p.Name,
			Rule:      "type",
			Reason:    fmt.Sprintf("expected string, got %T", raw),
		}
	}
}

func coerceNumber(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func coerceSelections(p *domain.Parameter, raw any) ([]string, error) {
	switch v := raw.(type) {
	case string:
		return SplitSelections(v), nil
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, &domain.ValidationError{
					Parameter: p.Name,
					Rule:      "type",
					Reason:    fmt.Sprintf("selection %v is not a string", item),
				}
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, &domain.ValidationError{
			Parameter: p.Name,
			Rule:      "type",
			Reason:    fmt.Sprintf("expected selections, got %T", raw),
		}
	}
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
