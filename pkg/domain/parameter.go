package domain

// ParamType enumerates the supported parameter types.
type ParamType string

const (
	ParamString      ParamType = "string"
	ParamBoolean     ParamType = "boolean"
	ParamNumber      ParamType = "number"
	ParamChoice      ParamType = "choice"
	ParamMultiChoice ParamType = "multichoice"
)

// Parameter declares a typed workflow input and its validation rules.
// Pointer fields distinguish "unset" from zero values so that, e.g.,
// min: 0 is a real bound.
type Parameter struct {
	Name        string    `json:"name" yaml:"name" mapstructure:"name"`
	Type        ParamType `json:"type" yaml:"type" mapstructure:"type"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty" mapstructure:"description"`
	Required    bool      `json:"required,omitempty" yaml:"required,omitempty" mapstructure:"required"`
	Default     any       `json:"default,omitempty" yaml:"default,omitempty" mapstructure:"default"`

	// Group is an optional display grouping hint for interactive surfaces.
	Group string `json:"group,omitempty" yaml:"group,omitempty" mapstructure:"group"`

	// String rules.
	Pattern   string `json:"pattern,omitempty" yaml:"pattern,omitempty" mapstructure:"pattern"`
	MinLength *int   `json:"min_length,omitempty" yaml:"min_length,omitempty" mapstructure:"min_length"`
	MaxLength *int   `json:"max_length,omitempty" yaml:"max_length,omitempty" mapstructure:"max_length"`

	// Number rules. Step aligns to Min when both are set.
	Min  *float64 `json:"min,omitempty" yaml:"min,omitempty" mapstructure:"min"`
	Max  *float64 `json:"max,omitempty" yaml:"max,omitempty" mapstructure:"max"`
	Step *float64 `json:"step,omitempty" yaml:"step,omitempty" mapstructure:"step"`

	// Choice / MultiChoice rules.
	Choices       []string `json:"choices,omitempty" yaml:"choices,omitempty" mapstructure:"choices"`
	MinSelections *int     `json:"min_selections,omitempty" yaml:"min_selections,omitempty" mapstructure:"min_selections"`
	MaxSelections *int     `json:"max_selections,omitempty" yaml:"max_selections,omitempty" mapstructure:"max_selections"`

	// Condition gates this parameter on another parameter's resolved value,
	// e.g. "scope == 'git'". It creates a dependency edge the resolver must
	// satisfy before this parameter is considered.
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty" mapstructure:"condition"`
}
