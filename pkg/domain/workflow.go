package domain

// Workflow is a declarative, named graph of states. It is immutable after
// load: the engine never mutates a Workflow, only the Run derived from it.
type Workflow struct {
	Name        string      `json:"name" yaml:"name"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Parameters  []Parameter `json:"parameters,omitempty" yaml:"parameters,omitempty"`

	// InitialState is the ID of the state a run begins at.
	InitialState string `json:"initial_state" yaml:"initial_state"`

	// States are kept in declaration order. Transition rules within a state
	// are evaluated in declaration order as well (first match wins).
	States []State `json:"states" yaml:"states"`

	// Source records which precedence tier supplied this definition
	// (builtin, project, user). Informational only.
	Source string `json:"source,omitempty" yaml:"-"`
}

// State looks up a state by ID.
func (w *Workflow) State(id string) (*State, bool) {
	for i := range w.States {
		if w.States[i].ID == id {
			return &w.States[i], true
		}
	}
	return nil, false
}

// Parameter looks up a declared parameter by name.
func (w *Workflow) Parameter(name string) (*Parameter, bool) {
	for i := range w.Parameters {
		if w.Parameters[i].Name == name {
			return &w.Parameters[i], true
		}
	}
	return nil, false
}

// State is one unit of work: an action (prompt template plus executor
// selection) and the transition rules leaving it. A state with no
// transitions is terminal.
type State struct {
	ID string `json:"id" yaml:"id"`

	// Executor selects the agent backend for this state's action.
	// Empty means the engine default.
	Executor string `json:"executor,omitempty" yaml:"executor,omitempty" mapstructure:"executor"`

	// System and Prompt are templates rendered against the run context.
	System string `json:"system,omitempty" yaml:"system,omitempty" mapstructure:"system"`
	Prompt string `json:"prompt,omitempty" yaml:"prompt,omitempty" mapstructure:"prompt"`

	// Output names the context variable that receives the action's result.
	Output string `json:"output,omitempty" yaml:"output,omitempty" mapstructure:"output"`

	Transitions []Transition `json:"transitions,omitempty" yaml:"transitions,omitempty" mapstructure:"next"`
}

// Terminal reports whether the state declares no way out.
func (s *State) Terminal() bool {
	return len(s.Transitions) == 0
}

// Transition defines a rule to move from one state to another.
// An empty condition is the default ("always") rule; the loader enforces
// that it may only appear as the last rule of a state.
type Transition struct {
	To   string `json:"to" yaml:"to" mapstructure:"to"`
	When string `json:"when,omitempty" yaml:"when,omitempty" mapstructure:"when"`

	// Cond is the parsed form of When, populated at load time so malformed
	// expressions surface before any state executes.
	Cond *Expr `json:"-" yaml:"-" mapstructure:"-"`
}
