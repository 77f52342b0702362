package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrRunNotFound is returned when a run ID cannot be found in the store.
var ErrRunNotFound = errors.New("run not found")

// ErrWorkflowNotFound is returned when no source supplies the named workflow.
var ErrWorkflowNotFound = errors.New("workflow not found")

// ErrUnknownTool is returned when a tool name is not in the catalog.
var ErrUnknownTool = errors.New("unknown tool")

// ErrRateLimited is returned when a token bucket rejects an invocation.
var ErrRateLimited = errors.New("rate limited")

// ErrRunCancelled marks a run that observed cancellation between states.
var ErrRunCancelled = errors.New("run cancelled")

// ValidationError reports a parameter that failed type coercion or a
// declared rule. Rule names the violated rule (e.g. "pattern", "step",
// "max_selections", "required").
type ValidationError struct {
	Parameter string
	Rule      string
	Reason    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("parameter %q: %s rule violated: %s", e.Parameter, e.Rule, e.Reason)
}

// CycleError reports a circular parameter condition dependency. Parameters
// lists the unresolvable names so the author can find the cycle.
type CycleError struct {
	Parameters []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("circular parameter condition dependency involving: %s",
		strings.Join(e.Parameters, ", "))
}

// LoadError reports a malformed workflow definition before anything runs.
type LoadError struct {
	Workflow string
	Detail   string
	Err      error
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("workflow %q: %s: %v", e.Workflow, e.Detail, e.Err)
	}
	return fmt.Sprintf("workflow %q: %s", e.Workflow, e.Detail)
}

func (e *LoadError) Unwrap() error { return e.Err }

// RunError wraps a failure that occurred while executing a state. The run
// transitions to Failed with this recorded; nothing is silently retried.
type RunError struct {
	Workflow string
	State    string
	Err      error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("workflow %q state %q: %v", e.Workflow, e.State, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }
