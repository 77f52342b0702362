package domain

import "time"

// RunStatus defines the lifecycle phase of a workflow run.
type RunStatus string

const (
	StatusPending   RunStatus = "pending"
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
	StatusCancelled RunStatus = "cancelled"
)

// Terminal reports whether the status admits no further state execution.
func (s RunStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Run is the snapshot of one in-flight (or finished) workflow execution.
// The Context map is exclusively owned by the run: values are appended or
// overwritten, never deleted mid-run.
type Run struct {
	ID           string         `json:"id"`
	Workflow     string         `json:"workflow"`
	CurrentState string         `json:"current_state"`
	Status       RunStatus      `json:"status"`
	Context      map[string]any `json:"context"`

	// History tracks the ordered path of visited state IDs.
	History []string `json:"history"`

	// FailedState and Error record where and why a run settled to Failed.
	FailedState string `json:"failed_state,omitempty"`
	Error       string `json:"error,omitempty"`

	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitzero"`
}

// NewRun creates a pending run positioned at the workflow's initial state.
func NewRun(id, workflow, initialState string, initialContext map[string]any) *Run {
	ctx := make(map[string]any, len(initialContext))
	for k, v := range initialContext {
		ctx[k] = v
	}
	return &Run{
		ID:           id,
		Workflow:     workflow,
		CurrentState: initialState,
		Status:       StatusPending,
		Context:      ctx,
		History:      []string{},
		StartedAt:    time.Now(),
	}
}

// Clone returns a copy with a deep-copied context for safe mutation.
func (r *Run) Clone() *Run {
	if r == nil {
		return nil
	}
	next := *r
	next.Context = make(map[string]any, len(r.Context))
	for k, v := range r.Context {
		next.Context[k] = v
	}
	next.History = append([]string(nil), r.History...)
	return &next
}
