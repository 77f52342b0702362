package domain

import (
	"context"
	"time"
)

// RunEvent carries the common fields for run lifecycle callbacks.
type RunEvent struct {
	Timestamp time.Time `json:"timestamp"`
	RunID     string    `json:"run_id"`
	Workflow  string    `json:"workflow"`
	StateID   string    `json:"state_id,omitempty"`
}

// TransitionEvent reports one transition rule firing.
type TransitionEvent struct {
	RunEvent
	From      string `json:"from"`
	To        string `json:"to"`
	Condition string `json:"condition,omitempty"`
}

// RunHooks defines callbacks for engine observability. All fields are
// optional; hooks run synchronously on the run's goroutine and must not
// block for long.
type RunHooks struct {
	OnRunStart   func(context.Context, *RunEvent)
	OnStateEnter func(context.Context, *RunEvent)
	OnStateLeave func(context.Context, *RunEvent)
	OnTransition func(context.Context, *TransitionEvent)
	OnRunEnd     func(context.Context, *RunEvent, RunStatus)
}
