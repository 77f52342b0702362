package ports

import "github.com/lucasmvf/pergola/pkg/domain"

// WorkflowLoader defines how the engine retrieves workflow definitions.
// This decouples the storage layer (filesystem tiers, embedded defaults,
// in-memory tests) from the runtime.
type WorkflowLoader interface {
	// Get retrieves a fully parsed and load-validated workflow by name.
	// Returns domain.ErrWorkflowNotFound (possibly wrapped) if no source
	// supplies it.
	Get(name string) (*domain.Workflow, error)

	// List returns the names of all available workflows, with precedence
	// shadowing already applied.
	List() ([]string, error)
}
