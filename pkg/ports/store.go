package ports

import (
	"context"

	"github.com/lucasmvf/pergola/pkg/domain"
)

// RunStore defines the interface for persisting run snapshots. The engine
// writes a snapshot after each completed state so external tooling can
// observe progress and finished runs can be inspected later.
type RunStore interface {
	// Save persists the snapshot for the given run ID.
	Save(ctx context.Context, run *domain.Run) error

	// Load retrieves a run snapshot.
	// Returns domain.ErrRunNotFound if the run does not exist.
	Load(ctx context.Context, runID string) (*domain.Run, error)

	// Delete removes a run snapshot.
	Delete(ctx context.Context, runID string) error

	// List returns known run IDs.
	List(ctx context.Context) ([]string, error)
}
