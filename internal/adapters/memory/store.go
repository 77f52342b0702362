// Package memory implements an in-memory ports.RunStore, used as the
// default store and in tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/lucasmvf/pergola/pkg/domain"
)

// Store implements ports.RunStore in memory. Safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	data map[string]*domain.Run
}

// NewStore creates a new in-memory run store.
func NewStore() *Store {
	return &Store{data: make(map[string]*domain.Run)}
}

// Save persists a snapshot copy, isolating the store from later mutation.
func (s *Store) Save(ctx context.Context, run *domain.Run) error {
	snapshot := run.Clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[run.ID] = snapshot
	return nil
}

// Load retrieves a snapshot copy so callers cannot mutate stored state.
func (s *Store) Load(ctx context.Context, runID string) (*domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.data[runID]
	if !ok {
		return nil, domain.ErrRunNotFound
	}
	return run.Clone(), nil
}

// Delete removes the snapshot.
func (s *Store) Delete(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, runID)
	return nil
}

// List returns known run IDs, sorted for stable output.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
