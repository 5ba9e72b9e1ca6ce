package memory

import (
	"context"
	"sync"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/ports"
)

// Store implements ports.RunStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[string]*domain.Run
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]*domain.Run),
	}
}

// Save persists a deep copy of the run, similar to serialization.
func (s *Store) Save(ctx context.Context, run *domain.Run) error {
	copied := run.Snapshot()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[run.ID] = copied
	return nil
}

// Load retrieves a copy of the run so callers can't mutate the store by pointer.
func (s *Store) Load(ctx context.Context, runID string) (*domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.data[runID]
	if !ok {
		return nil, domain.ErrRunNotFound
	}
	return run.Snapshot(), nil
}

// Delete removes the run.
func (s *Store) Delete(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, runID)
	return nil
}

// List returns copies of the runs matching the filter, oldest first.
func (s *Store) List(ctx context.Context, filter ports.RunFilter) ([]*domain.Run, error) {
	s.mu.RLock()
	candidates := make([]*domain.Run, 0, len(s.data))
	for _, run := range s.data {
		if filter.Match(run) {
			candidates = append(candidates, run.Snapshot())
		}
	}
	s.mu.RUnlock()

	return filter.Apply(candidates), nil
}
