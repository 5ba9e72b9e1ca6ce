package memory

import (
	"context"
	"sync"

	"github.com/aretw0/weft/pkg/domain"
)

// DefaultLogCapacity is the number of entries kept per run.
const DefaultLogCapacity = 1000

// LogStore implements ports.LogStore with a bounded ring per run.
type LogStore struct {
	capacity int
	mu       sync.RWMutex
	runs     map[string]*ring
}

type ring struct {
	entries []domain.LogEntry
	next    int
	full    bool
}

func (r *ring) add(e domain.LogEntry, capacity int) {
	if len(r.entries) < capacity {
		r.entries = append(r.entries, e)
		return
	}
	r.entries[r.next] = e
	r.next = (r.next + 1) % capacity
	r.full = true
}

func (r *ring) ordered() []domain.LogEntry {
	if !r.full {
		return append([]domain.LogEntry(nil), r.entries...)
	}
	out := make([]domain.LogEntry, 0, len(r.entries))
	out = append(out, r.entries[r.next:]...)
	return append(out, r.entries[:r.next]...)
}

// NewLogStore creates a log store keeping up to capacity entries per run.
// A non-positive capacity uses DefaultLogCapacity.
func NewLogStore(capacity int) *LogStore {
	if capacity <= 0 {
		capacity = DefaultLogCapacity
	}
	return &LogStore{capacity: capacity, runs: make(map[string]*ring)}
}

// Append records an entry, dropping the oldest one when the ring is full.
func (s *LogStore) Append(ctx context.Context, runID string, entry domain.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[runID]
	if !ok {
		r = &ring{}
		s.runs[runID] = r
	}
	r.add(entry, s.capacity)
	return nil
}

// Read returns the entries of a run matching the query, oldest first.
func (s *LogStore) Read(ctx context.Context, runID string, query domain.LogQuery) ([]domain.LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[runID]
	if !ok {
		return []domain.LogEntry{}, nil
	}
	return query.Filter(r.ordered()), nil
}

// Forget drops the entries of a run.
func (s *LogStore) Forget(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.runs, runID)
}
