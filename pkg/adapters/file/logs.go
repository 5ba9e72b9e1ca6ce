package file

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aretw0/weft/pkg/domain"
)

// LogStore implements ports.LogStore with one JSON Lines file per run under <base>/logs.
type LogStore struct {
	BasePath string
	mu       sync.Mutex
}

// NewLogStore creates a LogStore rooted at baseDir (default ".weft").
func NewLogStore(baseDir string) *LogStore {
	if baseDir == "" {
		baseDir = DefaultDir
	}
	return &LogStore{BasePath: filepath.Join(baseDir, "logs")}
}

func (s *LogStore) path(runID string) (string, error) {
	if runID == "" || strings.ContainsAny(runID, `/\`) || runID == "." || runID == ".." {
		return "", fmt.Errorf("invalid run ID %q", runID)
	}
	return filepath.Join(s.BasePath, runID+".jsonl"), nil
}

// Append writes one line to the run's log file.
func (s *LogStore) Append(ctx context.Context, runID string, entry domain.LogEntry) error {
	p, err := s.path(runID)
	if err != nil {
		return err
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal log entry: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(s.BasePath, 0755); err != nil {
		return fmt.Errorf("failed to ensure log directory: %w", err)
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append log entry: %w", err)
	}
	return nil
}

// Read returns the run's entries matching the query, oldest first.
// Lines that fail to decode (e.g. a torn final write) are skipped.
func (s *LogStore) Read(ctx context.Context, runID string, query domain.LogQuery) ([]domain.LogEntry, error) {
	p, err := s.path(runID)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []domain.LogEntry{}, nil
		}
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer f.Close()

	var entries []domain.LogEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var e domain.LogEntry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read log file: %w", err)
	}
	return query.Filter(entries), nil
}

// Delete removes a run's log file.
func (s *LogStore) Delete(ctx context.Context, runID string) error {
	p, err := s.path(runID)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete log file: %w", err)
	}
	return nil
}
