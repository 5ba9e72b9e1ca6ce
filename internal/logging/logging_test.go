package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingStore struct {
	mu      sync.Mutex
	entries map[string][]domain.LogEntry
}

func (s *recordingStore) Append(_ context.Context, runID string, e domain.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries == nil {
		s.entries = make(map[string][]domain.LogEntry)
	}
	s.entries[runID] = append(s.entries[runID], e)
	return nil
}

func (s *recordingStore) Read(_ context.Context, runID string, q domain.LogQuery) ([]domain.LogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return q.Filter(s.entries[runID]), nil
}

func TestNewHandler_RenamesErrorKey(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, slog.LevelInfo, FormatJSON))
	logger.Info("failed", "error", errors.New("boom"))
	assert.Contains(t, buf.String(), `"err":"boom"`)
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"":        slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestRunLogHandler(t *testing.T) {
	var buf bytes.Buffer
	store := &recordingStore{}
	logger := slog.New(NewRunLogHandler(NewHandler(&buf, slog.LevelInfo, FormatText), store))

	runLogger := logger.With(RunIDKey, "run-1", "workflow", "deploy")
	runLogger.Debug("entering state", "state", "Build")
	runLogger.WithGroup("action").Info("finished", "kind", "shell", "error", errors.New("exit 1"))
	logger.Info("no run here")

	entries, err := store.Read(context.Background(), "run-1", domain.LogQuery{})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, slog.LevelDebug, entries[0].Level)
	assert.Equal(t, "run-1", entries[0].RunID)
	assert.Equal(t, map[string]any{"workflow": "deploy", "state": "Build"}, entries[0].Attrs)

	assert.Equal(t, "shell", entries[1].Attrs["action.kind"])
	assert.Equal(t, "exit 1", entries[1].Attrs["action.error"])

	// The terminal keeps its own level.
	assert.NotContains(t, buf.String(), "entering state")
	assert.Contains(t, buf.String(), "finished")
	assert.Contains(t, buf.String(), "no run here")
	assert.Len(t, store.entries, 1)
}
