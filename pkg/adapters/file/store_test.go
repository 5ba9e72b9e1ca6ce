package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/weft/pkg/adapters/file"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_Contract(t *testing.T) {
	ports.RunStoreContract(t, file.New(t.TempDir()))
}

func TestFileLogStore_Contract(t *testing.T) {
	ports.LogStoreContract(t, file.NewLogStore(t.TempDir()))
}

func TestFileStore_Layout(t *testing.T) {
	dir := t.TempDir()
	store := file.New(dir)
	ctx := context.Background()

	def := &domain.WorkflowDefinition{Name: "w", InitialState: "A", States: []domain.State{{ID: "A", Kind: domain.StateStart}}}
	run := domain.NewRun("run-1", def, map[string]any{"k": "v"})
	require.NoError(t, store.Save(ctx, run))

	data, err := os.ReadFile(filepath.Join(dir, "runs", "run-1.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  \"id\": \"run-1\"", "run files are indented JSON")

	// Overwrite keeps a single file and no temp leftovers.
	run.CurrentState = "B"
	require.NoError(t, store.Save(ctx, run))
	entries, err := os.ReadDir(filepath.Join(dir, "runs"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	loaded, err := store.Load(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateID("B"), loaded.CurrentState)
}

func TestFileStore_RejectsPathTraversal(t *testing.T) {
	store := file.New(t.TempDir())
	_, err := store.Load(context.Background(), "../escape")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrRunNotFound)
}

func TestFileStore_ListEmptyDir(t *testing.T) {
	store := file.New(filepath.Join(t.TempDir(), "missing"))
	runs, err := store.List(context.Background(), ports.RunFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs)
}
