// Package testutils holds helpers shared by tests that need a Loam repository.
package testutils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/loam"
	"github.com/aretw0/loam/pkg/core"
	"github.com/stretchr/testify/require"
)

// SetupTestRepo creates a temporary directory and initializes a Loam repository in it.
// It returns the absolute path to the temp dir and the initialized repository.
// It fails the test immediately on error.
func SetupTestRepo(t *testing.T, opts ...loam.Option) (string, core.Repository) {
	t.Helper()

	absPath, err := filepath.Abs(t.TempDir())
	require.NoError(t, err, "Failed to get absolute path for temp dir")

	repo, err := loam.Init(absPath, opts...)
	require.NoError(t, err, "Failed to init loam repo")

	return absPath, repo
}

// WriteFiles writes slash-separated relative paths under root, creating folders.
func WriteFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

// SetupWorkflowRepo creates a Loam repository seeded with workflows/<name>.md
// documents holding the given diagrams.
func SetupWorkflowRepo(t *testing.T, workflows map[string]string) (string, core.Repository) {
	t.Helper()
	dir, repo := SetupTestRepo(t)
	files := make(map[string]string, len(workflows))
	for name, diagram := range workflows {
		files["workflows/"+name+".md"] = "```mermaid\n" + diagram + "\n```\n"
	}
	WriteFiles(t, dir, files)
	return dir, repo
}
