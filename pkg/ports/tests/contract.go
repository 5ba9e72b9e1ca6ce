package tests

import (
	"context"
	"testing"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// WorkflowLoaderContractTest is a reusable test suite that verifies if an adapter complies with ports.WorkflowLoader.
// setupData maps workflow names to the diagram source the loader was seeded with.
func WorkflowLoaderContractTest(t *testing.T, loader ports.WorkflowLoader, setupData map[domain.WorkflowName]string) {
	t.Helper()
	ctx := context.Background()

	t.Run("Source_Success", func(t *testing.T) {
		for name, expected := range setupData {
			src, err := loader.Source(ctx, name)
			require.NoError(t, err, "getting workflow %s", name)
			assert.Equal(t, name, src.Name)
			assert.Equal(t, expected, string(src.Source), "source mismatch for %s", name)
		}
	})

	t.Run("Source_NotFound", func(t *testing.T) {
		_, err := loader.Source(ctx, "non-existent-workflow")
		assert.ErrorIs(t, err, domain.ErrWorkflowNotFound)
	})

	t.Run("List", func(t *testing.T) {
		list, err := loader.List(ctx)
		require.NoError(t, err)
		require.Len(t, list, len(setupData))

		for i := 1; i < len(list); i++ {
			assert.Less(t, string(list[i-1].Name), string(list[i].Name), "list must be sorted by name")
		}
		lookup := make(map[domain.WorkflowName]bool)
		for _, src := range list {
			lookup[src.Name] = true
		}
		for name := range setupData {
			assert.True(t, lookup[name], "workflow %s missing from list", name)
		}
	})
}
