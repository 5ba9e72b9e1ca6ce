package ports

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contractDefinition() *domain.WorkflowDefinition {
	return &domain.WorkflowDefinition{
		Name:         "contract",
		InitialState: "Start",
		States: []domain.State{
			{ID: "Start", Kind: domain.StateStart},
			{ID: "End", Kind: domain.StateEnd},
		},
		Transitions: []domain.Transition{{From: "Start", To: "End", Condition: domain.Always()}},
	}
}

// RunStoreContract runs a suite of tests to verify that a RunStore implementation
// adheres to the defined interface contract.
func RunStoreContract(t *testing.T, store RunStore) {
	ctx := context.Background()
	prefix := "contract-" + time.Now().Format("20060102150405.000000")
	def := contractDefinition()

	t.Run("Save and Load", func(t *testing.T) {
		run := domain.NewRun(prefix+"-save", def, map[string]any{"foo": "bar", "count": 42})
		run.Record("Start", domain.OutcomeSuccess, "")
		require.NoError(t, store.Save(ctx, run))

		loaded, err := store.Load(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, run.ID, loaded.ID)
		assert.Equal(t, run.CurrentState, loaded.CurrentState)
		assert.Equal(t, run.Status, loaded.Status)
		assert.Equal(t, "bar", loaded.Context["foo"])
		// JSON backends turn ints into float64; only presence is portable.
		assert.NotNil(t, loaded.Context["count"])
		assert.Equal(t, true, loaded.Context[domain.KeyLastActionResult])
		require.Len(t, loaded.History, 1)
		assert.Equal(t, domain.OutcomeSuccess, loaded.History[0].Outcome)
		assert.Equal(t, []domain.WorkflowName{"contract"}, loaded.CallStack)
	})

	t.Run("Load returns an isolated copy", func(t *testing.T) {
		run := domain.NewRun(prefix+"-copy", def, nil)
		require.NoError(t, store.Save(ctx, run))
		run.Context["mutated"] = true

		loaded, err := store.Load(ctx, run.ID)
		require.NoError(t, err)
		assert.NotContains(t, loaded.Context, "mutated")
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, prefix+"-missing")
		assert.ErrorIs(t, err, domain.ErrRunNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		id := prefix + "-delete"
		require.NoError(t, store.Save(ctx, domain.NewRun(id, def, nil)))
		require.NoError(t, store.Delete(ctx, id))

		_, err := store.Load(ctx, id)
		assert.ErrorIs(t, err, domain.ErrRunNotFound, "Load after Delete should return ErrRunNotFound")
		assert.NoError(t, store.Delete(ctx, id), "deleting twice is not an error")
	})

	t.Run("List", func(t *testing.T) {
		a := domain.NewRun(prefix+"-list-a", def, nil)
		b := domain.NewRun(prefix+"-list-b", def, nil)
		b.CreatedAt = a.CreatedAt.Add(time.Millisecond)
		b.ParentID = a.ID
		b.Finish(domain.RunCompleted, "")
		require.NoError(t, store.Save(ctx, b))
		require.NoError(t, store.Save(ctx, a))
		defer func() {
			_ = store.Delete(ctx, a.ID)
			_ = store.Delete(ctx, b.ID)
		}()

		all, err := store.List(ctx, RunFilter{Workflow: "contract"})
		require.NoError(t, err)
		ids := runIDs(all)
		assert.Contains(t, ids, a.ID)
		assert.Contains(t, ids, b.ID)
		assert.Less(t, indexOf(ids, a.ID), indexOf(ids, b.ID), "runs are listed oldest first")

		done, err := store.List(ctx, RunFilter{Statuses: []domain.RunStatus{domain.RunCompleted}})
		require.NoError(t, err)
		assert.Contains(t, runIDs(done), b.ID)
		assert.NotContains(t, runIDs(done), a.ID)

		children, err := store.List(ctx, RunFilter{ParentID: a.ID})
		require.NoError(t, err)
		assert.Equal(t, []string{b.ID}, runIDs(children))

		none, err := store.List(ctx, RunFilter{Workflow: "other"})
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}

// LogStoreContract verifies that a LogStore implementation keeps per-run order and filtering.
func LogStoreContract(t *testing.T, store LogStore) {
	ctx := context.Background()
	runID := "contract-logs-" + time.Now().Format("20060102150405.000000")

	entries := []domain.LogEntry{
		{Level: slog.LevelDebug, Message: "one"},
		{Level: slog.LevelInfo, Message: "two"},
		{Level: slog.LevelWarn, Message: "three", Attrs: map[string]any{"state": "Review"}},
	}
	for _, e := range entries {
		e.Time = time.Now().UTC()
		e.RunID = runID
		require.NoError(t, store.Append(ctx, runID, e))
	}
	require.NoError(t, store.Append(ctx, runID+"-other", domain.LogEntry{Message: "elsewhere"}))

	t.Run("Read all", func(t *testing.T) {
		got, err := store.Read(ctx, runID, domain.LogQuery{})
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, "one", got[0].Message)
		assert.Equal(t, "three", got[2].Message)
		assert.Equal(t, "Review", got[2].Attrs["state"])
	})

	t.Run("Tail and level", func(t *testing.T) {
		got, err := store.Read(ctx, runID, domain.LogQuery{Tail: 1})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "three", got[0].Message)

		got, err = store.Read(ctx, runID, domain.LogQuery{MinLevel: slog.LevelInfo})
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("Unknown run", func(t *testing.T) {
		got, err := store.Read(ctx, runID+"-missing", domain.LogQuery{})
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func runIDs(runs []*domain.Run) []string {
	ids := make([]string, len(runs))
	for i, r := range runs {
		ids[i] = r.ID
	}
	return ids
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}
