package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/weft/pkg/adapters/redis"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/ports"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func newRun(id string, status domain.RunStatus) *domain.Run {
	def := &domain.WorkflowDefinition{Name: "wf", InitialState: "start"}
	run := domain.NewRun(id, def, map[string]any{"foo": "bar"})
	run.Status = status
	return run
}

func TestRedisStore_Contract(t *testing.T) {
	_, client := newClient(t)
	ports.RunStoreContract(t, redis.NewFromClient(client))
}

func TestRedisLogStore_Contract(t *testing.T) {
	_, client := newClient(t)
	ports.LogStoreContract(t, redis.NewLogStore(client, "", 0, 0))
}

func TestRedisLogStore_Capacity(t *testing.T) {
	_, client := newClient(t)
	store := redis.NewLogStore(client, "test:logs:", 2, 0)
	ctx := context.Background()

	for _, msg := range []string{"one", "two", "three"} {
		require.NoError(t, store.Append(ctx, "run-1", domain.LogEntry{Message: msg, RunID: "run-1"}))
	}

	entries, err := store.Read(ctx, "run-1", domain.LogQuery{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "two", entries[0].Message)
	assert.Equal(t, "three", entries[1].Message)
}

func TestRedisStore_TTL_Expiration(t *testing.T) {
	mr, client := newClient(t)

	store := redis.NewFromClient(client, redis.WithTTL(1*time.Second))
	ctx := context.Background()
	run := newRun("run-ttl", domain.RunRunning)

	require.NoError(t, store.Save(ctx, run))

	runs, err := store.List(ctx, ports.RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)

	mr.FastForward(2 * time.Second)

	_, err = store.Load(ctx, run.ID)
	assert.ErrorIs(t, err, domain.ErrRunNotFound)

	// The index entry outlives the value and is pruned by List.
	runs, err = store.List(ctx, ports.RunFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs)

	members, err := client.ZRange(ctx, "weft:run:index", 0, -1).Result()
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestRedisStore_StatusSets(t *testing.T) {
	_, client := newClient(t)
	store := redis.NewFromClient(client)
	ctx := context.Background()

	run := newRun("run-1", domain.RunRunning)
	require.NoError(t, store.Save(ctx, run))

	run.Finish(domain.RunCompleted, "")
	require.NoError(t, store.Save(ctx, run))

	running, err := client.SMembers(ctx, "weft:run:status:running").Result()
	require.NoError(t, err)
	assert.Empty(t, running)

	runs, err := store.List(ctx, ports.RunFilter{Statuses: []domain.RunStatus{domain.RunCompleted}})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].ID)

	require.NoError(t, store.Delete(ctx, "run-1"))
	completed, err := client.SMembers(ctx, "weft:run:status:completed").Result()
	require.NoError(t, err)
	assert.Empty(t, completed)
}

func TestRedisStore_Prefix(t *testing.T) {
	mr, client := newClient(t)

	store := redis.NewFromClient(client, redis.WithPrefix("custom:app:"))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, newRun("my-run", domain.RunCreated)))

	assert.True(t, mr.Exists("custom:app:my-run"), "Expected key with custom prefix to exist")
	assert.True(t, mr.Exists("custom:app:index"), "Expected index with custom prefix to exist")
	assert.True(t, mr.Exists("custom:app:status:created"))

	runs, err := store.List(ctx, ports.RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "my-run", runs[0].ID)
}
