package checkpoint_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/weft/pkg/adapters/memory"
	redisadapter "github.com/aretw0/weft/pkg/adapters/redis"
	"github.com/aretw0/weft/pkg/checkpoint"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/ports"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var def = &domain.WorkflowDefinition{
	Name:         "checkpoint",
	InitialState: "Start",
	States:       []domain.State{{ID: "Start", Kind: domain.StateStart}, {ID: "End", Kind: domain.StateEnd}},
	Transitions:  []domain.Transition{{From: "Start", To: "End", Condition: domain.Always()}},
}

// slowStore simulates IO latency and counts overlapping writers.
type slowStore struct {
	ports.RunStore
	active  atomic.Int32
	overlap atomic.Bool
}

func (s *slowStore) Save(ctx context.Context, run *domain.Run) error {
	if s.active.Add(1) > 1 {
		s.overlap.Store(true)
	}
	defer s.active.Add(-1)
	time.Sleep(5 * time.Millisecond)
	return s.RunStore.Save(ctx, run)
}

func TestManager_SerializesWriters(t *testing.T) {
	store := &slowStore{RunStore: memory.NewStore()}
	mgr := checkpoint.NewManager(store)
	ctx := context.Background()
	run := domain.NewRun("race", def, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			r := run.Snapshot()
			r.Context["n"] = n
			assert.NoError(t, mgr.Save(ctx, r))
		}(i)
	}
	wg.Wait()
	assert.False(t, store.overlap.Load(), "writes for one run must not overlap")
}

func TestManager_CheckpointDetectsExternalCancel(t *testing.T) {
	store := memory.NewStore()
	mgr := checkpoint.NewManager(store)
	ctx := context.Background()

	run := domain.NewRun("ext", def, nil)
	run.Status = domain.RunRunning
	require.NoError(t, mgr.Checkpoint(ctx, run))

	_, err := mgr.Update(ctx, run.ID, func(r *domain.Run) error {
		r.Finish(domain.RunCancelled, "")
		return nil
	})
	require.NoError(t, err)

	run.CurrentState = "End"
	err = mgr.Checkpoint(ctx, run)
	assert.ErrorIs(t, err, checkpoint.ErrExternallyCancelled)

	stored, err := mgr.Load(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateID("Start"), stored.CurrentState, "refused checkpoint must not be written")

	run.Finish(domain.RunCancelled, "")
	assert.NoError(t, mgr.Checkpoint(ctx, run))
}

func TestManager_UpdateMissing(t *testing.T) {
	mgr := checkpoint.NewManager(memory.NewStore())
	_, err := mgr.Update(context.Background(), "nope", func(*domain.Run) error { return nil })
	assert.ErrorIs(t, err, domain.ErrRunNotFound)
}

func TestManager_DistributedLock(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	locker := redisadapter.NewLocker(client, "test:")
	mgr := checkpoint.NewManager(memory.NewStore(), checkpoint.WithLocker(locker), checkpoint.WithLockTTL(time.Minute))
	ctx := context.Background()

	err := mgr.WithLock(ctx, "dist", func(context.Context) error {
		assert.True(t, mr.Exists("test:lock:dist"), "distributed lock is held inside WithLock")
		return nil
	})
	require.NoError(t, err)
	assert.False(t, mr.Exists("test:lock:dist"), "distributed lock is released afterwards")

	// A second replica holding the lock blocks this one until ctx expires.
	unlock, err := locker.Lock(ctx, "dist", time.Minute)
	require.NoError(t, err)
	defer func() { _ = unlock(ctx) }()

	short, cancel := context.WithTimeout(ctx, 150*time.Millisecond)
	defer cancel()
	err = mgr.Save(short, domain.NewRun("dist", def, nil))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestManager_CheckpointKeepsQueuedSignals(t *testing.T) {
	mgr := checkpoint.NewManager(memory.NewStore())
	ctx := context.Background()

	run := domain.NewRun("sig", def, nil)
	run.Status = domain.RunRunning
	require.NoError(t, mgr.Checkpoint(ctx, run))

	_, err := mgr.Update(ctx, run.ID, func(r *domain.Run) error {
		r.Signals = append(r.Signals, "approved")
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, mgr.Checkpoint(ctx, run))
	assert.Equal(t, []string{"approved"}, run.Signals)

	stored, err := mgr.Load(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"approved"}, stored.Signals)
}
