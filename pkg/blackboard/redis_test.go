package blackboard

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestStore creates a RedisStore backed by an in-process miniredis.
func setupTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.NewMiniRedis()
	err := mr.Start()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	store, err := NewRedisStore(&redis.Options{Addr: mr.Addr()}, "test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store, mr
}

func TestNewRedisStore(t *testing.T) {
	t.Run("valid namespace", func(t *testing.T) {
		store, err := NewRedisStore(&redis.Options{Addr: "localhost:6379"}, "default")
		require.NoError(t, err)
		assert.NotNil(t, store)
		_ = store.Close()
	})

	t.Run("empty namespace", func(t *testing.T) {
		_, err := NewRedisStore(&redis.Options{Addr: "localhost:6379"}, "")
		assert.Error(t, err)
	})
}

func TestRedisStorePing(t *testing.T) {
	store, mr := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Ping(ctx))

	mr.Close()
	assert.Error(t, store.Ping(ctx))
}

func TestRedisStoreSaveLoad(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	state := NewTaskState("Analyze the dataset", []string{"stay under budget"})
	state.Workspace["plan"] = "1. load 2. clean 3. chart"
	state.Memory.MarkHot("plan")
	state.Invocations = append(state.Invocations, AgentInvocationRecord{
		AgentName: "planner",
		StartedAt: time.Now().UTC(),
		Status:    InvocationRunning,
	})

	err := store.Save(ctx, state)
	require.NoError(t, err)

	loaded, err := store.Load(ctx, state.TaskID)
	require.NoError(t, err)

	assert.Equal(t, state.TaskID, loaded.TaskID)
	assert.Equal(t, state.Objective, loaded.Objective)
	assert.Equal(t, state.Workspace, loaded.Workspace)
	assert.Equal(t, state.Memory.Hot, loaded.Memory.Hot)
	require.Len(t, loaded.Invocations, 1)
	assert.Equal(t, "planner", loaded.Invocations[0].AgentName)
}

func TestRedisStoreLoadMissing(t *testing.T) {
	store, _ := setupTestStore(t)

	_, err := store.Load(context.Background(), "does-not-exist")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestRedisStoreExists(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	exists, err := store.Exists(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, exists)

	state := NewTaskState("objective", nil)
	require.NoError(t, store.Save(ctx, state))

	exists, err = store.Exists(ctx, state.TaskID)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestRedisStoreListTasks(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	a := NewTaskState("first", nil)
	b := NewTaskState("second", nil)
	require.NoError(t, store.Save(ctx, a))
	require.NoError(t, store.Save(ctx, b))

	ids, err := store.ListTasks(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 2)
	assert.Contains(t, ids, a.TaskID)
	assert.Contains(t, ids, b.TaskID)
}

func TestRedisStoreSubscribe(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	t.Run("receives events on save", func(t *testing.T) {
		sub, err := store.Subscribe(ctx)
		require.NoError(t, err)
		defer sub.Close()

		state := NewTaskState("watched objective", nil)
		require.NoError(t, store.Save(ctx, state))

		select {
		case event := <-sub.Events():
			assert.Equal(t, state.TaskID, event.TaskID)
			assert.Equal(t, StatusPlanning, event.Status)
		case <-time.After(1 * time.Second):
			t.Fatal("timeout waiting for task event")
		}
	})

	t.Run("close is idempotent", func(t *testing.T) {
		sub, err := store.Subscribe(ctx)
		require.NoError(t, err)

		require.NoError(t, sub.Close())
		require.NoError(t, sub.Close())
	})
}

// TestRedisStoreNamespacing verifies that stores with different namespaces
// do not see each other's tasks on a shared Redis server.
func TestRedisStoreNamespacing(t *testing.T) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	prod, err := NewRedisStore(&redis.Options{Addr: mr.Addr()}, "prod")
	require.NoError(t, err)
	t.Cleanup(func() { _ = prod.Close() })

	staging, err := NewRedisStore(&redis.Options{Addr: mr.Addr()}, "staging")
	require.NoError(t, err)
	t.Cleanup(func() { _ = staging.Close() })

	ctx := context.Background()
	state := NewTaskState("prod-only task", nil)
	require.NoError(t, prod.Save(ctx, state))

	exists, err := staging.Exists(ctx, state.TaskID)
	require.NoError(t, err)
	assert.False(t, exists)

	ids, err := staging.ListTasks(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}
