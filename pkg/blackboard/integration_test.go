//go:build integration

package blackboard

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hebbzhu/baton/internal/testutil"
)

// These tests run the store against a real Redis server in a container.
// Unit tests cover the same paths with miniredis; this guards against
// behavior miniredis does not reproduce, pub/sub delivery in particular.

func TestRedisStoreLifecycleAgainstRealServer(t *testing.T) {
	opts, err := redis.ParseURL(testutil.StartRedis(t))
	require.NoError(t, err)

	ctx := context.Background()

	store, err := NewRedisStore(opts, "itest")
	require.NoError(t, err)
	defer store.Close()

	board := NewBoard(store)
	state, err := board.Initialize(ctx, "Survive a process restart", []string{"constraint one"})
	require.NoError(t, err)

	require.NoError(t, board.WriteWorkspace(ctx, "draft", "v1"))
	_, err = board.ProposeHypothesis(ctx, "the cache is stale", "tester")
	require.NoError(t, err)
	_, err = board.StartConsensus(ctx, "draft", 3)
	require.NoError(t, err)
	_, err = board.SubmitReview(ctx, "critic", VerdictRejected, "needs work")
	require.NoError(t, err)

	// A second connection resumes the persisted task with everything
	// intact, review state included.
	store2, err := NewRedisStore(opts, "itest")
	require.NoError(t, err)
	defer store2.Close()

	resumed, err := NewBoard(store2).Resume(ctx, state.TaskID)
	require.NoError(t, err)
	assert.Equal(t, "Survive a process restart", resumed.Objective)
	assert.Equal(t, "v1", resumed.Workspace["draft"])
	require.Len(t, resumed.Hypotheses, 1)
	require.NotNil(t, resumed.Consensus)
	assert.Equal(t, ConsensusRejected, resumed.Consensus.Status)
	assert.Equal(t, 1, resumed.Consensus.CurrentIteration)

	ids, err := store2.ListTasks(ctx)
	require.NoError(t, err)
	assert.Contains(t, ids, state.TaskID)
}

func TestRedisStorePublishesEventsAgainstRealServer(t *testing.T) {
	opts, err := redis.ParseURL(testutil.StartRedis(t))
	require.NoError(t, err)

	ctx := context.Background()

	store, err := NewRedisStore(opts, "itest")
	require.NoError(t, err)
	defer store.Close()

	sub, err := store.Subscribe(ctx)
	require.NoError(t, err)
	defer sub.Close()

	// Give the subscriber a moment to attach before publishing.
	time.Sleep(200 * time.Millisecond)

	board := NewBoard(store)
	state, err := board.Initialize(ctx, "Emit events", nil)
	require.NoError(t, err)

	select {
	case event := <-sub.Events():
		require.NotNil(t, event)
		assert.Equal(t, state.TaskID, event.TaskID)
		assert.Equal(t, StatusPlanning, event.Status)
	case err := <-sub.Errors():
		t.Fatalf("subscription error: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("no task event within 5s")
	}

	require.NoError(t, board.SetStatus(ctx, StatusCompleted, "done"))

	select {
	case event := <-sub.Events():
		assert.Equal(t, StatusCompleted, event.Status)
	case <-time.After(5 * time.Second):
		t.Fatal("no status event within 5s")
	}
}
