package resolver

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hebbzhu/baton/pkg/blackboard"
)

// seedTask saves a state with a fixed task ID so prefix behavior is
// deterministic.
func seedTask(t *testing.T, store blackboard.Store, id string) {
	t.Helper()
	state := blackboard.NewTaskState("objective for "+id, nil)
	state.TaskID = id
	require.NoError(t, store.Save(context.Background(), state))
}

func TestResolveTaskID_FullID(t *testing.T) {
	store := blackboard.NewMemoryStore()
	seedTask(t, store, "a1b2c3d4e5f6")

	got, err := ResolveTaskID(context.Background(), store, "a1b2c3d4e5f6")
	require.NoError(t, err)
	assert.Equal(t, "a1b2c3d4e5f6", got)
}

func TestResolveTaskID_FullIDMissing(t *testing.T) {
	store := blackboard.NewMemoryStore()

	_, err := ResolveTaskID(context.Background(), store, "a1b2c3d4e5f6")
	require.Error(t, err)
	assert.True(t, IsNotFoundError(err))
}

func TestResolveTaskID_UniquePrefix(t *testing.T) {
	store := blackboard.NewMemoryStore()
	seedTask(t, store, "a1b2c3d4e5f6")
	seedTask(t, store, "ffeeddccbbaa")

	got, err := ResolveTaskID(context.Background(), store, "a1b2")
	require.NoError(t, err)
	assert.Equal(t, "a1b2c3d4e5f6", got)
}

func TestResolveTaskID_TooShort(t *testing.T) {
	store := blackboard.NewMemoryStore()

	_, err := ResolveTaskID(context.Background(), store, "a1b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 4 characters")
}

func TestResolveTaskID_NoMatch(t *testing.T) {
	store := blackboard.NewMemoryStore()
	seedTask(t, store, "a1b2c3d4e5f6")

	_, err := ResolveTaskID(context.Background(), store, "dead")
	require.Error(t, err)
	assert.True(t, IsNotFoundError(err))
	assert.Contains(t, err.Error(), "no tasks found matching 'dead'")
}

func TestResolveTaskID_Ambiguous(t *testing.T) {
	store := blackboard.NewMemoryStore()
	seedTask(t, store, "a1b2c3d4e5f6")
	seedTask(t, store, "a1b2ffffffff")

	_, err := ResolveTaskID(context.Background(), store, "a1b2")
	require.Error(t, err)
	assert.True(t, IsAmbiguousError(err))

	ambig := err.(*AmbiguousError)
	assert.Len(t, ambig.Matches, 2)
}

func TestFormatAmbiguousError(t *testing.T) {
	err := &AmbiguousError{
		Prefix:  "abcd",
		Matches: []string{"abcd11111111", "abcd22222222"},
	}
	msg := FormatAmbiguousError(err)
	assert.Contains(t, msg, "matches 2 tasks")
	assert.Contains(t, msg, "abcd11111111")
	assert.Contains(t, msg, "abcd22222222")
	assert.Contains(t, msg, "Use a longer prefix")
}

func TestFormatAmbiguousError_CapsListAtTen(t *testing.T) {
	matches := make([]string, 14)
	for i := range matches {
		matches[i] = fmt.Sprintf("abcd%08d", i)
	}
	msg := FormatAmbiguousError(&AmbiguousError{Prefix: "abcd", Matches: matches})

	assert.Contains(t, msg, "...and 4 more")
	assert.Equal(t, 10, strings.Count(msg, "  abcd"))
}

func TestErrorPredicates(t *testing.T) {
	assert.False(t, IsNotFoundError(fmt.Errorf("plain")))
	assert.False(t, IsAmbiguousError(fmt.Errorf("plain")))
	assert.True(t, IsNotFoundError(&NotFoundError{Prefix: "x"}))
	assert.True(t, IsAmbiguousError(&AmbiguousError{Prefix: "x"}))
}
