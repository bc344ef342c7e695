package blackboard

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestBoard creates a Board over an in-memory store with a fresh task.
func setupTestBoard(t *testing.T) (*Board, *MemoryStore) {
	t.Helper()

	store := NewMemoryStore()
	board := NewBoard(store)

	_, err := board.Initialize(context.Background(), "test objective", []string{"constraint one"})
	require.NoError(t, err)

	return board, store
}

func TestBoardInitialize(t *testing.T) {
	store := NewMemoryStore()
	board := NewBoard(store)
	ctx := context.Background()

	state, err := board.Initialize(ctx, "build the thing", []string{"cheaply"})
	require.NoError(t, err)

	assert.Len(t, state.TaskID, 12)
	assert.Equal(t, StatusPlanning, state.Status)
	assert.Equal(t, "build the thing", state.Objective)

	// Initialize persists immediately
	exists, err := store.Exists(ctx, state.TaskID)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestBoardInitialize_EmptyObjective(t *testing.T) {
	board := NewBoard(NewMemoryStore())

	_, err := board.Initialize(context.Background(), "", nil)
	assert.Error(t, err)
}

func TestBoardStateBeforeInitialize(t *testing.T) {
	board := NewBoard(NewMemoryStore())

	_, err := board.State()
	assert.ErrorIs(t, err, ErrNotInitialized)

	err = board.WriteWorkspace(context.Background(), "plan", "x")
	assert.ErrorIs(t, err, ErrNotInitialized)

	err = board.SetStatus(context.Background(), StatusExecuting, "because")
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestBoardResume(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	original := NewBoard(store)
	state, err := original.Initialize(ctx, "resumable objective", nil)
	require.NoError(t, err)
	require.NoError(t, original.WriteWorkspace(ctx, "plan", "step one"))

	resumed := NewBoard(store)
	loaded, err := resumed.Resume(ctx, state.TaskID)
	require.NoError(t, err)

	assert.Equal(t, state.TaskID, loaded.TaskID)
	assert.Equal(t, "resumable objective", loaded.Objective)
	value, ok := resumed.ReadWorkspace("plan")
	require.True(t, ok)
	assert.Equal(t, "step one", value)
}

func TestBoardResume_Missing(t *testing.T) {
	board := NewBoard(NewMemoryStore())

	_, err := board.Resume(context.Background(), "ghost-task")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestBoardSetStatus(t *testing.T) {
	board, store := setupTestBoard(t)
	ctx := context.Background()

	err := board.SetStatus(ctx, StatusExecuting, "First agent invoked: planner")
	require.NoError(t, err)

	state, err := board.State()
	require.NoError(t, err)
	assert.Equal(t, StatusExecuting, state.Status)

	require.Len(t, state.StatusHistory, 1)
	change := state.StatusHistory[0]
	assert.Equal(t, StatusPlanning, change.From)
	assert.Equal(t, StatusExecuting, change.To)
	assert.Equal(t, "First agent invoked: planner", change.Reason)
	assert.False(t, change.Timestamp.IsZero())

	// Transition is persisted write-through
	loaded, err := store.Load(ctx, state.TaskID)
	require.NoError(t, err)
	assert.Equal(t, StatusExecuting, loaded.Status)
	assert.Len(t, loaded.StatusHistory, 1)
}

func TestBoardSetStatus_InvalidTarget(t *testing.T) {
	board, _ := setupTestBoard(t)

	err := board.SetStatus(context.Background(), "RUNNING", "nope")
	assert.Error(t, err)
}

func TestBoardWorkspaceLastWriteWins(t *testing.T) {
	board, _ := setupTestBoard(t)
	ctx := context.Background()

	require.NoError(t, board.WriteWorkspace(ctx, "code", "v1"))
	require.NoError(t, board.WriteWorkspace(ctx, "code", "v2"))
	require.NoError(t, board.WriteWorkspace(ctx, "code", "v3"))

	value, ok := board.ReadWorkspace("code")
	require.True(t, ok)
	assert.Equal(t, "v3", value)
}

func TestBoardDeleteWorkspace(t *testing.T) {
	board, _ := setupTestBoard(t)
	ctx := context.Background()

	require.NoError(t, board.WriteWorkspace(ctx, "scratch", "temporary"))
	require.NoError(t, board.DeleteWorkspace(ctx, "scratch"))

	_, ok := board.ReadWorkspace("scratch")
	assert.False(t, ok, "deleted key must read as absent")

	state, err := board.State()
	require.NoError(t, err)
	assert.Equal(t, TierAbsent, state.Memory.Tier("scratch"))

	// Deleting an absent field is a no-op
	require.NoError(t, board.DeleteWorkspace(ctx, "never-existed"))
}

func TestBoardWriteMarksHot(t *testing.T) {
	board, _ := setupTestBoard(t)
	ctx := context.Background()

	require.NoError(t, board.WriteWorkspace(ctx, "plan", "the plan"))

	state, err := board.State()
	require.NoError(t, err)
	assert.Equal(t, TierHot, state.Memory.Tier("plan"))
}

func TestBoardCompressField(t *testing.T) {
	board, _ := setupTestBoard(t)
	ctx := context.Background()

	require.NoError(t, board.WriteWorkspace(ctx, "research", "a very long research artifact"))
	require.NoError(t, board.CompressField(ctx, "research", "research done, three findings"))

	state, err := board.State()
	require.NoError(t, err)
	assert.Equal(t, TierWarm, state.Memory.Tier("research"))

	// The live value is compressed away; only the summary survives
	_, ok := board.ReadWorkspace("research")
	assert.False(t, ok)
	summary, ok := state.Memory.Summary("research")
	require.True(t, ok)
	assert.Equal(t, "research done, three findings", summary)

	// Re-writing promotes back to hot and drops the summary
	require.NoError(t, board.WriteWorkspace(ctx, "research", "revised artifact"))
	assert.Equal(t, TierHot, state.Memory.Tier("research"))
	_, ok = state.Memory.Summary("research")
	assert.False(t, ok)
}

func TestBoardProposeHypothesis(t *testing.T) {
	board, _ := setupTestBoard(t)
	ctx := context.Background()

	h, err := board.ProposeHypothesis(ctx, "the parser drops trailing commas", "critic")
	require.NoError(t, err)

	assert.Len(t, h.ID, 8)
	assert.Equal(t, HypothesisProposed, h.Status)
	assert.Equal(t, "critic", h.Author)

	state, err := board.State()
	require.NoError(t, err)
	require.Len(t, state.Hypotheses, 1)
	assert.Equal(t, h.ID, state.Hypotheses[0].ID)
}

func TestBoardResolveHypothesis(t *testing.T) {
	board, _ := setupTestBoard(t)
	ctx := context.Background()

	h, err := board.ProposeHypothesis(ctx, "the cache is stale", "critic")
	require.NoError(t, err)

	err = board.ResolveHypothesis(ctx, h.ID, HypothesisValidated, "reproduced with cold cache")
	require.NoError(t, err)

	state, err := board.State()
	require.NoError(t, err)
	assert.Equal(t, HypothesisValidated, state.Hypotheses[0].Status)
	assert.Equal(t, []string{"reproduced with cold cache"}, state.Hypotheses[0].Evidence)
}

func TestBoardResolveHypothesis_NotFound(t *testing.T) {
	board, _ := setupTestBoard(t)
	ctx := context.Background()

	_, err := board.ProposeHypothesis(ctx, "something plausible", "critic")
	require.NoError(t, err)

	err = board.ResolveHypothesis(ctx, "deadbeef", HypothesisRejected, "")
	assert.ErrorIs(t, err, ErrHypothesisNotFound)

	// The thread is never mutated on a failed resolve
	state, err := board.State()
	require.NoError(t, err)
	require.Len(t, state.Hypotheses, 1)
	assert.Equal(t, HypothesisProposed, state.Hypotheses[0].Status)
	assert.Empty(t, state.Hypotheses[0].Evidence)
}

func TestBoardStartConsensus(t *testing.T) {
	board, _ := setupTestBoard(t)
	ctx := context.Background()

	require.NoError(t, board.WriteWorkspace(ctx, "code", "func main() {}"))

	c, err := board.StartConsensus(ctx, "code", 3)
	require.NoError(t, err)

	assert.Equal(t, "code", c.TargetField)
	assert.Equal(t, ConsensusPendingReview, c.Status)
	assert.Equal(t, 0, c.CurrentIteration)
	assert.Equal(t, 3, c.MaxIterations)
}

func TestBoardStartConsensus_MissingField(t *testing.T) {
	board, _ := setupTestBoard(t)

	_, err := board.StartConsensus(context.Background(), "nonexistent", 3)
	assert.ErrorIs(t, err, ErrNoSuchField)
}

func TestBoardStartConsensus_DefaultMaxIterations(t *testing.T) {
	board, _ := setupTestBoard(t)
	ctx := context.Background()

	require.NoError(t, board.WriteWorkspace(ctx, "code", "x"))

	c, err := board.StartConsensus(ctx, "code", 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultConsensusMaxIterations, c.MaxIterations)
}

// TestBoardStartConsensus_SameFieldContinues verifies that a revising writer
// re-entering the cycle does not reset the iteration count.
func TestBoardStartConsensus_SameFieldContinues(t *testing.T) {
	board, _ := setupTestBoard(t)
	ctx := context.Background()

	require.NoError(t, board.WriteWorkspace(ctx, "code", "v1"))
	_, err := board.StartConsensus(ctx, "code", 3)
	require.NoError(t, err)

	_, err = board.SubmitReview(ctx, "critic", VerdictRejected, "needs error handling")
	require.NoError(t, err)

	// Revision re-write and re-start target the existing cycle
	require.NoError(t, board.WriteWorkspace(ctx, "code", "v2"))
	c, err := board.StartConsensus(ctx, "code", 3)
	require.NoError(t, err)

	assert.Equal(t, 1, c.CurrentIteration, "iteration count must survive a revision re-entry")
	assert.Len(t, c.ReviewHistory, 1)
}

func TestBoardStartConsensus_DifferentFieldRejected(t *testing.T) {
	board, _ := setupTestBoard(t)
	ctx := context.Background()

	require.NoError(t, board.WriteWorkspace(ctx, "code", "x"))
	require.NoError(t, board.WriteWorkspace(ctx, "tests", "y"))

	_, err := board.StartConsensus(ctx, "code", 3)
	require.NoError(t, err)

	_, err = board.StartConsensus(ctx, "tests", 3)
	assert.ErrorIs(t, err, ErrConsensusActive)
}

func TestBoardSubmitReview_NoActiveCycle(t *testing.T) {
	board, _ := setupTestBoard(t)

	_, err := board.SubmitReview(context.Background(), "critic", VerdictApproved, "fine")
	assert.ErrorIs(t, err, ErrNoConsensus)
}

func TestBoardSubmitReview_ApprovedFirstTry(t *testing.T) {
	board, _ := setupTestBoard(t)
	ctx := context.Background()

	require.NoError(t, board.WriteWorkspace(ctx, "code", "x"))
	_, err := board.StartConsensus(ctx, "code", 3)
	require.NoError(t, err)

	c, err := board.SubmitReview(ctx, "critic", VerdictApproved, "ship it")
	require.NoError(t, err)

	assert.Equal(t, ConsensusApproved, c.Status)
	assert.Equal(t, 1, c.CurrentIteration)
	assert.False(t, c.Forced)
	assert.Equal(t, OutcomeApprovedFirstTry, c.Outcome())
}

// TestBoardSubmitReview_ForcedAtCap verifies the convergence guarantee:
// N consecutive rejections under max_iterations=N end in forced approval
// after exactly N submissions, never earlier and never in failure.
func TestBoardSubmitReview_ForcedAtCap(t *testing.T) {
	board, _ := setupTestBoard(t)
	ctx := context.Background()

	require.NoError(t, board.WriteWorkspace(ctx, "code", "x"))
	_, err := board.StartConsensus(ctx, "code", 3)
	require.NoError(t, err)

	c, err := board.SubmitReview(ctx, "critic", VerdictRejected, "first pass")
	require.NoError(t, err)
	assert.Equal(t, ConsensusRejected, c.Status)
	assert.Equal(t, 1, c.CurrentIteration)

	c, err = board.SubmitReview(ctx, "critic", VerdictRejected, "second pass")
	require.NoError(t, err)
	assert.Equal(t, ConsensusRejected, c.Status)
	assert.Equal(t, 2, c.CurrentIteration)

	c, err = board.SubmitReview(ctx, "critic", VerdictRejected, "third pass")
	require.NoError(t, err)
	assert.Equal(t, ConsensusApproved, c.Status)
	assert.Equal(t, 3, c.CurrentIteration)
	assert.True(t, c.Forced)
	assert.Equal(t, OutcomeForceApproved, c.Outcome())
}

func TestBoardSubmitReview_ApprovedAfterRevision(t *testing.T) {
	board, _ := setupTestBoard(t)
	ctx := context.Background()

	require.NoError(t, board.WriteWorkspace(ctx, "code", "v1"))
	_, err := board.StartConsensus(ctx, "code", 3)
	require.NoError(t, err)

	_, err = board.SubmitReview(ctx, "critic", VerdictRejected, "not yet")
	require.NoError(t, err)

	require.NoError(t, board.WriteWorkspace(ctx, "code", "v2"))
	c, err := board.SubmitReview(ctx, "critic", VerdictApproved, "better")
	require.NoError(t, err)

	assert.Equal(t, ConsensusApproved, c.Status)
	assert.Equal(t, 2, c.CurrentIteration)
	assert.False(t, c.Forced)
	assert.Equal(t, OutcomeApprovedAfterRevision, c.Outcome())
}

func TestBoardSubmitReview_InvalidVerdict(t *testing.T) {
	board, _ := setupTestBoard(t)
	ctx := context.Background()

	require.NoError(t, board.WriteWorkspace(ctx, "code", "x"))
	_, err := board.StartConsensus(ctx, "code", 3)
	require.NoError(t, err)

	_, err = board.SubmitReview(ctx, "critic", "MAYBE", "unsure")
	assert.Error(t, err)
}

func TestBoardClearConsensus(t *testing.T) {
	board, _ := setupTestBoard(t)
	ctx := context.Background()

	require.NoError(t, board.WriteWorkspace(ctx, "code", "x"))
	_, err := board.StartConsensus(ctx, "code", 3)
	require.NoError(t, err)

	require.NoError(t, board.ClearConsensus(ctx))

	state, err := board.State()
	require.NoError(t, err)
	assert.Nil(t, state.Consensus)

	// Clearing again is a no-op
	require.NoError(t, board.ClearConsensus(ctx))
}

func TestBoardInvocationLog(t *testing.T) {
	board, _ := setupTestBoard(t)
	ctx := context.Background()

	idx, err := board.LogInvocationStart(ctx, "planner")
	require.NoError(t, err)
	assert.Equal(t, 0, idx)

	state, err := board.State()
	require.NoError(t, err)
	require.Len(t, state.Invocations, 1)
	assert.Equal(t, InvocationRunning, state.Invocations[0].Status)
	assert.Nil(t, state.Invocations[0].FinishedAt)

	err = board.LogInvocationEnd(ctx, idx, 120, 45, InvocationSuccess, "")
	require.NoError(t, err)

	rec := state.Invocations[0]
	assert.Equal(t, InvocationSuccess, rec.Status)
	assert.Equal(t, 120, rec.InputTokens)
	assert.Equal(t, 45, rec.OutputTokens)
	assert.NotNil(t, rec.FinishedAt)
}

func TestBoardInvocationLog_Error(t *testing.T) {
	board, _ := setupTestBoard(t)
	ctx := context.Background()

	idx, err := board.LogInvocationStart(ctx, "code_generator")
	require.NoError(t, err)

	err = board.LogInvocationEnd(ctx, idx, 0, 0, InvocationError, "model timeout")
	require.NoError(t, err)

	state, err := board.State()
	require.NoError(t, err)
	assert.Equal(t, InvocationError, state.Invocations[0].Status)
	assert.Equal(t, "model timeout", state.Invocations[0].Error)
}

func TestBoardInvocationLog_InvalidIndex(t *testing.T) {
	board, _ := setupTestBoard(t)

	err := board.LogInvocationEnd(context.Background(), 5, 0, 0, InvocationSuccess, "")
	assert.Error(t, err)
}

func TestBoardSetNotes(t *testing.T) {
	board, store := setupTestBoard(t)
	ctx := context.Background()

	require.NoError(t, board.SetNotes(ctx, "retry the critic after revision"))

	state, err := board.State()
	require.NoError(t, err)
	assert.Equal(t, "retry the critic after revision", state.Notes)

	loaded, err := store.Load(ctx, state.TaskID)
	require.NoError(t, err)
	assert.Equal(t, "retry the critic after revision", loaded.Notes)
}

// TestBoardWriteThrough verifies that every mutation is visible in the
// store without an explicit save call.
func TestBoardWriteThrough(t *testing.T) {
	board, store := setupTestBoard(t)
	ctx := context.Background()

	state, err := board.State()
	require.NoError(t, err)

	require.NoError(t, board.WriteWorkspace(ctx, "plan", "the plan"))
	loaded, err := store.Load(ctx, state.TaskID)
	require.NoError(t, err)
	assert.Equal(t, "the plan", loaded.Workspace["plan"])

	_, err = board.ProposeHypothesis(ctx, "hypothesis", "critic")
	require.NoError(t, err)
	loaded, err = store.Load(ctx, state.TaskID)
	require.NoError(t, err)
	assert.Len(t, loaded.Hypotheses, 1)
}
