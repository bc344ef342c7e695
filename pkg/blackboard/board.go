package blackboard

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultConsensusMaxIterations is the review cap applied when
// StartConsensus is called without an explicit one.
const DefaultConsensusMaxIterations = 3

var (
	// ErrNotInitialized indicates a Board operation before Initialize or Resume.
	ErrNotInitialized = errors.New("blackboard not initialized: call Initialize or Resume first")

	// ErrNoConsensus indicates a review was submitted with no active cycle.
	ErrNoConsensus = errors.New("no active consensus cycle")

	// ErrConsensusActive indicates an attempt to start a cycle while a
	// different field is already under review.
	ErrConsensusActive = errors.New("a consensus cycle is already active")

	// ErrNoSuchField indicates a consensus start on a field absent from
	// the workspace. Reviews need an artifact to review.
	ErrNoSuchField = errors.New("field not present in workspace")

	// ErrHypothesisNotFound indicates a resolve against an unknown hypothesis ID.
	ErrHypothesisNotFound = errors.New("hypothesis not found")
)

// Board is the single mutation surface over a task's state. Every mutating
// operation persists the full state to the store before returning
// (write-through), so the store always holds the latest version.
//
// A Board owns exactly one task at a time and is not safe for concurrent
// use: the conductor loop is strictly serial and the Board inherits that
// assumption.
type Board struct {
	store         Store
	state         *TaskState
	maxIterations int
}

// NewBoard creates a Board over the given store. No task is attached until
// Initialize or Resume is called.
func NewBoard(store Store) *Board {
	return &Board{
		store:         store,
		maxIterations: DefaultConsensusMaxIterations,
	}
}

// SetConsensusMaxIterations overrides the default review cap applied when
// StartConsensus is called with maxIterations <= 0. Values below 1 are ignored.
func (b *Board) SetConsensusMaxIterations(n int) {
	if n > 0 {
		b.maxIterations = n
	}
}

// Initialize creates and persists a fresh task for the given objective.
func (b *Board) Initialize(ctx context.Context, objective string, constraints []string) (*TaskState, error) {
	state := NewTaskState(objective, constraints)
	if err := state.Validate(); err != nil {
		return nil, fmt.Errorf("invalid initial state: %w", err)
	}

	b.state = state
	if err := b.save(ctx); err != nil {
		return nil, err
	}
	return b.state, nil
}

// Resume loads an existing task from the store and attaches it.
// Returns ErrTaskNotFound if the store has no state for the ID.
func (b *Board) Resume(ctx context.Context, taskID string) (*TaskState, error) {
	state, err := b.store.Load(ctx, taskID)
	if err != nil {
		return nil, err
	}

	b.state = state
	return b.state, nil
}

// State returns the attached task state.
// Returns ErrNotInitialized before Initialize or Resume.
func (b *Board) State() (*TaskState, error) {
	if b.state == nil {
		return nil, ErrNotInitialized
	}
	return b.state, nil
}

// SetStatus transitions the task to a new status, recording the transition
// in the status history with the given reason.
func (b *Board) SetStatus(ctx context.Context, to GlobalStatus, reason string) error {
	if err := b.ensure(); err != nil {
		return err
	}

	if err := to.Validate(); err != nil {
		return fmt.Errorf("invalid target status: %w", err)
	}

	b.state.StatusHistory = append(b.state.StatusHistory, StatusChange{
		From:      b.state.Status,
		To:        to,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	})
	b.state.Status = to
	return b.save(ctx)
}

// ReadWorkspace returns the live value of a workspace field.
// The second return is false when the field is absent or the board is
// not initialized.
func (b *Board) ReadWorkspace(field string) (any, bool) {
	if b.state == nil {
		return nil, false
	}
	value, ok := b.state.Workspace[field]
	return value, ok
}

// WriteWorkspace sets a workspace field and promotes it to the hot tier.
// Writing an existing key overwrites it (last-write-wins).
func (b *Board) WriteWorkspace(ctx context.Context, field string, value any) error {
	if err := b.ensure(); err != nil {
		return err
	}

	b.state.Workspace[field] = value
	b.state.Memory.MarkHot(field)
	return b.save(ctx)
}

// DeleteWorkspace removes a workspace field and its tier membership.
// Deleting an absent field is a no-op.
func (b *Board) DeleteWorkspace(ctx context.Context, field string) error {
	if err := b.ensure(); err != nil {
		return err
	}

	delete(b.state.Workspace, field)
	b.state.Memory.Forget(field)
	return b.save(ctx)
}

// ProposeHypothesis appends a new proposed hypothesis to the thread and
// returns it. IDs are 8-character hex, unique within the task.
func (b *Board) ProposeHypothesis(ctx context.Context, content, author string) (Hypothesis, error) {
	if err := b.ensure(); err != nil {
		return Hypothesis{}, err
	}

	h := Hypothesis{
		ID:        newID(8),
		Content:   content,
		Author:    author,
		Status:    HypothesisProposed,
		Evidence:  []string{},
		CreatedAt: time.Now().UTC(),
	}
	b.state.Hypotheses = append(b.state.Hypotheses, h)

	if err := b.save(ctx); err != nil {
		return Hypothesis{}, err
	}
	return h, nil
}

// ResolveHypothesis flips a hypothesis to the given status, appending the
// evidence string when non-empty. Returns ErrHypothesisNotFound if the ID
// is unknown; the thread is never mutated in that case.
func (b *Board) ResolveHypothesis(ctx context.Context, id string, status HypothesisStatus, evidence string) error {
	if err := b.ensure(); err != nil {
		return err
	}

	if err := status.Validate(); err != nil {
		return fmt.Errorf("invalid hypothesis status: %w", err)
	}

	for i := range b.state.Hypotheses {
		if b.state.Hypotheses[i].ID != id {
			continue
		}
		b.state.Hypotheses[i].Status = status
		if evidence != "" {
			b.state.Hypotheses[i].Evidence = append(b.state.Hypotheses[i].Evidence, evidence)
		}
		return b.save(ctx)
	}

	return fmt.Errorf("hypothesis %s: %w", id, ErrHypothesisNotFound)
}

// StartConsensus opens a write-review-revise cycle on a workspace field.
// maxIterations <= 0 applies the board's configured default.
//
// The target field must already exist in the workspace: a review needs an
// artifact to review. If a cycle is already active on the same field and
// not yet approved, the existing cycle is returned unchanged so a revising
// writer re-enters it rather than resetting the iteration count. A cycle
// on a different field returns ErrConsensusActive.
func (b *Board) StartConsensus(ctx context.Context, targetField string, maxIterations int) (*ConsensusState, error) {
	if err := b.ensure(); err != nil {
		return nil, err
	}

	if _, ok := b.state.Workspace[targetField]; !ok {
		return nil, fmt.Errorf("cannot start consensus on %q: %w", targetField, ErrNoSuchField)
	}

	if existing := b.state.Consensus; existing != nil {
		if existing.TargetField == targetField && existing.Status != ConsensusApproved {
			return existing, nil
		}
		return nil, fmt.Errorf("cannot start consensus on %q while %q is under review: %w",
			targetField, existing.TargetField, ErrConsensusActive)
	}

	if maxIterations <= 0 {
		maxIterations = b.maxIterations
	}

	b.state.Consensus = &ConsensusState{
		TargetField:      targetField,
		Status:           ConsensusPendingReview,
		ReviewHistory:    []ReviewRecord{},
		CurrentIteration: 0,
		MaxIterations:    maxIterations,
	}

	if err := b.save(ctx); err != nil {
		return nil, err
	}
	return b.state.Consensus, nil
}

// SubmitReview records a reviewer's verdict on the active cycle and
// advances its state. Returns ErrNoConsensus when no cycle is active.
//
// An APPROVED verdict approves the cycle. A REJECTED verdict on the final
// allowed iteration also approves it, marked as forced: the protocol
// always converges rather than failing a task over review deadlock. Any
// earlier REJECTED leaves the cycle open for a revision.
func (b *Board) SubmitReview(ctx context.Context, reviewer string, verdict Verdict, critique string) (*ConsensusState, error) {
	if err := b.ensure(); err != nil {
		return nil, err
	}

	if b.state.Consensus == nil {
		return nil, ErrNoConsensus
	}

	if err := verdict.Validate(); err != nil {
		return nil, err
	}

	c := b.state.Consensus
	c.ReviewHistory = append(c.ReviewHistory, ReviewRecord{
		Reviewer:  reviewer,
		Verdict:   verdict,
		Critique:  critique,
		Timestamp: time.Now().UTC(),
	})
	c.CurrentIteration++

	switch {
	case verdict == VerdictApproved:
		c.Status = ConsensusApproved
	case c.CurrentIteration >= c.MaxIterations:
		c.Status = ConsensusApproved
		c.Forced = true
	default:
		c.Status = ConsensusRejected
	}

	if err := b.save(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// ClearConsensus drops the active cycle. Called by the conductor after it
// has consumed an approved outcome. Clearing with no active cycle is a no-op.
func (b *Board) ClearConsensus(ctx context.Context) error {
	if err := b.ensure(); err != nil {
		return err
	}

	if b.state.Consensus == nil {
		return nil
	}

	b.state.Consensus = nil
	return b.save(ctx)
}

// LogInvocationStart appends an open invocation record for the named agent
// and returns its index for the matching LogInvocationEnd call.
func (b *Board) LogInvocationStart(ctx context.Context, agentName string) (int, error) {
	if err := b.ensure(); err != nil {
		return 0, err
	}

	b.state.Invocations = append(b.state.Invocations, AgentInvocationRecord{
		AgentName: agentName,
		StartedAt: time.Now().UTC(),
		Status:    InvocationRunning,
	})

	idx := len(b.state.Invocations) - 1
	if err := b.save(ctx); err != nil {
		return 0, err
	}
	return idx, nil
}

// LogInvocationEnd closes the invocation record at idx with its final
// status, token counts and error text. Each record is closed exactly once.
func (b *Board) LogInvocationEnd(ctx context.Context, idx, inputTokens, outputTokens int, status, errText string) error {
	if err := b.ensure(); err != nil {
		return err
	}

	if idx < 0 || idx >= len(b.state.Invocations) {
		return fmt.Errorf("invalid invocation index %d", idx)
	}

	now := time.Now().UTC()
	rec := &b.state.Invocations[idx]
	rec.FinishedAt = &now
	rec.InputTokens = inputTokens
	rec.OutputTokens = outputTokens
	rec.Status = status
	rec.Error = errText
	return b.save(ctx)
}

// SetNotes replaces the conductor's scratch notes.
func (b *Board) SetNotes(ctx context.Context, notes string) error {
	if err := b.ensure(); err != nil {
		return err
	}

	b.state.Notes = notes
	return b.save(ctx)
}

// CompressField demotes a workspace field to the warm tier: the live value
// is dropped and only the given summary survives. Projections substitute
// the summary from then on. Safe to call on an already-compressed field.
func (b *Board) CompressField(ctx context.Context, field, summary string) error {
	if err := b.ensure(); err != nil {
		return err
	}

	delete(b.state.Workspace, field)
	b.state.Memory.Compress(field, summary)
	return b.save(ctx)
}

func (b *Board) ensure() error {
	if b.state == nil {
		return ErrNotInitialized
	}
	return nil
}

func (b *Board) save(ctx context.Context) error {
	b.state.Touch()
	if err := b.store.Save(ctx, b.state); err != nil {
		return fmt.Errorf("failed to persist task %s: %w", b.state.TaskID, err)
	}
	return nil
}
