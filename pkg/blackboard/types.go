// Package blackboard provides type-safe Go definitions and persistence
// contracts for the Baton blackboard architecture. The blackboard is the
// single shared task state that the conductor and all specialist agents
// read and write; no component talks to another except through it.
package blackboard

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GlobalStatus is the lifecycle state of a task.
// COMPLETED and FAILED are terminal; the conductor loop stops on either.
type GlobalStatus string

const (
	// StatusPlanning is the initial state: no agent has been invoked yet.
	StatusPlanning GlobalStatus = "PLANNING"

	// StatusExecuting indicates at least one agent invocation has occurred.
	StatusExecuting GlobalStatus = "EXECUTING"

	// StatusRefining indicates the task is iterating on existing artifacts.
	StatusRefining GlobalStatus = "REFINING"

	// StatusVerifying indicates the task is checking produced artifacts.
	StatusVerifying GlobalStatus = "VERIFYING"

	// StatusWaitingUser indicates the task is blocked on external input.
	// The conductor never exits this state on its own.
	StatusWaitingUser GlobalStatus = "WAITING_USER"

	// StatusCompleted is the terminal success state.
	StatusCompleted GlobalStatus = "COMPLETED"

	// StatusFailed is the terminal failure state.
	StatusFailed GlobalStatus = "FAILED"
)

// Validate checks if the GlobalStatus is a valid enum value.
func (s GlobalStatus) Validate() error {
	switch s {
	case StatusPlanning, StatusExecuting, StatusRefining, StatusVerifying,
		StatusWaitingUser, StatusCompleted, StatusFailed:
		return nil
	default:
		return fmt.Errorf("unknown global status: %q", s)
	}
}

// Terminal reports whether the status ends the conductor loop.
func (s GlobalStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// StatusChange is one entry in a task's append-only status history.
type StatusChange struct {
	From      GlobalStatus `json:"from"`      // Status before the transition
	To        GlobalStatus `json:"to"`        // Status after the transition
	Reason    string       `json:"reason"`    // Human-readable cause, recorded verbatim
	Timestamp time.Time    `json:"timestamp"` // When the transition occurred
}

// HypothesisStatus is the lifecycle state of a hypothesis on the thread.
type HypothesisStatus string

const (
	// HypothesisProposed is the initial state of every hypothesis.
	HypothesisProposed HypothesisStatus = "proposed"

	// HypothesisValidated indicates the hypothesis was confirmed.
	HypothesisValidated HypothesisStatus = "validated"

	// HypothesisRejected indicates the hypothesis was ruled out.
	HypothesisRejected HypothesisStatus = "rejected"
)

// Validate checks if the HypothesisStatus is a valid enum value.
func (hs HypothesisStatus) Validate() error {
	switch hs {
	case HypothesisProposed, HypothesisValidated, HypothesisRejected:
		return nil
	default:
		return fmt.Errorf("unknown hypothesis status: %q", hs)
	}
}

// Hypothesis is one entry in a task's append-only hypothesis thread.
// Entries are never removed; resolution flips status and appends evidence.
type Hypothesis struct {
	ID        string           `json:"id"`         // Short hex identifier, unique within the task
	Content   string           `json:"content"`    // The hypothesis text
	Author    string           `json:"author"`     // Agent name that proposed it
	Status    HypothesisStatus `json:"status"`     // proposed, validated, or rejected
	Evidence  []string         `json:"evidence"`   // Accumulated evidence strings, append-only
	CreatedAt time.Time        `json:"created_at"` // When the hypothesis was proposed
}

// Validate checks if the Hypothesis has valid field values.
func (h *Hypothesis) Validate() error {
	if h.ID == "" {
		return fmt.Errorf("hypothesis ID cannot be empty")
	}

	if h.Content == "" {
		return fmt.Errorf("hypothesis content cannot be empty")
	}

	if err := h.Status.Validate(); err != nil {
		return fmt.Errorf("invalid hypothesis status: %w", err)
	}

	return nil
}

// Verdict is a reviewer's judgement on the artifact under consensus.
type Verdict string

const (
	// VerdictApproved accepts the artifact as-is.
	VerdictApproved Verdict = "APPROVED"

	// VerdictRejected requests a revision.
	VerdictRejected Verdict = "REJECTED"
)

// Validate checks if the Verdict is a valid enum value.
func (v Verdict) Validate() error {
	switch v {
	case VerdictApproved, VerdictRejected:
		return nil
	default:
		return fmt.Errorf("unknown verdict: %q", v)
	}
}

// ReviewRecord is one review within a consensus cycle.
type ReviewRecord struct {
	Reviewer  string    `json:"reviewer"`  // Agent name that submitted the review
	Verdict   Verdict   `json:"verdict"`   // APPROVED or REJECTED
	Critique  string    `json:"critique"`  // Free-text feedback for the producing agent
	Timestamp time.Time `json:"timestamp"` // When the review was submitted
}

// ConsensusStatus is the lifecycle state of a consensus cycle.
type ConsensusStatus string

const (
	// ConsensusPendingReview indicates the artifact awaits its next review.
	ConsensusPendingReview ConsensusStatus = "pending_review"

	// ConsensusInReview indicates a reviewer is currently examining the artifact.
	ConsensusInReview ConsensusStatus = "in_review"

	// ConsensusApproved is the terminal state of every cycle.
	ConsensusApproved ConsensusStatus = "approved"

	// ConsensusRejected indicates the last review requested a revision.
	ConsensusRejected ConsensusStatus = "rejected"
)

// Validate checks if the ConsensusStatus is a valid enum value.
func (cs ConsensusStatus) Validate() error {
	switch cs {
	case ConsensusPendingReview, ConsensusInReview, ConsensusApproved, ConsensusRejected:
		return nil
	default:
		return fmt.Errorf("unknown consensus status: %q", cs)
	}
}

// ConsensusOutcome classifies how a consensus cycle reached approval.
type ConsensusOutcome string

const (
	// OutcomeApprovedFirstTry means the first review approved the artifact.
	OutcomeApprovedFirstTry ConsensusOutcome = "approved_first_try"

	// OutcomeApprovedAfterRevision means a later review approved it before
	// the iteration cap was reached.
	OutcomeApprovedAfterRevision ConsensusOutcome = "approved_after_revision"

	// OutcomeForceApproved means the iteration cap forced approval despite
	// a rejecting final review.
	OutcomeForceApproved ConsensusOutcome = "force_approved"
)

// ConsensusState is the single active write-review-revise cycle on a task.
// At most one exists at a time; its presence acts as a soft lock declaring
// which workspace field is under review.
type ConsensusState struct {
	TargetField      string          `json:"target_field"`      // Workspace field under review
	Status           ConsensusStatus `json:"status"`            // Current cycle state
	ReviewHistory    []ReviewRecord  `json:"review_history"`    // All reviews submitted this cycle, in order
	CurrentIteration int             `json:"current_iteration"` // Number of reviews submitted so far
	MaxIterations    int             `json:"max_iterations"`    // Cap after which approval is forced
	Forced           bool            `json:"forced"`            // True when approval came from hitting the cap
}

// Validate checks if the ConsensusState has valid field values.
func (c *ConsensusState) Validate() error {
	if c.TargetField == "" {
		return fmt.Errorf("consensus target field cannot be empty")
	}

	if err := c.Status.Validate(); err != nil {
		return fmt.Errorf("invalid consensus status: %w", err)
	}

	if c.MaxIterations < 1 {
		return fmt.Errorf("invalid max iterations: must be >= 1, got %d", c.MaxIterations)
	}

	if c.CurrentIteration < 0 {
		return fmt.Errorf("invalid current iteration: must be >= 0, got %d", c.CurrentIteration)
	}

	return nil
}

// LastReview returns the most recent review record, or nil if none exist.
func (c *ConsensusState) LastReview() *ReviewRecord {
	if len(c.ReviewHistory) == 0 {
		return nil
	}
	return &c.ReviewHistory[len(c.ReviewHistory)-1]
}

// Outcome classifies an approved cycle. Only meaningful once Status is
// ConsensusApproved; a genuine approval on the final allowed iteration is
// still approved_after_revision, not force_approved.
func (c *ConsensusState) Outcome() ConsensusOutcome {
	switch {
	case c.Forced:
		return OutcomeForceApproved
	case c.CurrentIteration <= 1:
		return OutcomeApprovedFirstTry
	default:
		return OutcomeApprovedAfterRevision
	}
}

// MemoryTier identifies where a workspace field currently lives.
// Every field is in exactly one tier: hot, warm, or absent.
type MemoryTier string

const (
	// TierHot means the live value is current and shown to the conductor.
	TierHot MemoryTier = "hot"

	// TierWarm means the field has been compressed to a short summary.
	TierWarm MemoryTier = "warm"

	// TierAbsent means the field is tracked by neither tier.
	TierAbsent MemoryTier = "absent"
)

// Memory is the hot/warm tiering record for a task's workspace.
// Hot ordering reflects recency of write: the most recently written field
// is last. A field is never in both tiers at once; MarkHot, Compress and
// Forget maintain that exclusion.
type Memory struct {
	Hot     []string          `json:"hot"`                // Field names with live values, oldest first
	Warm    map[string]string `json:"warm"`               // Field name to summary for compressed fields
	ColdRef string            `json:"cold_ref,omitempty"` // External archive pointer, unused by core logic
}

// NewMemory returns an empty tiering record with initialized collections.
func NewMemory() Memory {
	return Memory{
		Hot:  []string{},
		Warm: map[string]string{},
	}
}

// Tier reports which tier the named field is in.
func (m *Memory) Tier(field string) MemoryTier {
	for _, f := range m.Hot {
		if f == field {
			return TierHot
		}
	}
	if _, ok := m.Warm[field]; ok {
		return TierWarm
	}
	return TierAbsent
}

// Summary returns the warm summary for a field, if it has one.
func (m *Memory) Summary(field string) (string, bool) {
	s, ok := m.Warm[field]
	return s, ok
}

// MarkHot promotes a field to the hot tier, dropping any warm summary.
// Re-marking an already-hot field moves it to the most-recent position.
func (m *Memory) MarkHot(field string) {
	m.remove(field)
	m.Hot = append(m.Hot, field)
}

// Compress demotes a field to the warm tier with the given summary,
// removing it from hot. Safe to call on an already-compressed field.
func (m *Memory) Compress(field, summary string) {
	m.remove(field)
	if m.Warm == nil {
		m.Warm = map[string]string{}
	}
	m.Warm[field] = summary
}

// Forget removes a field from both tiers.
func (m *Memory) Forget(field string) {
	m.remove(field)
}

func (m *Memory) remove(field string) {
	for i, f := range m.Hot {
		if f == field {
			m.Hot = append(m.Hot[:i], m.Hot[i+1:]...)
			break
		}
	}
	delete(m.Warm, field)
}

// Invocation status values recorded in a task's invocation log.
const (
	// InvocationRunning marks the single open record awaiting completion.
	InvocationRunning = "running"

	// InvocationSuccess marks a completed invocation that returned normally.
	InvocationSuccess = "success"

	// InvocationError marks a completed invocation that returned an error.
	InvocationError = "error"
)

// AgentInvocationRecord is one entry in a task's append-only invocation log.
// Only the open record being closed is ever mutated: FinishedAt, tokens,
// Status and Error are set exactly once at completion.
type AgentInvocationRecord struct {
	AgentName    string     `json:"agent_name"`            // Name of the invoked agent
	StartedAt    time.Time  `json:"started_at"`            // When execution began
	FinishedAt   *time.Time `json:"finished_at,omitempty"` // Nil while the invocation is open
	InputTokens  int        `json:"input_tokens"`          // Tokens consumed, 0 when unreported
	OutputTokens int        `json:"output_tokens"`         // Tokens produced, 0 when unreported
	Status       string     `json:"status"`                // running, success, or error
	Error        string     `json:"error,omitempty"`       // Error text when status is error
}

// TaskState is the root aggregate: the complete blackboard for one task.
// It is created once per run, mutated only through the Board, and persisted
// write-through after every mutation.
type TaskState struct {
	TaskID        string                  `json:"task_id"`                   // Opaque unique identifier, immutable
	Objective     string                  `json:"objective"`                 // Free-text goal, immutable after creation
	Constraints   []string                `json:"constraints"`               // Textual constraints, fixed at initialization
	Status        GlobalStatus            `json:"status"`                    // Current lifecycle state
	StatusHistory []StatusChange          `json:"status_history"`            // Append-only transition log
	Workspace     map[string]any          `json:"workspace"`                 // Field name to artifact value, last-write-wins
	Hypotheses    []Hypothesis            `json:"hypothesis_thread"`         // Append-only hypothesis thread
	Consensus     *ConsensusState         `json:"consensus,omitempty"`       // At most one active cycle
	Memory        Memory                  `json:"memory"`                    // Hot/warm tiering record
	Invocations   []AgentInvocationRecord `json:"invocation_log"`            // Append-only agent call log
	Notes         string                  `json:"conductor_notes,omitempty"` // Scheduler scratch field
	CreatedAt     time.Time               `json:"created_at"`
	UpdatedAt     time.Time               `json:"updated_at"` // Bumped on every mutation
}

// NewTaskState creates a fresh task in StatusPlanning with a generated
// 12-character hex task ID and initialized collections.
func NewTaskState(objective string, constraints []string) *TaskState {
	now := time.Now().UTC()
	if constraints == nil {
		constraints = []string{}
	}
	return &TaskState{
		TaskID:        newID(12),
		Objective:     objective,
		Constraints:   constraints,
		Status:        StatusPlanning,
		StatusHistory: []StatusChange{},
		Workspace:     map[string]any{},
		Hypotheses:    []Hypothesis{},
		Memory:        NewMemory(),
		Invocations:   []AgentInvocationRecord{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Touch bumps the updated_at timestamp. Called by every Board mutation.
func (t *TaskState) Touch() {
	t.UpdatedAt = time.Now().UTC()
}

// Validate checks if the TaskState has valid field values.
func (t *TaskState) Validate() error {
	if t.TaskID == "" {
		return fmt.Errorf("task ID cannot be empty")
	}

	if t.Objective == "" {
		return fmt.Errorf("objective cannot be empty")
	}

	if err := t.Status.Validate(); err != nil {
		return fmt.Errorf("invalid status: %w", err)
	}

	if t.Consensus != nil {
		if err := t.Consensus.Validate(); err != nil {
			return fmt.Errorf("invalid consensus: %w", err)
		}
	}

	for i := range t.Hypotheses {
		if err := t.Hypotheses[i].Validate(); err != nil {
			return fmt.Errorf("invalid hypothesis at index %d: %w", i, err)
		}
	}

	return nil
}

// newID returns the first n characters of a random UUID's hex encoding.
// Task IDs use 12 characters, hypothesis IDs 8.
func newID(n int) string {
	u := uuid.New()
	return hex.EncodeToString(u[:])[:n]
}
