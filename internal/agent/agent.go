// Package agent defines the specialist agent contract and the registry the
// conductor schedules from. An agent receives a bounded context slice, does
// its work through the board, and reports a result.
package agent

import (
	"context"

	"github.com/hebbzhu/baton/internal/memory"
	"github.com/hebbzhu/baton/pkg/blackboard"
)

// Result reports the outcome of one agent execution.
type Result struct {
	Status       string // "ok" unless the agent declined to act
	Verdict      string // reviewer verdict when the agent took part in a consensus cycle
	InputTokens  int    // Tokens consumed by the agent's completions, 0 when none
	OutputTokens int
}

// Capability is a specialist agent the conductor can invoke. Name and
// Description feed the conductor's routing prompt; InputFields and
// OutputFields advertise which workspace fields the agent reads and writes.
type Capability interface {
	Name() string
	Description() string
	InputFields() []string
	OutputFields() []string
	Execute(ctx context.Context, slice *memory.Slice, board *blackboard.Board) (Result, error)
}

// ExecuteFunc is the bare function form of an agent body.
type ExecuteFunc func(ctx context.Context, slice *memory.Slice, board *blackboard.Board) (Result, error)

type funcCapability struct {
	name        string
	description string
	inputs      []string
	outputs     []string
	execute     ExecuteFunc
}

// Func wraps a function into a Capability. inputFields and outputFields are
// advisory metadata for the conductor, not an enforced contract.
func Func(name, description string, inputFields, outputFields []string, fn ExecuteFunc) Capability {
	return &funcCapability{
		name:        name,
		description: description,
		inputs:      inputFields,
		outputs:     outputFields,
		execute:     fn,
	}
}

func (f *funcCapability) Name() string           { return f.name }
func (f *funcCapability) Description() string    { return f.description }
func (f *funcCapability) InputFields() []string  { return f.inputs }
func (f *funcCapability) OutputFields() []string { return f.outputs }

func (f *funcCapability) Execute(ctx context.Context, slice *memory.Slice, board *blackboard.Board) (Result, error) {
	return f.execute(ctx, slice, board)
}
