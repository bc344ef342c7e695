// Package conductor implements the central scheduler: a sense-think-act
// loop that reads the dashboard projection, asks a lightweight model for a
// routing decision, and dispatches to specialist agents until the task
// reaches a terminal status or the step budget runs out. The conductor
// never performs domain work itself.
package conductor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hebbzhu/baton/internal/agent"
	"github.com/hebbzhu/baton/internal/llm"
	"github.com/hebbzhu/baton/internal/memory"
	"github.com/hebbzhu/baton/internal/observability"
	"github.com/hebbzhu/baton/pkg/blackboard"
)

// DefaultMaxSteps bounds the loop when no override is configured.
const DefaultMaxSteps = 50

// repeatOverrideThreshold is the consecutive-invocation count at which the
// loop stops consulting the decision model and forces completion.
const repeatOverrideThreshold = 3

const systemPromptTemplate = `You are the Conductor of a multi-agent collaboration system.

Your role is to observe the current state of the shared blackboard and decide the NEXT action to take.
You NEVER perform domain work yourself. You only route tasks to specialist agents.

## Available Agents
%s

## Decision Rules
1. If the task has just started (status=PLANNING), decide which agent should begin the work.
2. If an agent has produced output and consensus review is needed, invoke the critic agent.
3. If consensus was REJECTED, re-invoke the original agent with the critique.
4. If consensus was APPROVED, decide the next step or mark the task as complete.
5. If all work is done and verified, set status to COMPLETED.
6. If an unrecoverable error occurs, set status to FAILED.

## Response Format
You MUST respond with a valid JSON object (no markdown, no explanation):
{
  "action": "invoke_agent" | "update_status" | "complete" | "fail",
  "agent_name": "<name of agent to invoke, or null>",
  "relevant_fields": ["<workspace fields the agent needs>"],
  "include_consensus": true | false,
  "reason": "<brief explanation of your decision>"
}`

// Options tunes a conductor. Zero values take defaults; Metrics and
// Recorder may be nil to disable collection.
type Options struct {
	MaxSteps int
	Metrics  *observability.Collector
	Recorder *observability.Recorder
}

// Conductor owns one task's scheduling loop. Not safe for concurrent use;
// each task run gets its own instance.
type Conductor struct {
	board     *blackboard.Board
	client    llm.Client
	projector *memory.Projector
	registry  *agent.Registry
	metrics   *observability.Collector
	recorder  *observability.Recorder
	maxSteps  int

	stepCount int

	// Repetition guard state, scoped to this instance.
	lastAgent   string
	repeatCount int
}

// New creates a conductor over the given board, decision client, projector,
// and agent registry.
func New(board *blackboard.Board, client llm.Client, projector *memory.Projector, registry *agent.Registry, opts Options) *Conductor {
	maxSteps := opts.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	return &Conductor{
		board:     board,
		client:    client,
		projector: projector,
		registry:  registry,
		metrics:   opts.Metrics,
		recorder:  opts.Recorder,
		maxSteps:  maxSteps,
	}
}

// StepCount reports how many scheduling steps have run. Terminal-status
// detection does not consume a step.
func (c *Conductor) StepCount() int {
	return c.stepCount
}

// Run executes the loop until the task reaches a terminal status or the
// step budget is exhausted, and returns the final status. Model and agent
// failures degrade in-band; only store errors propagate.
func (c *Conductor) Run(ctx context.Context) (blackboard.GlobalStatus, error) {
	slog.Info("conductor loop started", "max_steps", c.maxSteps)

	for {
		state, err := c.board.State()
		if err != nil {
			return "", err
		}
		if state.Status.Terminal() {
			slog.Info("task reached terminal status", "status", state.Status)
			return state.Status, nil
		}

		if c.stepCount >= c.maxSteps {
			slog.Warn("conductor loop exceeded max steps", "max_steps", c.maxSteps)
			if err := c.setStatus(ctx, blackboard.StatusFailed, "Max conductor steps exceeded"); err != nil {
				return "", err
			}
			return blackboard.StatusFailed, nil
		}

		c.stepCount++
		if c.recorder != nil {
			c.recorder.SetStep(c.stepCount)
		}

		// Hard safety valve: a third consecutive route to the same agent
		// ends the task without consulting the decision model again.
		if c.repeatCount >= repeatOverrideThreshold {
			reason := fmt.Sprintf("loop detected: agent %s invoked %d times consecutively", c.lastAgent, c.repeatCount)
			slog.Warn("forcing completion", "reason", reason)
			if err := c.setStatus(ctx, blackboard.StatusCompleted, reason); err != nil {
				return "", err
			}
			continue
		}

		dashboard, err := c.projector.Dashboard()
		if err != nil {
			return "", err
		}
		slog.Info("conductor step", "step", c.stepCount)
		slog.Debug("dashboard", "view", dashboard)
		if c.recorder != nil {
			c.recorder.RecordConductorThink(dashboard)
		}

		decision, latency, usage := c.think(ctx, state, dashboard)
		slog.Info("conductor decision",
			"action", decision.Action, "agent", decision.AgentName, "reason", decision.Reason)
		if c.recorder != nil {
			c.recorder.RecordConductorDecide(string(decision.Action), decision.AgentName, decision.Reason)
		}
		if c.metrics != nil {
			c.metrics.RecordConductorStep(string(decision.Action), decision.AgentName, latency, usage.InputTokens, usage.OutputTokens)
		}

		if err := c.act(ctx, decision); err != nil {
			return "", err
		}
	}
}

// think asks the decision model for the next action. Any model or parse
// failure degrades to a fail decision carrying the error, never a crash.
func (c *Conductor) think(ctx context.Context, state *blackboard.TaskState, dashboard string) (*Decision, time.Duration, llm.Usage) {
	prompt := fmt.Sprintf("Current blackboard state:\n\n%s", dashboard)
	if hints := c.hints(state); hints != "" {
		prompt += fmt.Sprintf("\n\n## Hints\n%s", hints)
	}
	prompt += "\n\nWhat should be the next action?"

	start := time.Now()
	resp, err := c.client.Complete(ctx, llm.Request{
		System:      fmt.Sprintf(systemPromptTemplate, c.registry.DescribeAll()),
		Prompt:      prompt,
		MaxTokens:   300,
		Temperature: 0.1,
	})
	latency := time.Since(start)
	if err != nil {
		slog.Error("conductor think step failed", "error", err)
		return &Decision{Action: ActionFail, Reason: fmt.Sprintf("Conductor error: %v", err)}, latency, llm.Usage{}
	}

	usage := llm.Usage{InputTokens: resp.InputTokens, OutputTokens: resp.OutputTokens}
	decision, err := ParseDecision(resp.Text)
	if err != nil {
		slog.Error("conductor decision unparseable", "error", err)
		return &Decision{Action: ActionFail, Reason: fmt.Sprintf("Conductor error: %v", err)}, latency, usage
	}
	return decision, latency, usage
}

// hints compensates for decision-model unreliability with programmatic
// guidance derived from the actual state.
func (c *Conductor) hints(state *blackboard.TaskState) string {
	var hints []string

	if plan, ok := state.Workspace["plan"]; ok {
		hint := "- A plan already exists. Do not invoke the planner again."
		if step, found := nextPlanStep(plan, state); found {
			hint += fmt.Sprintf(" The next unfinished plan step is %q, which should produce the %q workspace field.",
				step.title, step.outputField)
		}
		hints = append(hints, hint)
	}

	if state.Consensus == nil {
		hints = append(hints, "- No consensus cycle is active. Do not invoke the critic agent until an artifact is awaiting review.")
	}

	if c.repeatCount >= 2 {
		hints = append(hints, fmt.Sprintf("- Warning: agent %q has been invoked %d times in a row. Choose a different action or complete the task.",
			c.lastAgent, c.repeatCount))
	}

	return strings.Join(hints, "\n")
}

type planStep struct {
	title       string
	outputField string
}

// nextPlanStep finds the first plan step whose declared output field is in
// neither the workspace nor the warm tier.
func nextPlanStep(plan any, state *blackboard.TaskState) (planStep, bool) {
	m, ok := plan.(map[string]any)
	if !ok {
		return planStep{}, false
	}
	steps, ok := m["steps"].([]any)
	if !ok {
		return planStep{}, false
	}

	for _, raw := range steps {
		step, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		outputField, _ := step["output_field"].(string)
		if outputField == "" {
			continue
		}
		if _, live := state.Workspace[outputField]; live {
			continue
		}
		if _, warm := state.Memory.Summary(outputField); warm {
			continue
		}
		title, _ := step["title"].(string)
		return planStep{title: title, outputField: outputField}, true
	}
	return planStep{}, false
}

func (c *Conductor) act(ctx context.Context, d *Decision) error {
	switch d.Action {
	case ActionInvokeAgent:
		return c.invokeAgent(ctx, d)

	case ActionUpdateStatus:
		if d.StatusUpdate == "" {
			slog.Warn("update_status decision carries no status_update")
			return nil
		}
		status := blackboard.GlobalStatus(strings.ToUpper(d.StatusUpdate))
		if err := status.Validate(); err != nil {
			slog.Warn("update_status decision has invalid status", "status", d.StatusUpdate)
			return nil
		}
		return c.setStatus(ctx, status, d.Reason)

	case ActionComplete:
		return c.setStatus(ctx, blackboard.StatusCompleted, d.Reason)

	case ActionFail:
		return c.setStatus(ctx, blackboard.StatusFailed, d.Reason)

	default:
		slog.Warn("unknown conductor action", "action", d.Action)
		return nil
	}
}

func (c *Conductor) invokeAgent(ctx context.Context, d *Decision) error {
	if d.AgentName == "" {
		c.recordError("conductor", "invoke_agent decision has no agent_name")
		return nil
	}

	capability, ok := c.registry.Get(d.AgentName)
	if !ok {
		c.recordError("conductor", fmt.Sprintf("agent %q not found in registry", d.AgentName))
		return nil
	}

	if d.AgentName == c.lastAgent {
		c.repeatCount++
	} else {
		c.lastAgent = d.AgentName
		c.repeatCount = 1
	}

	slice, err := c.projector.Slice(d.RelevantFields, true, d.IncludeConsensus)
	if err != nil {
		return err
	}

	idx, err := c.board.LogInvocationStart(ctx, d.AgentName)
	if err != nil {
		return err
	}
	if c.recorder != nil {
		c.recorder.RecordAgentStart(d.AgentName, d.RelevantFields)
	}

	state, err := c.board.State()
	if err != nil {
		return err
	}
	if state.Status == blackboard.StatusPlanning {
		if err := c.setStatus(ctx, blackboard.StatusExecuting, fmt.Sprintf("First agent invoked: %s", d.AgentName)); err != nil {
			return err
		}
	}

	start := time.Now()
	result, execErr := c.execute(ctx, capability, slice)
	latency := time.Since(start)

	if execErr != nil {
		slog.Error("agent failed", "agent", d.AgentName, "error", execErr)
		if err := c.board.LogInvocationEnd(ctx, idx, result.InputTokens, result.OutputTokens, blackboard.InvocationError, execErr.Error()); err != nil {
			return err
		}
		if c.metrics != nil {
			c.metrics.RecordAgentInvocation(d.AgentName, latency, result.InputTokens, result.OutputTokens, false)
		}
		if c.recorder != nil {
			c.recorder.RecordAgentEnd(d.AgentName, "error", latency, result.InputTokens, result.OutputTokens, execErr.Error())
		}
		// The failure is recorded; the loop moves on.
		return nil
	}

	if err := c.board.LogInvocationEnd(ctx, idx, result.InputTokens, result.OutputTokens, blackboard.InvocationSuccess, ""); err != nil {
		return err
	}
	if c.metrics != nil {
		c.metrics.RecordAgentInvocation(d.AgentName, latency, result.InputTokens, result.OutputTokens, true)
	}
	if c.recorder != nil {
		c.recorder.RecordAgentEnd(d.AgentName, result.Status, latency, result.InputTokens, result.OutputTokens, "")
	}

	return c.consumeApproval(ctx)
}

// execute isolates agent panics so a misbehaving capability cannot take
// down the loop.
func (c *Conductor) execute(ctx context.Context, capability agent.Capability, slice *memory.Slice) (result agent.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("agent panicked: %v", r)
		}
	}()
	return capability.Execute(ctx, slice, c.board)
}

// consumeApproval finishes a consensus cycle once it reached approval:
// classifies the outcome, records it, and clears the active cycle.
func (c *Conductor) consumeApproval(ctx context.Context) error {
	state, err := c.board.State()
	if err != nil {
		return err
	}
	cons := state.Consensus
	if cons == nil || cons.Status != blackboard.ConsensusApproved {
		return nil
	}

	outcome := cons.Outcome()
	slog.Info("consensus cycle finished",
		"field", cons.TargetField, "outcome", outcome, "iterations", cons.CurrentIteration)
	if c.metrics != nil {
		c.metrics.RecordConsensusCycle(cons.CurrentIteration, string(outcome))
	}
	if c.recorder != nil {
		c.recorder.RecordConsensusEnd(cons.TargetField, string(outcome), cons.CurrentIteration)
	}
	return c.board.ClearConsensus(ctx)
}

func (c *Conductor) setStatus(ctx context.Context, to blackboard.GlobalStatus, reason string) error {
	state, err := c.board.State()
	if err != nil {
		return err
	}
	from := state.Status

	if err := c.board.SetStatus(ctx, to, reason); err != nil {
		return err
	}
	if c.metrics != nil {
		c.metrics.RecordStatusTransition(string(from), string(to), reason)
	}
	if c.recorder != nil {
		c.recorder.RecordStatusChange(string(from), string(to), reason)
	}
	return nil
}

func (c *Conductor) recordError(source, message string) {
	slog.Error(message, "source", source)
	if c.recorder != nil {
		c.recorder.RecordError(source, message)
	}
}
