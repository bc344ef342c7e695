// Package observability collects run metrics and a replayable event stream
// for conductor tasks. Everything is held in memory and exported as JSON
// for reporting or dashboard rendering.
package observability

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

type agentStats struct {
	invocations  int
	successes    int
	errors       int
	inputTokens  int
	outputTokens int
	latencies    []float64 // seconds
}

type conductorStats struct {
	steps          int
	inputTokens    int
	outputTokens   int
	decisionCounts map[string]int
	routingCounts  map[string]int
	latencies      []float64
}

type consensusStats struct {
	cycles          int
	firstTry        int
	afterRevision   int
	forced          int
	totalIterations int
	perCycle        []int
}

// StatusTransition is one recorded lifecycle change.
type StatusTransition struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// Collector aggregates per-agent, conductor, and consensus metrics for a
// single task run.
type Collector struct {
	mu           sync.Mutex
	taskStart    time.Time
	taskEnd      time.Time
	agents       map[string]*agentStats
	conductor    conductorStats
	consensus    consensusStats
	compressions int
	transitions  []StatusTransition
}

// NewCollector starts a collector with the task clock running.
func NewCollector() *Collector {
	return &Collector{
		taskStart: time.Now(),
		agents:    map[string]*agentStats{},
		conductor: conductorStats{
			decisionCounts: map[string]int{},
			routingCounts:  map[string]int{},
		},
	}
}

// RecordAgentInvocation records one specialist agent call.
func (c *Collector) RecordAgentInvocation(agentName string, latency time.Duration, inputTokens, outputTokens int, success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.agents[agentName]
	if !ok {
		s = &agentStats{}
		c.agents[agentName] = s
	}
	s.invocations++
	s.latencies = append(s.latencies, latency.Seconds())
	s.inputTokens += inputTokens
	s.outputTokens += outputTokens
	if success {
		s.successes++
	} else {
		s.errors++
	}
}

// RecordConductorStep records one decision step. agentName is empty for
// non-routing actions.
func (c *Collector) RecordConductorStep(action, agentName string, latency time.Duration, inputTokens, outputTokens int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conductor.steps++
	c.conductor.inputTokens += inputTokens
	c.conductor.outputTokens += outputTokens
	c.conductor.latencies = append(c.conductor.latencies, latency.Seconds())
	c.conductor.decisionCounts[action]++
	if agentName != "" {
		c.conductor.routingCounts[agentName]++
	}
}

// RecordConsensusCycle records a finished consensus cycle and its outcome
// classification.
func (c *Collector) RecordConsensusCycle(iterations int, outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.consensus.cycles++
	c.consensus.totalIterations += iterations
	c.consensus.perCycle = append(c.consensus.perCycle, iterations)

	switch outcome {
	case "approved_first_try":
		c.consensus.firstTry++
	case "approved_after_revision":
		c.consensus.afterRevision++
	case "force_approved":
		c.consensus.forced++
	}
}

// RecordMemoryCompression counts one hot-to-warm demotion.
func (c *Collector) RecordMemoryCompression() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.compressions++
}

// RecordStatusTransition records a global lifecycle change.
func (c *Collector) RecordStatusTransition(from, to, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transitions = append(c.transitions, StatusTransition{
		From:      from,
		To:        to,
		Reason:    reason,
		Timestamp: time.Now(),
	})
}

// MarkTaskComplete stops the task clock.
func (c *Collector) MarkTaskComplete() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.taskEnd = time.Now()
}

// Elapsed reports wall time since the collector started, frozen once
// MarkTaskComplete has been called.
func (c *Collector) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.elapsedLocked()
}

func (c *Collector) elapsedLocked() time.Duration {
	if c.taskEnd.IsZero() {
		return time.Since(c.taskStart)
	}
	return c.taskEnd.Sub(c.taskStart)
}

// TaskSummary is the top-level rollup of a run.
type TaskSummary struct {
	ElapsedTimeS          float64 `json:"elapsed_time_s"`
	TotalSteps            int     `json:"total_steps"`
	TotalAgentInvocations int     `json:"total_agent_invocations"`
	TotalTokens           int     `json:"total_tokens"`
	ConductorTokens       int     `json:"conductor_tokens"`
	AgentTokens           int     `json:"agent_tokens"`
	MemoryCompressions    int     `json:"memory_compressions"`
	StatusTransitions     int     `json:"status_transitions"`
}

// AgentReport is the aggregated view of one agent's invocations.
type AgentReport struct {
	Name              string  `json:"name"`
	InvocationCount   int     `json:"invocation_count"`
	SuccessCount      int     `json:"success_count"`
	ErrorCount        int     `json:"error_count"`
	TotalInputTokens  int     `json:"total_input_tokens"`
	TotalOutputTokens int     `json:"total_output_tokens"`
	TotalTokens       int     `json:"total_tokens"`
	AvgLatencyS       float64 `json:"avg_latency_s"`
	P95LatencyS       float64 `json:"p95_latency_s"`
	MinLatencyS       float64 `json:"min_latency_s"`
	MaxLatencyS       float64 `json:"max_latency_s"`
	SuccessRate       float64 `json:"success_rate"`
}

// ConductorReport is the aggregated view of the decision loop.
type ConductorReport struct {
	TotalSteps        int            `json:"total_steps"`
	TotalInputTokens  int            `json:"total_input_tokens"`
	TotalOutputTokens int            `json:"total_output_tokens"`
	TotalTokens       int            `json:"total_tokens"`
	AvgLatencyS       float64        `json:"avg_latency_s"`
	DecisionCounts    map[string]int `json:"decision_counts"`
	RoutingCounts     map[string]int `json:"routing_counts"`
}

// ConsensusReport is the aggregated view of all consensus cycles.
type ConsensusReport struct {
	TotalCycles           int     `json:"total_cycles"`
	ApprovedFirstTry      int     `json:"approved_first_try"`
	ApprovedAfterRevision int     `json:"approved_after_revision"`
	ForceApproved         int     `json:"force_approved"`
	TotalIterations       int     `json:"total_iterations"`
	AvgIterationsPerCycle float64 `json:"avg_iterations_per_cycle"`
	FirstTryApprovalRate  float64 `json:"first_try_approval_rate"`
}

// Report is the full structured export of a run's metrics.
type Report struct {
	TaskSummary   TaskSummary            `json:"task_summary"`
	Conductor     ConductorReport        `json:"conductor"`
	Agents        map[string]AgentReport `json:"agents"`
	Consensus     ConsensusReport        `json:"consensus"`
	StatusHistory []StatusTransition     `json:"status_history"`
}

// Report exports everything collected so far.
func (c *Collector) Report() *Report {
	c.mu.Lock()
	defer c.mu.Unlock()

	agents := make(map[string]AgentReport, len(c.agents))
	var agentInput, agentOutput, agentInvocations int
	for name, s := range c.agents {
		agents[name] = agentReport(name, s)
		agentInput += s.inputTokens
		agentOutput += s.outputTokens
		agentInvocations += s.invocations
	}

	conductorTokens := c.conductor.inputTokens + c.conductor.outputTokens
	history := append([]StatusTransition(nil), c.transitions...)
	if history == nil {
		history = []StatusTransition{}
	}

	return &Report{
		TaskSummary: TaskSummary{
			ElapsedTimeS:          roundTo(c.elapsedLocked().Seconds(), 2),
			TotalSteps:            c.conductor.steps,
			TotalAgentInvocations: agentInvocations,
			TotalTokens:           conductorTokens + agentInput + agentOutput,
			ConductorTokens:       conductorTokens,
			AgentTokens:           agentInput + agentOutput,
			MemoryCompressions:    c.compressions,
			StatusTransitions:     len(c.transitions),
		},
		Conductor: ConductorReport{
			TotalSteps:        c.conductor.steps,
			TotalInputTokens:  c.conductor.inputTokens,
			TotalOutputTokens: c.conductor.outputTokens,
			TotalTokens:       conductorTokens,
			AvgLatencyS:       roundTo(mean(c.conductor.latencies), 3),
			DecisionCounts:    copyCounts(c.conductor.decisionCounts),
			RoutingCounts:     copyCounts(c.conductor.routingCounts),
		},
		Agents: agents,
		Consensus: ConsensusReport{
			TotalCycles:           c.consensus.cycles,
			ApprovedFirstTry:      c.consensus.firstTry,
			ApprovedAfterRevision: c.consensus.afterRevision,
			ForceApproved:         c.consensus.forced,
			TotalIterations:       c.consensus.totalIterations,
			AvgIterationsPerCycle: roundTo(meanInt(c.consensus.perCycle), 2),
			FirstTryApprovalRate:  roundTo(rate(c.consensus.firstTry, c.consensus.cycles), 4),
		},
		StatusHistory: history,
	}
}

func agentReport(name string, s *agentStats) AgentReport {
	return AgentReport{
		Name:              name,
		InvocationCount:   s.invocations,
		SuccessCount:      s.successes,
		ErrorCount:        s.errors,
		TotalInputTokens:  s.inputTokens,
		TotalOutputTokens: s.outputTokens,
		TotalTokens:       s.inputTokens + s.outputTokens,
		AvgLatencyS:       roundTo(mean(s.latencies), 3),
		P95LatencyS:       roundTo(p95(s.latencies), 3),
		MinLatencyS:       roundTo(minOf(s.latencies), 3),
		MaxLatencyS:       roundTo(maxOf(s.latencies), 3),
		SuccessRate:       roundTo(rate(s.successes, s.invocations), 4),
	}
}

// SummaryText renders the metrics as a human-readable block for end-of-run
// logging.
func (c *Collector) SummaryText() string {
	r := c.Report()
	ts := r.TaskSummary

	lines := []string{
		"=== Task Metrics ===",
		fmt.Sprintf("Elapsed Time:        %.1fs", ts.ElapsedTimeS),
		fmt.Sprintf("Conductor Steps:     %d", ts.TotalSteps),
		fmt.Sprintf("Agent Invocations:   %d", ts.TotalAgentInvocations),
		fmt.Sprintf("Total Tokens:        %s", comma(ts.TotalTokens)),
		fmt.Sprintf("  Conductor:         %s", comma(ts.ConductorTokens)),
		fmt.Sprintf("  Agents:            %s", comma(ts.AgentTokens)),
		fmt.Sprintf("Memory Compressions: %d", ts.MemoryCompressions),
		"",
		"--- Per-Agent Breakdown ---",
	}

	names := make([]string, 0, len(r.Agents))
	for name := range r.Agents {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		a := r.Agents[name]
		lines = append(lines, fmt.Sprintf("  %s: %d calls, %s tokens, avg %.2fs, success %.0f%%",
			name, a.InvocationCount, comma(a.TotalTokens), a.AvgLatencyS, a.SuccessRate*100))
	}

	if r.Consensus.TotalCycles > 0 {
		lines = append(lines,
			"",
			"--- Consensus ---",
			fmt.Sprintf("  Cycles:            %d", r.Consensus.TotalCycles),
			fmt.Sprintf("  First-try approve: %.0f%%", r.Consensus.FirstTryApprovalRate*100),
			fmt.Sprintf("  Avg iterations:    %.1f", r.Consensus.AvgIterationsPerCycle),
		)
	}

	return strings.Join(lines, "\n")
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func meanInt(xs []int) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum int
	for _, x := range xs {
		sum += x
	}
	return float64(sum) / float64(len(xs))
}

// p95 takes the value at the 95th-percentile index of the sorted samples,
// clamped to the largest sample.
func p95(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	if len(xs) < 2 {
		return xs[0]
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	idx := int(float64(len(sorted)) * 0.95)
	if idx > len(sorted)-1 {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func minOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := xs[0]
	for _, x := range xs[1:] {
		if x < m {
			m = x
		}
	}
	return m
}

func maxOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := xs[0]
	for _, x := range xs[1:] {
		if x > m {
			m = x
		}
	}
	return m
}

func rate(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole)
}

func roundTo(x float64, places int) float64 {
	shift := math.Pow(10, float64(places))
	return math.Round(x*shift) / shift
}

func copyCounts(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// comma renders an integer with thousands separators.
func comma(n int) string {
	s := strconv.Itoa(n)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var parts []string
	for len(s) > 3 {
		parts = append([]string{s[len(s)-3:]}, parts...)
		s = s[:len(s)-3]
	}
	parts = append([]string{s}, parts...)
	out := strings.Join(parts, ",")
	if neg {
		return "-" + out
	}
	return out
}
