// Package memory implements the context projector: the bounded views of
// the blackboard that keep scheduling and agent prompts O(1) in the size
// of accumulated work, and the hot-to-warm compression that enforces it.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/hebbzhu/baton/internal/llm"
	"github.com/hebbzhu/baton/pkg/blackboard"
)

// Rendering budgets, in characters. The dashboard must stay around a few
// hundred tokens no matter how large the workspace grows.
const (
	valueThreshold  = 200 // full strings up to this length render verbatim
	valuePrefix     = 150 // longer values render this much plus a length annotation
	critiquePrefix  = 100
	hypothesisLimit = 3
	hypothesisChars = 80

	compressThreshold = 500  // above this, compression asks the summarizer
	compressInputCap  = 3000 // summarizer sees at most this much content
	truncateCap       = 200  // fallback truncation length
)

// SummarizeFunc condenses content into a 1-2 sentence summary.
// Compression falls back to truncation when it returns an error.
type SummarizeFunc func(ctx context.Context, content string) (string, error)

// Projector derives bounded views from a board: the conductor's dashboard,
// per-agent context slices, and warm-tier compression.
type Projector struct {
	board     *blackboard.Board
	summarize SummarizeFunc
}

// NewProjector creates a projector over the board. summarize may be nil,
// in which case compression always uses truncation.
func NewProjector(board *blackboard.Board, summarize SummarizeFunc) *Projector {
	return &Projector{board: board, summarize: summarize}
}

// Dashboard renders the compact text view the conductor decides from:
// objective, status, one line per workspace field (warm fields show their
// summary), the active consensus with its latest critique, up to three
// open hypotheses, constraints and notes.
func (p *Projector) Dashboard() (string, error) {
	state, err := p.board.State()
	if err != nil {
		return "", err
	}

	var lines []string
	lines = append(lines, fmt.Sprintf("Objective: %s", state.Objective))
	lines = append(lines, fmt.Sprintf("Status: %s", state.Status))

	if fieldLines := p.workspaceLines(state); len(fieldLines) > 0 {
		lines = append(lines, "Workspace:")
		lines = append(lines, fieldLines...)
	}

	if c := state.Consensus; c != nil {
		lines = append(lines, fmt.Sprintf("Consensus: target=%s, status=%s, iteration=%d/%d",
			c.TargetField, c.Status, c.CurrentIteration, c.MaxIterations))
		if last := c.LastReview(); last != nil {
			lines = append(lines, fmt.Sprintf("  Last review by %s: %s",
				last.Reviewer, truncate(last.Critique, critiquePrefix)))
		}
	}

	if proposed := openHypotheses(state); len(proposed) > 0 {
		lines = append(lines, fmt.Sprintf("Open hypotheses (%d):", len(proposed)))
		start := len(proposed) - hypothesisLimit
		if start < 0 {
			start = 0
		}
		for _, h := range proposed[start:] {
			lines = append(lines, fmt.Sprintf("  [%s] by %s: %s",
				h.ID, h.Author, truncate(h.Content, hypothesisChars)))
		}
	}

	if len(state.Constraints) > 0 {
		lines = append(lines, fmt.Sprintf("Constraints: %s", strings.Join(state.Constraints, ", ")))
	}

	if state.Notes != "" {
		lines = append(lines, fmt.Sprintf("Notes: %s", state.Notes))
	}

	return strings.Join(lines, "\n"), nil
}

// workspaceLines renders one bounded line per field: live fields in write
// order followed by compressed fields with their warm summaries.
func (p *Projector) workspaceLines(state *blackboard.TaskState) []string {
	var lines []string
	seen := make(map[string]bool)

	for _, key := range state.Memory.Hot {
		value, ok := state.Workspace[key]
		if !ok {
			continue
		}
		seen[key] = true
		lines = append(lines, fmt.Sprintf("  %s: %s", key, renderValue(value)))
	}

	// Workspace entries missing from the hot list should not exist, but
	// render them anyway so nothing silently disappears from the view.
	var stray []string
	for key := range state.Workspace {
		if !seen[key] {
			stray = append(stray, key)
		}
	}
	sort.Strings(stray)
	for _, key := range stray {
		lines = append(lines, fmt.Sprintf("  %s: %s", key, renderValue(state.Workspace[key])))
	}

	var warm []string
	for key := range state.Memory.Warm {
		warm = append(warm, key)
	}
	sort.Strings(warm)
	for _, key := range warm {
		lines = append(lines, fmt.Sprintf("  %s: [completed] %s", key, state.Memory.Warm[key]))
	}

	return lines
}

// renderValue produces the bounded single-line rendering of a workspace
// value. Long strings keep a 150-character prefix plus an explicit length
// annotation; structured values render as truncated JSON.
func renderValue(value any) string {
	switch v := value.(type) {
	case string:
		if runeLen(v) > valueThreshold {
			return fmt.Sprintf("%s... (%d chars)", truncate(v, valuePrefix), runeLen(v))
		}
		return v
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return truncate(string(data), valuePrefix)
	}
}

// SliceHypothesis is the slimmed hypothesis shape included in slices.
type SliceHypothesis struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	Status  string `json:"status"`
	Author  string `json:"author"`
}

// SliceConsensus is the slimmed consensus shape included in slices.
type SliceConsensus struct {
	TargetField  string `json:"target_field"`
	Status       string `json:"status"`
	Iteration    int    `json:"iteration"`
	LastCritique string `json:"last_critique,omitempty"`
}

// Slice is the minimal state view handed to a specialist agent: the
// objective, current status, only the requested workspace fields, and
// optionally the open hypotheses and active consensus.
type Slice struct {
	Objective    string            `json:"objective"`
	GlobalStatus string            `json:"global_status"`
	Workspace    map[string]any    `json:"workspace"`
	Hypotheses   []SliceHypothesis `json:"hypotheses,omitempty"`
	Consensus    *SliceConsensus   `json:"consensus,omitempty"`
}

// Slice extracts only the requested workspace fields. A field compressed
// to the warm tier is substituted under "<field>_summary"; a field in
// neither tier is silently omitted. Nothing unrequested is ever included.
func (p *Projector) Slice(fields []string, includeHypotheses, includeConsensus bool) (*Slice, error) {
	state, err := p.board.State()
	if err != nil {
		return nil, err
	}

	slice := &Slice{
		Objective:    state.Objective,
		GlobalStatus: string(state.Status),
		Workspace:    map[string]any{},
	}

	for _, field := range fields {
		if value, ok := state.Workspace[field]; ok {
			slice.Workspace[field] = value
		} else if summary, ok := state.Memory.Summary(field); ok {
			slice.Workspace[field+"_summary"] = summary
		}
	}

	if includeHypotheses {
		slice.Hypotheses = []SliceHypothesis{}
		for _, h := range openHypotheses(state) {
			slice.Hypotheses = append(slice.Hypotheses, SliceHypothesis{
				ID:      h.ID,
				Content: h.Content,
				Status:  string(h.Status),
				Author:  h.Author,
			})
		}
	}

	if includeConsensus && state.Consensus != nil {
		c := state.Consensus
		sc := &SliceConsensus{
			TargetField: c.TargetField,
			Status:      string(c.Status),
			Iteration:   c.CurrentIteration,
		}
		if last := c.LastReview(); last != nil {
			sc.LastCritique = last.Critique
		}
		slice.Consensus = sc
	}

	return slice, nil
}

// Compress demotes a workspace field to the warm tier. Content above the
// threshold goes through the summarizer; shorter content, or any content
// when summarization fails or no summarizer is configured, is truncated.
// Compressing an already-warm field returns its existing summary; a field
// in neither tier returns an empty summary without mutating anything.
func (p *Projector) Compress(ctx context.Context, field string) (string, error) {
	state, err := p.board.State()
	if err != nil {
		return "", err
	}

	value, ok := state.Workspace[field]
	if !ok {
		if summary, warm := state.Memory.Summary(field); warm {
			return summary, nil
		}
		return "", nil
	}

	content := stringify(value)

	var summary string
	if p.summarize != nil && runeLen(content) > compressThreshold {
		summary, err = p.summarize(ctx, truncate(content, compressInputCap))
		if err != nil {
			slog.Warn("summarization failed, falling back to truncation",
				"field", field, "error", err)
			summary = fallbackTruncate(content)
		}
	} else {
		summary = fallbackTruncate(content)
	}

	if err := p.board.CompressField(ctx, field, summary); err != nil {
		return "", err
	}

	slog.Debug("compressed field to warm memory", "field", field, "summary", truncate(summary, 80))
	return summary, nil
}

// LLMSummarizer returns a SummarizeFunc backed by a completion client
// using the standard condensation prompt.
func LLMSummarizer(client llm.Client) SummarizeFunc {
	return func(ctx context.Context, content string) (string, error) {
		resp, err := client.Complete(ctx, llm.Request{
			System:    "You are a concise summarizer. Summarize the following content in 1-2 sentences, preserving key facts and outcomes. Respond in the same language as the content.",
			Prompt:    fmt.Sprintf("Summarize this completed work artifact:\n\n%s", content),
			MaxTokens: 150,
		})
		if err != nil {
			return "", err
		}
		return resp.Text, nil
	}
}

func openHypotheses(state *blackboard.TaskState) []blackboard.Hypothesis {
	var proposed []blackboard.Hypothesis
	for _, h := range state.Hypotheses {
		if h.Status == blackboard.HypothesisProposed {
			proposed = append(proposed, h)
		}
	}
	return proposed
}

func stringify(value any) string {
	if s, ok := value.(string); ok {
		return s
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	return string(data)
}

func fallbackTruncate(content string) string {
	if runeLen(content) > truncateCap {
		return truncate(content, truncateCap) + "..."
	}
	return content
}

// truncate keeps the first n characters (runes, not bytes, so multibyte
// content never splits mid-character).
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func runeLen(s string) int {
	return len([]rune(s))
}
