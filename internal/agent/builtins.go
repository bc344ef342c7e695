package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/hebbzhu/baton/internal/llm"
	"github.com/hebbzhu/baton/internal/memory"
	"github.com/hebbzhu/baton/pkg/blackboard"
)

// Builtins returns the stock specialist agents, each backed by the given
// completion client. They cover the common produce-review-summarize flow
// and double as templates for custom agents.
func Builtins(client llm.Client) []Capability {
	return []Capability{
		plannerAgent(client),
		codeGeneratorAgent(client),
		criticAgent(client),
		writerAgent(client),
		summarizerAgent(client),
	}
}

func plannerAgent(client llm.Client) Capability {
	return Func(
		"planner",
		"Analyzes the objective and creates a structured execution plan with clear steps. "+
			"Should be invoked first when a new task begins.",
		[]string{"objective"},
		[]string{"plan"},
		func(ctx context.Context, slice *memory.Slice, board *blackboard.Board) (Result, error) {
			state, err := board.State()
			if err != nil {
				return Result{}, err
			}

			prompt := fmt.Sprintf("Objective: %s", slice.Objective)
			if len(state.Constraints) > 0 {
				prompt += fmt.Sprintf("\nConstraints: %s", strings.Join(state.Constraints, ", "))
			}

			resp, err := client.Complete(ctx, llm.Request{
				System: "You are a task planner. Given an objective, create a clear, structured execution plan. " +
					"Break the objective into concrete, actionable steps. " +
					"Output a JSON object with a 'steps' array, where each step has 'id', 'title', 'description', and 'output_field' (the workspace field it will produce). " +
					"Respond in the same language as the objective.",
				Prompt:    prompt,
				MaxTokens: 1000,
			})
			if err != nil {
				return Result{}, err
			}

			var plan map[string]any
			if err := json.Unmarshal([]byte(stripFences(resp.Text)), &plan); err != nil {
				// Unstructured output still becomes a usable single-step plan.
				plan = map[string]any{"steps": []any{map[string]any{
					"id":           1,
					"title":        "Execute task",
					"description":  resp.Text,
					"output_field": "result",
				}}}
			}

			if err := board.WriteWorkspace(ctx, "plan", plan); err != nil {
				return Result{}, err
			}
			return okResult(resp), nil
		},
	)
}

func codeGeneratorAgent(client llm.Client) Capability {
	return Func(
		"code_generator",
		"Generates code based on requirements, specifications, or a plan. "+
			"Writes the generated code to the 'code' workspace field.",
		[]string{"plan", "requirements"},
		[]string{"code"},
		func(ctx context.Context, slice *memory.Slice, board *blackboard.Board) (Result, error) {
			prompt := fmt.Sprintf("Objective: %s\n", slice.Objective)
			if plan, ok := slice.Workspace["plan"]; ok {
				prompt += fmt.Sprintf("\nPlan:\n%s", renderForPrompt(plan))
			}
			if requirements, ok := slice.Workspace["requirements"]; ok {
				prompt += fmt.Sprintf("\nRequirements:\n%s", renderForPrompt(requirements))
			}
			if slice.Consensus != nil && slice.Consensus.LastCritique != "" {
				prompt += fmt.Sprintf("\n\nPrevious review feedback (please address these issues):\n%s", slice.Consensus.LastCritique)
			}

			resp, err := client.Complete(ctx, llm.Request{
				System: "You are an expert code generator. Write clean, well-documented, production-quality code " +
					"based on the given requirements or plan. Include proper error handling. " +
					"Output ONLY the code, no explanations.",
				Prompt:    prompt,
				MaxTokens: 3000,
			})
			if err != nil {
				return Result{}, err
			}

			if err := board.WriteWorkspace(ctx, "code", resp.Text); err != nil {
				return Result{}, err
			}
			// Fresh output always goes through review before it counts.
			if _, err := board.StartConsensus(ctx, "code", 0); err != nil {
				return Result{}, err
			}
			return okResult(resp), nil
		},
	)
}

func criticAgent(client llm.Client) Capability {
	return Func(
		"critic",
		"Reviews and critiques workspace artifacts for quality, correctness, and completeness. "+
			"Part of the consensus loop, invoked after another agent produces output.",
		[]string{"code", "plan", "result"},
		nil,
		func(ctx context.Context, slice *memory.Slice, board *blackboard.Board) (Result, error) {
			state, err := board.State()
			if err != nil {
				return Result{}, err
			}
			if state.Consensus == nil {
				return Result{Status: "no_consensus_active"}, nil
			}

			targetField := state.Consensus.TargetField
			artifact := slice.Workspace[targetField]

			resp, err := client.Complete(ctx, llm.Request{
				System: "You are a strict but fair code/content reviewer. Review the given artifact for:\n" +
					"1. Correctness: Does it fulfill the objective?\n" +
					"2. Quality: Is it well-structured, readable, and maintainable?\n" +
					"3. Completeness: Are there missing parts or edge cases?\n" +
					"4. Bugs: Are there any obvious errors?\n\n" +
					"Respond with a JSON object:\n" +
					`{"verdict": "APPROVED" or "REJECTED", "critique": "<detailed feedback>"}` + "\n" +
					"Only APPROVE if the artifact is genuinely good. Be specific in your critique.",
				Prompt: fmt.Sprintf("Objective: %s\n\nArtifact to review (field: %s):\n\n%s",
					slice.Objective, targetField, renderForPrompt(artifact)),
				MaxTokens: 800,
			})
			if err != nil {
				return Result{}, err
			}

			// Anything that does not parse to an explicit APPROVED counts as
			// a rejection carrying the raw response as critique.
			verdict := blackboard.VerdictRejected
			critique := resp.Text
			var review struct {
				Verdict  string `json:"verdict"`
				Critique string `json:"critique"`
			}
			if err := json.Unmarshal([]byte(stripFences(resp.Text)), &review); err == nil {
				if strings.ToUpper(review.Verdict) == string(blackboard.VerdictApproved) {
					verdict = blackboard.VerdictApproved
				}
				if review.Critique != "" {
					critique = review.Critique
				}
			}

			if _, err := board.SubmitReview(ctx, "critic", verdict, critique); err != nil {
				return Result{}, err
			}

			result := okResult(resp)
			result.Verdict = string(verdict)
			return result, nil
		},
	)
}

func writerAgent(client llm.Client) Capability {
	return Func(
		"writer",
		"Generates written content such as documentation, reports, or summaries. "+
			"Writes output to the 'result' workspace field.",
		[]string{"plan", "code", "requirements"},
		[]string{"result"},
		func(ctx context.Context, slice *memory.Slice, board *blackboard.Board) (Result, error) {
			prompt := fmt.Sprintf("Objective: %s\n", slice.Objective)
			for _, key := range sortedKeys(slice.Workspace) {
				prompt += fmt.Sprintf("\n%s:\n%s", key, clipForPrompt(slice.Workspace[key], 2000))
			}
			if slice.Consensus != nil && slice.Consensus.LastCritique != "" {
				prompt += fmt.Sprintf("\n\nPrevious review feedback:\n%s", slice.Consensus.LastCritique)
			}

			resp, err := client.Complete(ctx, llm.Request{
				System: "You are an expert technical writer. Produce clear, well-structured, professional content " +
					"based on the given context. Respond in the same language as the objective.",
				Prompt:    prompt,
				MaxTokens: 3000,
			})
			if err != nil {
				return Result{}, err
			}

			if err := board.WriteWorkspace(ctx, "result", resp.Text); err != nil {
				return Result{}, err
			}
			if _, err := board.StartConsensus(ctx, "result", 0); err != nil {
				return Result{}, err
			}
			return okResult(resp), nil
		},
	)
}

func summarizerAgent(client llm.Client) Capability {
	return Func(
		"summarizer",
		"Produces a final summary of all completed work. "+
			"Should be invoked near the end of a task to consolidate results.",
		[]string{"plan", "code", "result"},
		[]string{"final_summary"},
		func(ctx context.Context, slice *memory.Slice, board *blackboard.Board) (Result, error) {
			prompt := fmt.Sprintf("Objective: %s\n\nCompleted work:\n", slice.Objective)
			for _, key := range sortedKeys(slice.Workspace) {
				prompt += fmt.Sprintf("\n--- %s ---\n%s", key, clipForPrompt(slice.Workspace[key], 1500))
			}

			resp, err := client.Complete(ctx, llm.Request{
				System: "You are a summarizer. Produce a concise but comprehensive summary of all the work " +
					"that has been completed. Include key outcomes, decisions made, and any remaining items. " +
					"Respond in the same language as the objective.",
				Prompt:    prompt,
				MaxTokens: 1000,
			})
			if err != nil {
				return Result{}, err
			}

			if err := board.WriteWorkspace(ctx, "final_summary", resp.Text); err != nil {
				return Result{}, err
			}
			return okResult(resp), nil
		},
	)
}

func okResult(resp *llm.Response) Result {
	return Result{Status: "ok", InputTokens: resp.InputTokens, OutputTokens: resp.OutputTokens}
}

// renderForPrompt embeds a workspace value in a prompt: strings verbatim,
// structured values as indented JSON.
func renderForPrompt(value any) string {
	switch v := value.(type) {
	case string:
		return v
	default:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}

// clipForPrompt renders a value compactly and caps it so a single huge
// artifact cannot crowd out the rest of the prompt.
func clipForPrompt(value any, limit int) string {
	s, ok := value.(string)
	if !ok {
		data, err := json.Marshal(value)
		if err != nil {
			s = fmt.Sprintf("%v", value)
		} else {
			s = string(data)
		}
	}
	r := []rune(s)
	if len(r) > limit {
		return string(r[:limit])
	}
	return s
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// stripFences removes markdown code fences so fenced JSON still parses.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	var kept []string
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
