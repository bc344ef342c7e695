// Package llm defines the completion contract used by the conductor and the
// specialist agents. The rest of the system treats a language model as an
// opaque function from prompt to text plus token counts; provider specifics
// stay behind the Client interface.
package llm

import "context"

// Request is a single completion request.
type Request struct {
	System      string  // System prompt, empty for none
	Prompt      string  // User prompt
	MaxTokens   int     // Response cap, 0 applies the client default
	Temperature float64 // Sampling temperature, 0 applies the client default
}

// Response is a completed generation with its token accounting.
type Response struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// Usage is a running token total accumulated across calls.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Total returns input plus output tokens.
func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// Client issues completions and tracks cumulative token usage.
// Implementations must be safe for sequential reuse across a task run;
// the conductor and agents share one client each.
type Client interface {
	// Complete sends one request and returns the generated text with its
	// token counts. Errors are returned, never retried here: callers own
	// the degrade path.
	Complete(ctx context.Context, req Request) (*Response, error)

	// TotalUsage returns tokens accumulated since construction or the
	// last reset.
	TotalUsage() Usage

	// ResetUsage zeroes the accumulated counters.
	ResetUsage()
}
