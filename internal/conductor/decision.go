package conductor

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Action is the kind of step the conductor takes next.
type Action string

const (
	// ActionInvokeAgent routes the next step to a specialist agent.
	ActionInvokeAgent Action = "invoke_agent"

	// ActionUpdateStatus sets the lifecycle status named in the decision.
	ActionUpdateStatus Action = "update_status"

	// ActionComplete marks the task COMPLETED.
	ActionComplete Action = "complete"

	// ActionFail marks the task FAILED.
	ActionFail Action = "fail"
)

// Decision is the structured routing output of one THINK step.
type Decision struct {
	Action           Action   `json:"action"`
	AgentName        string   `json:"agent_name"`        // Which agent to invoke, empty otherwise
	RelevantFields   []string `json:"relevant_fields"`   // Workspace fields for the agent's slice
	IncludeConsensus bool     `json:"include_consensus"` // Whether the slice carries the active cycle
	StatusUpdate     string   `json:"status_update,omitempty"`
	Reason           string   `json:"reason"`
}

// ParseDecision extracts a decision from raw model output, tolerating
// markdown fences. A missing action degrades to fail rather than erroring,
// so a structurally valid but incomplete response still moves the loop
// forward.
func ParseDecision(raw string) (*Decision, error) {
	var d Decision
	if err := json.Unmarshal([]byte(stripFences(raw)), &d); err != nil {
		return nil, fmt.Errorf("malformed decision: %w", err)
	}
	if d.Action == "" {
		d.Action = ActionFail
		if d.Reason == "" {
			d.Reason = "decision response had no action"
		}
	}
	return &d, nil
}

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
