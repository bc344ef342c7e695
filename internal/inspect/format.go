package inspect

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hebbzhu/baton/pkg/blackboard"
)

// FormatTable writes tasks as a formatted table to the provided writer.
// The table includes columns: ID, STATUS, AGENTS (invocation count), AGE,
// and OBJECTIVE (truncated). Returns the number of tasks formatted.
func FormatTable(w io.Writer, states []*blackboard.TaskState) int {
	if len(states) == 0 {
		fmt.Fprintln(w, "No tasks found")
		return 0
	}

	// Print header row
	fmt.Fprintf(w, "%-12s %-12s %-6s %-8s %s\n",
		"ID", "STATUS", "AGENTS", "AGE", "OBJECTIVE")
	fmt.Fprintf(w, "%-12s %-12s %-6s %-8s %s\n",
		"------------", "------------", "------", "--------", "----------------------------------------")

	// Print data rows
	for _, state := range states {
		fmt.Fprintf(w, "%-12s %-12s %-6d %-8s %s\n",
			state.TaskID,
			string(state.Status),
			len(state.Invocations),
			formatAge(state.UpdatedAt),
			formatObjective(state.Objective),
		)
	}

	// Print count
	countMsg := "task"
	if len(states) != 1 {
		countMsg = "tasks"
	}
	fmt.Fprintf(w, "\n%d %s found\n", len(states), countMsg)

	return len(states)
}

// FormatJSONL writes task states as line-delimited JSON (JSONL) to the
// provided writer. Each task is written as a single JSON object on its own
// line. This format is ideal for streaming and processing with tools like jq.
func FormatJSONL(w io.Writer, states []*blackboard.TaskState) error {
	for _, state := range states {
		data, err := json.Marshal(state)
		if err != nil {
			return fmt.Errorf("failed to marshal task to JSON: %w", err)
		}

		if _, err := fmt.Fprintf(w, "%s\n", string(data)); err != nil {
			return fmt.Errorf("failed to write JSONL output: %w", err)
		}
	}

	return nil
}

// FormatSingleJSON writes a single task state as pretty-printed JSON to the
// provided writer. Used in get mode to display complete task details.
func FormatSingleJSON(w io.Writer, state *blackboard.TaskState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal task to JSON: %w", err)
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write JSON output: %w", err)
	}

	// Add newline for clean output
	fmt.Fprintln(w)

	return nil
}

// formatObjective truncates the objective to its first line with max 40
// characters for table display. Empty objectives return "-".
func formatObjective(objective string) string {
	if objective == "" {
		return "-"
	}

	// Get first non-empty line
	lines := strings.Split(objective, "\n")
	var firstLine string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" {
			firstLine = trimmed
			break
		}
	}

	if firstLine == "" {
		return "-"
	}

	if len(firstLine) > 40 {
		return firstLine[:37] + "..."
	}

	return firstLine
}

// formatAge formats a timestamp as relative time like "2m ago", "1h ago".
func formatAge(t time.Time) string {
	if t.IsZero() {
		return "-"
	}

	diff := time.Since(t)

	if diff < time.Minute {
		return fmt.Sprintf("%ds ago", int(diff.Seconds()))
	} else if diff < time.Hour {
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	} else if diff < 24*time.Hour {
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	}
	return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
}
