// Package inspect renders stored task states for the CLI: filtered
// listings in table or JSONL form, and single-task detail output.
package inspect

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/hebbzhu/baton/internal/filter"
	"github.com/hebbzhu/baton/pkg/blackboard"
)

// OutputFormat specifies how to format the task list output.
type OutputFormat string

const (
	// OutputFormatDefault uses a table format with truncated objectives
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSONL outputs complete task states as line-delimited JSON
	OutputFormatJSONL OutputFormat = "jsonl"
)

// ListTasks loads every stored task, applies filter criteria, and writes
// the matches to the provided writer. Tasks are sorted by last update
// (oldest first) for stable chronological output. Unreadable tasks are
// skipped with a warning to stderr but do not abort the listing.
func ListTasks(ctx context.Context, store blackboard.Store, format OutputFormat, criteria *filter.Criteria, w io.Writer) error {
	ids, err := store.ListTasks(ctx)
	if err != nil {
		return fmt.Errorf("failed to list tasks: %w", err)
	}

	var states []*blackboard.TaskState
	for _, id := range ids {
		state, err := store.Load(ctx, id)
		if err != nil {
			// Skip unreadable tasks with warning to stderr
			fmt.Fprintf(os.Stderr, "⚠️  Skipping unreadable task: id=%s (error: %v)\n", id, err)
			continue
		}

		if criteria != nil && !criteria.Matches(state) {
			continue
		}

		states = append(states, state)
	}

	sort.Slice(states, func(i, j int) bool {
		if states[i].UpdatedAt.Equal(states[j].UpdatedAt) {
			return states[i].TaskID < states[j].TaskID
		}
		return states[i].UpdatedAt.Before(states[j].UpdatedAt)
	})

	switch format {
	case OutputFormatDefault:
		FormatTable(w, states)
	case OutputFormatJSONL:
		if err := FormatJSONL(w, states); err != nil {
			return fmt.Errorf("failed to format JSONL output: %w", err)
		}
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}

	return nil
}
