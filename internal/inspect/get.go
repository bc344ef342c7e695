package inspect

import (
	"context"
	"fmt"
	"io"

	"github.com/hebbzhu/baton/pkg/blackboard"
)

// GetTask retrieves a single task by its full ID and writes it as
// pretty-printed JSON to the writer. Prefix resolution happens upstream;
// this expects a complete task ID.
// Uses IsNotFound() to distinguish "not found" errors from other errors.
func GetTask(ctx context.Context, store blackboard.Store, taskID string, w io.Writer) error {
	state, err := store.Load(ctx, taskID)
	if err != nil {
		if blackboard.IsNotFound(err) {
			return &TaskNotFoundError{TaskID: taskID}
		}
		return fmt.Errorf("failed to fetch task: %w", err)
	}

	if err := FormatSingleJSON(w, state); err != nil {
		return fmt.Errorf("failed to format task: %w", err)
	}

	return nil
}

// TaskNotFoundError represents a specific "task not found" error.
// This allows callers to distinguish not-found errors from other failures.
type TaskNotFoundError struct {
	TaskID string
}

func (e *TaskNotFoundError) Error() string {
	return fmt.Sprintf("task with ID '%s' not found", e.TaskID)
}

// IsNotFound returns true if the error is a TaskNotFoundError.
func IsNotFound(err error) bool {
	_, ok := err.(*TaskNotFoundError)
	return ok
}
