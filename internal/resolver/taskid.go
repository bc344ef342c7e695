package resolver

import (
	"context"
	"fmt"
	"strings"

	"github.com/hebbzhu/baton/pkg/blackboard"
)

// MinPrefixLength is the minimum required length for task ID prefixes.
// Set to 4 characters to balance usability with collision avoidance.
const MinPrefixLength = 4

// taskIDLength is the length of a full task ID as generated by the board.
const taskIDLength = 12

// ResolveTaskID resolves a task ID prefix to a full task ID.
// Returns the full ID if exactly one match is found.
// Returns an error if zero or multiple matches are found.
//
// The function handles three cases:
// 1. Input is already a full task ID (12 hex chars) - validates existence
// 2. Input is too short (< 4 chars) - returns validation error
// 3. Input is a prefix - scans known tasks and returns the unique match
func ResolveTaskID(ctx context.Context, store blackboard.Store, prefix string) (string, error) {
	// If input is already a full task ID, verify it exists and return as-is
	if len(prefix) == taskIDLength && isHex(prefix) {
		exists, err := store.Exists(ctx, prefix)
		if err != nil {
			return "", fmt.Errorf("failed to verify task existence: %w", err)
		}
		if !exists {
			return "", &NotFoundError{Prefix: prefix}
		}
		return prefix, nil
	}

	// Validate minimum length
	if len(prefix) < MinPrefixLength {
		return "", fmt.Errorf("task ID prefix must be at least %d characters (got %d)", MinPrefixLength, len(prefix))
	}

	// Scan known task IDs for matches
	ids, err := store.ListTasks(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to search for task: %w", err)
	}
	var matches []string
	for _, id := range ids {
		if strings.HasPrefix(id, prefix) {
			matches = append(matches, id)
		}
	}

	switch len(matches) {
	case 0:
		return "", &NotFoundError{Prefix: prefix}
	case 1:
		return matches[0], nil
	default:
		return "", &AmbiguousError{Prefix: prefix, Matches: matches}
	}
}

func isHex(s string) bool {
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}

// NotFoundError indicates no tasks matched the prefix.
type NotFoundError struct {
	Prefix string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no tasks found matching '%s'", e.Prefix)
}

// AmbiguousError indicates multiple tasks matched the prefix.
type AmbiguousError struct {
	Prefix  string
	Matches []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("ambiguous task ID '%s' matches %d tasks", e.Prefix, len(e.Matches))
}

// FormatAmbiguousError creates a user-friendly error message for ambiguous prefixes.
// Lists all matching task IDs (up to 10, then "...and N more").
func FormatAmbiguousError(err *AmbiguousError) string {
	msg := fmt.Sprintf("Error: ambiguous task ID '%s' matches %d tasks:\n", err.Prefix, len(err.Matches))

	displayCount := len(err.Matches)
	if displayCount > 10 {
		displayCount = 10
	}

	for i := 0; i < displayCount; i++ {
		msg += fmt.Sprintf("  %s\n", err.Matches[i])
	}

	if len(err.Matches) > 10 {
		msg += fmt.Sprintf("  ...and %d more\n", len(err.Matches)-10)
	}

	msg += "\nUse a longer prefix to uniquely identify the task."
	return msg
}

// IsNotFoundError checks if an error is a NotFoundError.
func IsNotFoundError(err error) bool {
	_, ok := err.(*NotFoundError)
	return ok
}

// IsAmbiguousError checks if an error is an AmbiguousError.
func IsAmbiguousError(err error) bool {
	_, ok := err.(*AmbiguousError)
	return ok
}
