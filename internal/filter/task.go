package filter

import (
	"path/filepath"
	"time"

	"github.com/hebbzhu/baton/pkg/blackboard"
)

// Criteria defines filtering criteria for task listings.
// All filters are ANDed together - a task must match ALL criteria to pass.
type Criteria struct {
	Since      time.Time // Lower bound on UpdatedAt, zero = no filter
	Until      time.Time // Upper bound on UpdatedAt, zero = no filter
	StatusGlob string    // Glob pattern for status, empty = no filter
	Agent      string    // Exact match on an invoked agent name, empty = no filter
}

// Matches returns true if the task matches all filter criteria.
// Empty/zero criteria values are treated as "match all" for that criterion.
func (c *Criteria) Matches(state *blackboard.TaskState) bool {
	// Time filtering - check UpdatedAt field
	if !c.Since.IsZero() && state.UpdatedAt.Before(c.Since) {
		return false
	}
	if !c.Until.IsZero() && state.UpdatedAt.After(c.Until) {
		return false
	}

	// Status filtering - glob pattern matching
	if c.StatusGlob != "" {
		matched, err := filepath.Match(c.StatusGlob, string(state.Status))
		if err != nil || !matched {
			return false
		}
	}

	// Agent filtering - task passes when any invocation names the agent
	if c.Agent != "" {
		invoked := false
		for _, record := range state.Invocations {
			if record.AgentName == c.Agent {
				invoked = true
				break
			}
		}
		if !invoked {
			return false
		}
	}

	return true
}

// HasFilters returns true if any filters are active.
func (c *Criteria) HasFilters() bool {
	return !c.Since.IsZero() ||
		!c.Until.IsZero() ||
		c.StatusGlob != "" ||
		c.Agent != ""
}
