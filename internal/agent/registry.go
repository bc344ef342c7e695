package agent

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// ErrDuplicateAgent is returned when registering a name that is taken.
var ErrDuplicateAgent = errors.New("agent already registered")

// Registry holds the specialist agents available to the conductor.
// Listings preserve registration order so the routing prompt is stable.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]Capability
	order  []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{agents: map[string]Capability{}}
}

// Register adds an agent. Names are unique; registering a taken name
// returns ErrDuplicateAgent.
func (r *Registry) Register(c Capability) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := c.Name()
	if _, exists := r.agents[name]; exists {
		return fmt.Errorf("agent %q: %w", name, ErrDuplicateAgent)
	}
	r.agents[name] = c
	r.order = append(r.order, name)

	slog.Info("registered agent", "name", name, "description", c.Description())
	return nil
}

// Get looks up an agent by name.
func (r *Registry) Get(name string) (Capability, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.agents[name]
	return c, ok
}

// List returns all agents in registration order.
func (r *Registry) List() []Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Capability, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.agents[name])
	}
	return out
}

// Names returns the registered agent names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]string(nil), r.order...)
}

// Len reports the number of registered agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.agents)
}

// DescribeAll renders the agent roster for the conductor's system prompt:
// one bolded name-and-description line per agent plus its advertised
// reads and writes.
func (r *Registry) DescribeAll() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.agents) == 0 {
		return "(No agents registered)"
	}

	var lines []string
	for _, name := range r.order {
		c := r.agents[name]
		lines = append(lines, fmt.Sprintf("- **%s**: %s", c.Name(), c.Description()))
		if inputs := c.InputFields(); len(inputs) > 0 {
			lines = append(lines, fmt.Sprintf("  Reads: %s", strings.Join(inputs, ", ")))
		}
		if outputs := c.OutputFields(); len(outputs) > 0 {
			lines = append(lines, fmt.Sprintf("  Writes: %s", strings.Join(outputs, ", ")))
		}
	}
	return strings.Join(lines, "\n")
}
