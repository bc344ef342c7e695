package blackboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrTaskNotFound indicates the requested task ID has no saved state.
// Both store implementations return it from Load so callers can use
// IsNotFound without knowing which backend is active.
var ErrTaskNotFound = errors.New("task not found")

// IsNotFound reports whether err indicates a missing task.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTaskNotFound)
}

// Store persists complete task states keyed by task ID.
//
// Save overwrites the entire record; there is no merge or partial update.
// The Board calls Save after every mutation (write-through), so a Store
// only needs last-write-wins semantics per task ID.
type Store interface {
	// Save persists the full state, overwriting any prior value.
	Save(ctx context.Context, state *TaskState) error

	// Load retrieves a task's state. Returns ErrTaskNotFound when absent.
	Load(ctx context.Context, taskID string) (*TaskState, error)

	// Exists reports whether a task has saved state.
	Exists(ctx context.Context, taskID string) (bool, error)

	// ListTasks returns all known task IDs, sorted.
	ListTasks(ctx context.Context) ([]string, error)

	// Close releases backend resources.
	Close() error
}

// MemoryStore is a process-lifetime Store for tests and runs that do not
// need durability. States are held as serialized JSON so that save/load
// round-trips exercise the same encoding path as the durable backend.
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks: make(map[string][]byte),
	}
}

// Save persists the full state, overwriting any prior value.
func (s *MemoryStore) Save(ctx context.Context, state *TaskState) error {
	if state.TaskID == "" {
		return fmt.Errorf("cannot save task with empty ID")
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to serialize task %s: %w", state.TaskID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[state.TaskID] = data
	return nil
}

// Load retrieves a task's state. Returns ErrTaskNotFound when absent.
func (s *MemoryStore) Load(ctx context.Context, taskID string) (*TaskState, error) {
	s.mu.RLock()
	data, ok := s.tasks[taskID]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("task %s: %w", taskID, ErrTaskNotFound)
	}

	var state TaskState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to deserialize task %s: %w", taskID, err)
	}
	return &state, nil
}

// Exists reports whether a task has saved state.
func (s *MemoryStore) Exists(ctx context.Context, taskID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.tasks[taskID]
	return ok, nil
}

// ListTasks returns all known task IDs, sorted.
func (s *MemoryStore) ListTasks(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.tasks))
	for id := range s.tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}
