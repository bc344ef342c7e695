package blackboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TaskEvent is the payload published on the task events channel after every
// successful save. Watchers consume these for live monitoring; the full state
// is deliberately not included to keep events small.
type TaskEvent struct {
	TaskID    string       `json:"task_id"`
	Status    GlobalStatus `json:"status"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// RedisStore is a durable Store backed by Redis. Task states are stored as
// JSON strings keyed per task, with a set of known task IDs for listing.
// All keys and channels are namespaced so multiple deployments can share a
// Redis server. The store is safe for concurrent use.
type RedisStore struct {
	rdb       *redis.Client
	namespace string
}

// NewRedisStore creates a Redis-backed store for the given namespace.
// Returns an error if namespace is empty.
func NewRedisStore(redisOpts *redis.Options, namespace string) (*RedisStore, error) {
	if namespace == "" {
		return nil, fmt.Errorf("namespace cannot be empty")
	}

	return &RedisStore{
		rdb:       redis.NewClient(redisOpts),
		namespace: namespace,
	}, nil
}

// Ping verifies Redis connectivity. Useful for health checks.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection. Implements io.Closer.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

// Save persists the full state as JSON, registers the task ID in the task
// set, and publishes a TaskEvent. The write is a whole-record overwrite.
func (s *RedisStore) Save(ctx context.Context, state *TaskState) error {
	if state.TaskID == "" {
		return fmt.Errorf("cannot save task with empty ID")
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to serialize task %s: %w", state.TaskID, err)
	}

	key := TaskKey(s.namespace, state.TaskID)
	if err := s.rdb.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to write task to Redis: %w", err)
	}

	if err := s.rdb.SAdd(ctx, TasksKey(s.namespace), state.TaskID).Err(); err != nil {
		return fmt.Errorf("failed to register task ID: %w", err)
	}

	event := TaskEvent{
		TaskID:    state.TaskID,
		Status:    state.Status,
		UpdatedAt: state.UpdatedAt,
	}
	eventJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal task event: %w", err)
	}

	channel := TaskEventsChannel(s.namespace)
	if err := s.rdb.Publish(ctx, channel, eventJSON).Err(); err != nil {
		return fmt.Errorf("failed to publish task event: %w", err)
	}

	return nil
}

// Load retrieves a task's state. Returns ErrTaskNotFound when absent.
func (s *RedisStore) Load(ctx context.Context, taskID string) (*TaskState, error) {
	key := TaskKey(s.namespace, taskID)

	data, err := s.rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("task %s: %w", taskID, ErrTaskNotFound)
		}
		return nil, fmt.Errorf("failed to read task from Redis: %w", err)
	}

	var state TaskState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return nil, fmt.Errorf("failed to deserialize task %s: %w", taskID, err)
	}
	return &state, nil
}

// Exists reports whether a task has saved state.
func (s *RedisStore) Exists(ctx context.Context, taskID string) (bool, error) {
	key := TaskKey(s.namespace, taskID)
	exists, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check task existence: %w", err)
	}
	return exists > 0, nil
}

// ListTasks returns all known task IDs, sorted.
func (s *RedisStore) ListTasks(ctx context.Context) ([]string, error) {
	ids, err := s.rdb.SMembers(ctx, TasksKey(s.namespace)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// Subscription represents an active Pub/Sub subscription to task events.
// Caller must call Close() when done to clean up resources.
type Subscription struct {
	events <-chan *TaskEvent
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of task events.
// The channel is closed when the subscription closes or the context is cancelled.
func (s *Subscription) Events() <-chan *TaskEvent {
	return s.events
}

// Errors returns the channel of subscription errors.
// Errors include JSON unmarshaling failures and other non-fatal issues.
// The subscription continues after errors - messages are skipped.
func (s *Subscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription and cleans up resources. Implements io.Closer.
// Safe to call multiple times - subsequent calls are no-ops.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// Subscribe listens for task events in this namespace.
// Returns a Subscription delivering TaskEvent objects.
// Caller must call subscription.Close() when done.
// Context cancellation also stops the subscription.
//
// Events are delivered on a buffered channel (size 10) to prevent blocking.
// If the subscriber is too slow, events may be dropped by Redis Pub/Sub
// (at-most-once delivery).
func (s *RedisStore) Subscribe(ctx context.Context) (*Subscription, error) {
	channel := TaskEventsChannel(s.namespace)
	pubsub := s.rdb.Subscribe(ctx, channel)

	eventsChan := make(chan *TaskEvent, 10)
	errorsChan := make(chan error, 10)

	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()

		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var event TaskEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					select {
					case errorsChan <- fmt.Errorf("failed to unmarshal task event: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case eventsChan <- &event:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &Subscription{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancelFunc,
	}, nil
}
