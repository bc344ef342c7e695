package blackboard

import "fmt"

// Redis key pattern helpers
//
// All Redis keys and Pub/Sub channels are namespaced to enable multiple
// Baton deployments to safely coexist on a single Redis server.
//
// Key pattern: baton:{namespace}:{entity}:{id}
// Channel pattern: baton:{namespace}:{event_type}_events

// TaskKey returns the Redis key for a task's serialized state.
// Pattern: baton:{namespace}:task:{task_id}
func TaskKey(namespace, taskID string) string {
	return fmt.Sprintf("baton:%s:task:%s", namespace, taskID)
}

// TasksKey returns the Redis key for the set of known task IDs.
// Pattern: baton:{namespace}:tasks
func TasksKey(namespace string) string {
	return fmt.Sprintf("baton:%s:tasks", namespace)
}

// TaskEventsChannel returns the Pub/Sub channel name for task events.
// Every save publishes a TaskEvent here for real-time monitoring.
// Pattern: baton:{namespace}:task_events
func TaskEventsChannel(namespace string) string {
	return fmt.Sprintf("baton:%s:task_events", namespace)
}
