// Package blackboard provides type-safe Go definitions and persistence
// contracts for the Baton blackboard architecture.
//
// # Overview
//
// The blackboard is the single shared task state through which the conductor
// and all specialist agents collaborate. It implements the Blackboard
// architectural pattern - independent agents never message each other
// directly; they read from and write to one mutable record, and the
// conductor schedules who acts next by inspecting a bounded projection
// of that record.
//
// # Core Concepts
//
// TaskState is the root aggregate: objective, lifecycle status, the
// workspace (named artifact fields), the hypothesis thread, at most one
// active consensus cycle, the hot/warm memory tiers, and the append-only
// status and invocation logs.
//
// The Board is the only mutation surface. Every mutating call persists the
// full state to the configured Store before returning, so the store always
// holds the latest version and a crashed run can be resumed by task ID.
//
// Consensus is the write-review-revise sub-protocol: one workspace field at
// a time is placed under review, reviewers submit APPROVED or REJECTED
// verdicts, and the cycle always converges to approval - genuinely, or
// forced once the iteration cap is reached.
//
// Memory tiers bound the conductor's view of accumulated work. Every
// workspace field is in exactly one tier: hot (live value, recently
// written), warm (compressed to a short summary), or absent.
//
// # Storage Backends
//
// Two Store implementations exist behind one interface: MemoryStore for
// tests and ephemeral runs, and RedisStore for durable state that survives
// process restarts. Core logic never branches on which is active.
//
// # Usage Example
//
//	import "github.com/hebbzhu/baton/pkg/blackboard"
//
//	store := blackboard.NewMemoryStore()
//	board := blackboard.NewBoard(store)
//
//	state, err := board.Initialize(ctx, "Build a REST API", nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	// Agents write artifacts to the workspace
//	if err := board.WriteWorkspace(ctx, "plan", planJSON); err != nil {
//		log.Fatal(err)
//	}
//
//	// Place an artifact under review
//	if _, err := board.StartConsensus(ctx, "plan", 3); err != nil {
//		log.Fatal(err)
//	}
//
// # Redis Schema
//
// All Redis keys follow the pattern: baton:{namespace}:{entity}
//
// Task state: baton:{namespace}:task:{task_id} (JSON string)
// Task ID set: baton:{namespace}:tasks
//
// Pub/Sub channels: baton:{namespace}:task_events carries a TaskEvent
// after every save, for live monitoring.
//
// # Design Principles
//
// - Type Safety: All data structures have strong typing with validation methods
// - Write-Through: Every mutation persists the full state before returning
// - Auditability: Status history and invocation log are append-only
// - Convergence: Consensus cycles always end approved, never deadlocked
// - Isolation: Namespacing prevents cross-deployment interference in Redis
package blackboard
