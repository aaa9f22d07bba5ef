// Package graft layers dependency-aware task submission on top of a worker
// pool.
//
// Callers build a directed acyclic graph one submission at a time: each call
// to Submit names the previously returned tasks it depends on, and the new
// task is handed to the pool only after every one of them has finished. The
// engine itself spawns no goroutines; all work runs on the pool supplied by
// the caller, which it uses solely through the Pool capability (accept a unit
// of work and run it on some worker).
//
// # Tasks and results
//
// Submit returns a typed *Task[R]. Wait blocks until the computation has
// completed; Get additionally returns the computed value or the error the
// computation reported. Both are idempotent and safe to call from any number
// of goroutines, before or after completion.
//
// When a computation's result is itself a task, the returned task is
// flattened for dependency purposes: anything that depends on it is released
// only once the inner task has finished, and Value (or Await) resolves
// through every level of nesting to the innermost value.
//
// # Failure
//
// A computation that returns an error, or panics, still counts as completed:
// the failure is captured in the task's result slot and dependents run
// normally (typically failing themselves when they read the predecessor's
// value). The failure surfaces on Get. Nothing is retried.
//
// # Task groups
//
// A TaskGroup ties a set of submissions to a scope. Join blocks until every
// task submitted through the group has finished; the conventional use is
//
//	g := graft.NewTaskGroup(pool)
//	defer g.Join()
//
// # Acyclicity
//
// The engine does not detect cycles; constructing one is a contract
// violation that leaves the involved tasks waiting forever. BuildPlan offers
// a validated batch front-end for callers who want the check.
package graft
