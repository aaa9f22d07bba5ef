package graft

import "fmt"

// Void is the result type of tasks submitted for their side effects.
type Void = struct{}

// Dependency is the wiring-side view of a task: something a later submission
// can name as a predecessor. Only tasks produced by this package satisfy it.
//
// For an ordinary task the dependency handle is the task's own vertex. For a
// task whose value is itself a task, it is the flattened inner vertex, so
// that dependents are released only once the innermost computation has
// finished.
type Dependency interface {
	dependencyHandle() *handle
}

// Valuer is the retrieval-side view of a task: Value resolves through any
// nesting to the innermost value. See Await for the typed form.
type Valuer interface {
	Value() (any, error)
}

// Task pairs a vertex of the dependency graph with the shared result slot of
// its computation.
//
// A Task is safe for concurrent use. Wait, Get, and Value may be called any
// number of times, from any number of goroutines, before or after the
// computation completes.
type Task[R any] struct {
	// raw is the vertex whose computation produces this task's value.
	raw *handle
	// nested is the vertex dependents register against. Equal to raw unless
	// R is itself a task type, in which case it is the flattened inner
	// vertex (see flatten.go).
	nested *handle
	// res is fulfilled exactly once by the worker running the computation.
	res *promise[R]
}

// Wait blocks until the computation has completed, successfully or not.
// For a task-valued task, Wait waits through the nesting: it returns only
// once the innermost computation has completed too.
func (t *Task[R]) Wait() {
	if t == nil {
		return
	}
	v, err := t.res.get()
	if err != nil {
		return
	}
	if inner, ok := any(v).(interface{ Wait() }); ok {
		inner.Wait()
	}
}

// Get waits and returns the computed value, or the error (or recovered
// panic, as *PanicError) the computation produced.
//
// For a task-valued task, Get returns the outer value — the inner task
// itself; use Value or Await for the fully resolved result.
func (t *Task[R]) Get() (R, error) {
	return t.res.get()
}

// Fulfilled reports, without blocking, whether the computation has
// completed and its result is readable.
func (t *Task[R]) Fulfilled() bool {
	return t.res.fulfilled()
}

// Value waits, transitively through any nesting, and returns the innermost
// value. A nil task resolves to a nil value.
func (t *Task[R]) Value() (any, error) {
	if t == nil {
		return nil, nil
	}
	v, err := t.res.get()
	if err != nil {
		return nil, err
	}
	if inner, ok := any(v).(Valuer); ok {
		return inner.Value()
	}
	return v, nil
}

func (t *Task[R]) dependencyHandle() *handle {
	if t == nil {
		return nil
	}
	return t.nested
}

// Await resolves t's innermost value and asserts its type.
//
// It is the typed companion to Valuer.Value, in the same spirit as loading a
// result by expected type:
//
//	n, err := graft.Await[int](fibTask)
func Await[V any](t Valuer) (V, error) {
	var zero V
	if t == nil {
		return zero, fmt.Errorf("graft: await on nil task")
	}
	v, err := t.Value()
	if err != nil {
		return zero, err
	}
	typed, ok := v.(V)
	if !ok {
		return zero, fmt.Errorf("graft: awaited value is %T, not %T", v, zero)
	}
	return typed, nil
}

// isTaskValued reports whether R is itself a task type, decided statically
// from the type's method set rather than from any particular value.
func isTaskValued[R any]() bool {
	var zero R
	_, ok := any(zero).(Dependency)
	return ok
}
