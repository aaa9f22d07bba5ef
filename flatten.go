package graft

// flatten builds the two-vertex auxiliary graph that makes a task-valued
// task's dependents wait on the inner completion.
//
// The outer vertex depends on the original vertex. When the original
// finishes — meaning the result slot now holds the inner task — the outer's
// submit action schedules a unit of work that reads the inner task, wires
// its dependency handle into the inner vertex, and ends the inner vertex's
// preparation. The inner vertex therefore finishes only after the inner task
// has, and it is what dependents of the typed task register against. Because
// the inner task contributes its own dependency handle, arbitrary nesting
// composes transitively.
//
// The inner vertex's submit action does no real work: it only drives the
// vertex to finished so its dependents are released.
func flatten[R any](pool Pool, raw *handle, res *promise[R]) *handle {
	inner := newHandle()
	outer := newHandle()

	inner.setSubmit(func() {
		pool.Submit(inner.finish())
	})

	outer.addDependency(raw)
	outer.setSubmit(func() {
		pool.Submit(func() {
			// The original finished before this vertex was released, so the
			// slot is fulfilled. A failed or nil-valued computation leaves
			// the inner vertex with no dependencies and it finishes at once.
			v, err := res.get()
			if err == nil {
				if dep, ok := any(v).(Dependency); ok {
					if dh := dep.dependencyHandle(); dh != nil {
						inner.addDependency(dh)
					}
				}
			}
			inner.finishPreparation()
			pool.Submit(outer.finish())
		})
	})
	outer.finishPreparation()

	return inner
}
