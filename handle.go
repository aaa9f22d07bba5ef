package graft

import "sync"

// handleState is the lifecycle of a vertex in the dependency graph.
//
// The state is authoritative: eligibility decisions are never inferred from
// the dependency counter alone, because a handle whose counter is zero may
// still be collecting dependencies (see removeDependency).
type handleState uint8

const (
	// statePreparing: the front-end is still wiring dependencies and the
	// submit action.
	statePreparing handleState = iota
	// stateWaiting: preparation is done but at least one dependency has not
	// finished.
	stateWaiting
	// stateSubmitted: the submit action has run; the packaged computation is
	// owned by the worker pool.
	stateSubmitted
	// stateFinished: the computation returned and the dependents list has
	// been moved out for the deferred notification (see finish).
	stateFinished
)

func (s handleState) String() string {
	switch s {
	case statePreparing:
		return "preparing"
	case stateWaiting:
		return "waiting"
	case stateSubmitted:
		return "submitted"
	case stateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// handle is a vertex of the dependency graph. Edges are the strong references
// held in dependents: a predecessor points at every successor it must release.
//
// All fields are guarded by mu. No method invokes the submit action, touches
// the worker pool, or calls into another handle's exported behavior while
// holding mu; decisions are snapshotted under the lock and acted on after
// unlock. The single exception is addDependency, which takes the
// predecessor's lock while holding the successor's: during wiring the
// successor is still owned exclusively by the submitting goroutine, and no
// handle method calls out to another handle with its own lock held, so the
// ordering cannot form a cycle on an acyclic graph.
type handle struct {
	mu         sync.Mutex
	state      handleState
	depsLeft   int
	dependents []*handle
	submit     func()
}

func newHandle() *handle {
	return &handle{state: statePreparing}
}

// registerDependent enlists d to be released when this handle finishes.
//
// It reports false if this handle has already finished, in which case the
// caller must not count it as outstanding.
func (h *handle) registerDependent(d *handle) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == stateFinished {
		return false
	}
	h.dependents = append(h.dependents, d)
	return true
}

// addDependency wires p as a predecessor of h. Only legal while preparing.
//
// If p has already finished the counter is left alone; the zero it leaves
// behind must not trigger submission until finishPreparation runs.
func (h *handle) addDependency(p *handle) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != statePreparing {
		panic("graft: add dependency on a " + h.state.String() + " task")
	}
	if p.registerDependent(h) {
		h.depsLeft++
	}
}

// setSubmit installs the single-shot action that hands the packaged
// computation to the worker pool. Installed exactly once, while preparing.
func (h *handle) setSubmit(submit func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != statePreparing {
		panic("graft: install submit action on a " + h.state.String() + " task")
	}
	if h.submit != nil {
		panic("graft: submit action installed twice")
	}
	if submit == nil {
		panic("graft: nil submit action")
	}
	h.submit = submit
}

// finishPreparation ends the wiring phase. If every registered dependency has
// already finished, the submit action runs now (outside the lock); otherwise
// the handle waits for removeDependency to release it.
func (h *handle) finishPreparation() {
	h.mu.Lock()
	if h.state != statePreparing {
		h.mu.Unlock()
		panic("graft: finish preparation on a " + h.state.String() + " task")
	}
	var run func()
	if h.depsLeft == 0 {
		run = h.takeSubmitLocked()
	} else {
		h.state = stateWaiting
	}
	h.mu.Unlock()
	if run != nil {
		run()
	}
}

// removeDependency is invoked by a predecessor when it finishes. The handle
// whose last outstanding dependency clears is submitted, unless it is still
// preparing; then the zero is postponed and finishPreparation submits.
func (h *handle) removeDependency() {
	h.mu.Lock()
	if h.depsLeft == 0 {
		h.mu.Unlock()
		panic("graft: dependency removed but none outstanding")
	}
	h.depsLeft--
	var run func()
	if h.depsLeft == 0 && h.state == stateWaiting {
		run = h.takeSubmitLocked()
	}
	h.mu.Unlock()
	if run != nil {
		run()
	}
}

// takeSubmitLocked claims the submit action and marks the handle submitted.
// Pairing the claim with the transition under one critical section is what
// makes the action single-shot; the caller invokes it after unlocking.
func (h *handle) takeSubmitLocked() func() {
	if h.submit == nil {
		panic("graft: task became eligible with no submit action installed")
	}
	run := h.submit
	h.submit = nil
	h.state = stateSubmitted
	return run
}

// finish marks the handle finished and returns the deferred notification
// that releases every dependent. The two steps are separate so the caller
// can make the task's result visible before any dependent is woken; the
// returned func must be invoked exactly once, with no locks held.
//
// Moving the dependents list out also drops the handle's strong references
// to its successors the moment it terminates.
func (h *handle) finish() func() {
	h.mu.Lock()
	if h.state != stateSubmitted {
		panic("graft: finish on a " + h.state.String() + " task")
	}
	h.state = stateFinished
	dependents := h.dependents
	h.dependents = nil
	h.mu.Unlock()
	return func() {
		for _, d := range dependents {
			d.removeDependency()
		}
	}
}
