package graft

import (
	"sync"
	"sync/atomic"
	"testing"
)

// finishedHandle drives a fresh handle through its whole lifecycle.
func finishedHandle() *handle {
	h := newHandle()
	h.setSubmit(func() {})
	h.finishPreparation()
	h.finish()()
	return h
}

// submittedHandle returns a handle parked in the submitted state.
func submittedHandle() *handle {
	h := newHandle()
	h.setSubmit(func() {})
	h.finishPreparation()
	return h
}

func mustPanic(t *testing.T, name string, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Fatalf("%s: expected panic", name)
		}
	}()
	fn()
}

func TestHandle_NoDependenciesSubmitsOnFinishPreparation(t *testing.T) {
	h := newHandle()

	var calls atomic.Int32
	h.setSubmit(func() { calls.Add(1) })

	if got := calls.Load(); got != 0 {
		t.Fatalf("submit action invoked %d times before finishPreparation", got)
	}

	h.finishPreparation()

	if got := calls.Load(); got != 1 {
		t.Fatalf("submit action invoked %d times, want 1", got)
	}
	if h.state != stateSubmitted {
		t.Fatalf("state = %s, want %s", h.state, stateSubmitted)
	}
}

func TestHandle_RegisterDependentOnFinishedReportsDone(t *testing.T) {
	p := finishedHandle()
	d := newHandle()

	if p.registerDependent(d) {
		t.Fatal("registerDependent on a finished handle reported queued")
	}
	if len(p.dependents) != 0 {
		t.Fatalf("finished handle holds %d dependents, want 0", len(p.dependents))
	}
}

func TestHandle_PostponedZeroWaitsForFinishPreparation(t *testing.T) {
	// Every registered dependency is already finished: the count stays at
	// zero throughout wiring, and nothing may submit until the front-end
	// says preparation is over.
	p1 := finishedHandle()
	p2 := finishedHandle()

	h := newHandle()
	var calls atomic.Int32
	h.setSubmit(func() { calls.Add(1) })

	h.addDependency(p1)
	h.addDependency(p2)

	if h.depsLeft != 0 {
		t.Fatalf("depsLeft = %d, want 0", h.depsLeft)
	}
	if got := calls.Load(); got != 0 {
		t.Fatalf("submit action invoked %d times during wiring", got)
	}

	h.finishPreparation()

	if got := calls.Load(); got != 1 {
		t.Fatalf("submit action invoked %d times, want 1", got)
	}
}

func TestHandle_WaitsUntilLastDependencyRemoved(t *testing.T) {
	p1 := submittedHandle()
	p2 := submittedHandle()

	h := newHandle()
	var calls atomic.Int32
	h.setSubmit(func() { calls.Add(1) })
	h.addDependency(p1)
	h.addDependency(p2)
	h.finishPreparation()

	if h.state != stateWaiting {
		t.Fatalf("state = %s, want %s", h.state, stateWaiting)
	}

	p1.finish()()
	if got := calls.Load(); got != 0 {
		t.Fatalf("submitted after %d of 2 dependencies finished", got)
	}

	p2.finish()()
	if got := calls.Load(); got != 1 {
		t.Fatalf("submit action invoked %d times, want 1", got)
	}
	if h.state != stateSubmitted {
		t.Fatalf("state = %s, want %s", h.state, stateSubmitted)
	}
}

func TestHandle_SingleSubmissionUnderConcurrentReleases(t *testing.T) {
	const preds = 32

	h := newHandle()
	var calls atomic.Int32
	h.setSubmit(func() { calls.Add(1) })

	notifiers := make([]func(), 0, preds)
	for i := 0; i < preds; i++ {
		p := submittedHandle()
		h.addDependency(p)
		notifiers = append(notifiers, p.finish())
	}
	h.finishPreparation()

	var wg sync.WaitGroup
	for _, notify := range notifiers {
		notify := notify
		wg.Add(1)
		go func() {
			defer wg.Done()
			notify()
		}()
	}
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("submit action invoked %d times, want exactly 1", got)
	}
}

func TestHandle_FinishClearsDependentsAndReleasesThem(t *testing.T) {
	p := submittedHandle()

	d := newHandle()
	var calls atomic.Int32
	d.setSubmit(func() { calls.Add(1) })
	d.addDependency(p)
	d.finishPreparation()

	notify := p.finish()

	if p.state != stateFinished {
		t.Fatalf("state = %s, want %s", p.state, stateFinished)
	}
	if p.dependents != nil {
		t.Fatal("dependents not cleared on finish")
	}
	// The dependent must not be released before the deferred notification
	// actually runs.
	if got := calls.Load(); got != 0 {
		t.Fatal("dependent released before the deferred notification ran")
	}

	notify()
	if got := calls.Load(); got != 1 {
		t.Fatalf("dependent submit action invoked %d times, want 1", got)
	}
}

func TestHandle_ContractViolationsPanic(t *testing.T) {
	mustPanic(t, "double setSubmit", func() {
		h := newHandle()
		h.setSubmit(func() {})
		h.setSubmit(func() {})
	})

	mustPanic(t, "nil submit action", func() {
		newHandle().setSubmit(nil)
	})

	mustPanic(t, "addDependency after finishPreparation", func() {
		h := submittedHandle()
		h.addDependency(submittedHandle())
	})

	mustPanic(t, "finishPreparation twice", func() {
		h := submittedHandle()
		h.finishPreparation()
	})

	mustPanic(t, "finish before submission", func() {
		h := newHandle()
		h.setSubmit(func() {})
		h.finish()
	})

	mustPanic(t, "removeDependency without registration", func() {
		newHandle().removeDependency()
	})

	mustPanic(t, "eligible with no submit action", func() {
		newHandle().finishPreparation()
	})
}

func TestPromise_FulfillPublishesToAllWaiters(t *testing.T) {
	p := newPromise[int]()

	if p.fulfilled() {
		t.Fatal("fresh promise reports fulfilled")
	}

	const waiters = 8
	got := make([]int, waiters)
	var wg sync.WaitGroup
	for i := 0; i < waiters; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := p.get()
			if err != nil {
				t.Errorf("waiter %d: unexpected error %v", i, err)
			}
			got[i] = v
		}()
	}

	p.fulfill(42, nil)
	wg.Wait()

	for i, v := range got {
		if v != 42 {
			t.Fatalf("waiter %d observed %d, want 42", i, v)
		}
	}
	if !p.fulfilled() {
		t.Fatal("fulfilled promise reports unfulfilled")
	}
}
