package graft

import (
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
)

// Pool is the capability the engine consumes from a worker pool: accept a
// unit of work and execute it on some worker goroutine at an unspecified
// future time.
//
// Submit must not block indefinitely on pool-internal backpressure: the
// engine resubmits follow-up units (dependent notification) from inside
// running units, so a pool whose Submit can block on a full bounded queue
// can deadlock it. The workerpool package provides a conforming
// implementation; tests may substitute a synchronous in-line pool.
type Pool interface {
	Submit(unit func())
}

// SubmitOption configures a single submission.
type SubmitOption func(*submitConfig)

type submitConfig struct {
	name     string
	observer EventHandler
	logger   *slog.Logger
}

// WithName attaches a human-readable name to the submission, carried in
// lifecycle events and log records.
func WithName(name string) SubmitOption {
	return func(c *submitConfig) {
		c.name = name
	}
}

// WithObserver attaches a handler for the submission's lifecycle events.
//
// Handlers must be concurrency-safe; HandleEvent is called from worker
// goroutines. Repeated use composes handlers in order.
func WithObserver(h EventHandler) SubmitOption {
	return func(c *submitConfig) {
		if h != nil {
			c.observer = combineHandlers(c.observer, h)
		}
	}
}

// WithLogger attaches a logger that records the submission's lifecycle at
// debug level.
func WithLogger(l *slog.Logger) SubmitOption {
	return func(c *submitConfig) {
		c.logger = l
	}
}

func (c *submitConfig) observed() bool {
	return c.observer != nil || c.logger != nil
}

func (c *submitConfig) emit(e Event) {
	if c.observer != nil {
		c.observer.HandleEvent(e)
	}
	if c.logger != nil {
		c.logger.Debug("task "+e.Type.String(),
			slog.String("task_id", e.TaskID),
			slog.String("name", e.Name),
			slog.Any("err", e.Err),
		)
	}
}

// Submit packages fn as a task that runs on pool once every task in deps has
// finished, and returns the typed handle to its eventual result.
//
// deps may be nil or empty; dependencies that have already finished are
// wired for free. fn runs exactly once, on some worker goroutine, and is
// never retried. If R is itself a task type, the returned task is flattened:
// its dependents wait for the innermost completion (see Task.Value).
//
// The dependency graph must stay acyclic; that is the caller's contract.
func Submit[R any](pool Pool, deps []Dependency, fn func() (R, error), opts ...SubmitOption) *Task[R] {
	var cfg submitConfig
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return newTask(pool, deps, fn, nil, cfg)
}

// SubmitVoid is Submit for computations that produce no value.
func SubmitVoid(pool Pool, deps []Dependency, fn func() error, opts ...SubmitOption) *Task[Void] {
	if fn == nil {
		panic("graft: nil computation")
	}
	return Submit(pool, deps, func() (Void, error) { return Void{}, fn() }, opts...)
}

// newTask is the submission front-end shared by Submit and the task group:
// build the vertex, wire dependencies against the predecessors' dependency
// handles, install the submit action, finish preparation, return the task.
//
// post, when non-nil, runs on the worker after the task has finished and its
// dependents' notification has been scheduled; the task group uses it to
// retire the submission from its barrier.
func newTask[R any](pool Pool, deps []Dependency, fn func() (R, error), post func(), cfg submitConfig) *Task[R] {
	if pool == nil {
		panic("graft: nil pool")
	}
	if fn == nil {
		panic("graft: nil computation")
	}

	res := newPromise[R]()
	h := newHandle()

	for _, dep := range deps {
		if dep == nil {
			continue
		}
		if dh := dep.dependencyHandle(); dh != nil {
			h.addDependency(dh)
		}
	}

	var id string
	if cfg.observed() {
		id = uuid.NewString()
	}

	h.setSubmit(func() {
		if cfg.observed() {
			cfg.emit(Event{Type: EventTaskSubmitted, Time: time.Now(), TaskID: id, Name: cfg.name})
		}
		pool.Submit(func() {
			if cfg.observed() {
				cfg.emit(Event{Type: EventTaskStarted, Time: time.Now(), TaskID: id, Name: cfg.name})
			}

			v, err := runComputation(fn)

			// Fulfil before finish, notify after fulfil: a dependent woken by
			// the notification must observe a fulfilled slot.
			res.fulfill(v, err)
			notify := h.finish()

			if cfg.observed() {
				cfg.emit(Event{Type: EventTaskFinished, Time: time.Now(), TaskID: id, Name: cfg.name, Err: err})
			}

			// The notification is its own unit of work so a long dependency
			// chain is not serviced by one worker's growing call stack, and
			// so this worker frees up for other ready work.
			pool.Submit(notify)

			if post != nil {
				post()
			}
		})
	})

	t := &Task[R]{raw: h, nested: h, res: res}
	if isTaskValued[R]() {
		t.nested = flatten(pool, h, res)
	}

	h.finishPreparation()
	return t
}

// runComputation invokes fn, converting a panic into a *PanicError so the
// failure travels through the result slot like any other error.
func runComputation[R any](fn func() (R, error)) (v R, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn()
}
