package graft

import (
	"log/slog"
	"sync"
)

// TaskGroup ties a set of submissions to a scope: Join blocks until every
// task submitted through the group has finished. The conventional use is
//
//	g := graft.NewTaskGroup(pool)
//	defer g.Join()
//	t := graft.SubmitIn(g, nil, compute)
//
// Tasks returned from group submissions may outlive the group for value
// retrieval, but not for new scheduling: submitting through a group whose
// Join has returned simply re-arms the barrier, so the owner must not Join
// concurrently with submissions it wants covered.
//
// A TaskGroup must not be copied after first use.
type TaskGroup struct {
	pool     Pool
	observer EventHandler
	logger   *slog.Logger

	mu     sync.Mutex
	cond   sync.Cond
	active int
}

// GroupOption configures a TaskGroup at construction time.
type GroupOption func(*TaskGroup)

// WithGroupObserver attaches a handler for the lifecycle events of every
// task submitted through the group. Per-submission observers compose with it.
func WithGroupObserver(h EventHandler) GroupOption {
	return func(g *TaskGroup) {
		g.observer = h
	}
}

// WithGroupLogger attaches a logger recording the lifecycle of every task
// submitted through the group at debug level.
func WithGroupLogger(l *slog.Logger) GroupOption {
	return func(g *TaskGroup) {
		g.logger = l
	}
}

// NewTaskGroup creates a group whose submissions all run on pool.
func NewTaskGroup(pool Pool, opts ...GroupOption) *TaskGroup {
	if pool == nil {
		panic("graft: nil pool")
	}
	g := &TaskGroup{pool: pool}
	g.cond.L = &g.mu
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// SubmitIn submits fn through g with the same semantics as Submit, and
// additionally counts the task toward the group's barrier.
//
// It is a package function rather than a method because Go methods cannot
// introduce type parameters.
func SubmitIn[R any](g *TaskGroup, deps []Dependency, fn func() (R, error), opts ...SubmitOption) *Task[R] {
	if fn == nil {
		panic("graft: nil computation")
	}
	cfg := g.submitConfig(opts)
	// The barrier covers the task from before its submit action exists, so
	// the count can never be observed short of an in-flight submission.
	g.enter()
	return newTask(g.pool, deps, fn, g.leave, cfg)
}

// SubmitVoid submits a side-effect-only computation through the group.
func (g *TaskGroup) SubmitVoid(deps []Dependency, fn func() error, opts ...SubmitOption) *Task[Void] {
	if fn == nil {
		panic("graft: nil computation")
	}
	return SubmitIn(g, deps, func() (Void, error) { return Void{}, fn() }, opts...)
}

// Join blocks until every task submitted through the group has finished.
func (g *TaskGroup) Join() {
	g.mu.Lock()
	for g.active > 0 {
		g.cond.Wait()
	}
	g.mu.Unlock()
}

// Active reports the number of submitted-but-not-yet-completed tasks.
func (g *TaskGroup) Active() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}

func (g *TaskGroup) submitConfig(opts []SubmitOption) submitConfig {
	cfg := submitConfig{observer: g.observer, logger: g.logger}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

func (g *TaskGroup) enter() {
	g.mu.Lock()
	g.active++
	g.mu.Unlock()
}

// leave runs on a worker as the task's post-completion hook. The broadcast
// happens after unlock; the group lock is never held while signalling.
func (g *TaskGroup) leave() {
	g.mu.Lock()
	if g.active == 0 {
		g.mu.Unlock()
		panic("graft: task group completion without matching submission")
	}
	g.active--
	release := g.active == 0
	g.mu.Unlock()
	if release {
		g.cond.Broadcast()
	}
}
