// Package workerpool provides a fixed-size worker pool satisfying the
// engine's consumed Pool capability: accept a unit of work, run it on some
// worker goroutine.
//
// The queue is unbounded and Submit never blocks. That is load-bearing for
// the engine, which schedules follow-up units (dependent notification) from
// inside running units; a bounded queue whose Submit blocks when full could
// deadlock a busy pool against itself.
package workerpool

import (
	"context"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("graft.workerpool")

// Option configures a Pool at construction time.
type Option func(*Pool)

// WithLogger attaches a logger for pool lifecycle and per-unit debug logs.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pool) {
		p.logger = l
	}
}

// Pool runs submitted units of work on a fixed number of worker goroutines.
//
// Units are dequeued in FIFO order, though nothing about completion order is
// guaranteed once more than one worker runs. A Pool must not be copied.
type Pool struct {
	id      string
	workers int
	logger  *slog.Logger

	mu       sync.Mutex
	cond     sync.Cond
	queue    []func()
	draining bool
	stopped  bool

	wg sync.WaitGroup

	// Metrics (initialized lazily; nil when creation failed)
	metricsOnce   sync.Once
	unitLatency   metric.Float64Histogram
	unitsDone     metric.Int64Counter
	activeWorkers metric.Int64UpDownCounter
	queueDepth    metric.Int64UpDownCounter
}

// New creates a pool and starts its workers.
//
// A size <= 0 is normalized to runtime.NumCPU().
func New(size int, opts ...Option) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	p := &Pool{
		id:      uuid.NewString(),
		workers: size,
	}
	p.cond.L = &p.mu
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	p.initMetrics()

	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.worker()
		}()
	}
	if p.logger != nil {
		p.logger.Debug("worker pool started",
			slog.String("pool_id", p.id),
			slog.Int("workers", size),
		)
	}
	return p
}

// initMetrics lazily initializes metrics, degrading gracefully: a metric
// that cannot be created is left nil and skipped at record time.
func (p *Pool) initMetrics() {
	p.metricsOnce.Do(func() {
		var initErrors []string

		var err error
		p.unitLatency, err = meter.Float64Histogram("workerpool_unit_duration_seconds",
			metric.WithDescription("Time spent executing each unit of work"),
			metric.WithUnit("s"),
		)
		if err != nil {
			initErrors = append(initErrors, "unit_latency: "+err.Error())
		}

		p.unitsDone, err = meter.Int64Counter("workerpool_units_total",
			metric.WithDescription("Number of executed units of work"),
		)
		if err != nil {
			initErrors = append(initErrors, "units_done: "+err.Error())
		}

		p.activeWorkers, err = meter.Int64UpDownCounter("workerpool_active_workers",
			metric.WithDescription("Workers currently executing a unit of work"),
		)
		if err != nil {
			initErrors = append(initErrors, "active_workers: "+err.Error())
		}

		p.queueDepth, err = meter.Int64UpDownCounter("workerpool_queue_depth",
			metric.WithDescription("Units of work queued but not yet started"),
		)
		if err != nil {
			initErrors = append(initErrors, "queue_depth: "+err.Error())
		}

		if len(initErrors) > 0 && p.logger != nil {
			p.logger.Warn("worker pool metrics degraded",
				slog.String("pool_id", p.id),
				slog.String("errors", strings.Join(initErrors, "; ")),
			)
		}
	})
}

// ID returns the pool's unique identifier, carried in its log records.
func (p *Pool) ID() string { return p.id }

// Size returns the number of worker goroutines.
func (p *Pool) Size() int { return p.workers }

// Submit enqueues a unit of work for execution. It never blocks.
//
// Submitting to a pool whose Stop has returned is a programmer error and
// panics. Submitting while Stop drains is permitted — units already running
// may legitimately schedule follow-up work.
func (p *Pool) Submit(unit func()) {
	if unit == nil {
		panic("workerpool: nil unit of work")
	}
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		panic("workerpool: submit on stopped pool")
	}
	p.queue = append(p.queue, unit)
	p.mu.Unlock()
	p.cond.Signal()

	if p.queueDepth != nil {
		p.queueDepth.Add(context.Background(), 1)
	}
}

// QueueLen reports the number of units queued but not yet started.
func (p *Pool) QueueLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Stop drains the queue, waits for in-flight units, and joins the workers.
// After Stop returns the pool is defunct and further Submits panic.
func (p *Pool) Stop() {
	p.mu.Lock()
	p.draining = true
	p.mu.Unlock()
	p.cond.Broadcast()

	p.wg.Wait()

	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()

	if p.logger != nil {
		p.logger.Debug("worker pool stopped", slog.String("pool_id", p.id))
	}
}

func (p *Pool) worker() {
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.draining {
			p.cond.Wait()
		}
		if len(p.queue) == 0 {
			// draining and nothing left
			p.mu.Unlock()
			return
		}
		unit := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		p.mu.Unlock()

		p.run(unit)
	}
}

func (p *Pool) run(unit func()) {
	ctx := context.Background()
	if p.queueDepth != nil {
		p.queueDepth.Add(ctx, -1)
	}
	if p.activeWorkers != nil {
		p.activeWorkers.Add(ctx, 1)
		defer p.activeWorkers.Add(ctx, -1)
	}

	start := time.Now()
	unit()

	if p.unitLatency != nil {
		p.unitLatency.Record(ctx, time.Since(start).Seconds())
	}
	if p.unitsDone != nil {
		p.unitsDone.Add(ctx, 1)
	}
}
