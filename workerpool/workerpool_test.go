package workerpool_test

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/a2y-d5l/graft/workerpool"
)

func TestPool_RunsEverySubmittedUnit(t *testing.T) {
	pool := workerpool.New(4)

	const units = 100
	var ran atomic.Int32
	var wg sync.WaitGroup
	wg.Add(units)
	for i := 0; i < units; i++ {
		pool.Submit(func() {
			ran.Add(1)
			wg.Done()
		})
	}

	wg.Wait()
	pool.Stop()
	require.Equal(t, int32(units), ran.Load())
}

func TestPool_SingleWorkerRunsSequentially(t *testing.T) {
	pool := workerpool.New(1)
	defer pool.Stop()

	var inFlight, maxInFlight atomic.Int32
	var wg sync.WaitGroup
	wg.Add(50)
	for i := 0; i < 50; i++ {
		pool.Submit(func() {
			cur := inFlight.Add(1)
			if cur > maxInFlight.Load() {
				maxInFlight.Store(cur)
			}
			inFlight.Add(-1)
			wg.Done()
		})
	}
	wg.Wait()

	require.Equal(t, int32(1), maxInFlight.Load())
}

func TestPool_StopDrainsQueuedUnits(t *testing.T) {
	pool := workerpool.New(2)

	var ran atomic.Int32
	for i := 0; i < 200; i++ {
		pool.Submit(func() { ran.Add(1) })
	}

	pool.Stop()
	require.Equal(t, int32(200), ran.Load())
	require.Equal(t, 0, pool.QueueLen())
}

func TestPool_UnitsMaySubmitFollowUpWork(t *testing.T) {
	pool := workerpool.New(2)

	var ran atomic.Int32
	done := make(chan struct{})
	pool.Submit(func() {
		ran.Add(1)
		pool.Submit(func() {
			ran.Add(1)
			pool.Submit(func() {
				ran.Add(1)
				close(done)
			})
		})
	})

	<-done
	pool.Stop()
	require.Equal(t, int32(3), ran.Load())
}

func TestPool_SizeNormalization(t *testing.T) {
	pool := workerpool.New(0)
	defer pool.Stop()
	require.Greater(t, pool.Size(), 0)
	require.NotEmpty(t, pool.ID())

	sized := workerpool.New(3)
	defer sized.Stop()
	require.Equal(t, 3, sized.Size())
}

func TestPool_ContractViolations(t *testing.T) {
	pool := workerpool.New(1)
	require.Panics(t, func() { pool.Submit(nil) })

	pool.Stop()
	require.Panics(t, func() { pool.Submit(func() {}) })
}
