package graft

// promise is a one-shot result slot: fulfilled exactly once by the worker
// that ran the computation, readable any number of times by any number of
// goroutines. Closing done publishes value and err; the channel's
// happens-before edge is the only synchronization readers need.
type promise[R any] struct {
	done  chan struct{}
	value R
	err   error
}

func newPromise[R any]() *promise[R] {
	return &promise[R]{done: make(chan struct{})}
}

// fulfill publishes the computation's outcome and unblocks all waiters.
// Fulfilling twice violates the engine's single-submission invariant and
// panics.
func (p *promise[R]) fulfill(value R, err error) {
	p.value = value
	p.err = err
	close(p.done)
}

func (p *promise[R]) wait() {
	<-p.done
}

func (p *promise[R]) get() (R, error) {
	<-p.done
	return p.value, p.err
}

// fulfilled reports whether the slot has been fulfilled, without blocking.
func (p *promise[R]) fulfilled() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}
