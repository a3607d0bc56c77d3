package workpool

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"

	"pressing/internal/services"
)

// Func is the body of a work unit. It must honour ctx cancellation.
type Func func(ctx context.Context) error

type state int

const (
	statePending state = iota
	stateRunning
	stateDone
)

// Handle tracks one submitted unit.
type Handle struct {
	name string
	pool *Pool
	fn   Func

	done chan struct{}

	mu        sync.Mutex
	state     state
	err       error
	cancel    context.CancelFunc
	cancelled bool
}

// Name returns the label given at submission.
func (h *Handle) Name() string { return h.name }

// Done returns a channel closed once the unit reaches a terminal state.
func (h *Handle) Done() <-chan struct{} { return h.done }

// IsDone reports whether the unit has reached a terminal state.
func (h *Handle) IsDone() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Started reports whether a worker picked the unit up.
func (h *Handle) Started() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state != statePending
}

// Wait blocks until the unit is terminal and returns its error.
func (h *Handle) Wait() error {
	<-h.done
	return h.Err()
}

// WaitContext blocks until the unit is terminal or ctx ends, whichever is first.
func (h *Handle) WaitContext(ctx context.Context) error {
	select {
	case <-h.done:
		return h.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the stored error of a terminal unit and nil otherwise.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != stateDone {
		return nil
	}
	return h.err
}

// Cancel interrupts a running unit through its context or resolves a queued
// unit as cancelled without running it. Cancelling a terminal unit is a no-op.
func (h *Handle) Cancel() {
	if h.pool != nil && h.pool.dequeue(h) {
		h.finish(cancelledError(h.name))
		return
	}
	h.mu.Lock()
	cancel := h.cancel
	h.cancelled = true
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (h *Handle) finish(err error) {
	h.mu.Lock()
	if h.state == stateDone {
		h.mu.Unlock()
		return
	}
	h.state = stateDone
	h.err = err
	h.cancel = nil
	h.mu.Unlock()
	close(h.done)
}

func cancelledError(name string) error {
	return services.Wrap(services.ErrCancelled, "workpool", name, "cancelled before start", nil)
}

// Stats is a point-in-time view of the pool.
type Stats struct {
	Queued   int
	Running  int
	Finished int
}

// Pool runs submitted units on a fixed number of workers in submission order.
// Units that block on earlier handles cannot deadlock the pool: every handle
// they wait on was dequeued before them.
type Pool struct {
	size int

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []*Handle
	closed   bool
	running  int
	finished int

	wg sync.WaitGroup
}

// New starts a pool with size workers; size <= 0 uses the host core count.
func New(ctx context.Context, size int) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	poolCtx, cancel := context.WithCancel(ctx)
	p := &Pool{size: size, ctx: poolCtx, cancel: cancel}
	p.cond = sync.NewCond(&p.mu)
	p.wg.Add(size)
	for range size {
		go p.worker()
	}
	return p
}

// Size returns the worker count.
func (p *Pool) Size() int { return p.size }

// Stats returns queue counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{Queued: len(p.queue), Running: p.running, Finished: p.finished}
}

// Submit queues fn and returns its handle. After Shutdown the handle resolves
// immediately as cancelled.
func (p *Pool) Submit(name string, fn Func) *Handle {
	h := &Handle{name: name, pool: p, fn: fn, done: make(chan struct{})}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		h.finish(cancelledError(name))
		return h
	}
	p.queue = append(p.queue, h)
	p.mu.Unlock()
	p.cond.Signal()
	return h
}

// Shutdown stops accepting work and waits for the workers to exit. With
// cancelPending, queued units resolve as cancelled without running and running
// units have their contexts cancelled; otherwise the queue drains first.
func (p *Pool) Shutdown(cancelPending bool) {
	p.mu.Lock()
	var dropped []*Handle
	if cancelPending {
		dropped = p.queue
		p.queue = nil
	}
	p.closed = true
	p.mu.Unlock()
	p.cond.Broadcast()

	for _, h := range dropped {
		h.finish(cancelledError(h.name))
	}
	if cancelPending {
		p.cancel()
	}
	p.wg.Wait()
	p.cancel()
}

func (p *Pool) dequeue(target *Handle) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, h := range p.queue {
		if h == target {
			p.queue = append(p.queue[:i], p.queue[i+1:]...)
			return true
		}
	}
	return false
}

func (p *Pool) next() *Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.queue) == 0 && !p.closed {
		p.cond.Wait()
	}
	if len(p.queue) == 0 {
		return nil
	}
	h := p.queue[0]
	p.queue[0] = nil
	p.queue = p.queue[1:]
	p.running++
	return h
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		h := p.next()
		if h == nil {
			return
		}
		err := p.execute(h)
		p.mu.Lock()
		p.running--
		p.finished++
		p.mu.Unlock()
		h.finish(err)
	}
}

func (p *Pool) execute(h *Handle) (err error) {
	ctx, cancel := context.WithCancel(p.ctx)
	defer cancel()

	h.mu.Lock()
	h.state = stateRunning
	h.cancel = cancel
	requested := h.cancelled
	h.mu.Unlock()

	if requested || ctx.Err() != nil {
		return cancelledError(h.name)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("work unit %s panicked: %v\n%s", h.name, r, debug.Stack())
		}
	}()
	return h.fn(ctx)
}
