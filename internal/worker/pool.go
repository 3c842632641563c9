// Package worker provides a fixed-size pool of goroutines draining a task
// source guarded by a caller-owned mutex.
package worker

import (
	"context"
	"sync"
)

// PanicHandler receives a value recovered from a task.
type PanicHandler[T any] func(worker int, task T, recovered any)

// Pool runs size goroutines. Each goroutine takes tasks from next while holding
// mu, runs them without holding mu, and parks on a condition variable when
// next reports no work.
//
// The owner signals new work with Notify while holding mu.
type Pool[T any] struct {
	mu   *sync.Mutex
	work *sync.Cond // new tasks or close
	idle *sync.Cond // a task finished

	size    int
	next    func() (T, bool)
	run     func(worker int, task T)
	onPanic PanicHandler[T]

	started  bool
	closed   bool
	exited   int    // workers that left their loop after Close
	detached int    // workers inside Detached
	finish   func() // deferred by a Close called from a detached worker
}

// New creates a pool. next is called with mu held; run is called without it.
func New[T any](mu *sync.Mutex, size int, next func() (T, bool), run func(worker int, task T), onPanic PanicHandler[T]) *Pool[T] {
	if size < 1 {
		size = 1
	}
	return &Pool[T]{
		mu:      mu,
		work:    sync.NewCond(mu),
		idle:    sync.NewCond(mu),
		size:    size,
		next:    next,
		run:     run,
		onPanic: onPanic,
	}
}

// Size returns the number of goroutines.
func (p *Pool[T]) Size() int { return p.size }

// Start launches the goroutines. It is a no-op on a started pool.
func (p *Pool[T]) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started || p.closed {
		return
	}
	p.started = true
	for i := range p.size {
		go p.loop(i)
	}
}

// Notify wakes one parked worker. The caller must hold mu.
func (p *Pool[T]) Notify() { p.work.Signal() }

// NotifyIdle wakes goroutines blocked in Await. The caller must hold mu.
func (p *Pool[T]) NotifyIdle() { p.idle.Broadcast() }

// Closed reports whether Close was called. The caller must hold mu.
func (p *Pool[T]) Closed() bool { return p.closed }

// Await blocks until done returns true or ctx ends. The caller must hold mu;
// done is evaluated with mu held after every finished task.
func (p *Pool[T]) Await(ctx context.Context, done func() bool) error {
	if ctx.Done() != nil {
		stop := context.AfterFunc(ctx, func() {
			p.mu.Lock()
			p.idle.Broadcast()
			p.mu.Unlock()
		})
		defer stop()
	}

	for !done() {
		if err := ctx.Err(); err != nil {
			return err
		}
		p.idle.Wait()
	}
	return nil
}

// Close stops accepting new wake-ups, lets the workers drain every remaining
// task and waits for them to exit. Close is safe to call multiple times.
func (p *Pool[T]) Close() {
	p.CloseThen(nil)
}

// CloseThen is Close followed by finish, which runs once every worker has
// exited, without mu held.
//
// Workers inside Detached are not waited for, so a task may close its own
// pool. In that case CloseThen returns early and finish runs on the last
// worker to exit.
func (p *Pool[T]) CloseThen(finish func()) {
	p.mu.Lock()
	p.closed = true
	p.work.Broadcast()

	if p.started {
		for p.exited+p.detached < p.size {
			p.idle.Wait()
		}
		if p.exited < p.size {
			if finish != nil {
				p.finish = chain(p.finish, finish)
			}
			p.mu.Unlock()
			return
		}
	}
	p.mu.Unlock()

	if finish != nil {
		finish()
	}
}

// Detached runs fn from within a task. While fn runs, Close does not wait
// for the calling worker. It must only be called by a task.
func (p *Pool[T]) Detached(fn func()) {
	p.mu.Lock()
	p.detached++
	p.idle.Broadcast()
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.detached--
		p.mu.Unlock()
	}()
	fn()
}

func chain(a, b func()) func() {
	if a == nil {
		return b
	}
	return func() {
		a()
		b()
	}
}

func (p *Pool[T]) loop(id int) {
	p.mu.Lock()
	for {
		task, ok := p.next()
		if !ok {
			if p.closed {
				p.exit()
				return
			}
			p.work.Wait()
			continue
		}

		p.mu.Unlock()
		p.runTask(id, task)
		p.mu.Lock()

		p.idle.Broadcast()
	}
}

// exit is called with mu held and releases it.
func (p *Pool[T]) exit() {
	p.exited++
	p.idle.Broadcast()

	var finish func()
	if p.exited == p.size {
		finish, p.finish = p.finish, nil
	}
	p.mu.Unlock()

	if finish != nil {
		finish()
	}
}

// runTask keeps the goroutine alive when a task panics; a dying worker would
// silently shrink the pool.
func (p *Pool[T]) runTask(id int, task T) {
	defer func() {
		if r := recover(); r != nil && p.onPanic != nil {
			p.onPanic(id, task, r)
		}
	}()
	p.run(id, task)
}
