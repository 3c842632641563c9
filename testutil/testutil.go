package testutil

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"
)

// RNG is a seeded, concurrency-safe random source for key workloads.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Keys returns n keys drawn uniformly from [0,space).
func (r *RNG) Keys(n, space int) []int {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]int, n)
	for i := range out {
		out[i] = r.rand.Intn(space)
	}
	return out
}

// Clock is a manually advanced clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a clock starting at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// CountingProvider wraps a function and counts invocations per key.
type CountingProvider[K comparable, V any] struct {
	fn    func(K) (V, error)
	mu    sync.Mutex
	calls map[K]int
	total atomic.Int64
}

// NewCountingProvider wraps fn.
func NewCountingProvider[K comparable, V any](fn func(K) (V, error)) *CountingProvider[K, V] {
	return &CountingProvider[K, V]{fn: fn, calls: make(map[K]int)}
}

// Load has the signature of a cache provider.
func (p *CountingProvider[K, V]) Load(_ context.Context, key K) (V, error) {
	p.mu.Lock()
	p.calls[key]++
	p.mu.Unlock()
	p.total.Add(1)
	return p.fn(key)
}

// Calls returns the number of invocations for key.
func (p *CountingProvider[K, V]) Calls(key K) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[key]
}

// Total returns the number of invocations for all keys.
func (p *CountingProvider[K, V]) Total() int {
	return int(p.total.Load())
}

// Gate blocks provider calls until the test releases them.
type Gate[K comparable] struct {
	mu      sync.Mutex
	gates   map[K]chan struct{}
	entered chan K
}

// NewGate creates a gate. Entered keys are buffered up to 1024.
func NewGate[K comparable]() *Gate[K] {
	return &Gate[K]{
		gates:   make(map[K]chan struct{}),
		entered: make(chan K, 1024),
	}
}

func (g *Gate[K]) ch(key K) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.gates[key]
	if !ok {
		c = make(chan struct{})
		g.gates[key] = c
	}
	return c
}

// Provider wraps fn so every call first reports its key on Entered and then
// waits until Release(key) or ctx ends.
func Provider[K comparable, V any](g *Gate[K], fn func(K) (V, error)) func(context.Context, K) (V, error) {
	return func(ctx context.Context, key K) (V, error) {
		g.entered <- key
		select {
		case <-g.ch(key):
			return fn(key)
		case <-ctx.Done():
			var zero V
			return zero, ctx.Err()
		}
	}
}

// Entered delivers the key of every call that reached the gate.
func (g *Gate[K]) Entered() <-chan K {
	return g.entered
}

// Release lets all current and future calls for key pass.
func (g *Gate[K]) Release(key K) {
	c := g.ch(key)
	g.mu.Lock()
	defer g.mu.Unlock()
	select {
	case <-c:
	default:
		close(c)
	}
}

// Closer is a value that counts its Close calls.
type Closer struct {
	ID     int
	Err    error
	closed atomic.Int64
}

// ErrAlreadyClosed is returned by Closer.Close after the first call.
var ErrAlreadyClosed = errors.New("already closed")

// Close implements io.Closer.
func (c *Closer) Close() error {
	if c.closed.Add(1) > 1 {
		return ErrAlreadyClosed
	}
	return c.Err
}

// Closed returns how often Close was called.
func (c *Closer) Closed() int {
	return int(c.closed.Load())
}
