package lrucache

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/hupe1980/lrucache/internal/lru"
)

// Cache is a read-through LRU cache that computes missing values on the
// calling goroutine.
//
// The lock is never held while the provider runs, so a slow load only blocks
// the callers waiting for that load. Concurrent misses of the same key each
// call the provider unless WithSingleFlight is set; the last commit wins.
type Cache[K comparable, V any] struct {
	mu         sync.Mutex
	store      *lru.Store[K, V]
	provider   Provider[K, V]
	generation uint64 // bumped by SetProvider; commits from older generations are dropped
	closed     bool

	opts   options
	rel    *releaser
	flight *singleflight.Group
}

// New creates a synchronous cache holding at most capacity values.
//
// A capacity of zero is legal: every loaded value is handed to the caller
// and nothing is retained.
func New[K comparable, V any](capacity int, provider Provider[K, V], opts ...Option) (*Cache[K, V], error) {
	if capacity < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCapacity, capacity)
	}
	if provider == nil {
		return nil, ErrNilProvider
	}

	o := applyOptions(opts)
	storeOpts, err := storeOptions[V](o)
	if err != nil {
		return nil, err
	}

	c := &Cache[K, V]{
		store:    lru.New[K](capacity, storeOpts),
		provider: provider,
		opts:     o,
		rel:      newReleaser(o),
	}
	if o.singleFlight {
		c.flight = &singleflight.Group{}
	}
	return c, nil
}

func storeOptions[V any](o options) (lru.Options[V], error) {
	so := lru.Options[V]{Now: o.now, Memory: o.rc}
	if o.sizer != nil {
		fn, ok := o.sizer.(func(V) int64)
		if !ok {
			return so, &ErrSizerType{
				Want: reflect.TypeFor[func(V) int64]().String(),
				Got:  reflect.TypeOf(o.sizer).String(),
			}
		}
		so.Sizer = fn
	}
	return so, nil
}

// Get returns the value for key, calling the provider on a miss.
//
// A provider error is returned as is and nothing is cached; the next Get
// for the same key calls the provider again. A provider panic is returned
// as *PanicError.
func (c *Cache[K, V]) Get(ctx context.Context, key K) (V, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		var zero V
		return zero, ErrClosed
	}
	if v, ok := c.store.Get(key); ok {
		c.mu.Unlock()
		c.opts.metricsCollector.RecordHit()
		return v, nil
	}
	provider, gen := c.provider, c.generation
	c.mu.Unlock()

	c.opts.metricsCollector.RecordMiss()

	if c.flight == nil {
		return c.fetch(ctx, provider, gen, key)
	}

	// The shared load outlives any single caller; each caller only waits
	// for its own ctx.
	loadCtx := context.WithoutCancel(ctx)
	ch := c.flight.DoChan(fmt.Sprintf("%d/%s", gen, flightKey(key)), func() (any, error) {
		return c.fetch(loadCtx, provider, gen, key)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			var zero V
			return zero, res.Err
		}
		v, _ := res.Val.(V)
		return v, nil
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// fetch runs the provider without holding the lock and commits the result.
func (c *Cache[K, V]) fetch(ctx context.Context, provider Provider[K, V], gen uint64, key K) (V, error) {
	v, err := c.load(ctx, provider, key)
	if err != nil {
		return v, err
	}

	c.mu.Lock()
	if c.closed || gen != c.generation {
		// The provider was replaced meanwhile; the value belongs to the caller only.
		c.mu.Unlock()
		return v, nil
	}
	released, _ := c.store.Commit(key, v)
	c.mu.Unlock()

	release(ctx, c.rel, released, key, v, true, identity[V])
	return v, nil
}

func (c *Cache[K, V]) load(ctx context.Context, provider Provider[K, V], key K) (V, error) {
	if err := c.opts.rc.AcquireLoad(ctx); err != nil {
		var zero V
		return zero, err
	}
	defer c.opts.rc.ReleaseLoad()

	start := time.Now()
	v, err := provider.call(ctx, key)
	dur := time.Since(start)

	c.opts.metricsCollector.RecordLoad(dur, err)
	c.opts.logger.LogLoad(ctx, key, dur, err)
	return v, err
}

// GetMany returns the values for keys in order. Misses are loaded
// concurrently, at most WithMaxParallelLoads at a time. The first provider
// error cancels the remaining loads and is returned.
func (c *Cache[K, V]) GetMany(ctx context.Context, keys []K) ([]V, error) {
	out := make([]V, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.maxParallelLoads)

	for i, key := range keys {
		g.Go(func() error {
			v, err := c.Get(gctx, key)
			if err != nil {
				return fmt.Errorf("get %v: %w", key, err)
			}
			out[i] = v
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// TryGet returns the cached value for key without loading it and without
// changing its recency.
func (c *Cache[K, V]) TryGet(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Peek(key)
}

// Update stores v for key without calling the provider. The recency of a
// resident key is left unchanged.
func (c *Cache[K, V]) Update(key K, v V) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	released, _ := c.store.Commit(key, v)
	c.mu.Unlock()

	release(context.Background(), c.rel, released, key, v, false, identity[V])
	return nil
}

// Reset removes key so the next Get calls the provider again.
// It reports whether key was resident.
func (c *Cache[K, V]) Reset(key K) bool {
	c.mu.Lock()
	e, ok := c.store.Remove(key)
	c.mu.Unlock()

	if ok {
		c.rel.dispose(context.Background(), e.Key, e.Value)
	}
	return ok
}

// Clear removes and disposes every entry.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	released := c.store.Clear()
	c.mu.Unlock()

	c.disposeAll(context.Background(), released)
}

// SetProvider replaces the provider and clears the cache. Loads started with
// the previous provider still return their value to their caller, but the
// value is not cached.
func (c *Cache[K, V]) SetProvider(provider Provider[K, V]) error {
	if provider == nil {
		return ErrNilProvider
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.provider = provider
	c.generation++
	released := c.store.Clear()
	c.mu.Unlock()

	c.disposeAll(context.Background(), released)
	return nil
}

// Len returns the number of cached values.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Len()
}

// Capacity returns the maximum number of cached values.
func (c *Cache[K, V]) Capacity() int {
	return c.store.Capacity()
}

// OldestUsageTime returns the last access time of the least recently used
// value. ok is false when the cache is empty.
func (c *Cache[K, V]) OldestUsageTime() (t time.Time, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.OldestAccess()
}

// Keys returns the cached keys from most to least recently used.
func (c *Cache[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Keys()
}

// Close disposes every cached value. Subsequent Get and Update calls fail
// with ErrClosed. Close is safe to call multiple times.
func (c *Cache[K, V]) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	released := c.store.Clear()
	c.mu.Unlock()

	ctx := context.Background()
	c.disposeAll(ctx, released)
	c.opts.logger.LogClose(ctx, len(released), 0)
	return nil
}

func (c *Cache[K, V]) disposeAll(ctx context.Context, entries []lru.Entry[K, V]) {
	for _, e := range entries {
		c.rel.dispose(ctx, e.Key, e.Value)
	}
}

func identity[V any](v V) any { return v }

// release disposes the values the store gave up after a commit of fresh for
// key. When callerOwnsFresh is set, fresh is also the caller's return value
// and is never closed, even if the store could not keep it.
func release[K comparable, S any](ctx context.Context, r *releaser, entries []lru.Entry[K, S], key K, fresh S, callerOwnsFresh bool, value func(S) any) {
	for _, e := range entries {
		r.account(ctx, e.Key, e.Reason)

		switch {
		case e.Key == key && e.Reason == lru.Replaced:
			if sameValue(value(e.Value), value(fresh)) {
				continue
			}
		case e.Key == key && (e.Reason == lru.Evicted || e.Reason == lru.Rejected):
			// Only the value just committed can leave under its own key here.
			if callerOwnsFresh {
				continue
			}
		}
		r.dispose(ctx, e.Key, value(e.Value))
	}
}
