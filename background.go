package lrucache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/lrucache/internal/lru"
	"github.com/hupe1980/lrucache/internal/queue"
	"github.com/hupe1980/lrucache/internal/worker"
)

// BackgroundCache is an LRU cache that never blocks readers on a load.
//
// A miss stores a placeholder produced by the DefaultValueFunc, schedules a
// load and returns the placeholder at once. A fixed pool of workers runs the
// provider, newest request first, commits the result and raises the
// OnEntryUpdated callback after releasing the lock.
//
// Per key the entry moves Missing → Loading → Complete | Failed. At most one
// load per key is pending or running at any time. Failed entries keep their
// placeholder and are not reloaded until Reset.
type BackgroundCache[K comparable, V any] struct {
	mu           sync.Mutex
	store        *lru.Store[K, record[V]]
	queue        *queue.Queue[K]
	pool         *worker.Pool[job[K, V]]
	provider     Provider[K, V]
	defaultValue DefaultValueFunc[K, V]
	onUpdated    func(K)
	closed       bool

	opts options
	rel  *releaser
}

// job is a popped request together with the provider current at pop time.
type job[K comparable, V any] struct {
	req      queue.Request[K]
	provider Provider[K, V]
}

// NewBackground creates a background cache holding at most capacity entries
// and starts workers goroutines.
func NewBackground[K comparable, V any](capacity int, provider Provider[K, V], workers int, defaultValue DefaultValueFunc[K, V], opts ...Option) (*BackgroundCache[K, V], error) {
	if capacity < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCapacity, capacity)
	}
	if provider == nil {
		return nil, ErrNilProvider
	}
	if workers <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidWorkerCount, workers)
	}
	if defaultValue == nil {
		return nil, ErrNilDefaultValue
	}

	o := applyOptions(opts)
	storeOpts, err := storeOptions[V](o)
	if err != nil {
		return nil, err
	}

	c := &BackgroundCache[K, V]{
		store: lru.New[K](capacity, lru.Options[record[V]]{
			Now:    storeOpts.Now,
			Memory: storeOpts.Memory,
			Sizer:  recordSizer(storeOpts.Sizer),
		}),
		queue:        queue.New[K](),
		provider:     provider,
		defaultValue: defaultValue,
		opts:         o,
		rel:          newReleaser(o),
	}
	c.pool = worker.New(&c.mu, workers, c.nextJob, c.runJob, c.onWorkerPanic)
	c.pool.Start()

	return c, nil
}

func recordSizer[V any](fn func(V) int64) func(record[V]) int64 {
	if fn == nil {
		return nil
	}
	return func(r record[V]) int64 { return fn(r.value) }
}

// Get returns the loaded value for key, or its placeholder while the value is
// missing, loading or failed. Get never waits for the provider.
func (c *BackgroundCache[K, V]) Get(key K) V {
	c.mu.Lock()

	if rec, ok := c.store.Peek(key); ok {
		switch rec.state {
		case StateComplete:
			c.store.Get(key)
			c.mu.Unlock()
			c.opts.metricsCollector.RecordHit()
			return rec.value
		case StateFailed:
			if c.retryDueLocked(rec) {
				released := c.scheduleLocked(key, rec.value)
				c.mu.Unlock()
				c.opts.metricsCollector.RecordMiss()
				release(context.Background(), c.rel, released, key, record[V]{value: rec.value}, true, owned[V])
				return rec.value
			}
		}
		c.mu.Unlock()
		c.opts.metricsCollector.RecordMiss()
		return rec.value
	}

	placeholder := c.defaultValue(key)
	if c.closed {
		c.mu.Unlock()
		c.opts.metricsCollector.RecordMiss()
		return placeholder
	}
	released := c.scheduleLocked(key, placeholder)
	c.mu.Unlock()

	c.opts.metricsCollector.RecordMiss()
	release(context.Background(), c.rel, released, key, record[V]{value: placeholder}, true, owned[V])
	return placeholder
}

func (c *BackgroundCache[K, V]) retryDueLocked(rec record[V]) bool {
	if c.closed || c.opts.retryFailedAfter <= 0 {
		return false
	}
	return c.opts.now().Sub(rec.updatedAt) >= c.opts.retryFailedAfter
}

// scheduleLocked stores placeholder in Loading state and enqueues a load
// unless one is already pending or running for key.
func (c *BackgroundCache[K, V]) scheduleLocked(key K, placeholder V) []lru.Entry[K, record[V]] {
	now := c.opts.now()
	released, _ := c.store.Commit(key, record[V]{
		value:     placeholder,
		state:     StateLoading,
		updatedAt: now,
	})
	if _, ok := c.queue.Push(key, now); ok {
		c.pool.Notify()
	}
	return released
}

// TryGet returns the loaded value for key. It does not schedule a load and
// does not change recency.
func (c *BackgroundCache[K, V]) TryGet(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.store.Peek(key)
	if !ok || rec.state != StateComplete {
		var zero V
		return zero, false
	}
	return rec.value, true
}

// Entry returns a snapshot of the entry for key, including its state and the
// error of a failed load. It does not change recency.
func (c *BackgroundCache[K, V]) Entry(key K) EntryInfo[V] {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.store.Peek(key)
	if !ok {
		return EntryInfo[V]{State: StateMissing}
	}
	return rec.info()
}

// Update stores v for key as a complete value without calling the provider.
// A load pending or running for key is abandoned. The recency of a resident
// key is left unchanged.
func (c *BackgroundCache[K, V]) Update(key K, v V) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.queue.Forget(key)
	c.pool.NotifyIdle()
	fresh := record[V]{value: v, state: StateComplete, updatedAt: c.opts.now()}
	released, _ := c.store.Commit(key, fresh)
	cb := c.onUpdated
	c.mu.Unlock()

	release(context.Background(), c.rel, released, key, fresh, false, owned[V])
	if cb != nil {
		cb(key)
	}
	return nil
}

// Reset removes key and abandons its pending or running load, so the next Get
// starts a new load. This is the only way to reload a Failed entry.
func (c *BackgroundCache[K, V]) Reset(key K) bool {
	c.mu.Lock()
	e, removed := c.store.Remove(key)
	forgotten := c.queue.Forget(key)
	c.pool.NotifyIdle()
	cb := c.onUpdated
	c.mu.Unlock()

	if removed {
		c.rel.dispose(context.Background(), e.Key, owned(e.Value))
	}
	if (removed || forgotten) && cb != nil {
		cb(key)
	}
	return removed
}

// Clear removes and disposes every entry. Loads already scheduled still run
// and commit their results.
func (c *BackgroundCache[K, V]) Clear() {
	c.mu.Lock()
	released := c.store.Clear()
	c.mu.Unlock()

	c.disposeAll(context.Background(), released)
}

// ClearQueue drops every load that has not started yet together with its
// Loading placeholder. Running loads are not interrupted.
func (c *BackgroundCache[K, V]) ClearQueue() int {
	c.mu.Lock()
	keys := c.queue.Clear()
	var released []lru.Entry[K, record[V]]
	for _, key := range keys {
		if rec, ok := c.store.Peek(key); ok && rec.state == StateLoading {
			e, _ := c.store.Remove(key)
			released = append(released, e)
		}
	}
	c.pool.NotifyIdle()
	c.mu.Unlock()

	c.disposeAll(context.Background(), released)
	return len(keys)
}

// SetProvider replaces the provider and clears the cache. Results of loads
// started with the previous provider are dropped when they arrive.
func (c *BackgroundCache[K, V]) SetProvider(provider Provider[K, V]) error {
	if provider == nil {
		return ErrNilProvider
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.provider = provider
	c.queue.Reset()
	released := c.store.Clear()
	c.pool.NotifyIdle()
	c.mu.Unlock()

	c.disposeAll(context.Background(), released)
	return nil
}

// SetDefaultValueFunc replaces the placeholder function for future misses.
func (c *BackgroundCache[K, V]) SetDefaultValueFunc(fn DefaultValueFunc[K, V]) error {
	if fn == nil {
		return ErrNilDefaultValue
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defaultValue = fn
	return nil
}

// OnEntryUpdated registers fn to be called with the key after every commit
// to Complete or Failed and after Reset. It replaces a previously registered
// callback; nil unregisters.
//
// fn runs on a worker goroutine (or the goroutine calling Update/Reset)
// without any cache lock held, so it may call back into the cache.
func (c *BackgroundCache[K, V]) OnEntryUpdated(fn func(key K)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUpdated = fn
}

// Flush blocks until no load is pending or running, or ctx ends.
func (c *BackgroundCache[K, V]) Flush(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pool.Await(ctx, c.queue.Idle)
}

// Pending returns the number of loads that are queued or running.
func (c *BackgroundCache[K, V]) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.Len() + c.queue.Running()
}

// Len returns the number of entries in any state.
func (c *BackgroundCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Len()
}

// Capacity returns the maximum number of entries.
func (c *BackgroundCache[K, V]) Capacity() int {
	return c.store.Capacity()
}

// Workers returns the size of the worker pool.
func (c *BackgroundCache[K, V]) Workers() int {
	return c.pool.Size()
}

// OldestUsageTime returns the last access time of the least recently used
// entry. ok is false when the cache is empty.
func (c *BackgroundCache[K, V]) OldestUsageTime() (t time.Time, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.OldestAccess()
}

// Keys returns the keys of all entries from most to least recently used.
func (c *BackgroundCache[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Keys()
}

// Close stops scheduling new loads, waits for the workers to finish the
// loads already queued, then disposes every entry. Close is safe to call
// multiple times.
//
// Close may be called from an OnEntryUpdated callback. It then returns
// without waiting for the worker running the callback; the entries are
// disposed once that worker has drained the queue and exited.
func (c *BackgroundCache[K, V]) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	pending := c.queue.Len() + c.queue.Running()
	c.mu.Unlock()

	c.pool.CloseThen(func() {
		c.mu.Lock()
		released := c.store.Clear()
		c.mu.Unlock()

		ctx := context.Background()
		c.disposeAll(ctx, released)
		c.opts.logger.LogClose(ctx, len(released), pending)
	})
	return nil
}

func (c *BackgroundCache[K, V]) nextJob() (job[K, V], bool) {
	req, ok := c.queue.Pop()
	if !ok {
		return job[K, V]{}, false
	}
	return job[K, V]{req: req, provider: c.provider}, true
}

func (c *BackgroundCache[K, V]) runJob(id int, j job[K, V]) {
	ctx := context.Background()
	key := j.req.Key

	v, err := c.load(ctx, c.opts.logger.WithWorker(id), j.provider, key)

	fresh, released, cb, ok := c.commit(j.req, v, err)
	if !ok {
		c.opts.logger.LogStaleResult(ctx, key)
		if err == nil {
			c.rel.dispose(ctx, key, v)
		}
		return
	}

	release(ctx, c.rel, released, key, fresh, false, owned[V])
	if cb != nil {
		c.pool.Detached(func() { cb(key) })
	}
}

func (c *BackgroundCache[K, V]) load(ctx context.Context, logger *Logger, provider Provider[K, V], key K) (V, error) {
	if err := c.opts.rc.WaitLoad(ctx); err != nil {
		var zero V
		return zero, err
	}
	if err := c.opts.rc.AcquireLoad(ctx); err != nil {
		var zero V
		return zero, err
	}
	defer c.opts.rc.ReleaseLoad()

	start := time.Now()
	v, err := provider.call(ctx, key)
	dur := time.Since(start)

	c.opts.metricsCollector.RecordLoad(dur, err)
	logger.LogLoad(ctx, key, dur, err)
	return v, err
}

// commit records the outcome of a load. ok is false when the request was
// abandoned by Reset, Update or SetProvider while it ran.
func (c *BackgroundCache[K, V]) commit(req queue.Request[K], v V, loadErr error) (fresh record[V], released []lru.Entry[K, record[V]], cb func(K), ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.queue.Done(req) {
		return fresh, nil, nil, false
	}

	now := c.opts.now()
	if loadErr != nil {
		placeholder, resident := c.store.Peek(req.Key)
		value := placeholder.value
		if !resident {
			value = c.defaultValue(req.Key)
		}
		fresh = record[V]{value: value, state: StateFailed, err: loadErr, updatedAt: now}
	} else {
		fresh = record[V]{value: v, state: StateComplete, updatedAt: now}
	}

	released, _ = c.store.Commit(req.Key, fresh)
	return fresh, released, c.onUpdated, true
}

func (c *BackgroundCache[K, V]) onWorkerPanic(id int, j job[K, V], recovered any) {
	c.opts.logger.LogWorkerPanic(context.Background(), id, j.req.Key, recovered)
}

func (c *BackgroundCache[K, V]) disposeAll(ctx context.Context, entries []lru.Entry[K, record[V]]) {
	for _, e := range entries {
		c.rel.dispose(ctx, e.Key, owned(e.Value))
	}
}
