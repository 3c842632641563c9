package lrucache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/lrucache/testutil"
)

func flush(t *testing.T, c interface{ Flush(context.Context) error }) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Flush(ctx))
}

func TestBackgroundCache_PlaceholderThenValue(t *testing.T) {
	c, err := NewBackground(10, func(_ context.Context, k int) (int, error) {
		return k * k, nil
	}, 5, Constant[int](-1))
	require.NoError(t, err)
	defer c.Close()

	var updates atomic.Int64
	c.OnEntryUpdated(func(int) { updates.Add(1) })

	for k := range 10 {
		assert.Equal(t, -1, c.Get(k))
	}

	flush(t, c)
	require.Eventually(t, func() bool { return updates.Load() == 10 }, time.Second, time.Millisecond)

	for k := range 10 {
		assert.Equal(t, k*k, c.Get(k))
		assert.Equal(t, StateComplete, c.Entry(k).State)
	}
	assert.Equal(t, int64(10), updates.Load())
	assert.Equal(t, 5, c.Workers())
}

func TestBackgroundCache_OneLoadPerKey(t *testing.T) {
	g := testutil.NewGate[int]()
	var calls atomic.Int64
	c, err := NewBackground(4, testutil.Provider(g, func(k int) (int, error) {
		calls.Add(1)
		return k, nil
	}), 3, Constant[int](-1))
	require.NoError(t, err)
	defer c.Close()

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, -1, c.Get(1))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, <-g.Entered())
	assert.Equal(t, 1, c.Pending())
	assert.Equal(t, StateLoading, c.Entry(1).State)

	g.Release(1)
	flush(t, c)

	assert.Equal(t, int64(1), calls.Load())
	assert.Equal(t, 1, c.Get(1))
	assert.Equal(t, 0, c.Pending())
}

func TestBackgroundCache_FailedIsSticky(t *testing.T) {
	errBoom := errors.New("boom")
	var calls atomic.Int64
	c, err := NewBackground(4, func(context.Context, int) (int, error) {
		calls.Add(1)
		return 0, errBoom
	}, 2, Constant[int](-1))
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, -1, c.Get(3))
	flush(t, c)

	info := c.Entry(3)
	assert.Equal(t, StateFailed, info.State)
	assert.Equal(t, -1, info.Value)
	assert.ErrorIs(t, info.Err, errBoom)

	for range 5 {
		assert.Equal(t, -1, c.Get(3))
	}
	flush(t, c)
	assert.Equal(t, int64(1), calls.Load(), "failed entries are not reloaded")

	assert.True(t, c.Reset(3))
	assert.Equal(t, StateMissing, c.Entry(3).State)
	assert.Equal(t, -1, c.Get(3))
	flush(t, c)
	assert.Equal(t, int64(2), calls.Load())
}

func TestBackgroundCache_RetryFailedAfter(t *testing.T) {
	clock := testutil.NewClock(time.Unix(0, 0))
	var calls atomic.Int64
	c, err := NewBackground(4, func(context.Context, string) (string, error) {
		calls.Add(1)
		return "", errors.New("unavailable")
	}, 1, Constant[string]("n/a"), WithClock(clock.Now), WithRetryFailedAfter(time.Minute))
	require.NoError(t, err)
	defer c.Close()

	c.Get("a")
	flush(t, c)
	c.Get("a")
	flush(t, c)
	assert.Equal(t, int64(1), calls.Load())

	clock.Advance(2 * time.Minute)
	assert.Equal(t, "n/a", c.Get("a"))
	flush(t, c)
	assert.Equal(t, int64(2), calls.Load())
	assert.Equal(t, StateFailed, c.Entry("a").State)
}

func TestBackgroundCache_ProviderPanic(t *testing.T) {
	c, err := NewBackground(4, func(context.Context, int) (int, error) {
		panic("kaputt")
	}, 1, Constant[int](-1))
	require.NoError(t, err)
	defer c.Close()

	c.Get(1)
	flush(t, c)

	info := c.Entry(1)
	assert.Equal(t, StateFailed, info.State)
	var perr *PanicError
	require.ErrorAs(t, info.Err, &perr)
	assert.Equal(t, "kaputt", perr.Value)

	// The worker survived.
	c.Reset(1)
	require.NoError(t, c.SetProvider(func(_ context.Context, k int) (int, error) { return k, nil }))
	c.Get(2)
	flush(t, c)
	assert.Equal(t, 2, c.Get(2))
}

func TestBackgroundCache_CallbackMayReenter(t *testing.T) {
	c, err := NewBackground(4, func(_ context.Context, k int) (int, error) {
		return k + 1, nil
	}, 2, Constant[int](0))
	require.NoError(t, err)
	defer c.Close()

	got := make(chan int, 1)
	c.OnEntryUpdated(func(k int) {
		v, ok := c.TryGet(k)
		assert.True(t, ok)
		_ = c.Len()
		_ = c.Pending()
		got <- v
	})

	c.Get(41)
	select {
	case v := <-got:
		assert.Equal(t, 42, v)
	case <-time.After(5 * time.Second):
		t.Fatal("callback did not fire")
	}
}

func TestBackgroundCache_LIFO(t *testing.T) {
	g := testutil.NewGate[int]()
	c, err := NewBackground(10, testutil.Provider(g, square), 1, Constant[int](-1))
	require.NoError(t, err)
	defer c.Close()

	c.Get(0)
	require.Equal(t, 0, <-g.Entered())

	for k := 1; k <= 3; k++ {
		c.Get(k)
	}
	for k := 0; k <= 3; k++ {
		g.Release(k)
	}

	var order []int
	for range 3 {
		order = append(order, <-g.Entered())
	}
	assert.Equal(t, []int{3, 2, 1}, order, "most recent request runs first")
	flush(t, c)
}

func TestBackgroundCache_ClearQueue(t *testing.T) {
	g := testutil.NewGate[int]()
	c, err := NewBackground(10, testutil.Provider(g, square), 1, Constant[int](-1))
	require.NoError(t, err)
	defer c.Close()

	c.Get(0)
	require.Equal(t, 0, <-g.Entered())
	c.Get(1)
	c.Get(2)
	assert.Equal(t, 3, c.Pending())

	assert.Equal(t, 2, c.ClearQueue())
	assert.Equal(t, 1, c.Pending())
	assert.Equal(t, StateMissing, c.Entry(1).State)
	assert.Equal(t, StateMissing, c.Entry(2).State)
	assert.Equal(t, StateLoading, c.Entry(0).State)

	g.Release(0)
	flush(t, c)
	assert.Equal(t, StateComplete, c.Entry(0).State)
	assert.Equal(t, 1, c.Len())
}

func TestBackgroundCache_SetProviderDropsStaleResult(t *testing.T) {
	g := testutil.NewGate[int]()
	c, err := NewBackground(10, testutil.Provider(g, square), 1, Constant[int](-1))
	require.NoError(t, err)
	defer c.Close()

	var updates atomic.Int64
	c.OnEntryUpdated(func(int) { updates.Add(1) })

	c.Get(4)
	require.Equal(t, 4, <-g.Entered())

	require.NoError(t, c.SetProvider(func(_ context.Context, k int) (int, error) { return -k, nil }))
	assert.Equal(t, 0, c.Len())

	g.Release(4)
	flush(t, c)
	assert.Equal(t, StateMissing, c.Entry(4).State, "result of the old provider is dropped")
	assert.Zero(t, updates.Load())

	c.Get(4)
	flush(t, c)
	assert.Equal(t, -4, c.Get(4))
}

func TestBackgroundCache_UpdateWinsOverRunningLoad(t *testing.T) {
	g := testutil.NewGate[int]()
	c, err := NewBackground(10, testutil.Provider(g, square), 1, Constant[int](-1))
	require.NoError(t, err)
	defer c.Close()

	c.Get(6)
	require.Equal(t, 6, <-g.Entered())

	require.NoError(t, c.Update(6, 1000))
	g.Release(6)
	flush(t, c)

	assert.Equal(t, 1000, c.Get(6))
}

func TestBackgroundCache_UpdateKeepsRecency(t *testing.T) {
	c, err := NewBackground(2, func(_ context.Context, k int) (int, error) { return k, nil }, 1, Constant[int](-1))
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Update(1, 10))
	require.NoError(t, c.Update(2, 20))
	require.NoError(t, c.Update(1, 11))
	require.NoError(t, c.Update(3, 30))

	assert.Equal(t, []int{3, 2}, c.Keys())
	v, ok := c.TryGet(2)
	assert.True(t, ok)
	assert.Equal(t, 20, v)
}

func TestBackgroundCache_Disposal(t *testing.T) {
	var mu sync.Mutex
	loaded := map[int]*testutil.Closer{}
	c, err := NewBackground(1, func(_ context.Context, k int) (*testutil.Closer, error) {
		mu.Lock()
		defer mu.Unlock()
		cl := &testutil.Closer{ID: k}
		loaded[k] = cl
		return cl, nil
	}, 1, Constant[int, *testutil.Closer](nil))
	require.NoError(t, err)

	c.Get(1)
	flush(t, c)
	c.Get(2)
	flush(t, c)

	mu.Lock()
	assert.Equal(t, 1, loaded[1].Closed())
	assert.Zero(t, loaded[2].Closed())
	mu.Unlock()

	require.NoError(t, c.Close())
	assert.Equal(t, 1, loaded[2].Closed())
}

func TestBackgroundCache_PlaceholdersAreNotClosed(t *testing.T) {
	placeholder := &testutil.Closer{ID: -1}
	c, err := NewBackground(1, func(context.Context, int) (*testutil.Closer, error) {
		return nil, errors.New("boom")
	}, 1, Constant[int](placeholder))
	require.NoError(t, err)

	c.Get(1)
	c.Get(2)
	flush(t, c)
	c.Reset(2)
	require.NoError(t, c.Close())

	assert.Zero(t, placeholder.Closed())
}

func TestBackgroundCache_CloseDrains(t *testing.T) {
	g := testutil.NewGate[int]()
	c, err := NewBackground(10, testutil.Provider(g, square), 1, Constant[int](-1))
	require.NoError(t, err)

	c.Get(1)
	require.Equal(t, 1, <-g.Entered())
	c.Get(2)

	closed := make(chan struct{})
	go func() {
		assert.NoError(t, c.Close())
		close(closed)
	}()

	g.Release(1)
	g.Release(2)
	assert.Equal(t, 2, <-g.Entered(), "queued load runs before Close returns")
	<-closed

	assert.Equal(t, 0, c.Len())
	assert.Equal(t, -1, c.Get(3))
	assert.Equal(t, 0, c.Len(), "closed cache does not schedule loads")
	assert.ErrorIs(t, c.Update(3, 9), ErrClosed)
	assert.NoError(t, c.Close())
}

func TestBackgroundCache_CloseFromCallback(t *testing.T) {
	values := map[int]*testutil.Closer{1: {ID: 1}, 2: {ID: 2}}
	c, err := NewBackground(10, func(_ context.Context, k int) (*testutil.Closer, error) {
		return values[k], nil
	}, 2, Constant[int, *testutil.Closer](nil))
	require.NoError(t, err)

	require.NoError(t, c.Update(2, values[2]))

	done := make(chan struct{})
	var once sync.Once
	c.OnEntryUpdated(func(key int) {
		if key != 1 {
			return
		}
		once.Do(func() {
			assert.NoError(t, c.Close())
			close(done)
		})
	})
	c.Get(1)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close called from OnEntryUpdated did not return")
	}

	require.Eventually(t, func() bool { return c.Len() == 0 }, 2*time.Second, time.Millisecond)
	require.Eventually(t, func() bool {
		return values[1].Closed() == 1 && values[2].Closed() == 1
	}, 2*time.Second, time.Millisecond, "entries are disposed after the last worker exits")

	assert.Nil(t, c.Get(3))
	assert.ErrorIs(t, c.Update(3, &testutil.Closer{}), ErrClosed)
	assert.NoError(t, c.Close())
}

func TestBackgroundCache_FlushHonorsContext(t *testing.T) {
	g := testutil.NewGate[int]()
	c, err := NewBackground(10, testutil.Provider(g, square), 1, Constant[int](-1))
	require.NoError(t, err)
	defer c.Close()

	c.Get(1)
	<-g.Entered()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.Flush(ctx), context.DeadlineExceeded)

	g.Release(1)
	flush(t, c)
}

func TestBackgroundCache_Metrics(t *testing.T) {
	m := &BasicMetricsCollector{}
	c, err := NewBackground(1, func(_ context.Context, k int) (int, error) { return k, nil }, 1, Constant[int](-1), WithMetricsCollector(m))
	require.NoError(t, err)
	defer c.Close()

	c.Get(1)
	flush(t, c)
	c.Get(1)
	c.Get(2)
	flush(t, c)

	stats := m.GetStats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(2), stats.Misses)
	assert.Equal(t, int64(2), stats.LoadCount)
	assert.Equal(t, int64(1), stats.Evictions)
}

func TestNewBackground_Validation(t *testing.T) {
	p := func(_ context.Context, k int) (int, error) { return k, nil }
	dv := Constant[int](0)

	_, err := NewBackground(-1, p, 1, dv)
	assert.ErrorIs(t, err, ErrInvalidCapacity)

	_, err = NewBackground[int, int](1, nil, 1, dv)
	assert.ErrorIs(t, err, ErrNilProvider)

	_, err = NewBackground(1, p, 0, dv)
	assert.ErrorIs(t, err, ErrInvalidWorkerCount)

	_, err = NewBackground(1, p, 1, nil)
	assert.ErrorIs(t, err, ErrNilDefaultValue)

	c, err := NewBackground(1, p, 1, dv)
	require.NoError(t, err)
	defer c.Close()
	assert.ErrorIs(t, c.SetDefaultValueFunc(nil), ErrNilDefaultValue)
	assert.ErrorIs(t, c.SetProvider(nil), ErrNilProvider)
}

func TestBackgroundCache_SetDefaultValueFunc(t *testing.T) {
	g := testutil.NewGate[int]()
	c, err := NewBackground(4, testutil.Provider(g, square), 1, Constant[int](-1))
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.SetDefaultValueFunc(func(k int) int { return -k }))
	assert.Equal(t, -7, c.Get(7))
	<-g.Entered()
	g.Release(7)
	flush(t, c)
	assert.Equal(t, 49, c.Get(7))
}
