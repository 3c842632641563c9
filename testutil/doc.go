// Package testutil provides helpers for testing caches.
//
// This package is intended for use in tests and benchmarks only.
//
// # Providers
//
//	p := testutil.NewCountingProvider(func(k int) (int, error) { return k * k, nil })
//	c, _ := lrucache.New(3, p.Load)
//	// ...
//	p.Calls(2) // provider invocations for key 2
//
// # Gated Loads
//
//	g := testutil.NewGate[int]()
//	c, _ := lrucache.NewBackground(10, testutil.Provider(g, square), 1, lrucache.Constant[int](-1))
//	g.Release(1) // let the load for key 1 finish
//
// # Time
//
//	clock := testutil.NewClock(time.Unix(0, 0))
//	clock.Advance(time.Minute)
package testutil
