// Package resource implements a Controller for limits shared between caches.
//
// The Controller governs four resource types:
//
//   - Memory: budget for cached values (non-blocking, fail-fast)
//   - Loads: number of provider calls running at the same time
//   - Load rate: provider calls per second issued by background workers
//   - IO: read throughput of value sources (token bucket)
//
// # Memory Management
//
// AcquireMemory is non-blocking and returns ErrMemoryLimitExceeded when the
// budget is exhausted. The entry store reacts by evicting from the LRU tail
// and retrying:
//
//	rc := resource.NewController(resource.Config{
//	    MemoryLimitBytes: 64 << 20,
//	})
//	c, _ := lrucache.New(1024, provider,
//	    lrucache.WithResourceController(rc),
//	    lrucache.WithSizer(func(v []byte) int64 { return int64(len(v)) }),
//	)
//
// # Load Limits
//
// Several caches can share one controller so that the total number of slow
// provider calls stays bounded:
//
//	rc := resource.NewController(resource.Config{
//	    MaxConcurrentLoads: 4,
//	    LoadsPerSecond:     50,
//	})
//
// # Nil Safety
//
// All methods handle a nil Controller gracefully - they become no-ops.
package resource
