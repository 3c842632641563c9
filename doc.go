// Package lrucache provides bounded, least-recently-used caches with
// pluggable value providers.
//
// Two caches share the same eviction and disposal rules:
//
//   - Cache loads missing values synchronously on the caller's goroutine.
//   - BackgroundCache returns a placeholder immediately and loads the real
//     value on a fixed pool of workers.
//
// # Quick Start
//
// Synchronous:
//
//	c, _ := lrucache.New(3, func(ctx context.Context, k int) (int, error) {
//	    return k * k, nil
//	})
//	defer c.Close()
//
//	v, err := c.Get(ctx, 4) // 16
//
// Background:
//
//	c, _ := lrucache.NewBackground(1024, loadThumbnail, 8, lrucache.Constant[string](placeholder))
//	c.OnEntryUpdated(func(name string) { redraw(name) })
//
//	img := c.Get("cat.png") // placeholder until a worker finished the load
//
// # Eviction
//
// Capacity bounds the number of resident entries. Reads through Get mark an
// entry as most recently used; TryGet and Update do not change the order of
// an already resident key. When a new key is committed to a full cache the
// least recently used entry is evicted.
//
// # Disposal
//
// Values implementing io.Closer are closed exactly once when the cache drops
// them: on eviction, replacement, Reset, Clear and Close. Close errors are
// passed to WithDisposeErrorHandler or logged. Closers always run outside
// the cache lock.
//
// # Background Loading
//
// Pending loads are served last-in first-out, so the most recently requested
// keys are loaded first. Each key is loaded at most once at a time. A failed
// load is sticky until Reset, Update or WithRetryFailedAfter. Replacing the
// provider with SetProvider discards results from the previous one.
//
// # Configuration
//
// Config can be read from the environment or a YAML file:
//
//	cfg, err := lrucache.ConfigFromEnv("THUMBS_")
//	c, err := lrucache.NewBackground(cfg.Capacity, load, cfg.Workers, def, cfg.Options()...)
//
// # Observability
//
// Logging uses log/slog via WithLogger or WithLogLevel. Metrics are reported
// to a MetricsCollector; BasicMetricsCollector keeps in-memory counters.
//
// # Storage
//
// The blobstore package loads encoded values from local disk, memory, Redis,
// MinIO, S3 or DynamoDB and can itself cache blob blocks in an LRU cache.
package lrucache
