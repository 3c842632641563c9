package lrucache

import (
	"log/slog"
	"runtime"
	"time"

	"github.com/hupe1980/lrucache/resource"
)

type options struct {
	name             string
	logger           *Logger
	metricsCollector MetricsCollector
	now              func() time.Time
	rc               *resource.Controller
	sizer            any
	onDisposeError   func(error)
	singleFlight     bool
	retryFailedAfter time.Duration
	maxParallelLoads int
}

// Option configures a Cache or BackgroundCache.
type Option func(*options)

func applyOptions(opts []Option) options {
	o := options{
		logger:           NoopLogger(),
		metricsCollector: NoopMetricsCollector{},
		now:              time.Now,
		maxParallelLoads: runtime.GOMAXPROCS(0),
	}
	for _, fn := range opts {
		fn(&o)
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.maxParallelLoads <= 0 {
		o.maxParallelLoads = 1
	}
	o.logger = o.logger.WithCache(o.name)
	return o
}

// WithName tags every log line of the cache with a "cache" field.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithLogger configures structured logging.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := lrucache.NewJSONLogger(slog.LevelDebug)
//	c, _ := lrucache.New(128, provider, lrucache.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithMetricsCollector configures a metrics collector.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &lrucache.BasicMetricsCollector{}
//	c, _ := lrucache.New(128, provider, lrucache.WithMetricsCollector(metrics))
//	// ... use c ...
//	fmt.Printf("hit ratio: %.2f\n", metrics.GetStats().HitRatio())
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithClock replaces time.Now, mainly for tests of OldestUsageTime and
// WithRetryFailedAfter.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithResourceController shares memory and load limits with other caches.
//
// Memory is only charged for values measured by WithSizer. Every provider
// call holds a load slot of the controller; background workers also wait
// for its load rate.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.rc = rc
	}
}

// WithSizer reports the memory footprint of a value. V must match the
// cache's value type, otherwise the constructor fails with *ErrSizerType.
func WithSizer[V any](fn func(V) int64) Option {
	return func(o *options) {
		o.sizer = fn
	}
}

// WithDisposeErrorHandler receives errors returned by Close of released
// values, wrapped in *DisposeError. Without a handler they are logged at
// warn level and otherwise ignored.
func WithDisposeErrorHandler(fn func(error)) Option {
	return func(o *options) {
		o.onDisposeError = fn
	}
}

// WithSingleFlight makes concurrent misses of the synchronous cache for the
// same key share one provider call. Keys are matched by their type and Go
// syntax representation (%T and %#v). The shared call is not cancelled when
// a waiting caller's context ends; that caller returns ctx.Err() alone.
// Misses after SetProvider never join a call of the previous provider.
func WithSingleFlight() Option {
	return func(o *options) {
		o.singleFlight = true
	}
}

// WithRetryFailedAfter lets the background cache schedule a new load for a
// Failed entry once the failure is older than d. By default (d <= 0) a
// failed key keeps returning its placeholder until Reset.
func WithRetryFailedAfter(d time.Duration) Option {
	return func(o *options) {
		o.retryFailedAfter = d
	}
}

// WithMaxParallelLoads bounds the number of concurrent provider calls issued
// by Cache.GetMany. Defaults to GOMAXPROCS.
func WithMaxParallelLoads(n int) Option {
	return func(o *options) {
		o.maxParallelLoads = n
	}
}
