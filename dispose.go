package lrucache

import (
	"context"
	"io"
	"reflect"

	"github.com/hupe1980/lrucache/internal/lru"
)

// releaser closes values the entry store gave up. Values implementing
// io.Closer are closed exactly once, on the goroutine that released them,
// after the cache lock has been dropped.
type releaser struct {
	logger  *Logger
	metrics MetricsCollector
	onError func(error)
}

func newReleaser(o options) *releaser {
	return &releaser{
		logger:  o.logger,
		metrics: o.metricsCollector,
		onError: o.onDisposeError,
	}
}

// account records evictions; it is called for every released entry.
func (r *releaser) account(ctx context.Context, key any, reason lru.Reason) {
	if reason == lru.Evicted {
		r.metrics.RecordEviction()
		r.logger.LogEviction(ctx, key)
	}
}

// dispose closes v if it implements io.Closer.
func (r *releaser) dispose(ctx context.Context, key any, v any) {
	c, ok := v.(io.Closer)
	if !ok || isNil(v) {
		return
	}

	err := c.Close()
	r.metrics.RecordDispose(err)
	if err == nil {
		return
	}

	derr := &DisposeError{Key: key, cause: err}
	if r.onError != nil {
		r.onError(derr)
		return
	}
	r.logger.LogDisposeError(ctx, derr)
}

func isNil(v any) bool {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}

// sameValue reports whether a and b are the same comparable value, so a
// re-commit of an identical value does not close what stays resident.
func sameValue[V any](a, b V) bool {
	va, vb := reflect.ValueOf(any(a)), reflect.ValueOf(any(b))
	if !va.IsValid() || !vb.IsValid() || va.Type() != vb.Type() {
		return false
	}
	if !va.Comparable() || !vb.Comparable() {
		return false
	}
	return va.Equal(vb)
}
