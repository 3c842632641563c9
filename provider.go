package lrucache

import (
	"context"
	"fmt"
	"runtime/debug"
)

// Provider computes the value for a key on a miss.
//
// The cache calls a provider from caller goroutines (Cache) or from its
// worker pool (BackgroundCache), possibly for several keys at the same time.
// A provider must therefore be safe for concurrent use.
type Provider[K comparable, V any] func(ctx context.Context, key K) (V, error)

// DefaultValueFunc returns the placeholder a BackgroundCache hands out while
// the real value of key is loading.
//
// It is called with the cache lock held and must not call back into the
// cache.
type DefaultValueFunc[K comparable, V any] func(key K) V

// Constant returns a DefaultValueFunc that always yields v.
func Constant[K comparable, V any](v V) DefaultValueFunc[K, V] {
	return func(K) V { return v }
}

// call invokes p and converts a panic into a *PanicError.
func (p Provider[K, V]) call(ctx context.Context, key K) (v V, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero V
			v = zero
			err = &PanicError{Key: key, Value: r, Stack: debug.Stack()}
		}
	}()
	return p(ctx, key)
}

// flightKey identifies key for singleflight. The type prefix keeps keys of
// different dynamic types apart when K is an interface.
func flightKey[K comparable](key K) string {
	return fmt.Sprintf("%T/%#v", key, key)
}
