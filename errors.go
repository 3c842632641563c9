package lrucache

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned when an operation is attempted on a closed cache.
	ErrClosed = errors.New("cache is closed")

	// ErrNilProvider is returned when a cache is constructed without a provider.
	ErrNilProvider = errors.New("provider must not be nil")

	// ErrInvalidCapacity is returned for a negative capacity.
	ErrInvalidCapacity = errors.New("capacity must not be negative")

	// ErrInvalidWorkerCount is returned when a background cache is configured without workers.
	ErrInvalidWorkerCount = errors.New("worker count must be positive")

	// ErrNilDefaultValue is returned when a background cache is constructed without a default value function.
	ErrNilDefaultValue = errors.New("default value function must not be nil")
)

// PanicError is recorded when a provider panics while loading a key.
//
// The background cache stores it as the error of the Failed entry; the
// synchronous cache returns it from Get.
type PanicError struct {
	Key   any
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("provider panicked for key %v: %v", e.Key, e.Value)
}

// Unwrap returns the recovered value if it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// DisposeError reports that closing an evicted value failed.
//
// The original underlying error can be accessed via errors.Unwrap.
type DisposeError struct {
	Key   any
	cause error
}

func (e *DisposeError) Error() string {
	return fmt.Sprintf("dispose value for key %v: %v", e.Key, e.cause)
}

func (e *DisposeError) Unwrap() error { return e.cause }

// ErrSizerType indicates that the function passed to WithSizer does not match the cache's value type.
type ErrSizerType struct {
	Want string
	Got  string
}

func (e *ErrSizerType) Error() string {
	return fmt.Sprintf("sizer type mismatch: expected %s, got %s", e.Want, e.Got)
}
