package lrucache

import "time"

// State is the load state of a background cache entry.
type State uint8

const (
	// StateMissing means the key has no entry.
	StateMissing State = iota
	// StateLoading means a placeholder is stored and a load is scheduled or running.
	StateLoading
	// StateComplete means the entry holds the value computed by the provider
	// or written by Update.
	StateComplete
	// StateFailed means the last load failed. The entry keeps its placeholder
	// and is not reloaded until Reset (or WithRetryFailedAfter elapses).
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateMissing:
		return "missing"
	case StateLoading:
		return "loading"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// EntryInfo is a snapshot of a background cache entry.
type EntryInfo[V any] struct {
	State State
	// Value is the loaded value for StateComplete and the placeholder otherwise.
	Value V
	// Err is set for StateFailed.
	Err error
	// UpdatedAt is the time of the last state transition.
	UpdatedAt time.Time
}

// record is what the background cache keeps in its entry store.
type record[V any] struct {
	value     V
	state     State
	err       error
	updatedAt time.Time
}

func (r record[V]) info() EntryInfo[V] {
	return EntryInfo[V]{State: r.state, Value: r.value, Err: r.err, UpdatedAt: r.updatedAt}
}

// owned returns the value the cache must dispose when it drops r.
// Placeholders belong to the DefaultValueFunc and are never closed.
func owned[V any](r record[V]) any {
	if r.state != StateComplete {
		return nil
	}
	return r.value
}
