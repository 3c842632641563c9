package lru

import (
	"time"

	"github.com/hupe1980/lrucache/resource"
)

const nilSlot int32 = -1

// Reason describes why the store released an entry.
type Reason uint8

const (
	// Evicted means the entry fell off the LRU tail because the store was over capacity
	// or the memory budget required room.
	Evicted Reason = iota + 1
	// Replaced means a commit overwrote the value of a resident key.
	Replaced
	// Removed means the entry was deleted explicitly (Remove, Clear).
	Removed
	// Rejected means the committed value could not be admitted at all.
	Rejected
)

func (r Reason) String() string {
	switch r {
	case Evicted:
		return "evicted"
	case Replaced:
		return "replaced"
	case Removed:
		return "removed"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Entry is a key/value pair handed back by the store when it gives up ownership of a value.
type Entry[K comparable, V any] struct {
	Key    K
	Value  V
	Reason Reason
}

// Options configures optional store behaviour.
type Options[V any] struct {
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
	// Sizer reports the memory footprint of a value. Only consulted when Memory is set.
	Sizer func(V) int64
	// Memory is charged for every resident value.
	Memory *resource.Controller
}

type slot[K comparable, V any] struct {
	key        K
	value      V
	size       int64
	lastAccess time.Time
	prev, next int32
}

// Store is a capacity-bounded map with LRU ordering.
//
// Entries live in an arena of slots addressed by stable int32 indices. The
// index map points into the arena and the recency list is threaded through
// the slots, so there is exactly one owner for every entry.
//
// Store is not safe for concurrent use; callers guard it with their own lock.
type Store[K comparable, V any] struct {
	capacity int
	index    map[K]int32
	slots    []slot[K, V]
	free     []int32
	head     int32 // MRU
	tail     int32 // LRU

	now   func() time.Time
	sizer func(V) int64
	rc    *resource.Controller
}

// New creates a store holding at most capacity entries. A capacity of zero
// turns the store into a pass-through: every commit evicts itself.
func New[K comparable, V any](capacity int, opts Options[V]) *Store[K, V] {
	if capacity < 0 {
		capacity = 0
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store[K, V]{
		capacity: capacity,
		index:    make(map[K]int32),
		head:     nilSlot,
		tail:     nilSlot,
		now:      opts.Now,
		sizer:    opts.Sizer,
		rc:       opts.Memory,
	}
}

// Len returns the number of resident entries.
func (s *Store[K, V]) Len() int { return len(s.index) }

// Capacity returns the maximum number of entries.
func (s *Store[K, V]) Capacity() int { return s.capacity }

// Get returns the value for key and marks it most recently used.
func (s *Store[K, V]) Get(key K) (V, bool) {
	idx, ok := s.index[key]
	if !ok {
		var zero V
		return zero, false
	}
	s.moveToFront(idx)
	s.slots[idx].lastAccess = s.now()
	return s.slots[idx].value, true
}

// Peek returns the value for key without touching its recency.
func (s *Store[K, V]) Peek(key K) (V, bool) {
	idx, ok := s.index[key]
	if !ok {
		var zero V
		return zero, false
	}
	return s.slots[idx].value, true
}

// Contains reports whether key is resident.
func (s *Store[K, V]) Contains(key K) bool {
	_, ok := s.index[key]
	return ok
}

// Commit inserts or replaces the value for key.
//
// A resident key keeps its position in the recency list. A new key is pushed
// to the front and the tail is evicted while the store is over capacity.
// Every value the store gives up, including a replaced one, is returned so
// the caller can release it. admitted reports whether key is resident afterwards.
func (s *Store[K, V]) Commit(key K, value V) (released []Entry[K, V], admitted bool) {
	size := s.sizeOf(value)

	if idx, ok := s.index[key]; ok {
		sl := &s.slots[idx]
		old := sl.value
		s.release(sl.size)
		sl.size = 0

		if !s.reserve(size, idx, &released) {
			s.unlink(idx)
			delete(s.index, key)
			s.freeSlot(idx)
			released = append(released,
				Entry[K, V]{Key: key, Value: old, Reason: Replaced},
				Entry[K, V]{Key: key, Value: value, Reason: Rejected},
			)
			return released, false
		}

		sl = &s.slots[idx]
		sl.value = value
		sl.size = size
		released = append(released, Entry[K, V]{Key: key, Value: old, Reason: Replaced})
		return released, true
	}

	if !s.reserve(size, nilSlot, &released) {
		released = append(released, Entry[K, V]{Key: key, Value: value, Reason: Rejected})
		return released, false
	}

	idx := s.allocSlot()
	s.slots[idx] = slot[K, V]{
		key:        key,
		value:      value,
		size:       size,
		lastAccess: s.now(),
		prev:       nilSlot,
		next:       nilSlot,
	}
	s.index[key] = idx
	s.pushFront(idx)

	for len(s.index) > s.capacity {
		e, _ := s.EvictOne()
		released = append(released, e)
	}

	_, admitted = s.index[key]
	return released, admitted
}

// Remove deletes key unconditionally.
func (s *Store[K, V]) Remove(key K) (Entry[K, V], bool) {
	idx, ok := s.index[key]
	if !ok {
		return Entry[K, V]{}, false
	}
	return s.removeSlot(idx, Removed), true
}

// EvictOne removes the least recently used entry.
func (s *Store[K, V]) EvictOne() (Entry[K, V], bool) {
	if s.tail == nilSlot {
		return Entry[K, V]{}, false
	}
	return s.removeSlot(s.tail, Evicted), true
}

// Clear removes every entry, least recently used first.
func (s *Store[K, V]) Clear() []Entry[K, V] {
	out := make([]Entry[K, V], 0, len(s.index))
	for s.tail != nilSlot {
		out = append(out, s.removeSlot(s.tail, Removed))
	}
	s.slots = s.slots[:0]
	s.free = s.free[:0]
	return out
}

// Keys returns the resident keys from most to least recently used.
func (s *Store[K, V]) Keys() []K {
	out := make([]K, 0, len(s.index))
	for idx := s.head; idx != nilSlot; idx = s.slots[idx].next {
		out = append(out, s.slots[idx].key)
	}
	return out
}

// OldestAccess returns the last access time of the least recently used entry.
func (s *Store[K, V]) OldestAccess() (time.Time, bool) {
	if s.tail == nilSlot {
		return time.Time{}, false
	}
	return s.slots[s.tail].lastAccess, true
}

func (s *Store[K, V]) sizeOf(v V) int64 {
	if s.rc == nil || s.sizer == nil {
		return 0
	}
	return s.sizer(v)
}

// reserve charges size against the memory budget, evicting from the tail
// (never the slot keep) until it fits.
func (s *Store[K, V]) reserve(size int64, keep int32, released *[]Entry[K, V]) bool {
	if s.rc == nil || size <= 0 {
		return true
	}
	for s.rc.AcquireMemory(size) != nil {
		victim := s.tail
		if victim == keep && victim != nilSlot {
			victim = s.slots[victim].prev
		}
		if victim == nilSlot {
			return false
		}
		*released = append(*released, s.removeSlot(victim, Evicted))
	}
	return true
}

func (s *Store[K, V]) release(size int64) {
	if s.rc != nil && size > 0 {
		s.rc.ReleaseMemory(size)
	}
}

func (s *Store[K, V]) removeSlot(idx int32, reason Reason) Entry[K, V] {
	sl := s.slots[idx]
	s.unlink(idx)
	delete(s.index, sl.key)
	s.release(sl.size)
	s.freeSlot(idx)
	return Entry[K, V]{Key: sl.key, Value: sl.value, Reason: reason}
}

func (s *Store[K, V]) allocSlot() int32 {
	if n := len(s.free); n > 0 {
		idx := s.free[n-1]
		s.free = s.free[:n-1]
		return idx
	}
	s.slots = append(s.slots, slot[K, V]{})
	return int32(len(s.slots) - 1)
}

func (s *Store[K, V]) freeSlot(idx int32) {
	// Drop references so the GC can reclaim the value.
	s.slots[idx] = slot[K, V]{prev: nilSlot, next: nilSlot}
	s.free = append(s.free, idx)
}

func (s *Store[K, V]) pushFront(idx int32) {
	sl := &s.slots[idx]
	sl.prev = nilSlot
	sl.next = s.head
	if s.head != nilSlot {
		s.slots[s.head].prev = idx
	}
	s.head = idx
	if s.tail == nilSlot {
		s.tail = idx
	}
}

func (s *Store[K, V]) unlink(idx int32) {
	sl := &s.slots[idx]
	if sl.prev != nilSlot {
		s.slots[sl.prev].next = sl.next
	} else {
		s.head = sl.next
	}
	if sl.next != nilSlot {
		s.slots[sl.next].prev = sl.prev
	} else {
		s.tail = sl.prev
	}
	sl.prev, sl.next = nilSlot, nilSlot
}

func (s *Store[K, V]) moveToFront(idx int32) {
	if s.head == idx {
		return
	}
	s.unlink(idx)
	s.pushFront(idx)
}
