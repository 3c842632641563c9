package queue

import "time"

// Request is a pending load for one key.
type Request[K comparable] struct {
	Key        K
	Token      uint64
	EnqueuedAt time.Time
}

type ticket struct {
	token   uint64
	running bool
}

// Queue is a LIFO stack of load requests. It is not safe for concurrent use;
// the background cache guards it with the same mutex as its entry store.
type Queue[K comparable] struct {
	stack   []Request[K]
	live    map[K]ticket
	next    uint64
	pending int
	running int
}

// New creates an empty queue.
func New[K comparable]() *Queue[K] {
	return &Queue[K]{live: make(map[K]ticket)}
}

// Push schedules a load for key. It returns false when a request for key is
// already pending or running.
func (q *Queue[K]) Push(key K, now time.Time) (Request[K], bool) {
	if _, ok := q.live[key]; ok {
		return Request[K]{}, false
	}
	q.next++
	req := Request[K]{Key: key, Token: q.next, EnqueuedAt: now}
	q.live[key] = ticket{token: req.Token}
	q.stack = append(q.stack, req)
	q.pending++
	return req, true
}

// Pop removes the most recently pushed live request and marks it running.
// Requests invalidated by Forget or Reset are skipped.
func (q *Queue[K]) Pop() (Request[K], bool) {
	for n := len(q.stack); n > 0; n = len(q.stack) {
		req := q.stack[n-1]
		q.stack[n-1] = Request[K]{}
		q.stack = q.stack[:n-1]

		t, ok := q.live[req.Key]
		if !ok || t.token != req.Token || t.running {
			continue
		}
		t.running = true
		q.live[req.Key] = t
		q.pending--
		q.running++
		return req, true
	}
	return Request[K]{}, false
}

// Done reports that a popped request finished. It returns true when the
// request is still current, i.e. its result may be committed.
func (q *Queue[K]) Done(req Request[K]) bool {
	q.running--
	t, ok := q.live[req.Key]
	if !ok || t.token != req.Token {
		return false
	}
	delete(q.live, req.Key)
	return true
}

// Contains reports whether a live request exists for key.
func (q *Queue[K]) Contains(key K) bool {
	_, ok := q.live[key]
	return ok
}

// Forget invalidates the live request for key, pending or running.
func (q *Queue[K]) Forget(key K) bool {
	t, ok := q.live[key]
	if !ok {
		return false
	}
	if !t.running {
		q.pending--
	}
	delete(q.live, key)
	return true
}

// Clear drops every request that has not started yet and returns their keys.
// Running requests are left alone.
func (q *Queue[K]) Clear() []K {
	var keys []K
	for _, req := range q.stack {
		t, ok := q.live[req.Key]
		if !ok || t.token != req.Token || t.running {
			continue
		}
		delete(q.live, req.Key)
		keys = append(keys, req.Key)
	}
	q.stack = nil
	q.pending = 0
	return keys
}

// Reset clears pending requests and invalidates running ones.
func (q *Queue[K]) Reset() []K {
	keys := q.Clear()
	clear(q.live)
	return keys
}

// Len returns the number of pending requests.
func (q *Queue[K]) Len() int { return q.pending }

// Running returns the number of requests popped but not yet done.
func (q *Queue[K]) Running() int { return q.running }

// Idle reports whether nothing is pending or running.
func (q *Queue[K]) Idle() bool { return q.pending == 0 && q.running == 0 }
