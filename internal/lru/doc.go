// Package lru implements the entry store shared by the synchronous and the
// background caches.
//
// The store is an arena of slots plus an intrusive doubly-linked list of slot
// indices ordered by recency:
//
//	index: map[K]int32 ──► slots[i] {key, value, prev, next}
//	head (MRU) ◄──► ... ◄──► tail (LRU)
//
// Reads through Get move an entry to the head. Commits of a resident key
// update the value in place and leave the recency position alone. Values the
// store gives up are returned to the caller as Entry values tagged with a
// Reason, so disposal can happen outside the caller's lock.
//
// Optionally the store charges every value against a resource.Controller
// memory budget and evicts from the tail until a new value fits.
package lru
