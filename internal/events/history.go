/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import "sync"

// ring keeps the most recent events, overwriting the oldest when full.
type ring struct {
	mu       sync.RWMutex
	entries  []Event
	capacity int
	head     int
	count    int
}

func newRing(capacity int) *ring {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &ring{entries: make([]Event, capacity), capacity: capacity}
}

func (r *ring) add(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[r.head] = ev
	r.head = (r.head + 1) % r.capacity
	if r.count < r.capacity {
		r.count++
	}
}

// all returns the entries oldest first.
func (r *ring) all() []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Event, r.count)
	start := 0
	if r.count == r.capacity {
		start = r.head
	}
	for i := 0; i < r.count; i++ {
		out[i] = r.entries[(start+i)%r.capacity]
	}
	return out
}

func (r *ring) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

func (r *ring) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make([]Event, r.capacity)
	r.head = 0
	r.count = 0
}
