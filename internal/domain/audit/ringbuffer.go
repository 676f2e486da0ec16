package audit

import (
	"context"
	"sync"
)

var _ Sink = (*RingBuffer)(nil)

// RingBuffer keeps the most recent audit entries in memory.
type RingBuffer struct {
	mu      sync.RWMutex
	entries []Entry
	size    int
	next    int
	count   int
}

// NewRingBuffer creates a ring buffer that holds up to size entries.
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = 500
	}
	return &RingBuffer{entries: make([]Entry, size), size: size}
}

// Append stores e, overwriting the oldest entry when full.
func (rb *RingBuffer) Append(_ context.Context, e Entry) error {
	rb.mu.Lock()
	rb.entries[rb.next] = e
	rb.next = (rb.next + 1) % rb.size
	rb.count = min(rb.count+1, rb.size)
	rb.mu.Unlock()
	return nil
}

// Last returns up to n of the newest entries, oldest first.
func (rb *RingBuffer) Last(n int) []Entry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	n = min(n, rb.count)
	if n <= 0 {
		return nil
	}
	out := make([]Entry, 0, n)
	for i := rb.next - n; i < rb.next; i++ {
		out = append(out, rb.entries[(i+rb.size)%rb.size])
	}
	return out
}

// Len returns the number of entries currently held.
func (rb *RingBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.count
}
