package storage

import "sync"

// RingBuffer is a fixed-capacity, thread-safe FIFO. When full, Push
// overwrites the oldest item.
type RingBuffer[T any] struct {
	mu    sync.RWMutex
	items []T
	next  int    // index the next Push writes to
	size  int    // items currently held
	total uint64 // items ever pushed
}

// NewRingBuffer creates a buffer holding up to capacity items.
// It panics if capacity is not positive.
func NewRingBuffer[T any](capacity int) *RingBuffer[T] {
	if capacity <= 0 {
		panic("ring buffer capacity must be greater than zero")
	}
	return &RingBuffer[T]{items: make([]T, capacity)}
}

// Push appends item, evicting the oldest one when the buffer is full.
func (rb *RingBuffer[T]) Push(item T) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.items[rb.next] = item
	rb.next = (rb.next + 1) % len(rb.items)
	if rb.size < len(rb.items) {
		rb.size++
	}
	rb.total++
}

// Items returns a copy of the held items, oldest first.
func (rb *RingBuffer[T]) Items() []T {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if rb.size == 0 {
		return nil
	}
	out := make([]T, rb.size)
	start := (rb.next - rb.size + len(rb.items)) % len(rb.items)
	n := copy(out, rb.items[start:min(start+rb.size, len(rb.items))])
	copy(out[n:], rb.items[:rb.size-n])
	return out
}

// Filter returns the held items for which keep returns true, oldest first.
func (rb *RingBuffer[T]) Filter(keep func(T) bool) []T {
	var out []T
	for _, item := range rb.Items() {
		if keep(item) {
			out = append(out, item)
		}
	}
	return out
}

// Len returns the number of held items.
func (rb *RingBuffer[T]) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.size
}

// Cap returns the buffer capacity.
func (rb *RingBuffer[T]) Cap() int {
	return len(rb.items)
}

// Total returns how many items were ever pushed, including evicted ones.
func (rb *RingBuffer[T]) Total() uint64 {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.total
}

// Reset drops every held item. Total is not reset.
func (rb *RingBuffer[T]) Reset() {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	clear(rb.items)
	rb.next = 0
	rb.size = 0
}
