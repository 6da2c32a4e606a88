// Package ringbuf provides a fixed-capacity FIFO used for the raw MIDI byte
// queue, note history and clock period history.
package ringbuf

// Buffer is a bounded FIFO. A reject-mode buffer refuses Put when full; an
// overwrite-mode buffer drops its oldest entry instead.
type Buffer[T any] struct {
	items     []T
	head      int // index of the oldest item
	count     int
	overwrite bool
}

// New creates a reject-mode buffer holding up to capacity items
func New[T any](capacity int) *Buffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer[T]{items: make([]T, capacity)}
}

// NewOverwrite creates an overwrite-mode buffer holding up to capacity items
func NewOverwrite[T any](capacity int) *Buffer[T] {
	b := New[T](capacity)
	b.overwrite = true
	return b
}

// Put appends v. It returns false, leaving the buffer unchanged, only when a
// reject-mode buffer is full.
func (b *Buffer[T]) Put(v T) bool {
	if b.count == len(b.items) {
		if !b.overwrite {
			return false
		}
		b.items[b.head] = v
		b.head = (b.head + 1) % len(b.items)
		return true
	}
	b.items[(b.head+b.count)%len(b.items)] = v
	b.count++
	return true
}

// Get removes and returns the oldest item
func (b *Buffer[T]) Get() (T, bool) {
	var zero T
	if b.count == 0 {
		return zero, false
	}
	v := b.items[b.head]
	b.items[b.head] = zero
	b.head = (b.head + 1) % len(b.items)
	b.count--
	return v, true
}

// Ready returns the number of items available to Get
func (b *Buffer[T]) Ready() int {
	return b.count
}

// Cap returns the fixed capacity
func (b *Buffer[T]) Cap() int {
	return len(b.items)
}

// Last returns the i-th most recent item; Last(0) is the newest
func (b *Buffer[T]) Last(i int) (T, bool) {
	var zero T
	if i < 0 || i >= b.count {
		return zero, false
	}
	idx := (b.head + b.count - 1 - i) % len(b.items)
	return b.items[idx], true
}

// Each calls fn for every item from oldest to newest
func (b *Buffer[T]) Each(fn func(T)) {
	for i := 0; i < b.count; i++ {
		fn(b.items[(b.head+i)%len(b.items)])
	}
}

// Reset empties the buffer
func (b *Buffer[T]) Reset() {
	var zero T
	for i := range b.items {
		b.items[i] = zero
	}
	b.head = 0
	b.count = 0
}
