package utils

import "sync"

// RingBuffer is a fixed-capacity FIFO of T. Pushing into a full buffer
// evicts the oldest element. Elements are kept oldest first.
//
//	rb := NewRingBuffer[string](2)
//	rb.Push("1.0.0")
//	rb.Push("1.0.1")
//	rb.Push("1.0.2") // "1.0.0" is evicted
//	rb.ToSlice()     // [1.0.1 1.0.2]
type RingBuffer[T any] struct {
	data  []T
	size  int
	count int
	head  int // oldest element
	tail  int // next write position
	mu    sync.RWMutex
}

// NewRingBuffer creates an empty buffer. It panics unless size is positive.
func NewRingBuffer[T any](size int) *RingBuffer[T] {
	if size <= 0 {
		panic("ring buffer size must be positive")
	}
	return &RingBuffer[T]{
		data: make([]T, size),
		size: size,
	}
}

// NewRingBufferFrom creates a buffer holding the last size elements of items.
func NewRingBufferFrom[T any](size int, items []T) *RingBuffer[T] {
	rb := NewRingBuffer[T](size)
	if len(items) > size {
		items = items[len(items)-size:]
	}
	for _, item := range items {
		rb.push(item)
	}
	return rb
}

// Push appends item, evicting the oldest element when the buffer is full.
// It returns the evicted element and whether there was one.
func (rb *RingBuffer[T]) Push(item T) (evicted T, ok bool) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.push(item)
}

func (rb *RingBuffer[T]) push(item T) (evicted T, ok bool) {
	if rb.count == rb.size {
		evicted, ok = rb.data[rb.head], true
		rb.head = (rb.head + 1) % rb.size
	} else {
		rb.count++
	}
	rb.data[rb.tail] = item
	rb.tail = (rb.tail + 1) % rb.size
	return evicted, ok
}

// Len returns the number of stored elements.
func (rb *RingBuffer[T]) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.count
}

// Cap returns the capacity.
func (rb *RingBuffer[T]) Cap() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.size
}

// At returns the i-th element, 0 being the oldest. It panics when i is out of
// [0, Len()).
func (rb *RingBuffer[T]) At(i int) T {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.at(i)
}

func (rb *RingBuffer[T]) at(i int) T {
	if i < 0 || i >= rb.count {
		panic("index out of range")
	}
	return rb.data[(rb.head+i)%rb.size]
}

// Last returns the newest element.
func (rb *RingBuffer[T]) Last() (T, bool) {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	if rb.count == 0 {
		var zero T
		return zero, false
	}
	return rb.at(rb.count - 1), true
}

// ToSlice returns a copy of the elements, oldest first.
func (rb *RingBuffer[T]) ToSlice() []T {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	result := make([]T, rb.count)
	for i := 0; i < rb.count; i++ {
		result[i] = rb.at(i)
	}
	return result
}
