package utils

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingBuffer_NewRingBuffer(t *testing.T) {
	rb := NewRingBuffer[int](3)
	assert.Equal(t, 3, rb.Cap())
	assert.Equal(t, 0, rb.Len())
	assert.Empty(t, rb.ToSlice())

	assert.Panics(t, func() { NewRingBuffer[int](0) })
	assert.Panics(t, func() { NewRingBuffer[int](-1) })
}

func TestRingBuffer_Push(t *testing.T) {
	rb := NewRingBuffer[int](3)

	_, evicted := rb.Push(1)
	assert.False(t, evicted)
	rb.Push(2)
	rb.Push(3)
	assert.Equal(t, 3, rb.Len())
	assert.Equal(t, []int{1, 2, 3}, rb.ToSlice())

	old, evicted := rb.Push(4)
	assert.True(t, evicted)
	assert.Equal(t, 1, old)
	assert.Equal(t, 3, rb.Len())
	assert.Equal(t, []int{2, 3, 4}, rb.ToSlice())
}

func TestRingBuffer_FullOverwriteSequence(t *testing.T) {
	rb := NewRingBuffer[int](3)
	for i := 1; i <= 7; i++ {
		rb.Push(i)
		assert.LessOrEqual(t, rb.Len(), rb.Cap())
	}
	assert.Equal(t, []int{5, 6, 7}, rb.ToSlice())
	assert.Equal(t, 5, rb.At(0))
	assert.Equal(t, 7, rb.At(2))

	last, ok := rb.Last()
	require.True(t, ok)
	assert.Equal(t, 7, last)
}

func TestRingBuffer_At_IndexOutOfBounds(t *testing.T) {
	rb := NewRingBuffer[int](3)
	rb.Push(10)

	assert.Panics(t, func() { rb.At(-1) })
	assert.Panics(t, func() { rb.At(1) })

	_, ok := NewRingBuffer[int](1).Last()
	assert.False(t, ok)
}

func TestRingBuffer_From(t *testing.T) {
	rb := NewRingBufferFrom(3, []string{"a", "b", "c", "d", "e"})
	assert.Equal(t, []string{"c", "d", "e"}, rb.ToSlice())

	rb = NewRingBufferFrom(5, []string{"a", "b"})
	assert.Equal(t, []string{"a", "b"}, rb.ToSlice())
	rb.Push("c")
	assert.Equal(t, []string{"a", "b", "c"}, rb.ToSlice())
}

func TestRingBuffer_ConcurrentPush(t *testing.T) {
	rb := NewRingBuffer[int](50)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				rb.Push(i)
				_ = rb.ToSlice()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, rb.Len())
}
