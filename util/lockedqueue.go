package util

import (
	"sync"
)

// LockedQueue is a FIFO queue guarded by its own mutex
//
// Items are kept in a ring which grows when full and never shrinks; the length is practically bounded by callers
type LockedQueue[T any] struct {
	mutex sync.Mutex
	ring  []T
	head  int
	count int
}

// NewLockedQueue creates a LockedQueue with the given initial capacity
func NewLockedQueue[T any](initialCapacity int) *LockedQueue[T] {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	return &LockedQueue[T]{
		ring: make([]T, initialCapacity),
	}
}

// Push appends the item to the tail and returns the new length
func (queue *LockedQueue[T]) Push(item T) int {
	queue.mutex.Lock()
	if queue.count == len(queue.ring) {
		queue.grow()
	}
	queue.ring[(queue.head+queue.count)%len(queue.ring)] = item
	queue.count++
	length := queue.count
	queue.mutex.Unlock()
	return length
}

// Pop removes one item from the head, or returns false if the queue is empty
func (queue *LockedQueue[T]) Pop() (T, bool) {
	var item T
	queue.mutex.Lock()
	if queue.count == 0 {
		queue.mutex.Unlock()
		return item, false
	}
	item = queue.popLocked()
	queue.mutex.Unlock()
	return item, true
}

// PopInto removes up to len(dst) items from the head into dst and returns the count, which may be zero
func (queue *LockedQueue[T]) PopInto(dst []T) int {
	queue.mutex.Lock()
	num := MinInt(len(dst), queue.count)
	for i := 0; i < num; i++ {
		dst[i] = queue.popLocked()
	}
	queue.mutex.Unlock()
	return num
}

// Len returns the current length
func (queue *LockedQueue[T]) Len() int {
	queue.mutex.Lock()
	length := queue.count
	queue.mutex.Unlock()
	return length
}

func (queue *LockedQueue[T]) popLocked() T {
	var zero T
	item := queue.ring[queue.head]
	queue.ring[queue.head] = zero // drop reference
	queue.head = (queue.head + 1) % len(queue.ring)
	queue.count--
	return item
}

func (queue *LockedQueue[T]) grow() {
	newRing := make([]T, len(queue.ring)*2)
	for i := 0; i < queue.count; i++ {
		newRing[i] = queue.ring[(queue.head+i)%len(queue.ring)]
	}
	queue.ring = newRing
	queue.head = 0
}
