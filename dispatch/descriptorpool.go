package dispatch

import (
	"github.com/relex/framesink/base"
)

// DescriptorPool is a LIFO stack of free save descriptors with fixed capacity
//
// It's only used by the dispatcher on the producer thread and has no lock
type DescriptorPool struct {
	all  []*base.SaveDescriptor
	free []*base.SaveDescriptor
}

// NewDescriptorPool creates a pool with all of the given numbers of descriptors free
func NewDescriptorPool(capacity int) *DescriptorPool {
	all := make([]*base.SaveDescriptor, capacity)
	free := make([]*base.SaveDescriptor, capacity)
	for i := range all {
		all[i] = &base.SaveDescriptor{Slot: i}
		free[capacity-1-i] = all[i] // so that slot 0 is popped first
	}
	return &DescriptorPool{
		all:  all,
		free: free,
	}
}

// Pop takes the most recently returned descriptor, or returns false if none is free
func (pool *DescriptorPool) Pop() (*base.SaveDescriptor, bool) {
	n := len(pool.free)
	if n == 0 {
		return nil, false
	}
	desc := pool.free[n-1]
	pool.free[n-1] = nil
	pool.free = pool.free[:n-1]
	return desc, true
}

// Push returns a descriptor to the pool. Returns false if the pool is already full, which would be a bug
func (pool *DescriptorPool) Push(desc *base.SaveDescriptor) bool {
	if len(pool.free) == cap(pool.free) {
		return false
	}
	pool.free = append(pool.free, desc)
	return true
}

// Capacity returns the total numbers of descriptors
func (pool *DescriptorPool) Capacity() int {
	return len(pool.all)
}

// Free returns the numbers of descriptors in the pool
func (pool *DescriptorPool) Free() int {
	return len(pool.free)
}

// Get returns the descriptor at the given slot, free or not
func (pool *DescriptorPool) Get(slot int) *base.SaveDescriptor {
	return pool.all[slot]
}
