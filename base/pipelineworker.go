package base

import (
	"github.com/relex/gotils/channels"
)

// PipelineWorker represents a persistence worker in the frame pipeline, e.g. a save worker
//
// Submit and DrainCompleted are called from the producer; they never block
type PipelineWorker interface {
	// Start launches the worker thread labelled by the given name. Errors are fatal for pipeline setup
	Start(threadLabel string) error

	// Submit queues a descriptor for persistence. It never rejects; bounding is done by the descriptor pool
	Submit(desc *SaveDescriptor)

	// DrainCompleted moves up to len(dst) completed descriptors into dst and returns the count
	DrainCompleted(dst []*SaveDescriptor) int

	// Stop stops the worker loop after the current item, waits for it and tears down resources
	Stop()

	// Stopped returns an Awaitable which is signaled when the worker loop has exited
	Stopped() channels.Awaitable

	// Stats returns a snapshot of worker statistics
	Stats() WorkerStats
}
