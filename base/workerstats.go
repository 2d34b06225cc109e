package base

import (
	"fmt"
	"strings"
)

// WorkerState is the lifecycle state of a pipeline worker
type WorkerState int32

// Worker states, in the only possible order
const (
	WorkerCreated WorkerState = iota
	WorkerRunning
	WorkerStopping
	WorkerStopped
)

func (state WorkerState) String() string {
	switch state {
	case WorkerCreated:
		return "created"
	case WorkerRunning:
		return "running"
	case WorkerStopping:
		return "stopping"
	case WorkerStopped:
		return "stopped"
	default:
		return fmt.Sprintf("WorkerState(%d)", int32(state))
	}
}

// WorkerStats is a snapshot of statistics of one pipeline worker
//
// Counters are read individually and may be slightly inconsistent with each other while the worker is running
type WorkerStats struct {
	Name            string
	State           WorkerState
	Submitted       uint64 // items put into input queue
	Completed       uint64 // items processed and put into output queue
	Reclaimed       uint64 // items taken out of output queue
	Failed          uint64 // items failed to be persisted, after retries if any
	Recovered       uint64 // items persisted after failed attempts
	IntegrityErrors uint64 // items whose declared size differs from actual payload
	InputLength     int
	OutputLength    int
	InputMaxLength  int
}

// InFlight returns the numbers of items submitted but not yet reclaimed
func (stats WorkerStats) InFlight() uint64 {
	return stats.Submitted - stats.Reclaimed
}

// Add accumulates counters and queue lengths of another worker into this one
func (stats *WorkerStats) Add(other WorkerStats) {
	stats.Submitted += other.Submitted
	stats.Completed += other.Completed
	stats.Reclaimed += other.Reclaimed
	stats.Failed += other.Failed
	stats.Recovered += other.Recovered
	stats.IntegrityErrors += other.IntegrityErrors
	stats.InputLength += other.InputLength
	stats.OutputLength += other.OutputLength
	if other.InputMaxLength > stats.InputMaxLength {
		stats.InputMaxLength = other.InputMaxLength
	}
}

// PipelineStats is a snapshot of statistics of a whole persistence pipeline, i.e. one stream
type PipelineStats struct {
	Name            string
	Capacity        int    // total descriptors
	FreeDescriptors int    // descriptors in free pool
	Dispatched      uint64 // dispatch calls, accepted or not
	Missed          uint64 // dispatch calls rejected by backpressure
	Workers         []WorkerStats
}

// Total returns the sum of all worker stats
func (stats PipelineStats) Total() WorkerStats {
	total := WorkerStats{Name: stats.Name}
	for _, w := range stats.Workers {
		total.Add(w)
	}
	return total
}

// InputLengths formats the current input queue length of each worker, e.g. "3 0 1"
func (stats PipelineStats) InputLengths() string {
	lengths := make([]string, len(stats.Workers))
	for i, w := range stats.Workers {
		lengths[i] = fmt.Sprint(w.InputLength)
	}
	return strings.Join(lengths, " ")
}

func (stats PipelineStats) String() string {
	total := stats.Total()
	return fmt.Sprintf("stream=%s dispatched=%d submitted=%d completed=%d missed=%d failed=%d recovered=%d free=%d/%d queued=[%s]",
		stats.Name, stats.Dispatched, total.Submitted, total.Completed, stats.Missed, total.Failed, total.Recovered,
		stats.FreeDescriptors, stats.Capacity, stats.InputLengths())
}
