package dispatch

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/relex/framesink/base"
	"github.com/relex/framesink/defs"
	"github.com/relex/framesink/util"
	"github.com/relex/gotils/logger"
	"golang.org/x/time/rate"
)

// Dispatcher hands records from the producer to save workers without ever blocking the producer
//
// Dispatch, ReclaimAll and DrainAndStopAll must be called from the producer's goroutine only. Stats can be called
// from anywhere
type Dispatcher struct {
	logger      logger.Logger
	name        string
	pool        *DescriptorPool
	workers     []base.PipelineWorker
	scratch     []*base.SaveDescriptor
	onReclaimed func(record base.Record)
	missLimiter *rate.Limiter
	counters    dispatcherCounters
}

type dispatcherCounters struct {
	dispatched atomic.Uint64
	missed     atomic.Uint64
	free       atomic.Int64
}

// NewDispatcher creates a Dispatcher with a new pool of given capacity over started or to-be-started workers
//
// onReclaimed is called on the producer's goroutine for each record whose descriptor comes back from a worker,
// so that the record's buffers can be returned to their origin. It may be nil
func NewDispatcher(parentLogger logger.Logger, name string, poolCapacity int, workers []base.PipelineWorker,
	onReclaimed func(record base.Record)) *Dispatcher {

	dlogger := parentLogger.WithFields(logger.Fields{
		defs.LabelComponent: "Dispatcher",
		defs.LabelStream:    name,
	})
	if len(workers) == 0 {
		dlogger.Panic("BUG: no worker")
	}
	if onReclaimed == nil {
		onReclaimed = func(record base.Record) {}
	}

	dispatcher := &Dispatcher{
		logger:      dlogger,
		name:        name,
		pool:        NewDescriptorPool(poolCapacity),
		workers:     workers,
		scratch:     make([]*base.SaveDescriptor, poolCapacity),
		onReclaimed: onReclaimed,
		missLimiter: rate.NewLimiter(rate.Every(defs.MissedSaveLogInterval), defs.MissedSaveLogBurst),
	}
	dispatcher.counters.free.Store(int64(poolCapacity))
	return dispatcher
}

// Dispatch reclaims completed descriptors and submits the record to the worker chosen by its sequence number
//
// Every call consumes a sequence number. Returns false if no descriptor is free, in which case the record is
// counted as missed and stays with the caller
func (dispatcher *Dispatcher) Dispatch(record base.Record) bool {
	dispatcher.ReclaimAll()

	seq := dispatcher.counters.dispatched.Add(1) - 1
	desc, ok := dispatcher.pool.Pop()
	if !ok {
		missed := dispatcher.counters.missed.Add(1)
		if dispatcher.missLimiter.Allow() {
			dispatcher.logger.Warnf("missed save id=%d seq=%d missed=%d queued=[%s]",
				record.ID(), seq, missed, dispatcher.inputLengths())
		}
		return false
	}
	dispatcher.counters.free.Add(-1)

	desc.Assign(record, seq)
	dispatcher.workers[seq%uint64(len(dispatcher.workers))].Submit(desc)
	return true
}

// ReclaimAll collects completed descriptors from all workers back into the pool
//
// Returns the numbers of descriptors reclaimed
func (dispatcher *Dispatcher) ReclaimAll() int {
	total := 0
	pushed := 0
	for _, worker := range dispatcher.workers {
		num := worker.DrainCompleted(dispatcher.scratch)
		for i := 0; i < num; i++ {
			desc := dispatcher.scratch[i]
			dispatcher.scratch[i] = nil
			record := desc.Release()
			if !dispatcher.pool.Push(desc) {
				dispatcher.logger.Errorf("BUG: pool overflow slot=%d. stack=%s", desc.Slot, util.Stack())
				continue
			}
			pushed++
			if record != nil {
				dispatcher.onReclaimed(record)
			}
		}
		total += num
	}
	if pushed > 0 {
		dispatcher.counters.free.Add(int64(pushed))
	}
	return total
}

// DrainAndStopAll waits for every submitted descriptor to be completed and reclaimed, then stops all workers
//
// It never returns early because of a slow worker. Cancelling the context aborts waiting with the context's error
// and leaves workers running
func (dispatcher *Dispatcher) DrainAndStopAll(ctx context.Context) error {
	dispatcher.logger.Infof("draining free=%d/%d", dispatcher.pool.Free(), dispatcher.pool.Capacity())
	for {
		dispatcher.ReclaimAll()
		if dispatcher.isDrained() {
			break
		}
		select {
		case <-ctx.Done():
			dispatcher.logger.Warnf("abort draining free=%d/%d: %s", dispatcher.pool.Free(), dispatcher.pool.Capacity(), ctx.Err())
			return fmt.Errorf("draining %s: %w", dispatcher.name, ctx.Err())
		case <-time.After(defs.DrainPollInterval):
		}
	}
	dispatcher.StopAll()
	dispatcher.logger.Infof("drained: %s", dispatcher.Stats())
	return nil
}

// StopAll stops all workers in order without draining, leaving unfinished descriptors where they are
func (dispatcher *Dispatcher) StopAll() {
	for _, worker := range dispatcher.workers {
		worker.Stop()
	}
}

// Stats returns a snapshot of the dispatcher and all of its workers
func (dispatcher *Dispatcher) Stats() base.PipelineStats {
	workerStats := make([]base.WorkerStats, len(dispatcher.workers))
	for i, worker := range dispatcher.workers {
		workerStats[i] = worker.Stats()
	}
	return base.PipelineStats{
		Name:            dispatcher.name,
		Capacity:        dispatcher.pool.Capacity(),
		FreeDescriptors: int(dispatcher.counters.free.Load()),
		Dispatched:      dispatcher.counters.dispatched.Load(),
		Missed:          dispatcher.counters.missed.Load(),
		Workers:         workerStats,
	}
}

// Name returns the stream name
func (dispatcher *Dispatcher) Name() string {
	return dispatcher.name
}

// Capacity returns the total numbers of descriptors
func (dispatcher *Dispatcher) Capacity() int {
	return dispatcher.pool.Capacity()
}

// Free returns the numbers of free descriptors
func (dispatcher *Dispatcher) Free() int {
	return int(dispatcher.counters.free.Load())
}

// Workers returns all workers, indexed by seq % len
func (dispatcher *Dispatcher) Workers() []base.PipelineWorker {
	return dispatcher.workers
}

func (dispatcher *Dispatcher) isDrained() bool {
	for _, worker := range dispatcher.workers {
		stats := worker.Stats()
		if stats.Submitted != stats.Reclaimed {
			return false
		}
	}
	return true
}

func (dispatcher *Dispatcher) inputLengths() string {
	return dispatcher.Stats().InputLengths()
}
