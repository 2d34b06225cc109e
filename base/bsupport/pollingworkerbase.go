package bsupport

import (
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/relex/framesink/base"
	"github.com/relex/framesink/defs"
	"github.com/relex/framesink/util"
	"github.com/relex/gotils/channels"
	"github.com/relex/gotils/logger"
)

// PollingWorkerBase is the base worker class for pipeline workers on a dedicated thread
//
// It contains an input queue, an output queue, a process function for each of input items and a cooperative stop
// flag checked once per loop iteration. The loop polls the input queue and sleeps for the poll interval when it's
// empty; every item taken from input is put into output after processing, whether or not the processing failed.
//
// The process function is the only thing required from its composite parent
type PollingWorkerBase[T any] struct {
	_baseLogger   logger.Logger
	_baseInput    *util.LockedQueue[T]
	_baseOutput   *util.LockedQueue[T]
	_baseInterval time.Duration
	_baseState    atomic.Int32
	_baseStopping atomic.Bool
	_baseStopped  *channels.SignalAwaitable
	_baseSignal   func() bool
	_baseStopOnce func() bool
	_baseOnStart  func() error
	_baseOnInput  func(item T) error
	_baseOnStop   func()
	_baseCounters pollingWorkerCounters
}

type pollingWorkerCounters struct {
	submitted      atomic.Uint64
	completed      atomic.Uint64
	reclaimed      atomic.Uint64
	failed         atomic.Uint64
	inputMaxLength atomic.Int64 // only updated by Submit caller
}

// NewPollingWorkerBase creates a new PollingWorkerBase for specified item type
//
// queueCapacity is the initial capacity of both queues; pollInterval <= 0 means defs.WorkerPollInterval
func NewPollingWorkerBase[T any](logger logger.Logger, queueCapacity int, pollInterval time.Duration) *PollingWorkerBase[T] {
	if pollInterval <= 0 {
		pollInterval = defs.WorkerPollInterval
	}
	worker := &PollingWorkerBase[T]{
		_baseLogger:   logger,
		_baseInput:    util.NewLockedQueue[T](queueCapacity),
		_baseOutput:   util.NewLockedQueue[T](queueCapacity),
		_baseInterval: pollInterval,
		_baseStopped:  channels.NewSignalAwaitable(),
	}
	worker._baseSignal = util.NewRunOnce(worker._baseStopped.Signal)
	worker._baseStopOnce = util.NewRunOnce(worker._baseStop)
	return worker
}

// InitInternal initializes the internal function references called in processing loops
//
// startHandler runs on the worker thread before the loop starts; an error aborts Start.
// inputHandler processes one item; an error is counted and logged, but never stops the loop.
// stopHandler runs on the caller of Stop after the loop has exited.
func (worker *PollingWorkerBase[T]) InitInternal(
	startHandler func() error,
	inputHandler func(item T) error,
	stopHandler func(),
) {
	if worker._baseOnInput != nil {
		worker._baseLogger.Panic("re-initialization called")
	}
	worker._baseOnStart = startHandler
	worker._baseOnInput = inputHandler
	worker._baseOnStop = stopHandler
}

// Start launches the main loop on a dedicated OS thread and waits until the start handler finishes
func (worker *PollingWorkerBase[T]) Start(threadLabel string) error {
	if worker._baseOnInput == nil {
		worker._baseLogger.Panic("BUG: start called before InitInternal")
	}
	if !worker._baseState.CompareAndSwap(int32(base.WorkerCreated), int32(base.WorkerRunning)) {
		return fmt.Errorf("cannot start worker %s in state %s", threadLabel, worker.State())
	}
	started := make(chan error, 1)
	go worker._baseRun(threadLabel, started)
	if err := <-started; err != nil {
		return fmt.Errorf("failed to start worker %s: %w", threadLabel, err)
	}
	return nil
}

// Submit appends an item to the input queue. It never blocks or rejects.
func (worker *PollingWorkerBase[T]) Submit(item T) {
	length := int64(worker._baseInput.Push(item))
	worker._baseCounters.submitted.Add(1)
	if length > worker._baseCounters.inputMaxLength.Load() {
		worker._baseCounters.inputMaxLength.Store(length)
	}
}

// DrainCompleted moves up to len(dst) items from the output queue to dst and returns the count. It never blocks.
func (worker *PollingWorkerBase[T]) DrainCompleted(dst []T) int {
	num := worker._baseOutput.PopInto(dst)
	worker._baseCounters.reclaimed.Add(uint64(num))
	return num
}

// Stop requests the loop to exit after the current item, waits for it and calls the stop handler
//
// Items left in the input queue are not processed. Only the first call takes effect.
func (worker *PollingWorkerBase[T]) Stop() {
	worker._baseStopOnce()
}

// Logger returns the logger
func (worker *PollingWorkerBase[T]) Logger() logger.Logger {
	return worker._baseLogger
}

// Stopped returns an Awaitable which is signaled when the loop has exited
func (worker *PollingWorkerBase[T]) Stopped() channels.Awaitable {
	return worker._baseStopped
}

// State returns the current lifecycle state
func (worker *PollingWorkerBase[T]) State() base.WorkerState {
	return base.WorkerState(worker._baseState.Load())
}

// Stats returns a snapshot of the generic counters; Name, Recovered and IntegrityErrors are left to the parent
func (worker *PollingWorkerBase[T]) Stats() base.WorkerStats {
	return base.WorkerStats{
		State:          worker.State(),
		Submitted:      worker._baseCounters.submitted.Load(),
		Completed:      worker._baseCounters.completed.Load(),
		Reclaimed:      worker._baseCounters.reclaimed.Load(),
		Failed:         worker._baseCounters.failed.Load(),
		InputLength:    worker._baseInput.Len(),
		OutputLength:   worker._baseOutput.Len(),
		InputMaxLength: int(worker._baseCounters.inputMaxLength.Load()),
	}
}

func (worker *PollingWorkerBase[T]) _baseRun(threadLabel string, started chan<- error) {
	// never unlocked: the thread may have been pinned by the start handler and must not be reused
	runtime.LockOSThread()
	defer worker._baseSignal()

	if worker._baseOnStart != nil {
		if err := worker._baseOnStart(); err != nil {
			worker._baseState.Store(int32(base.WorkerStopped))
			started <- err
			return
		}
	}
	started <- nil

	worker._baseLogger.Infof("start main loop thread=%s interval=%s", threadLabel, worker._baseInterval)
	worker._baseProcessMain()
	worker._baseState.Store(int32(base.WorkerStopped))
	worker._baseLogger.Infof("end main loop thread=%s completed=%d remaining=%d", threadLabel,
		worker._baseCounters.completed.Load(), worker._baseInput.Len())
}

func (worker *PollingWorkerBase[T]) _baseProcessMain() {
	for !worker._baseStopping.Load() {
		item, ok := worker._baseInput.Pop()
		if !ok {
			time.Sleep(worker._baseInterval)
			continue
		}
		worker._baseProcessOne(item)
		worker._baseOutput.Push(item)
		worker._baseCounters.completed.Add(1)
	}
}

func (worker *PollingWorkerBase[T]) _baseProcessOne(item T) {
	defer func() {
		if r := recover(); r != nil {
			worker._baseCounters.failed.Add(1)
			worker._baseLogger.Errorf("BUG: panic in processing: %v. stack=%s", r, util.Stack())
		}
	}()
	if err := worker._baseOnInput(item); err != nil {
		worker._baseCounters.failed.Add(1)
		worker._baseLogger.Error(err)
	}
}

func (worker *PollingWorkerBase[T]) _baseStop() {
	if worker._baseState.CompareAndSwap(int32(base.WorkerCreated), int32(base.WorkerStopped)) {
		worker._baseLogger.Info("stop worker never started")
		worker._baseSignal()
	} else {
		worker._baseStopping.Store(true)
		worker._baseState.CompareAndSwap(int32(base.WorkerRunning), int32(base.WorkerStopping))
		if !worker._baseStopped.Wait(defs.WorkerStopTimeout) {
			worker._baseLogger.Errorf("BUG: couldn't stop worker in time, skip teardown. stack=%s", util.Stack())
			return
		}
	}
	if worker._baseOnStop != nil {
		worker._baseOnStop()
	}
}
