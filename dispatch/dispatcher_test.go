package dispatch

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/relex/framesink/base"
	"github.com/relex/framesink/base/bsupport"
	"github.com/relex/framesink/defs"
	"github.com/relex/gotils/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testWorker struct {
	*bsupport.PollingWorkerBase[*base.SaveDescriptor]
	release chan struct{} // nil if never stalled
	seqs    []uint64      // written by worker thread; read only after stop
}

func newTestWorker(t *testing.T, index int, stalled bool) *testWorker {
	worker := &testWorker{
		PollingWorkerBase: bsupport.NewPollingWorkerBase[*base.SaveDescriptor](
			logger.WithField("test", t.Name()).WithField(defs.LabelWorker, index), 16, time.Microsecond),
	}
	if stalled {
		worker.release = make(chan struct{})
	}
	worker.InitInternal(nil, worker.onInput, nil)
	require.Nil(t, worker.Start(fmt.Sprintf("test-%d", index)))
	return worker
}

func (worker *testWorker) onInput(desc *base.SaveDescriptor) error {
	if worker.release != nil {
		<-worker.release
	}
	worker.seqs = append(worker.seqs, desc.Seq)
	return nil
}

func (worker *testWorker) unstall() {
	close(worker.release)
}

func newTestDispatcher(t *testing.T, capacity int, workers ...*testWorker) (*Dispatcher, *[]base.Record) {
	reclaimed := make([]base.Record, 0, 100)
	pworkers := make([]base.PipelineWorker, len(workers))
	for i, w := range workers {
		pworkers[i] = w
	}
	dispatcher := NewDispatcher(logger.WithField("test", t.Name()), "cam0", capacity, pworkers, func(record base.Record) {
		reclaimed = append(reclaimed, record)
	})
	t.Cleanup(dispatcher.StopAll)
	return dispatcher, &reclaimed
}

func assertConservation(t *testing.T, dispatcher *Dispatcher) {
	stats := dispatcher.Stats()
	assert.Equal(t, uint64(stats.Capacity), uint64(stats.FreeDescriptors)+stats.Total().InFlight(),
		"free + in-flight == capacity")
	assert.Equal(t, stats.FreeDescriptors, dispatcher.pool.Free())
}

// assertQueueBounds checks descriptors by where they actually are: each worker may hold one outside of its queues
//
// Only call it while workers are stalled or idle, since queue lengths are read one by one
func assertQueueBounds(t *testing.T, dispatcher *Dispatcher) {
	stats := dispatcher.Stats()
	queued := 0
	for _, w := range stats.Workers {
		queued += w.InputLength + w.OutputLength
	}
	located := stats.FreeDescriptors + queued
	assert.LessOrEqual(t, located, stats.Capacity, "free + queued <= capacity")
	assert.GreaterOrEqual(t, located, stats.Capacity-len(stats.Workers), "free + queued >= capacity - workers")
}

func TestDispatcherRouting(t *testing.T) {
	defs.EnableTestMode()
	workers := []*testWorker{newTestWorker(t, 0, false), newTestWorker(t, 1, false), newTestWorker(t, 2, false)}
	dispatcher, reclaimed := newTestDispatcher(t, 64, workers...)

	for i := 0; i < 30; i++ {
		assert.True(t, dispatcher.Dispatch(base.NewFrame(uint64(100+i), []byte("x"))))
		assertConservation(t, dispatcher)
	}
	assert.Nil(t, dispatcher.DrainAndStopAll(context.Background()))
	assertConservation(t, dispatcher)
	assert.Equal(t, 64, dispatcher.Free())
	assert.Len(t, *reclaimed, 30)

	for w, worker := range workers {
		assert.Len(t, worker.seqs, 10)
		for i, seq := range worker.seqs {
			assert.Equal(t, uint64(w), seq%3, "worker %d got seq %d", w, seq)
			assert.Equal(t, uint64(w+i*3), seq, "FIFO per worker")
		}
		assert.Equal(t, base.WorkerStopped, worker.State())
	}
	stats := dispatcher.Stats()
	assert.Equal(t, uint64(30), stats.Dispatched)
	assert.Equal(t, uint64(0), stats.Missed)
	assert.Equal(t, uint64(30), stats.Total().Completed)
}

func TestDispatcherBackpressure(t *testing.T) {
	defs.EnableTestMode()
	worker := newTestWorker(t, 0, true)
	dispatcher, reclaimed := newTestDispatcher(t, 4, worker)

	accepted := 0
	for i := 0; i < 6; i++ {
		if dispatcher.Dispatch(base.NewFrame(uint64(i), []byte("x"))) {
			accepted++
		}
		assertConservation(t, dispatcher)
		assertQueueBounds(t, dispatcher)
	}
	assert.Equal(t, 4, accepted)
	stats := dispatcher.Stats()
	assert.Equal(t, uint64(2), stats.Missed)
	assert.Equal(t, uint64(6), stats.Dispatched)
	assert.Equal(t, 0, stats.FreeDescriptors)
	assert.Empty(t, *reclaimed)

	worker.unstall()
	assert.Nil(t, dispatcher.DrainAndStopAll(context.Background()))
	assert.Equal(t, []uint64{0, 1, 2, 3}, worker.seqs, "rejected records consume sequence numbers 4 and 5")
	assert.Len(t, *reclaimed, 4)
	assert.Equal(t, 4, dispatcher.Free())
}

func TestDispatcherStalledWorkerHoldsPool(t *testing.T) {
	defs.EnableTestMode()
	fast := newTestWorker(t, 0, false)
	slow := newTestWorker(t, 1, true)
	dispatcher, _ := newTestDispatcher(t, 4, fast, slow)

	results := make([]bool, 0, 10)
	for i := 0; i < 10; i++ {
		results = append(results, dispatcher.Dispatch(base.NewFrame(uint64(i), []byte("x"))))
		// let the fast worker finish
		time.Sleep(5 * time.Millisecond)
	}
	// every odd record goes to the slow worker, which keeps its descriptors until all are gone
	assert.Equal(t, []bool{true, true, true, true, true, true, true, true, false, false}, results)
	assert.Equal(t, uint64(2), dispatcher.Stats().Missed)
	assertConservation(t, dispatcher)
	assertQueueBounds(t, dispatcher)
	slowStats := dispatcher.Stats().Workers[1]
	assert.Equal(t, 3, slowStats.InputLength, "one of four held in processing")

	slow.unstall()
	assert.Nil(t, dispatcher.DrainAndStopAll(context.Background()))
	assert.Equal(t, []uint64{0, 2, 4, 6}, fast.seqs)
	assert.Equal(t, []uint64{1, 3, 5, 7}, slow.seqs)
}

func TestDispatcherDrainWaitsForStuckWorker(t *testing.T) {
	defs.EnableTestMode()
	worker := newTestWorker(t, 0, true)
	dispatcher, reclaimed := newTestDispatcher(t, 4, worker)
	assert.True(t, dispatcher.Dispatch(base.NewFrame(1, []byte("x"))))
	assert.True(t, dispatcher.Dispatch(base.NewFrame(2, []byte("y"))))

	done := make(chan error, 1)
	go func() {
		done <- dispatcher.DrainAndStopAll(context.Background())
	}()
	select {
	case <-done:
		assert.Fail(t, "drain returned before the stuck worker finished")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, base.WorkerRunning, worker.State())

	worker.unstall()
	select {
	case err := <-done:
		assert.Nil(t, err)
	case <-time.After(defs.TestReadTimeout):
		assert.Fail(t, "drain didn't finish")
	}
	assert.Equal(t, base.WorkerStopped, worker.State())
	assert.Len(t, *reclaimed, 2)
	assert.Equal(t, 4, dispatcher.Free())
}

func TestDispatcherDrainCancelled(t *testing.T) {
	defs.EnableTestMode()
	worker := newTestWorker(t, 0, true)
	dispatcher, _ := newTestDispatcher(t, 4, worker)
	assert.True(t, dispatcher.Dispatch(base.NewFrame(1, []byte("x"))))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := dispatcher.DrainAndStopAll(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, base.WorkerRunning, worker.State(), "workers are left running")

	worker.unstall()
}

func TestDescriptorPool(t *testing.T) {
	pool := NewDescriptorPool(3)
	assert.Equal(t, 3, pool.Capacity())
	assert.Equal(t, 3, pool.Free())

	d0, _ := pool.Pop()
	d1, _ := pool.Pop()
	d2, _ := pool.Pop()
	assert.Equal(t, []int{0, 1, 2}, []int{d0.Slot, d1.Slot, d2.Slot})
	_, ok := pool.Pop()
	assert.False(t, ok)

	assert.True(t, pool.Push(d1))
	assert.True(t, pool.Push(d0))
	last, _ := pool.Pop()
	assert.Same(t, d0, last, "LIFO")
	assert.True(t, pool.Push(d0))
	assert.True(t, pool.Push(d2))
	assert.False(t, pool.Push(&base.SaveDescriptor{Slot: 9}), "overflow")
	assert.Same(t, d2, pool.Get(2))
}
