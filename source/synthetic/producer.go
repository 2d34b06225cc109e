package synthetic

import (
	"encoding/binary"
	"sync/atomic"
	"time"

	"github.com/relex/framesink/base"
	"github.com/relex/framesink/base/bconfig"
	"github.com/relex/framesink/defs"
	"github.com/relex/gotils/channels"
	"github.com/relex/gotils/logger"
)

// Dispatcher accepts records without blocking, see dispatch.Dispatcher
type Dispatcher interface {
	Dispatch(record base.Record) bool
	ReclaimAll() int
}

// Producer generates records at a fixed rate from a fixed set of owned buffers, standing in for a capture device
//
// A buffer is taken for each record and only returned when the pipeline reclaims or rejects the record. When all
// buffers are held by the pipeline, the record is dropped and counted as an overrun, like a device running out of
// capture buffers. An overrun uses up a frame ID but never reaches the dispatcher, so it takes no sequence number
type Producer struct {
	logger    logger.Logger
	config    bconfig.StreamConfig
	frameSize int
	buffers   [][]byte
	freeList  []int
	nextID    uint64
	counters  producerCounters
}

type producerCounters struct {
	produced atomic.Uint64
	accepted atomic.Uint64
	rejected atomic.Uint64
	overruns atomic.Uint64
	free     atomic.Int64
}

// ProducerStats is a snapshot of producer counters
type ProducerStats struct {
	Produced uint64 // records generated and offered to the pipeline
	Accepted uint64
	Rejected uint64 // records refused by the pipeline (missed saves)
	Overruns uint64 // records not generated because all buffers were held
	Free     int
}

type frame struct {
	id          uint64
	parts       [][]byte
	size        int
	bufferIndex int
}

func (f *frame) ID() uint64      { return f.id }
func (f *frame) Parts() [][]byte { return f.parts }
func (f *frame) Size() int       { return f.size }

// NewProducer allocates all buffers of the stream
func NewProducer(parentLogger logger.Logger, config bconfig.StreamConfig) *Producer {
	frameSize := int(config.FrameSize.Bytes())
	buffers := make([][]byte, config.BufferCount)
	freeList := make([]int, config.BufferCount)
	for i := range buffers {
		buffers[i] = make([]byte, frameSize)
		freeList[i] = config.BufferCount - 1 - i
	}
	producer := &Producer{
		logger: parentLogger.WithFields(logger.Fields{
			defs.LabelComponent: "SyntheticProducer",
			defs.LabelStream:    config.Name,
		}),
		config:    config,
		frameSize: frameSize,
		buffers:   buffers,
		freeList:  freeList,
	}
	producer.counters.free.Store(int64(len(freeList)))
	return producer
}

// Reclaim returns the buffer of a record reclaimed from the pipeline. It must be called on the producer's goroutine
func (producer *Producer) Reclaim(record base.Record) {
	f, ok := record.(*frame)
	if !ok {
		producer.logger.Errorf("BUG: reclaimed foreign record id=%d", record.ID())
		return
	}
	producer.freeList = append(producer.freeList, f.bufferIndex)
	producer.counters.free.Add(1)
}

// Run generates records and dispatches them until stop is signaled or maxFrames records are produced (0 = unlimited)
//
// Overruns and rejected records don't stop the loop
func (producer *Producer) Run(stop channels.Awaitable, dispatcher Dispatcher, maxFrames uint64) {
	var tick <-chan time.Time
	if producer.config.FrameRate > 0 {
		ticker := time.NewTicker(time.Second / time.Duration(producer.config.FrameRate))
		defer ticker.Stop()
		tick = ticker.C
	}
	producer.logger.Infof("start producing frameSize=%d frameRate=%d buffers=%d", producer.frameSize,
		producer.config.FrameRate, len(producer.buffers))

	for maxFrames == 0 || producer.nextID < maxFrames {
		if tick != nil {
			select {
			case <-stop.Channel():
				return
			case <-tick:
			}
		} else if stop.Peek() {
			return
		}
		producer.produceOne(dispatcher)
	}
	producer.logger.Infof("end producing frames=%d", producer.nextID)
}

// Stats returns a snapshot of producer counters
func (producer *Producer) Stats() ProducerStats {
	return ProducerStats{
		Produced: producer.counters.produced.Load(),
		Accepted: producer.counters.accepted.Load(),
		Rejected: producer.counters.rejected.Load(),
		Overruns: producer.counters.overruns.Load(),
		Free:     int(producer.counters.free.Load()),
	}
}

func (producer *Producer) produceOne(dispatcher Dispatcher) {
	id := producer.nextID
	producer.nextID++

	if len(producer.freeList) == 0 {
		// a device would recycle completed buffers before giving up
		dispatcher.ReclaimAll()
		if len(producer.freeList) == 0 {
			producer.counters.overruns.Add(1)
			return
		}
	}
	index := producer.freeList[len(producer.freeList)-1]
	producer.freeList = producer.freeList[:len(producer.freeList)-1]
	producer.counters.free.Add(-1)

	record := producer.fill(id, index)
	producer.counters.produced.Add(1)
	if dispatcher.Dispatch(record) {
		producer.counters.accepted.Add(1)
	} else {
		producer.counters.rejected.Add(1)
		producer.freeList = append(producer.freeList, index)
		producer.counters.free.Add(1)
	}
}

// fill stamps the frame ID at the start of the buffer and splits it when the simulated capture ring wraps
func (producer *Producer) fill(id uint64, index int) *frame {
	buf := producer.buffers[index]
	if len(buf) >= 8 {
		binary.LittleEndian.PutUint64(buf, id)
	}
	f := &frame{
		id:          id,
		size:        len(buf),
		bufferIndex: index,
	}
	if every := uint64(producer.config.WrapEvery); every > 0 && id%every == every-1 && len(buf) > 1 {
		splitAt := len(buf) / 2
		if aligned := splitAt &^ (defs.DirectIOAlignment - 1); aligned > 0 {
			splitAt = aligned
		}
		f.parts = [][]byte{buf[:splitAt], buf[splitAt:]}
	} else {
		f.parts = [][]byte{buf}
	}
	return f
}

// RegisterMetrics adds producer counters to the given factory, which should be labelled by stream
func (producer *Producer) RegisterMetrics(metricFactory *base.MetricFactory) {
	metricFactory.AddCounterFunc("producer_frames_total", "Numbers of records produced and offered to the pipeline", nil, nil,
		func() float64 { return float64(producer.counters.produced.Load()) })
	metricFactory.AddCounterFunc("producer_overruns_total", "Numbers of records lost because all buffers were held", nil, nil,
		func() float64 { return float64(producer.counters.overruns.Load()) })
	metricFactory.AddGaugeFunc("producer_free_buffers", "Current numbers of free producer buffers", nil, nil,
		func() float64 { return float64(producer.counters.free.Load()) })
}
