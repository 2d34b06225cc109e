package framesaver

import (
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/relex/framesink/base"
	"github.com/relex/framesink/base/bconfig"
	"github.com/relex/framesink/base/bsupport"
	"github.com/relex/framesink/defs"
	"github.com/relex/framesink/util"
	"github.com/relex/gotils/logger"
)

// SaveWorker persists records of dispatched descriptors to its Target on a dedicated thread
type SaveWorker struct {
	*bsupport.PollingWorkerBase[*base.SaveDescriptor]
	name            string
	config          bconfig.SaveTargetConfig
	target          Target
	totals          *base.SaveTotals
	counters        *targetCounters
	integrityErrors atomic.Uint64
}

// NewSaveWorker creates a SaveWorker for one target; the worker has to be started by Start
//
// totals are shared by all workers of the process and may be nil. Metrics are registered under the given factory
// with the worker index as label
func NewSaveWorker(parentLogger logger.Logger, name string, config bconfig.SaveTargetConfig, queueCapacity int,
	pollInterval time.Duration, totals *base.SaveTotals, metricFactory *base.MetricFactory) (*SaveWorker, error) {

	if err := config.VerifyConfig(); err != nil {
		return nil, fmt.Errorf("save worker %s: %w", name, err)
	}
	if totals == nil {
		totals = base.NewSaveTotals()
	}

	wlogger := parentLogger.WithFields(logger.Fields{
		defs.LabelComponent: "SaveWorker",
		defs.LabelWorker:    config.Index,
	})
	counters := &targetCounters{}

	var target Target
	if config.IsArrayMode() {
		target = newArrayTarget(wlogger, config.ArrayCount, config.ElementSize)
	} else {
		target = newDirTarget(wlogger, config, counters)
	}

	worker := &SaveWorker{
		PollingWorkerBase: bsupport.NewPollingWorkerBase[*base.SaveDescriptor](wlogger, queueCapacity, pollInterval),
		name:              name,
		config:            config,
		target:            target,
		totals:            totals,
		counters:          counters,
	}
	worker.InitInternal(worker.onStart, worker.onInput, worker.onStop)
	if metricFactory != nil {
		worker.registerMetrics(metricFactory)
	}
	return worker, nil
}

// Name returns the worker name, which is also used as thread label
func (worker *SaveWorker) Name() string {
	return worker.name
}

// Stats returns a snapshot of worker statistics
func (worker *SaveWorker) Stats() base.WorkerStats {
	stats := worker.PollingWorkerBase.Stats()
	stats.Name = worker.name
	stats.Recovered = worker.counters.recovered.Load()
	stats.IntegrityErrors = worker.integrityErrors.Load()
	return stats
}

func (worker *SaveWorker) onStart() error {
	if worker.config.CPU >= 0 {
		if err := util.PinThreadToCPU(worker.config.CPU); err != nil {
			return fmt.Errorf("error binding to cpu=%d: %w", worker.config.CPU, err)
		}
		worker.Logger().Infof("bound to cpu=%d", worker.config.CPU)
	}
	return worker.target.Open()
}

func (worker *SaveWorker) onInput(desc *base.SaveDescriptor) error {
	record := desc.Record
	if record == nil {
		return fmt.Errorf("BUG: nil record in descriptor slot=%d seq=%d. stack=%s", desc.Slot, desc.Seq, util.Stack())
	}
	size := base.SumPartsLength(record)
	if size != record.Size() {
		worker.integrityErrors.Add(1)
		worker.Logger().Warnf("size mismatch id=%d seq=%d declared=%d actual=%d", record.ID(), desc.Seq, record.Size(), size)
	}
	recoveredBefore := worker.counters.recovered.Load()
	if err := worker.target.Save(desc.Seq, record); err != nil {
		worker.totals.Failed.Inc()
		return err
	}
	if worker.counters.recovered.Load() != recoveredBefore {
		worker.totals.Recovered.Inc()
	}
	worker.totals.Records.Inc()
	worker.totals.Bytes.Add(int64(size))
	return nil
}

func (worker *SaveWorker) onStop() {
	worker.target.Close()
	stats := worker.Stats()
	worker.Logger().Infof("stopped submitted=%d completed=%d failed=%d recovered=%d integrityErrors=%d",
		stats.Submitted, stats.Completed, stats.Failed, stats.Recovered, stats.IntegrityErrors)
}

func (worker *SaveWorker) registerMetrics(metricFactory *base.MetricFactory) {
	labelNames := []string{defs.LabelWorker}
	labelValues := []string{strconv.Itoa(worker.config.Index)}
	counterFunc := func(name string, help string, read func() uint64) {
		metricFactory.AddCounterFunc(name, help, labelNames, labelValues, func() float64 {
			return float64(read())
		})
	}
	counterFunc("save_submitted_total", "Numbers of records submitted to save workers",
		func() uint64 { return worker.PollingWorkerBase.Stats().Submitted })
	counterFunc("save_completed_total", "Numbers of records processed by save workers, including failed ones",
		func() uint64 { return worker.PollingWorkerBase.Stats().Completed })
	counterFunc("save_failed_total", "Numbers of records failed to be saved after all attempts",
		func() uint64 { return worker.PollingWorkerBase.Stats().Failed })
	counterFunc("save_recovered_total", "Numbers of records saved after failed attempts",
		worker.counters.recovered.Load)
	counterFunc("save_write_errors_total", "Numbers of failed write attempts",
		worker.counters.writeErrors.Load)
	counterFunc("save_integrity_errors_total", "Numbers of records whose declared size differs from payload",
		worker.integrityErrors.Load)
	counterFunc("save_unaligned_total", "Numbers of records written without direct I/O due to alignment",
		worker.counters.alignmentWarnings.Load)

	queueLabelNames := []string{defs.LabelWorker, "queue"}
	metricFactory.AddGaugeFunc("save_queue_length", "Current length of save worker queues", queueLabelNames,
		[]string{labelValues[0], "input"}, func() float64 { return float64(worker.PollingWorkerBase.Stats().InputLength) })
	metricFactory.AddGaugeFunc("save_queue_length", "Current length of save worker queues", queueLabelNames,
		[]string{labelValues[0], "output"}, func() float64 { return float64(worker.PollingWorkerBase.Stats().OutputLength) })
}
