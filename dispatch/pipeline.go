package dispatch

import (
	"fmt"

	"github.com/relex/framesink/base"
	"github.com/relex/framesink/base/bconfig"
	"github.com/relex/framesink/defs"
	"github.com/relex/framesink/saver/framesaver"
	"github.com/relex/gotils/logger"
)

// NewPipeline creates and starts the save workers of one stream and returns the dispatcher over them
//
// Any setup error stops the workers already started. metricFactory may be nil
func NewPipeline(parentLogger logger.Logger, config bconfig.PipelineConfig, totals *base.SaveTotals,
	metricFactory *base.MetricFactory, onReclaimed func(record base.Record)) (*Dispatcher, error) {

	if err := config.VerifyConfig(); err != nil {
		return nil, fmt.Errorf("pipeline %s: %w", config.Name, err)
	}
	var streamMetrics *base.MetricFactory
	if metricFactory != nil {
		streamMetrics = metricFactory.NewSubFactory("", []string{defs.LabelStream}, []string{config.Name})
	}
	plogger := parentLogger.WithField(defs.LabelStream, config.Name)

	workers := make([]base.PipelineWorker, 0, len(config.Workers))
	abort := func(err error) (*Dispatcher, error) {
		for _, worker := range workers {
			worker.Stop()
		}
		return nil, fmt.Errorf("pipeline %s: %w", config.Name, err)
	}
	for _, workerConfig := range config.Workers {
		name := fmt.Sprintf("%s-save-%d", config.Name, workerConfig.Index)
		worker, err := framesaver.NewSaveWorker(plogger, name, workerConfig, config.PoolCapacity, config.PollInterval,
			totals, streamMetrics)
		if err != nil {
			return abort(err)
		}
		if err := worker.Start(name); err != nil {
			worker.Stop()
			return abort(err)
		}
		workers = append(workers, worker)
	}

	dispatcher := NewDispatcher(plogger, config.Name, config.PoolCapacity, workers, onReclaimed)
	if streamMetrics != nil {
		dispatcher.registerMetrics(streamMetrics)
	}
	return dispatcher, nil
}

func (dispatcher *Dispatcher) registerMetrics(metricFactory *base.MetricFactory) {
	metricFactory.AddCounterFunc("dispatched_total", "Numbers of records offered to the pipeline", nil, nil,
		func() float64 { return float64(dispatcher.counters.dispatched.Load()) })
	metricFactory.AddCounterFunc("save_missed_total", "Numbers of records not saved because no descriptor was free", nil, nil,
		func() float64 { return float64(dispatcher.counters.missed.Load()) })
	metricFactory.AddGaugeFunc("free_descriptors", "Current numbers of free save descriptors", nil, nil,
		func() float64 { return float64(dispatcher.counters.free.Load()) })
}
