package run

import (
	"context"
	"fmt"
	"time"

	"github.com/relex/framesink/base"
	"github.com/relex/framesink/defs"
	"github.com/relex/framesink/dispatch"
	"github.com/relex/framesink/source/synthetic"
	"github.com/relex/framesink/takedir"
	"github.com/relex/gotils/channels"
	"github.com/relex/gotils/logger"
)

// Loader loads configuration from file and prepares the environments to be launched
//
// Loader should take care of everything derived from the config file, but not trigger anything automatically
type Loader struct {
	filepath string // config file path, empty if not loaded from file

	Config
	MetricFactory *base.MetricFactory
	Totals        *base.SaveTotals
}

// Stream is a launched producer and its pipeline
type Stream struct {
	Name       string
	Producer   *synthetic.Producer
	Dispatcher *dispatch.Dispatcher
}

// NewLoaderFromConfigFile loads and verifies config from the path
func NewLoaderFromConfigFile(filepath string, metricPrefix string) (*Loader, error) {
	config, configErr := LoadConfigFile(filepath)
	if configErr != nil {
		return nil, configErr
	}
	loader := NewLoader(*config, base.NewMetricFactory(metricPrefix, nil, nil))
	loader.filepath = filepath
	return loader, nil
}

// NewLoader creates a Loader from verified config
func NewLoader(config Config, metricFactory *base.MetricFactory) *Loader {
	return &Loader{
		Config:        config,
		MetricFactory: metricFactory,
		Totals:        base.NewSaveTotals(),
	}
}

// LaunchStreams plans the take and starts the save workers of all streams
//
// Producers are created but not started. On error, pipelines already started are stopped
func (loader *Loader) LaunchStreams(parentLogger logger.Logger, runID string, startTime time.Time) (takedir.Take, []*Stream, error) {
	take := takedir.Plan(runID, loader.Save, loader.Streams, startTime)
	parentLogger.Infof("planned take=%s run=%s streams=%d arrayMode=%t", take.Name, runID, len(take.Pipelines), take.ArrayMode)

	streams := make([]*Stream, 0, len(loader.Streams))
	for index, streamConfig := range loader.Streams {
		pipelineConfig := take.Pipelines[index]
		for _, worker := range pipelineConfig.Workers {
			parentLogger.Infof("stream=%s worker=%d cpu=%d dir=%s", streamConfig.Name, worker.Index, worker.CPU, worker.Dir)
		}

		producer := synthetic.NewProducer(parentLogger, streamConfig)
		dispatcher, err := dispatch.NewPipeline(parentLogger, pipelineConfig, loader.Totals, loader.MetricFactory, producer.Reclaim)
		if err != nil {
			for _, stream := range streams {
				stream.Dispatcher.StopAll()
			}
			return take, nil, err
		}
		producer.RegisterMetrics(loader.MetricFactory.NewSubFactory("", []string{defs.LabelStream}, []string{streamConfig.Name}))
		streams = append(streams, &Stream{
			Name:       streamConfig.Name,
			Producer:   producer,
			Dispatcher: dispatcher,
		})
	}
	return take, streams, nil
}

// Run produces records until stop is signaled or maxFrames are produced (0 = unlimited), then drains the pipeline
//
// It must be called on one goroutine, which becomes the producer's
func (stream *Stream) Run(drainCtx context.Context, stop channels.Awaitable, maxFrames uint64) error {
	stream.Producer.Run(stop, stream.Dispatcher, maxFrames)
	if err := stream.Dispatcher.DrainAndStopAll(drainCtx); err != nil {
		return fmt.Errorf("stream %s: %w", stream.Name, err)
	}
	return nil
}
