// Package run runs the capture pipelines of all configured streams
package run

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/relex/framesink/base"
	"github.com/relex/framesink/defs"
	"github.com/relex/framesink/source/synthetic"
	"github.com/relex/framesink/takedir"
	"github.com/relex/framesink/util"
	"github.com/relex/gotils/channels"
	"github.com/relex/gotils/logger"
)

// Options controls when a run ends
type Options struct {
	Duration     time.Duration // run time, 0 = until stopped
	Frames       uint64        // records per stream, 0 = unlimited
	QuitOnError  bool          // stop early on any missed save or save failure
	DrainTimeout time.Duration // max time to wait for pending saves after stop, 0 = forever
}

// Summary is the end-of-run statistics
type Summary struct {
	RunID     string
	Take      takedir.Take
	Pipelines []base.PipelineStats
	Producers []synthetic.ProducerStats
	Totals    base.SaveTotalsSnapshot
	Elapsed   time.Duration
}

// HasErrors returns true if any record was missed or failed to be saved
func (summary *Summary) HasErrors() bool {
	return hasErrors(summary.Pipelines)
}

// Run runs all streams until stopped by signals or options, and logs the summary
func Run(configFile string, options Options) {
	loader, loaderErr := NewLoaderFromConfigFile(configFile, defs.MetricsPrefix)
	if loaderErr != nil {
		logger.Fatal(loaderErr)
	}

	runLogger := logger.WithField(defs.LabelComponent, "Launcher")
	stopRequest := channels.NewSignalAwaitable()
	go func() {
		sigChan := make(chan os.Signal, 10)
		signal.Notify(sigChan, syscall.SIGINT)
		signal.Notify(sigChan, syscall.SIGTERM)
		s := <-sigChan
		runLogger.Infof("received %s, shutting down", s)
		stopRequest.Signal()
	}()

	if text, err := util.MarshalYaml(loader.Config); err == nil {
		runLogger.Infof("loaded %s:\n%s", configFile, text)
	}

	summary, err := Execute(loader, options, stopRequest)
	recordRun(loader.MetricFactory, runStatus(summary, err))
	switch {
	case err != nil:
		logger.Fatal(err)
	case summary.HasErrors():
		runLogger.Warn("exit with missed or failed saves")
	default:
		runLogger.Info("clean exit")
	}
}

// Execute launches all streams and waits until they end, by stopRequest, by options, or by themselves
//
// A setup error is returned without starting any producer. Errors during run are returned along with the summary
func Execute(loader *Loader, options Options, stopRequest channels.Awaitable) (*Summary, error) {
	rlogger := logger.WithField(defs.LabelComponent, "Runner")
	runID := uuid.NewString()
	startTime := time.Now()

	take, streams, launchErr := loader.LaunchStreams(rlogger, runID, startTime)
	if launchErr != nil {
		return nil, launchErr
	}
	if err := takedir.LabelDirs(rlogger, take); err != nil {
		rlogger.Warnf("failed to label take directories: %s", err.Error())
	}

	stop := channels.NewSignalAwaitable()
	requestStop := util.NewRunOnce(stop.Signal)
	drainCtx, cancelDrain := context.WithCancel(context.Background())
	defer cancelDrain()

	streamErrors := make([]error, len(streams))
	streamsDone := &sync.WaitGroup{}
	activeStreams := newActiveStreamsGauge(loader.MetricFactory)
	for i, stream := range streams {
		streamsDone.Add(1)
		activeStreams.Add(1)
		go func(i int, stream *Stream) {
			defer streamsDone.Done()
			defer activeStreams.Sub(1)
			streamErrors[i] = stream.Run(drainCtx, stop, options.Frames)
		}(i, stream)
	}
	allDone := make(chan struct{})
	go func() {
		streamsDone.Wait()
		close(allDone)
	}()

	stopRequested := stopRequest.Channel()
	var timeout <-chan time.Time
	if options.Duration > 0 {
		timer := time.NewTimer(options.Duration)
		defer timer.Stop()
		timeout = timer.C
	}
	ticker := time.NewTicker(defs.StatsInterval)
	defer ticker.Stop()

	stopNow := func(reason string) {
		if requestStop() {
			rlogger.Infof("stopping: %s", reason)
			if options.DrainTimeout > 0 {
				time.AfterFunc(options.DrainTimeout, cancelDrain)
			}
		}
	}

waitLoop:
	for {
		select {
		case <-stopRequested:
			stopRequested = nil
			stopNow("stop requested")
		case <-timeout:
			timeout = nil
			stopNow(fmt.Sprintf("duration %s reached", options.Duration))
		case <-ticker.C:
			stats := collectPipelineStats(streams)
			logStats(rlogger, streams, stats)
			if options.QuitOnError && hasErrors(stats) {
				stopNow("missed or failed saves")
			}
		case <-allDone:
			break waitLoop
		}
	}

	summary := &Summary{
		RunID:     runID,
		Take:      take,
		Pipelines: collectPipelineStats(streams),
		Producers: make([]synthetic.ProducerStats, len(streams)),
		Totals:    loader.Totals.Snapshot(),
		Elapsed:   time.Since(startTime),
	}
	for i, stream := range streams {
		summary.Producers[i] = stream.Producer.Stats()
	}
	logSummary(rlogger, summary)

	if err := takedir.WriteManifests(take, summary.Pipelines, summary.Totals, startTime.Add(summary.Elapsed)); err != nil {
		streamErrors = append(streamErrors, err)
	}
	return summary, errors.Join(streamErrors...)
}

func collectPipelineStats(streams []*Stream) []base.PipelineStats {
	stats := make([]base.PipelineStats, len(streams))
	for i, stream := range streams {
		stats[i] = stream.Dispatcher.Stats()
	}
	return stats
}

func hasErrors(stats []base.PipelineStats) bool {
	for _, s := range stats {
		if s.Missed > 0 || s.Total().Failed > 0 {
			return true
		}
	}
	return false
}

func logStats(rlogger logger.Logger, streams []*Stream, stats []base.PipelineStats) {
	for i, s := range stats {
		pstats := streams[i].Producer.Stats()
		rlogger.Infof("%s produced=%d overruns=%d", s, pstats.Produced, pstats.Overruns)
	}
}

func logSummary(rlogger logger.Logger, summary *Summary) {
	total := base.WorkerStats{Name: "all"}
	var missed, produced, overruns uint64
	for i, s := range summary.Pipelines {
		pstats := summary.Producers[i]
		rlogger.Infof("summary %s produced=%d overruns=%d", s, pstats.Produced, pstats.Overruns)
		total.Add(s.Total())
		missed += s.Missed
		produced += pstats.Produced
		overruns += pstats.Overruns
	}
	seconds := summary.Elapsed.Seconds()
	if seconds <= 0 {
		seconds = 1
	}
	rlogger.Infof("summary take=%s elapsed=%s produced=%d overruns=%d submitted=%d missed=%d failed=%d recovered=%d saved=%d bytes=%d rate=%.1f/s",
		summary.Take.Name, summary.Elapsed.Round(time.Millisecond), produced, overruns, total.Submitted, missed,
		total.Failed, total.Recovered, summary.Totals.Records, summary.Totals.Bytes, float64(summary.Totals.Records)/seconds)
}
