package cmd

import (
	"github.com/relex/framesink/defs"
	"github.com/relex/framesink/run"
	"github.com/relex/gotils/channels"
	"github.com/relex/gotils/logger"
)

type benchmarkCommandState struct {
	Config string `help:"Configuration file path"`
	Frames int    `help:"Numbers of frames per stream"`
}

var benchCmd = benchmarkCommandState{
	Config: "testdata/config_sample_array.yml",
	Frames: 100000,
}

func (cmd *benchmarkCommandState) run(_ []string) {
	defs.EnableTestMode()

	loader, err := run.NewLoaderFromConfigFile(cmd.Config, defs.MetricsPrefix)
	if err != nil {
		logger.Fatal(err)
	}
	for i := range loader.Streams {
		loader.Streams[i].FrameRate = 0
	}

	summary, err := run.Execute(loader, run.Options{Frames: uint64(cmd.Frames)}, channels.NewSignalAwaitable())
	if err != nil {
		logger.Fatal(err)
	}
	seconds := summary.Elapsed.Seconds()
	logger.Infof("benchmark: saved=%d bytes=%d elapsed=%s rate=%.0f/s throughput=%.1fMB/s",
		summary.Totals.Records, summary.Totals.Bytes, summary.Elapsed, float64(summary.Totals.Records)/seconds,
		float64(summary.Totals.Bytes)/seconds/1024/1024)
}
