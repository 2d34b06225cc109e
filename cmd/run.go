package cmd

import (
	"context"
	"time"

	"github.com/relex/framesink/defs"
	"github.com/relex/framesink/run"
	"github.com/relex/framesink/util"
	"github.com/relex/gotils/logger"
)

type runCommandState struct {
	Config       string `help:"Configuration file path"`
	MetricsAddr  string `help:"The listener address to expose Prometheus metrics and debug information"`
	TestMode     bool   `help:"Use test mode config: short intervals and timeout"`
	Seconds      int    `help:"Stop after the given seconds, 0 to run until interrupted"`
	Frames       int    `help:"Stop after the given numbers of frames per stream, 0 for unlimited"`
	QuitOnError  bool   `name:"quit-on-error" help:"Stop as soon as any frame is missed or fails to be saved"`
	DrainSeconds int    `name:"drain-seconds" help:"Max seconds to wait for pending saves at shutdown, 0 to wait forever"`
}

var runCmd runCommandState = runCommandState{
	Config:      "config.yml",
	MetricsAddr: ":9336",
	TestMode:    false,
}

func (cmd *runCommandState) run(args []string) {
	if cmd.TestMode {
		defs.EnableTestMode()
	}

	msrv := util.LaunchMetricsListener(cmd.MetricsAddr)

	run.Run(cmd.Config, cmd.options())

	if err := msrv.Shutdown(context.Background()); err != nil {
		logger.Errorf("error shutting down metrics listener: %v", err)
	}
}

func (cmd *runCommandState) options() run.Options {
	return run.Options{
		Duration:     time.Duration(cmd.Seconds) * time.Second,
		Frames:       uint64(util.MaxInt(cmd.Frames, 0)),
		QuitOnError:  cmd.QuitOnError,
		DrainTimeout: time.Duration(cmd.DrainSeconds) * time.Second,
	}
}
