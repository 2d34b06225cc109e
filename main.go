package main

import (
	"runtime"

	"github.com/relex/framesink/base"
	"github.com/relex/framesink/cmd"
	"github.com/relex/framesink/defs"
	"github.com/relex/framesink/util"
	"github.com/relex/gotils/logger"
)

var version string

func main() {
	logger.Infof("version: %s", version)
	logger.Infof("GOMAXPROCS: %d CPUs: %d", runtime.GOMAXPROCS(0), util.NumCPU())

	registerInfoMetric()

	cmd.Execute()
}

func registerInfoMetric() {
	base.NewMetricFactory(defs.MetricsPrefix, nil, nil).
		AddOrGetGaugeVec("info", "framesink application information", []string{"version"}, nil).
		WithLabelValues(version).Add(1)
}
