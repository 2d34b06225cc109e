package run

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/relex/framesink/base"
)

// Run statuses for runs_total
const (
	runStatusClean      = "clean"
	runStatusIncomplete = "incomplete"
	runStatusError      = "error"
)

// recordRun counts one finished run by its status
func recordRun(metricFactory *base.MetricFactory, status string) prometheus.Counter {
	counter := metricFactory.AddOrGetCounter("runs_total", "Numbers of finished runs by status",
		[]string{"status"}, []string{status})
	counter.Inc()
	return counter
}

func runStatus(summary *Summary, err error) string {
	switch {
	case err != nil:
		return runStatusError
	case summary.HasErrors():
		return runStatusIncomplete
	default:
		return runStatusClean
	}
}

func newActiveStreamsGauge(metricFactory *base.MetricFactory) prometheus.Gauge {
	return metricFactory.AddOrGetGauge("active_streams", "Numbers of streams producing or draining", nil, nil)
}
