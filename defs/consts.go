package defs

// Common labels for logging
const (
	LabelComponent = "component"
	LabelName      = "name"
	LabelPart      = "part"

	LabelStream = "stream"
	LabelWorker = "worker"
)

// MetricsPrefix is the prefix of all metrics exported by framesink
const MetricsPrefix = "framesink_"
