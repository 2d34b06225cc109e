package defs

import (
	"time"
)

var (
	// WorkerPollInterval defines how long a save worker sleeps when its input queue is empty
	//
	// The value trades latency for CPU usage. It can be overridden per pipeline by "pollInterval" in config
	WorkerPollInterval = 10 * time.Microsecond

	// WorkerStopTimeout defines how long to wait for a worker loop to exit after stop is requested
	//
	// A worker only checks the stop flag between records, so the value must cover the slowest single write.
	// It should be treated as a bug if such timeout happens at runtime
	WorkerStopTimeout = 60 * time.Second

	// DrainPollInterval defines how often the drain controller checks for in-flight descriptors during shutdown
	DrainPollInterval = 10 * time.Millisecond

	// DescriptorPoolCapacity is the default numbers of save descriptors per stream
	//
	// 55 records queued to savers, plus one held by a saver thread, plus one to keep the producer streaming when
	// everything else is queued
	DescriptorPoolCapacity = 55 + 1 + 1

	// SaveWriteAttempts is how many times to try writing one record file before giving up
	SaveWriteAttempts = 3

	// SaveShardSize is the numbers of records grouped in one shard directory
	//
	// It must stay 1000 for the "%04d000" naming of shard directories
	SaveShardSize uint64 = 1000

	// SaveFileExt is the default extension of saved record files
	SaveFileExt = "raw"

	// SaveFileMode is the permission of saved record files
	SaveFileMode uint32 = 0o644

	// SaveDirMode is the permission of take and shard directories
	SaveDirMode uint32 = 0o755

	// DirectIOAlignment is the size and address alignment required by O_DIRECT writes
	DirectIOAlignment = 512

	// MissedSaveLogInterval limits how often a missed save is reported in logs, per stream
	//
	// Missed saves are always counted in metrics; logging every one of them would slow the producer down further
	MissedSaveLogInterval = 1 * time.Second

	// MissedSaveLogBurst is the numbers of missed saves that can be logged at once before throttling
	MissedSaveLogBurst = 5

	// StatsInterval defines how often running statistics are logged
	StatsInterval = 2 * time.Second

	// MemoryArrayMaxRatio is the max fraction of free system memory allowed for all memory-array targets of a worker
	MemoryArrayMaxRatio = 0.8
)

// For testing and experiments
const (
	TestReadTimeout = 5 * time.Second
)

// EnableTestMode turns on test mode with very short intervals
func EnableTestMode() {
	WorkerPollInterval = 10 * time.Microsecond
	WorkerStopTimeout = 5 * time.Second
	DrainPollInterval = 1 * time.Millisecond
	StatsInterval = 100 * time.Millisecond
}
