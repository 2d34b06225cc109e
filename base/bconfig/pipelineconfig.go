package bconfig

import (
	"fmt"
	"time"
)

// PipelineConfig is the verified, immutable configuration of one stream's pipeline
//
// It's produced by the take directory planner from StreamConfig and SaveConfig
type PipelineConfig struct {
	Name         string
	PoolCapacity int
	PollInterval time.Duration
	Workers      []SaveTargetConfig
}

// SaveTargetConfig defines the persistence target of one save worker
type SaveTargetConfig struct {
	Index       int
	Dir         string          // directory of shard dirs in file mode
	ArrayCount  int             // > 0 for memory-array mode
	ElementSize int             // slot size in memory-array mode
	CPU         int             // core to pin the worker thread on, -1 = none
	DirectIO    bool            // O_DIRECT in file mode
	Compression CompressionMode // file mode only
	FileExt     string          // without dot
}

// IsArrayMode returns true if the target is a memory array
func (cfg *SaveTargetConfig) IsArrayMode() bool {
	return cfg.ArrayCount > 0
}

// VerifyConfig checks configuration
func (cfg *SaveTargetConfig) VerifyConfig() error {
	if cfg.IsArrayMode() {
		if cfg.ElementSize <= 0 {
			return fmt.Errorf("element size must be positive in array mode: %d", cfg.ElementSize)
		}
		return nil
	}
	if len(cfg.Dir) == 0 {
		return fmt.Errorf("directory is unspecified")
	}
	if len(cfg.FileExt) == 0 {
		return fmt.Errorf("file extension is unspecified")
	}
	return nil
}

// VerifyConfig checks configuration
func (cfg *PipelineConfig) VerifyConfig() error {
	if cfg.PoolCapacity <= 0 {
		return fmt.Errorf("pool capacity must be positive: %d", cfg.PoolCapacity)
	}
	if len(cfg.Workers) == 0 {
		return fmt.Errorf("no save worker")
	}
	for i := range cfg.Workers {
		if err := cfg.Workers[i].VerifyConfig(); err != nil {
			return fmt.Errorf("worker[%d]: %w", i, err)
		}
	}
	return nil
}
