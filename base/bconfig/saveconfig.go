package bconfig

import (
	"fmt"
	"strings"
	"time"
)

// SaveConfig defines how records of all streams are persisted
type SaveConfig struct {
	HomeDir      string          `yaml:"homeDir"`      // root of take directories in file mode, may contain environment variables
	ArrayCount   int             `yaml:"arrayCount"`   // > 0 selects memory-array mode with this many slots per worker
	CamsPerDir   int             `yaml:"camsPerDir"`   // streams sharing one sub dir with one worker each, 0 = use dirsPerCam
	DirsPerCam   int             `yaml:"dirsPerCam"`   // workers (sub dirs) per stream when camsPerDir is 0
	DirsTotal    int             `yaml:"dirsTotal"`    // sub dir index wraps at this number
	CPUCount     int             `yaml:"cpuCount"`     // size of the core group used for save workers
	DirectIO     bool            `yaml:"directIO"`     // open files with O_DIRECT
	Compression  CompressionMode `yaml:"compression"`  // none or zstd
	PollInterval time.Duration   `yaml:"pollInterval"` // sleep of idle save workers
	PoolCapacity int             `yaml:"poolCapacity"` // descriptors per stream
	FileExt      string          `yaml:"fileExt"`      // extension of saved files without dot
}

// IsArrayMode returns true if records are kept in memory arrays instead of files
func (cfg *SaveConfig) IsArrayMode() bool {
	return cfg.ArrayCount > 0
}

// VerifyConfig checks configuration
func (cfg *SaveConfig) VerifyConfig() error {
	if cfg.ArrayCount < 0 {
		return fmt.Errorf(".arrayCount must not be negative: %d", cfg.ArrayCount)
	}
	if !cfg.IsArrayMode() {
		if len(cfg.HomeDir) == 0 {
			return fmt.Errorf(".homeDir is unspecified")
		}
		if cfg.CamsPerDir < 0 || cfg.DirsPerCam < 0 {
			return fmt.Errorf(".camsPerDir and .dirsPerCam must not be negative")
		}
		if cfg.CamsPerDir == 0 && cfg.DirsPerCam == 0 {
			return fmt.Errorf("either .camsPerDir or .dirsPerCam must be set")
		}
		if cfg.CamsPerDir > 0 && cfg.DirsPerCam > 0 {
			return fmt.Errorf(".camsPerDir and .dirsPerCam cannot be both set")
		}
		if cfg.DirsTotal <= 0 {
			return fmt.Errorf(".dirsTotal must be positive: %d", cfg.DirsTotal)
		}
	}
	if cfg.CPUCount < 0 {
		return fmt.Errorf(".cpuCount must not be negative: %d", cfg.CPUCount)
	}
	if cfg.PollInterval < 0 {
		return fmt.Errorf(".pollInterval must not be negative: %s", cfg.PollInterval)
	}
	if cfg.PoolCapacity < 0 {
		return fmt.Errorf(".poolCapacity must not be negative: %d", cfg.PoolCapacity)
	}
	if strings.ContainsAny(cfg.FileExt, "./") {
		return fmt.Errorf(".fileExt must be a plain extension without dot or slash: '%s'", cfg.FileExt)
	}
	return nil
}
