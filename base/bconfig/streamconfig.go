package bconfig

import (
	"fmt"

	"github.com/c2h5oh/datasize"
)

// StreamConfig defines one record producer and the pipeline created for it
type StreamConfig struct {
	Name        string            `yaml:"name"`
	FrameSize   datasize.ByteSize `yaml:"frameSize"`   // payload size of each record
	FrameRate   int               `yaml:"frameRate"`   // records per second, 0 = as fast as possible
	BufferCount int               `yaml:"bufferCount"` // producer-owned buffers
	WrapEvery   int               `yaml:"wrapEvery"`   // every Nth record is split in two parts, 0 = never
	SaveCPU     int               `yaml:"saveCPU"`     // first core for save workers, -1 = no pinning
}

// VerifyConfig checks configuration
func (cfg *StreamConfig) VerifyConfig() error {
	if len(cfg.Name) == 0 {
		return fmt.Errorf(".name is unspecified")
	}
	if cfg.FrameSize.Bytes() == 0 {
		return fmt.Errorf(".frameSize is unspecified")
	}
	if cfg.FrameRate < 0 {
		return fmt.Errorf(".frameRate must not be negative: %d", cfg.FrameRate)
	}
	if cfg.BufferCount <= 0 {
		return fmt.Errorf(".bufferCount must be positive: %d", cfg.BufferCount)
	}
	if cfg.WrapEvery < 0 {
		return fmt.Errorf(".wrapEvery must not be negative: %d", cfg.WrapEvery)
	}
	if cfg.SaveCPU < -1 {
		return fmt.Errorf(".saveCPU must be -1 or a core number: %d", cfg.SaveCPU)
	}
	return nil
}
