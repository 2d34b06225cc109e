package takedir

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/relex/framesink/base/bconfig"
	"github.com/relex/framesink/defs"
)

// TakeTimeLayout is the time layout of take directory names
const TakeTimeLayout = "2006-01-02_15_04_05"

// Take describes where one run saves records: <homeDir>/<subDir>/<take name>/<stream index>
type Take struct {
	RunID     string
	Name      string    // take directory name from start time
	StartTime time.Time // when the take was planned
	Pipelines []bconfig.PipelineConfig
	Streams   []bconfig.StreamConfig
	ArrayMode bool
}

// Plan assigns save workers, directories and CPU cores to all streams
//
// In memory-array mode every stream gets one worker. Otherwise with camsPerDir set, every stream gets one worker and
// streams share sub dirs in groups of camsPerDir; with dirsPerCam set, every stream gets dirsPerCam workers each on
// its own sub dir. Sub dir numbers wrap at dirsTotal.
//
// Save workers of a stream are pinned on its saveCPU plus the stream index modulo cpuCount, if saveCPU >= 0
func Plan(runID string, save bconfig.SaveConfig, streams []bconfig.StreamConfig, startTime time.Time) Take {
	take := Take{
		RunID:     runID,
		Name:      startTime.Format(TakeTimeLayout),
		StartTime: startTime,
		Pipelines: make([]bconfig.PipelineConfig, len(streams)),
		Streams:   streams,
		ArrayMode: save.IsArrayMode(),
	}
	homeDir := os.ExpandEnv(save.HomeDir)
	poolCapacity := save.PoolCapacity
	if poolCapacity == 0 {
		poolCapacity = defs.DescriptorPoolCapacity
	}
	fileExt := save.FileExt
	if len(fileExt) == 0 {
		fileExt = defs.SaveFileExt
	}

	for index, stream := range streams {
		cpu := -1
		if stream.SaveCPU >= 0 {
			cpu = stream.SaveCPU
			if save.CPUCount > 1 {
				cpu += index % save.CPUCount
			}
		}

		pipeline := bconfig.PipelineConfig{
			Name:         stream.Name,
			PoolCapacity: poolCapacity,
			PollInterval: save.PollInterval,
		}
		switch {
		case save.IsArrayMode():
			pipeline.Workers = []bconfig.SaveTargetConfig{{
				Index:       0,
				ArrayCount:  save.ArrayCount,
				ElementSize: int(stream.FrameSize.Bytes()),
				CPU:         cpu,
			}}
		case save.CamsPerDir > 0:
			subDir := (index / save.CamsPerDir) % save.DirsTotal
			pipeline.Workers = []bconfig.SaveTargetConfig{
				newFileTarget(0, StreamDir(homeDir, subDir, take.Name, index), cpu, save, fileExt),
			}
		default:
			pipeline.Workers = make([]bconfig.SaveTargetConfig, save.DirsPerCam)
			for i := range pipeline.Workers {
				subDir := (index*save.DirsPerCam + i) % save.DirsTotal
				pipeline.Workers[i] = newFileTarget(i, StreamDir(homeDir, subDir, take.Name, index), cpu, save, fileExt)
			}
		}
		take.Pipelines[index] = pipeline
	}
	return take
}

// StreamDir returns the directory of one stream under one sub dir
func StreamDir(homeDir string, subDir int, takeName string, streamIndex int) string {
	return filepath.Join(homeDir, fmt.Sprint(subDir), takeName, fmt.Sprintf("%02d", streamIndex))
}

func newFileTarget(index int, dir string, cpu int, save bconfig.SaveConfig, fileExt string) bconfig.SaveTargetConfig {
	return bconfig.SaveTargetConfig{
		Index:       index,
		Dir:         dir,
		CPU:         cpu,
		DirectIO:    save.DirectIO,
		Compression: save.Compression,
		FileExt:     fileExt,
	}
}
