package takedir

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/relex/framesink/base"
	"github.com/relex/framesink/defs"
	"github.com/relex/framesink/util"
	"github.com/vmihailenco/msgpack/v4"
)

// ManifestFileName is the name of manifest file in each save worker's directory
const ManifestFileName = "manifest.msgpack"

// ManifestVersion is increased on incompatible changes of Manifest
const ManifestVersion = 1

// Manifest records what one save worker was expected to write during a run
//
// A worker of index i among n is assigned every record whose seq % n == i, from 0 to Dispatched-1
type Manifest struct {
	Version         int                     `msgpack:"version"`
	RunID           string                  `msgpack:"runId"`
	Take            string                  `msgpack:"take"`
	Stream          string                  `msgpack:"stream"`
	StreamIndex     int                     `msgpack:"streamIndex"`
	Worker          int                     `msgpack:"worker"`
	Workers         int                     `msgpack:"workers"`
	FrameSize       int64                   `msgpack:"frameSize"`
	FileExt         string                  `msgpack:"fileExt"`
	Compression     string                  `msgpack:"compression"`
	StartTime       time.Time               `msgpack:"startTime"`
	EndTime         time.Time               `msgpack:"endTime"`
	Dispatched      uint64                  `msgpack:"dispatched"` // of the whole stream
	Missed          uint64                  `msgpack:"missed"`     // of the whole stream
	Submitted       uint64                  `msgpack:"submitted"`
	Completed       uint64                  `msgpack:"completed"`
	Failed          uint64                  `msgpack:"failed"`
	Recovered       uint64                  `msgpack:"recovered"`
	IntegrityErrors uint64                  `msgpack:"integrityErrors"`
	Totals          base.SaveTotalsSnapshot `msgpack:"totals"` // of the whole process
}

// IsAssigned checks whether the given record sequence number belongs to this worker
func (m *Manifest) IsAssigned(seq uint64) bool {
	return m.Workers > 0 && seq%uint64(m.Workers) == uint64(m.Worker) && seq < m.Dispatched
}

// WriteManifests writes a manifest to the directory of every file-mode save worker
//
// stats must be in the same order as take.Pipelines
func WriteManifests(take Take, stats []base.PipelineStats, totals base.SaveTotalsSnapshot, endTime time.Time) error {
	if take.ArrayMode {
		return nil
	}
	if len(stats) != len(take.Pipelines) {
		return fmt.Errorf("BUG: stats of %d pipelines for %d streams", len(stats), len(take.Pipelines))
	}
	for index, pipeline := range take.Pipelines {
		pstats := stats[index]
		for w, worker := range pipeline.Workers {
			wstats := pstats.Workers[w]
			manifest := &Manifest{
				Version:         ManifestVersion,
				RunID:           take.RunID,
				Take:            take.Name,
				Stream:          pipeline.Name,
				StreamIndex:     index,
				Worker:          worker.Index,
				Workers:         len(pipeline.Workers),
				FrameSize:       int64(take.Streams[index].FrameSize.Bytes()),
				FileExt:         worker.FileExt,
				Compression:     string(worker.Compression),
				StartTime:       take.StartTime,
				EndTime:         endTime,
				Dispatched:      pstats.Dispatched,
				Missed:          pstats.Missed,
				Submitted:       wstats.Submitted,
				Completed:       wstats.Completed,
				Failed:          wstats.Failed,
				Recovered:       wstats.Recovered,
				IntegrityErrors: wstats.IntegrityErrors,
				Totals:          totals,
			}
			if err := WriteManifest(worker.Dir, manifest); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteManifest writes one manifest file into the given directory
func WriteManifest(dirPath string, manifest *Manifest) error {
	data, merr := msgpack.Marshal(manifest)
	if merr != nil {
		return fmt.Errorf("error encoding manifest path=%s: %w", dirPath, merr)
	}
	dir, oerr := os.Open(dirPath)
	if oerr != nil {
		return fmt.Errorf("error opening directory path=%s: %w", dirPath, oerr)
	}
	defer dir.Close()
	if err := util.WriteFileAt(dir, ManifestFileName, data, defs.SaveFileMode); err != nil {
		return fmt.Errorf("error writing manifest path=%s: %w", dirPath, err)
	}
	return nil
}

// ReadManifest reads the manifest file in the given directory; os.ErrNotExist is returned if it's absent
func ReadManifest(dirPath string) (*Manifest, error) {
	data, rerr := os.ReadFile(filepath.Join(dirPath, ManifestFileName))
	if rerr != nil {
		return nil, rerr
	}
	manifest := &Manifest{}
	if err := msgpack.Unmarshal(data, manifest); err != nil {
		return nil, fmt.Errorf("error decoding manifest path=%s: %w", dirPath, err)
	}
	if manifest.Version != ManifestVersion {
		return nil, fmt.Errorf("unsupported manifest version %d path=%s", manifest.Version, dirPath)
	}
	return manifest, nil
}
