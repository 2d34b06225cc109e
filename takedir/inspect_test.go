package takedir

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/relex/framesink/base"
	"github.com/relex/framesink/base/bconfig"
	"github.com/relex/gotils/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestFile(t *testing.T, path string, size int) {
	require.Nil(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.Nil(t, os.WriteFile(path, make([]byte, size), 0o644))
}

func TestManifestAndInspect(t *testing.T) {
	home := t.TempDir()
	save := bconfig.SaveConfig{HomeDir: home, DirsPerCam: 2, DirsTotal: 2}
	streams := []bconfig.StreamConfig{{Name: "cam0", FrameSize: 16, BufferCount: 2, SaveCPU: -1}}
	take := Plan("0b3e1f7c", save, streams, testStartTime)
	dir0 := take.Pipelines[0].Workers[0].Dir
	dir1 := take.Pipelines[0].Workers[1].Dir

	// worker 0: seq 0, 2, 1000 (1002 failed); worker 1: seq 1, 3, 1001, 1003 (misplaced)
	writeTestFile(t, filepath.Join(dir0, "0000000", "F0000000.raw"), 16)
	writeTestFile(t, filepath.Join(dir0, "0000000", "F0000002.raw"), 16)
	writeTestFile(t, filepath.Join(dir0, "0001000", "F0001000.raw"), 16)
	writeTestFile(t, filepath.Join(dir1, "0000000", "F0000001.raw"), 16)
	writeTestFile(t, filepath.Join(dir1, "0000000", "F0000003.raw"), 15)
	writeTestFile(t, filepath.Join(dir1, "0001000", "F0001001.raw"), 16)
	writeTestFile(t, filepath.Join(dir1, "0000000", "F0001003.raw"), 16)

	stats := []base.PipelineStats{{
		Name:       "cam0",
		Dispatched: 1004,
		Workers: []base.WorkerStats{
			{Submitted: 502, Completed: 502, Failed: 1},
			{Submitted: 502, Completed: 502},
		},
	}}
	totals := base.SaveTotalsSnapshot{Records: 1003, Bytes: 16048, Failed: 1}
	endTime := testStartTime.Add(time.Minute)
	require.Nil(t, WriteManifests(take, stats, totals, endTime))

	manifest, err := ReadManifest(dir1)
	require.Nil(t, err)
	assert.Equal(t, "0b3e1f7c", manifest.RunID)
	assert.Equal(t, take.Name, manifest.Take)
	assert.Equal(t, 1, manifest.Worker)
	assert.Equal(t, 2, manifest.Workers)
	assert.Equal(t, int64(16), manifest.FrameSize)
	assert.Equal(t, totals, manifest.Totals)
	assert.True(t, endTime.Equal(manifest.EndTime))

	report0, err := Inspect(dir0)
	require.Nil(t, err)
	assert.True(t, report0.OK(), report0.String())
	assert.Equal(t, []string{"0000000", "0001000"}, report0.Shards)
	assert.Equal(t, 3, report0.Files)
	assert.Equal(t, int64(48), report0.Bytes)
	// 498 of 4..998, plus 1002
	assert.Equal(t, 499, report0.MissingCount)
	assert.Equal(t, uint64(4), report0.Missing[0])
	assert.False(t, report0.ExplainedMissing())

	report1, err := Inspect(dir1)
	require.Nil(t, err)
	assert.False(t, report1.OK())
	assert.Equal(t, []string{"0000000/F0001003.raw"}, report1.Misplaced)
	assert.Equal(t, []string{"0000000/F0000003.raw"}, report1.SizeMismatches)
	assert.Empty(t, report1.Unassigned)
	assert.Contains(t, report1.String(), "misplaced=[0000000/F0001003.raw]")
}

func TestInspectWithoutManifest(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, filepath.Join(dir, "0002000", "F0002345.raw.zst"), 5)
	writeTestFile(t, filepath.Join(dir, "0002000", "notes.txt"), 1)
	writeTestFile(t, filepath.Join(dir, "extra"), 1)

	report, err := Inspect(dir)
	require.Nil(t, err)
	assert.Nil(t, report.Manifest)
	assert.Equal(t, 1, report.Files)
	assert.ElementsMatch(t, []string{"0002000/notes.txt", "extra"}, report.Unexpected)
	assert.Zero(t, report.MissingCount)
	assert.True(t, report.ExplainedMissing())

	_, err = ReadManifest(dir)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLabelDirs(t *testing.T) {
	home := t.TempDir()
	save := bconfig.SaveConfig{HomeDir: home, CamsPerDir: 1, DirsTotal: 1}
	streams := []bconfig.StreamConfig{{Name: "cam0", FrameSize: 16, BufferCount: 2, SaveCPU: -1}}
	take := Plan("run-label", save, streams, testStartTime)
	dir := take.Pipelines[0].Workers[0].Dir
	require.Nil(t, os.MkdirAll(dir, 0o755))

	require.Nil(t, LabelDirs(logger.WithField("test", t.Name()), take))
	labels, err := ReadLabels(dir)
	require.Nil(t, err)
	if len(labels) == 0 {
		t.Skip("user xattr unsupported by temp dir")
	}
	assert.Equal(t, map[string]string{"run": "run-label", "stream": "cam0", "worker": "0/1"}, labels)
}
