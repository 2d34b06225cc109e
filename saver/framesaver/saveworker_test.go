package framesaver

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/relex/framesink/base"
	"github.com/relex/framesink/base/bconfig"
	"github.com/relex/framesink/defs"
	"github.com/relex/gotils/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drainWorker(worker *SaveWorker, expected int) []*base.SaveDescriptor {
	result := make([]*base.SaveDescriptor, 0, expected)
	buf := make([]*base.SaveDescriptor, expected)
	deadline := time.Now().Add(defs.TestReadTimeout)
	for len(result) < expected && time.Now().Before(deadline) {
		num := worker.DrainCompleted(buf)
		result = append(result, buf[:num]...)
		if num == 0 {
			time.Sleep(time.Millisecond)
		}
	}
	return result
}

func TestSaveWorkerFiles(t *testing.T) {
	defs.EnableTestMode()
	dir := filepath.Join(t.TempDir(), "01")
	factory := base.NewMetricFactoryWithRegisterer(prometheus.NewRegistry(), "testsave_", []string{"stream"}, []string{"cam0"})
	totals := base.NewSaveTotals()
	config := bconfig.SaveTargetConfig{Index: 1, Dir: dir, CPU: -1, FileExt: "raw"}
	worker, err := NewSaveWorker(logger.Root(), "cam0-save-1", config, 4, 0, totals, factory)
	require.Nil(t, err)

	calls := 0
	worker.target.(*dirTarget).writeFile = func(dir *os.File, filename string, buffers [][]byte, perm uint32, directIO bool) (int, error) {
		calls++
		if calls == 2 {
			return 0, errors.New("transient")
		}
		return defaultFileWriter(dir, filename, buffers, perm, directIO)
	}
	require.Nil(t, worker.Start(worker.Name()))

	badFrame := base.NewFrame(3, []byte("short"))
	badFrame.DeclaredSize = 10
	descriptors := []*base.SaveDescriptor{
		{Slot: 0}, {Slot: 1}, {Slot: 2},
	}
	descriptors[0].Assign(base.NewFrame(1, []byte("one")), 1)
	descriptors[1].Assign(base.NewFrame(2, []byte("tw"), []byte("o")), 1001)
	descriptors[2].Assign(badFrame, 2001)
	for _, desc := range descriptors {
		worker.Submit(desc)
	}
	completed := drainWorker(worker, 3)
	assert.Len(t, completed, 3)
	worker.Stop()

	stats := worker.Stats()
	assert.Equal(t, "cam0-save-1", stats.Name)
	assert.Equal(t, base.WorkerStopped, stats.State)
	assert.Equal(t, uint64(3), stats.Completed)
	assert.Equal(t, uint64(0), stats.Failed)
	assert.Equal(t, uint64(1), stats.Recovered)
	assert.Equal(t, uint64(1), stats.IntegrityErrors)
	assert.Equal(t, base.SaveTotalsSnapshot{Records: 3, Bytes: 11, Failed: 0, Recovered: 1}, totals.Snapshot())

	for path, contents := range map[string]string{
		"0000000/F0000001.raw": "one",
		"0001000/F0001001.raw": "two",
		"0002000/F0002001.raw": "short",
	} {
		data, rerr := os.ReadFile(filepath.Join(dir, path))
		assert.Nil(t, rerr, path)
		assert.Equal(t, contents, string(data), path)
	}

	dump, derr := factory.DumpMetrics(false)
	assert.Nil(t, derr)
	assert.Equal(t, `testsave_save_completed_total{stream="cam0",worker="1"} 3
testsave_save_integrity_errors_total{stream="cam0",worker="1"} 1
testsave_save_recovered_total{stream="cam0",worker="1"} 1
testsave_save_submitted_total{stream="cam0",worker="1"} 3
testsave_save_write_errors_total{stream="cam0",worker="1"} 1
`, dump)
}

func TestSaveWorkerArrayFailure(t *testing.T) {
	defs.EnableTestMode()
	totals := base.NewSaveTotals()
	config := bconfig.SaveTargetConfig{Index: 0, ArrayCount: 2, ElementSize: 4, CPU: -1}
	worker, err := NewSaveWorker(logger.Root(), "cam1-save-0", config, 4, 0, totals, nil)
	require.Nil(t, err)
	require.Nil(t, worker.Start(worker.Name()))

	descriptors := []*base.SaveDescriptor{{Slot: 0}, {Slot: 1}}
	descriptors[0].Assign(base.NewFrame(0, []byte("toolong")), 0)
	descriptors[1].Assign(base.NewFrame(1, []byte("ok")), 1)
	worker.Submit(descriptors[0])
	worker.Submit(descriptors[1])
	assert.Len(t, drainWorker(worker, 2), 2, "failed descriptor is still returned")
	worker.Stop()

	stats := worker.Stats()
	assert.Equal(t, uint64(1), stats.Failed)
	assert.Equal(t, uint64(2), stats.Reclaimed)
	assert.Equal(t, int64(1), totals.Failed.Value())
	assert.Equal(t, int64(1), totals.Records.Value())
}

func TestSaveWorkerBadConfig(t *testing.T) {
	_, err := NewSaveWorker(logger.Root(), "bad", bconfig.SaveTargetConfig{CPU: -1}, 4, 0, nil, nil)
	assert.EqualError(t, err, "save worker bad: directory is unspecified")
}
