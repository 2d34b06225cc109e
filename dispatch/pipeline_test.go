package dispatch

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/relex/framesink/base"
	"github.com/relex/framesink/base/bconfig"
	"github.com/relex/framesink/defs"
	"github.com/relex/gotils/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineFiles(t *testing.T) {
	defs.EnableTestMode()
	root := t.TempDir()
	config := bconfig.PipelineConfig{
		Name:         "cam0",
		PoolCapacity: 2500,
		Workers: []bconfig.SaveTargetConfig{
			{Index: 0, Dir: filepath.Join(root, "00"), CPU: -1, FileExt: "raw"},
			{Index: 1, Dir: filepath.Join(root, "01"), CPU: -1, FileExt: "raw"},
		},
	}
	factory := base.NewMetricFactoryWithRegisterer(prometheus.NewRegistry(), "testpipe_", nil, nil)
	totals := base.NewSaveTotals()
	reclaimed := 0
	dispatcher, err := NewPipeline(logger.Root(), config, totals, factory, func(record base.Record) {
		reclaimed++
	})
	require.Nil(t, err)

	for i := 0; i < 2002; i++ {
		assert.True(t, dispatcher.Dispatch(base.NewFrame(uint64(i), []byte{byte(i)})))
	}
	require.Nil(t, dispatcher.DrainAndStopAll(context.Background()))
	assert.Equal(t, 2002, reclaimed)
	assert.Equal(t, int64(2002), totals.Records.Value())

	for _, path := range []string{
		"00/0000000/F0000000.raw",
		"01/0000000/F0000999.raw",
		"00/0001000/F0001000.raw",
		"01/0001000/F0001999.raw",
		"00/0002000/F0002000.raw",
		"01/0002000/F0002001.raw",
	} {
		assert.FileExists(t, filepath.Join(root, path))
	}
	assert.NoFileExists(t, filepath.Join(root, "01/0000000/F0000000.raw"))
	entries, rerr := os.ReadDir(filepath.Join(root, "00", "0000000"))
	assert.Nil(t, rerr)
	assert.Len(t, entries, 500)

	dump, derr := factory.DumpMetrics(false)
	assert.Nil(t, derr)
	assert.Equal(t, `testpipe_dispatched_total{stream="cam0"} 2002
testpipe_free_descriptors{stream="cam0"} 2500
testpipe_save_completed_total{stream="cam0",worker="0"} 1001
testpipe_save_completed_total{stream="cam0",worker="1"} 1001
testpipe_save_submitted_total{stream="cam0",worker="0"} 1001
testpipe_save_submitted_total{stream="cam0",worker="1"} 1001
`, dump)
}

func TestPipelineSetupFailure(t *testing.T) {
	defs.EnableTestMode()
	root := t.TempDir()
	blocker := filepath.Join(root, "file")
	require.Nil(t, os.WriteFile(blocker, []byte("x"), 0o644))
	config := bconfig.PipelineConfig{
		Name:         "cam1",
		PoolCapacity: 4,
		Workers: []bconfig.SaveTargetConfig{
			{Index: 0, Dir: filepath.Join(root, "00"), CPU: -1, FileExt: "raw"},
			{Index: 1, Dir: filepath.Join(blocker, "01"), CPU: -1, FileExt: "raw"},
		},
	}
	_, err := NewPipeline(logger.Root(), config, nil, nil, nil)
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), "pipeline cam1: failed to start worker cam1-save-1")
	}

	config.Workers = nil
	_, err = NewPipeline(logger.Root(), config, nil, nil, nil)
	assert.EqualError(t, err, "pipeline cam1: no save worker")
}
