package framesaver

import (
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
	"github.com/relex/framesink/base"
	"github.com/relex/framesink/base/bconfig"
	"github.com/relex/framesink/defs"
	"github.com/relex/framesink/util"
	"github.com/relex/gotils/logger"
)

// dirTarget saves each record to its own file, in shard directories of defs.SaveShardSize records
//
// Layout: <dir>/0001000/F0001234.raw
type dirTarget struct {
	logger      logger.Logger
	path        string
	fileExt     string
	directIO    bool
	compression bconfig.CompressionMode
	counters    *targetCounters
	writeFile   fileWriter
	maybeDir    *os.File
	encoder     *zstd.Encoder
	scratch     []byte
	mkShard     int64 // highest shard directory created, -1 for none
}

func newDirTarget(parentLogger logger.Logger, config bconfig.SaveTargetConfig, counters *targetCounters) *dirTarget {
	fileExt := config.FileExt
	if len(fileExt) == 0 {
		fileExt = defs.SaveFileExt
	}
	return &dirTarget{
		logger:      parentLogger.WithField(defs.LabelPart, "dir"),
		path:        config.Dir,
		fileExt:     fileExt,
		directIO:    config.DirectIO,
		compression: config.Compression,
		counters:    counters,
		writeFile:   defaultFileWriter,
		mkShard:     -1,
	}
}

// ShardDirName returns the name of shard directory for the given sequence number, e.g. "0001000" for 1234
func ShardDirName(seq uint64) string {
	return fmt.Sprintf("%04d000", seq/defs.SaveShardSize)
}

// FrameFileName returns the name of record file for the given sequence number, e.g. "F0001234.raw"
func FrameFileName(seq uint64, fileExt string) string {
	return fmt.Sprintf("F%07d.%s", seq, fileExt)
}

func (t *dirTarget) Open() error {
	if err := os.MkdirAll(t.path, os.FileMode(defs.SaveDirMode)); err != nil {
		return fmt.Errorf("error creating directory path=%s: %w", t.path, err)
	}
	dir, oerr := os.Open(t.path)
	if oerr != nil {
		return fmt.Errorf("error opening directory path=%s: %w", t.path, oerr)
	}
	if t.compression == bconfig.CompressionZstd {
		encoder, eerr := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1), zstd.WithEncoderLevel(zstd.SpeedFastest))
		if eerr != nil {
			dir.Close()
			return fmt.Errorf("error creating zstd encoder: %w", eerr)
		}
		t.encoder = encoder
	}
	t.maybeDir = dir
	t.logger.Infof("opened directory path=%s directIO=%t compression=%s", t.path, t.directIO, t.compression)
	return nil
}

func (t *dirTarget) Save(seq uint64, record base.Record) error {
	if t.maybeDir == nil {
		return fmt.Errorf("BUG: cannot save id=%d seq=%d with nil dir", record.ID(), seq)
	}

	shard := int64(seq / defs.SaveShardSize)
	shardName := ShardDirName(seq)
	if shard > t.mkShard {
		if err := util.MkdirAt(t.maybeDir, shardName, defs.SaveDirMode); err != nil {
			return fmt.Errorf("error creating shard dir id=%d seq=%d path=%s/%s: %w", record.ID(), seq, t.path, shardName, err)
		}
		t.mkShard = shard
	}

	filename := shardName + "/" + FrameFileName(seq, t.fileExt) + t.compression.FileSuffix()
	buffers, directIO := t.prepare(seq, record)
	total := 0
	for _, buf := range buffers {
		total += len(buf)
	}

	var lastErr error
	for attempt := 1; attempt <= defs.SaveWriteAttempts; attempt++ {
		written, werr := t.writeFile(t.maybeDir, filename, buffers, defs.SaveFileMode, directIO)
		if werr == nil && written != total {
			werr = io.ErrShortWrite
		}
		if werr == nil {
			if attempt > 1 {
				t.counters.recovered.Add(1)
				t.logger.Infof("recovered writing id=%d seq=%d path=%s/%s attempt=%d", record.ID(), seq, t.path, filename, attempt)
			}
			return nil
		}
		t.counters.writeErrors.Add(1)
		t.logger.Warnf("error writing id=%d seq=%d path=%s/%s attempt=%d: %s", record.ID(), seq, t.path, filename, attempt, werr.Error())
		lastErr = werr
	}
	return fmt.Errorf("failed writing id=%d seq=%d path=%s/%s after %d attempts: %w",
		record.ID(), seq, t.path, filename, defs.SaveWriteAttempts, lastErr)
}

// prepare returns the buffers to be written and whether to use direct I/O for them
func (t *dirTarget) prepare(seq uint64, record base.Record) ([][]byte, bool) {
	parts := record.Parts()
	if t.encoder != nil {
		t.scratch = t.scratch[:0]
		for _, part := range parts {
			t.scratch = append(t.scratch, part...)
		}
		return [][]byte{t.encoder.EncodeAll(t.scratch, nil)}, false
	}
	if !t.directIO {
		return parts, false
	}
	if !util.IsDirectIOAligned(parts, defs.DirectIOAlignment) {
		t.counters.alignmentWarnings.Add(1)
		t.logger.Warnf("unaligned buffers for direct I/O id=%d seq=%d size=%d, fall back to buffered I/O",
			record.ID(), seq, base.SumPartsLength(record))
		return parts, false
	}
	return parts, true
}

func (t *dirTarget) Close() {
	if t.encoder != nil {
		t.encoder.Close()
		t.encoder = nil
	}
	if t.maybeDir != nil {
		if err := t.maybeDir.Close(); err != nil {
			t.logger.Errorf("error closing directory path=%s: %s", t.path, err.Error())
		}
		t.maybeDir = nil
	}
}
