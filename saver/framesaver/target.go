package framesaver

import (
	"os"
	"sync/atomic"

	"github.com/relex/framesink/base"
	"github.com/relex/framesink/util"
)

// Target is the persistence target of one save worker
//
// All methods are called from the worker thread only, except that Close is called by the stopper after the worker
// loop has exited
type Target interface {
	// Open prepares the target, e.g. allocates memory or opens the directory
	Open() error

	// Save persists one record under its sequence number
	Save(seq uint64, record base.Record) error

	// Close releases resources. It's safe to call even if Open failed or was never called
	Close()
}

// fileWriter writes buffers to a new file relative to the directory as one logical write, see util.WriteBuffersAt
type fileWriter func(dir *os.File, filename string, buffers [][]byte, perm uint32, directIO bool) (int, error)

var defaultFileWriter fileWriter = util.WriteBuffersAt

// targetCounters are updated by targets on the worker thread and read by anyone
type targetCounters struct {
	recovered         atomic.Uint64 // records written after failed attempts
	writeErrors       atomic.Uint64 // failed attempts, including ones recovered later
	alignmentWarnings atomic.Uint64 // records not written by direct I/O due to alignment
}
