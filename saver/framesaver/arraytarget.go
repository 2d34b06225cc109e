package framesaver

import (
	"fmt"

	"github.com/pbnjay/memory"
	"github.com/relex/framesink/base"
	"github.com/relex/framesink/defs"
	"github.com/relex/gotils/logger"
)

// arrayTarget keeps records in a rotating array of fixed-size slots in memory
type arrayTarget struct {
	logger      logger.Logger
	count       int
	elementSize int
	data        []byte
	lengths     []int
	cursor      int
}

func newArrayTarget(parentLogger logger.Logger, count int, elementSize int) *arrayTarget {
	return &arrayTarget{
		logger:      parentLogger.WithField(defs.LabelPart, "array"),
		count:       count,
		elementSize: elementSize,
	}
}

func (t *arrayTarget) Open() error {
	total := uint64(t.count) * uint64(t.elementSize)
	if free := memory.FreeMemory(); free > 0 && float64(total) > float64(free)*defs.MemoryArrayMaxRatio {
		return fmt.Errorf("not enough memory for %d x %d bytes: free=%d", t.count, t.elementSize, free)
	}
	t.data = make([]byte, total)
	t.lengths = make([]int, t.count)
	t.cursor = 0
	t.logger.Infof("allocated memory array count=%d elementSize=%d", t.count, t.elementSize)
	return nil
}

func (t *arrayTarget) Save(seq uint64, record base.Record) error {
	if t.data == nil {
		return fmt.Errorf("memory array not allocated id=%d seq=%d", record.ID(), seq)
	}
	size := base.SumPartsLength(record)
	if size > t.elementSize {
		return fmt.Errorf("record too large for memory array id=%d seq=%d size=%d elementSize=%d",
			record.ID(), seq, size, t.elementSize)
	}
	slot := t.Slot(t.cursor)
	offset := 0
	for _, part := range record.Parts() {
		offset += copy(slot[offset:], part)
	}
	t.lengths[t.cursor] = offset
	t.cursor = (t.cursor + 1) % t.count
	return nil
}

func (t *arrayTarget) Close() {
	if t.data != nil {
		t.logger.Infof("release memory array cursor=%d", t.cursor)
	}
	t.data = nil
	t.lengths = nil
}

// Slot returns the full element at the given index
func (t *arrayTarget) Slot(index int) []byte {
	start := index * t.elementSize
	return t.data[start : start+t.elementSize]
}

// Saved returns the saved contents at the given index
func (t *arrayTarget) Saved(index int) []byte {
	return t.Slot(index)[:t.lengths[index]]
}

// Cursor returns the index of the next slot to be written
func (t *arrayTarget) Cursor() int {
	return t.cursor
}
