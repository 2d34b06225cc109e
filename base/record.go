package base

// Record is the handle of one captured record (frame) owned by the producer
//
// The pipeline only reads the payload. Once a record's descriptor is reclaimed, or dispatch is rejected, the buffer
// must be returned by the producer to its own origin
type Record interface {
	// ID returns the producer's own identifier, increasing monotonically
	ID() uint64

	// Parts returns the payload as one or two partial buffers, two if the capture buffer wrapped around
	Parts() [][]byte

	// Size returns the declared payload size, which should equal the sum of Parts
	Size() int
}

// Frame is a simple Record backed by up to two byte slices
type Frame struct {
	FrameID      uint64
	Buffers      [][]byte
	DeclaredSize int
}

// NewFrame creates a Frame whose declared size is the sum of given buffers
func NewFrame(id uint64, buffers ...[]byte) *Frame {
	size := 0
	for _, buf := range buffers {
		size += len(buf)
	}
	return &Frame{
		FrameID:      id,
		Buffers:      buffers,
		DeclaredSize: size,
	}
}

// ID implements Record
func (frame *Frame) ID() uint64 {
	return frame.FrameID
}

// Parts implements Record
func (frame *Frame) Parts() [][]byte {
	return frame.Buffers
}

// Size implements Record
func (frame *Frame) Size() int {
	return frame.DeclaredSize
}

// SumPartsLength returns the total length of all partial buffers of a record
func SumPartsLength(record Record) int {
	total := 0
	for _, part := range record.Parts() {
		total += len(part)
	}
	return total
}
