package base

// SaveDescriptor tracks one record through the persistence pipeline
//
// A descriptor is owned by exactly one of: the free pool, a worker's input queue, a worker processing it, or a
// worker's output queue waiting to be reclaimed. Descriptors are created once per pipeline and reused.
type SaveDescriptor struct {
	Slot     int    // index in the pool, stable for the pipeline's lifetime
	Record   Record // nil when free
	Seq      uint64 // sequence number assigned at dispatch, 0-based
	InFlight bool   // true between dispatch and reclamation
}

// Assign attaches a record to the descriptor for dispatching
func (desc *SaveDescriptor) Assign(record Record, seq uint64) {
	desc.Record = record
	desc.Seq = seq
	desc.InFlight = true
}

// Release detaches the record from a reclaimed descriptor and returns it
func (desc *SaveDescriptor) Release() Record {
	record := desc.Record
	desc.Record = nil
	desc.InFlight = false
	return record
}
