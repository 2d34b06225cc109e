package base

import (
	"github.com/puzpuzpuz/xsync"
)

// SaveTotals holds process-wide counters updated concurrently by all save workers of all streams
type SaveTotals struct {
	Records   *xsync.Counter // records persisted successfully
	Bytes     *xsync.Counter // payload bytes persisted successfully
	Failed    *xsync.Counter
	Recovered *xsync.Counter
}

// NewSaveTotals creates zeroed SaveTotals
func NewSaveTotals() *SaveTotals {
	return &SaveTotals{
		Records:   &xsync.Counter{},
		Bytes:     &xsync.Counter{},
		Failed:    &xsync.Counter{},
		Recovered: &xsync.Counter{},
	}
}

// SaveTotalsSnapshot is a point-in-time copy of SaveTotals
type SaveTotalsSnapshot struct {
	Records   int64 `msgpack:"records"`
	Bytes     int64 `msgpack:"bytes"`
	Failed    int64 `msgpack:"failed"`
	Recovered int64 `msgpack:"recovered"`
}

// Snapshot reads all counters
func (totals *SaveTotals) Snapshot() SaveTotalsSnapshot {
	return SaveTotalsSnapshot{
		Records:   totals.Records.Value(),
		Bytes:     totals.Bytes.Value(),
		Failed:    totals.Failed.Value(),
		Recovered: totals.Recovered.Value(),
	}
}
