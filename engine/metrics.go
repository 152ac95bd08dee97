package engine

import (
	"sync/atomic"
	"time"
)

// MetricsSink receives engine activity. Implementations must be safe for
// concurrent use.
type MetricsSink interface {
	RecordBatch(ok bool, records int, bytes uint64, elapsed time.Duration)
	RecordRemoval(removed int)
	RecordLookup(hit bool)
}

// Metrics is the default MetricsSink, counting with atomics.
type Metrics struct {
	batches       atomic.Uint64
	failedBatches atomic.Uint64
	records       atomic.Uint64
	bytesWritten  atomic.Uint64
	batchNanos    atomic.Int64
	removals      atomic.Uint64
	lookupHits    atomic.Uint64
	lookupMisses  atomic.Uint64
}

// NewMetrics returns a zeroed Metrics.
func NewMetrics() *Metrics { return &Metrics{} }

func (m *Metrics) RecordBatch(ok bool, records int, bytes uint64, elapsed time.Duration) {
	if !ok {
		m.failedBatches.Add(1)
		return
	}
	m.batches.Add(1)
	m.records.Add(uint64(records))
	m.bytesWritten.Add(bytes)
	m.batchNanos.Add(int64(elapsed))
}

func (m *Metrics) RecordRemoval(removed int) {
	m.removals.Add(uint64(removed))
}

func (m *Metrics) RecordLookup(hit bool) {
	if hit {
		m.lookupHits.Add(1)
		return
	}
	m.lookupMisses.Add(1)
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Batches       uint64        `json:"batches"`
	FailedBatches uint64        `json:"failedBatches"`
	Records       uint64        `json:"records"`
	BytesWritten  uint64        `json:"bytesWritten"`
	BatchTime     time.Duration `json:"batchTime"`
	Removals      uint64        `json:"removals"`
	LookupHits    uint64        `json:"lookupHits"`
	LookupMisses  uint64        `json:"lookupMisses"`
}

func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		Batches:       m.batches.Load(),
		FailedBatches: m.failedBatches.Load(),
		Records:       m.records.Load(),
		BytesWritten:  m.bytesWritten.Load(),
		BatchTime:     time.Duration(m.batchNanos.Load()),
		Removals:      m.removals.Load(),
		LookupHits:    m.lookupHits.Load(),
		LookupMisses:  m.lookupMisses.Load(),
	}
}
