package obs

import (
	"sync/atomic"
	"time"

	"exchange/internal/schema"
)

// Metrics collects lightweight counters and latency stats. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	commandCounts [schema.CommandKindCount]uint64
	resultCounts  [schema.ResultCodeCount]uint64
	replayed      uint64
	journalBatch  uint64
	journalRecord uint64
	snapshots     uint64
	faults        uint64

	pipelineLatency LatencyStats
	journalLatency  LatencyStats
	snapshotLatency LatencyStats

	stalls func() uint64
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	CommandCounts   map[schema.CommandKind]uint64
	ResultCounts    map[schema.ResultCode]uint64
	Replayed        uint64
	JournalBatches  uint64
	JournalRecords  uint64
	Snapshots       uint64
	Faults          uint64
	Stalls          uint64
	PipelineLatency LatencySnapshot
	JournalLatency  LatencySnapshot
	SnapshotLatency LatencySnapshot
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// ObservePublished counts a delivered command and its submit-to-publish
// latency.
func (m *Metrics) ObservePublished(kind schema.CommandKind, result schema.ResultCode, latency time.Duration) {
	if m == nil {
		return
	}
	if int(kind) < len(m.commandCounts) {
		atomic.AddUint64(&m.commandCounts[kind], 1)
	}
	if int(result) < len(m.resultCounts) {
		atomic.AddUint64(&m.resultCounts[result], 1)
	}
	m.pipelineLatency.Observe(latency)
}

// IncReplayed counts a command recovered from the journal.
func (m *Metrics) IncReplayed() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.replayed, 1)
}

// ObserveJournal counts a stored journal batch.
func (m *Metrics) ObserveJournal(records int, d time.Duration) {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.journalBatch, 1)
	atomic.AddUint64(&m.journalRecord, uint64(records))
	m.journalLatency.Observe(d)
}

// ObserveSnapshot counts a stored shard snapshot.
func (m *Metrics) ObserveSnapshot(d time.Duration) {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.snapshots, 1)
	m.snapshotLatency.Observe(d)
}

// IncFault counts a structural fault.
func (m *Metrics) IncFault() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.faults, 1)
}

// SetStallSource registers where producer backpressure stalls are read
// from.
func (m *Metrics) SetStallSource(fn func() uint64) {
	if m == nil {
		return
	}
	m.stalls = fn
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	commands := make(map[schema.CommandKind]uint64)
	for i := range m.commandCounts {
		if v := atomic.LoadUint64(&m.commandCounts[i]); v > 0 {
			commands[schema.CommandKind(i)] = v
		}
	}
	results := make(map[schema.ResultCode]uint64)
	for i := range m.resultCounts {
		if v := atomic.LoadUint64(&m.resultCounts[i]); v > 0 {
			results[schema.ResultCode(i)] = v
		}
	}
	var stalls uint64
	if m.stalls != nil {
		stalls = m.stalls()
	}
	return Snapshot{
		CommandCounts:   commands,
		ResultCounts:    results,
		Replayed:        atomic.LoadUint64(&m.replayed),
		JournalBatches:  atomic.LoadUint64(&m.journalBatch),
		JournalRecords:  atomic.LoadUint64(&m.journalRecord),
		Snapshots:       atomic.LoadUint64(&m.snapshots),
		Faults:          atomic.LoadUint64(&m.faults),
		Stalls:          stalls,
		PipelineLatency: m.pipelineLatency.Snapshot(),
		JournalLatency:  m.journalLatency.Snapshot(),
		SnapshotLatency: m.snapshotLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && nanos >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, nanos) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	min := atomic.LoadUint64(&l.min)
	max := atomic.LoadUint64(&l.max)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(min),
		Max:   time.Duration(max),
		Avg:   time.Duration(sum / count),
	}
}
