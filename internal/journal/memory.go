package journal

import (
	"context"
	"sync"

	"github.com/yanun0323/errors"

	"exchange/internal/schema"
	"exchange/pkg/exception"
)

type snapshotKey struct {
	stateID int64
	shard   ShardID
}

// MemoryProcessor keeps journal and snapshots in memory. Safe for
// concurrent use.
type MemoryProcessor struct {
	mu        sync.RWMutex
	batches   []Batch
	snapshots map[snapshotKey]Snapshot
	closed    bool
}

// NewMemoryProcessor creates an empty processor.
func NewMemoryProcessor() *MemoryProcessor {
	return &MemoryProcessor{snapshots: make(map[snapshotKey]Snapshot)}
}

func (p *MemoryProcessor) StoreJournalBatch(_ context.Context, batch Batch) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return exception.ErrProcessorClosed
	}
	stored := batch
	stored.Records = make([]schema.Command, 0, len(batch.Records))
	for i := range batch.Records {
		stored.Records = append(stored.Records, Record(&batch.Records[i]))
	}
	p.batches = append(p.batches, stored)
	return nil
}

func (p *MemoryProcessor) StoreSnapshot(_ context.Context, snap Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return exception.ErrProcessorClosed
	}
	snap.Data = append([]byte(nil), snap.Data...)
	p.snapshots[snapshotKey{stateID: snap.StateID, shard: snap.Shard}] = snap
	return nil
}

func (p *MemoryProcessor) LoadSnapshot(_ context.Context, stateID int64, shard ShardID) (Snapshot, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	snap, ok := p.snapshots[snapshotKey{stateID: stateID, shard: shard}]
	if !ok {
		return Snapshot{}, errors.Wrapf(exception.ErrSnapshotNotFound, "state %d shard %s", stateID, shard)
	}
	snap.Data = append([]byte(nil), snap.Data...)
	return snap, nil
}

func (p *MemoryProcessor) LoadJournalBatchesAfter(_ context.Context, stateID int64) ([]Batch, error) {
	p.mu.RLock()
	batches := append([]Batch(nil), p.batches...)
	p.mu.RUnlock()
	_, out, err := After(batches, stateID)
	return out, err
}

// Batches returns every stored batch.
func (p *MemoryProcessor) Batches() []Batch {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Batch(nil), p.batches...)
}

func (p *MemoryProcessor) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}
