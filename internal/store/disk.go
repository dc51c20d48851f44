// Package store implements journal.Processor on durable backends.
package store

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"exchange/internal/codec"
	"exchange/internal/journal"
	"exchange/internal/recorder"
	"exchange/internal/schema"
	"exchange/internal/state"
	"exchange/pkg/exception"
)

// DiskConfig controls the disk processor layout.
type DiskConfig struct {
	Dir             string
	SegmentMaxBytes int64
	NoSync          bool
}

// DiskProcessor keeps the journal in recorder segments under
// <dir>/journal and each shard snapshot in its own file under
// <dir>/snapshots.
type DiskProcessor struct {
	mu      sync.Mutex
	journal recorder.Config
	snapDir string
	writer  *recorder.Writer
	payload []byte
	closed  bool
}

// NewDiskProcessor opens the directory and repairs the last journal
// segment.
func NewDiskProcessor(cfg DiskConfig) (*DiskProcessor, error) {
	if cfg.Dir == "" {
		return nil, errors.Wrap(exception.ErrInvalidConfig, "disk store: Dir is empty")
	}
	rc := recorder.DefaultConfig(filepath.Join(cfg.Dir, "journal"))
	if cfg.SegmentMaxBytes > 0 {
		rc.SegmentMaxBytes = cfg.SegmentMaxBytes
	}
	rc.NoSync = cfg.NoSync

	w, err := recorder.NewWriter(rc)
	if err != nil {
		return nil, err
	}
	removed, err := recorder.Repair(rc)
	if err != nil {
		_ = w.Close()
		return nil, err
	}
	if removed > 0 {
		logs.Infof("disk store: dropped %d bytes of unfinished journal batch", removed)
	}
	return &DiskProcessor{
		journal: rc,
		snapDir: filepath.Join(cfg.Dir, "snapshots"),
		writer:  w,
	}, nil
}

func (p *DiskProcessor) StoreJournalBatch(_ context.Context, batch journal.Batch) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return exception.ErrProcessorClosed
	}
	for i := range batch.Records {
		rec := &batch.Records[i]
		p.payload = codec.EncodeCommand(p.payload, rec)
		header := recorder.Header{Type: recorder.RecordCommand, Seq: rec.Seq, BatchID: batch.ID, Timestamp: rec.Timestamp}
		if err := p.writer.Append(header, p.payload); err != nil {
			return errors.Wrap(err, "append journal record").With("seq", rec.Seq)
		}
	}
	end := recorder.Header{Type: recorder.RecordBatchEnd, Seq: batch.LastSeq, BatchID: batch.ID}
	if err := p.writer.Append(end, nil); err != nil {
		return errors.Wrap(err, "append batch end").With("batch", batch.ID)
	}
	if err := p.writer.Flush(); err != nil {
		return errors.Wrap(err, "flush journal").With("batch", batch.ID)
	}
	return nil
}

func (p *DiskProcessor) StoreSnapshot(_ context.Context, snap journal.Snapshot) error {
	if err := state.WriteSnapshot(state.Path(p.snapDir, snap.StateID, snap.Shard), snap); err != nil {
		return errors.Wrap(err, "store snapshot").With("state", snap.StateID).With("shard", snap.Shard.String())
	}
	return nil
}

func (p *DiskProcessor) LoadSnapshot(_ context.Context, stateID int64, shard journal.ShardID) (journal.Snapshot, error) {
	snap, err := state.ReadSnapshot(state.Path(p.snapDir, stateID, shard))
	if err != nil {
		return journal.Snapshot{}, err
	}
	if snap.StateID != stateID || snap.Shard != shard {
		return journal.Snapshot{}, errors.Wrapf(exception.ErrSnapshotCorrupted, "file holds state %d shard %s", snap.StateID, snap.Shard)
	}
	return snap, nil
}

func (p *DiskProcessor) LoadJournalBatchesAfter(ctx context.Context, stateID int64) ([]journal.Batch, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.writer.Flush(); err != nil {
		return nil, err
	}
	batches, err := ReadJournal(ctx, p.journal.Dir)
	if err != nil {
		return nil, err
	}
	_, out, err := journal.After(batches, stateID)
	return out, err
}

// LatestState returns the newest state id with a snapshot of every shard.
func (p *DiskProcessor) LatestState(riskShards, matchingShards int) (int64, error) {
	return state.LatestComplete(p.snapDir, riskShards, matchingShards)
}

func (p *DiskProcessor) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.writer.Close()
}

// ReadJournal reads every complete batch from a journal directory.
func ReadJournal(ctx context.Context, dir string) ([]journal.Batch, error) {
	pb, err := recorder.NewPlayback(recorder.PlaybackConfig{Dir: dir, AllowTornTail: true})
	if err != nil {
		return nil, err
	}
	var (
		batches []journal.Batch
		pending []schema.Command
	)
	err = pb.Run(ctx, func(h recorder.Header, payload []byte) error {
		switch h.Type {
		case recorder.RecordCommand:
			cmd, ok := codec.DecodeCommand(payload)
			if !ok || cmd.Seq != h.Seq {
				return errors.Wrapf(exception.ErrRecordCorrupted, "journal record seq %d", h.Seq)
			}
			pending = append(pending, cmd)
		case recorder.RecordBatchEnd:
			if len(pending) == 0 {
				return nil
			}
			batches = append(batches, journal.Batch{
				ID:       h.BatchID,
				FirstSeq: pending[0].Seq,
				LastSeq:  pending[len(pending)-1].Seq,
				Records:  pending,
			})
			pending = nil
		default:
			return errors.Wrapf(exception.ErrRecordCorrupted, "journal record type %d", h.Type)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return batches, nil
}
