package core

import (
	"context"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"exchange/internal/journal"
	"exchange/internal/schema"
	"exchange/pkg/exception"
)

// restore loads every shard snapshot of the configured state and the
// journal records after it. It returns the sequence the ring restarts
// after.
//
// PersistState sequences the matching persist command at S and the risk
// persist command at S+1, so matching snapshots reflect every command
// before S and risk snapshots every command up to S. Replay starts at S+1
// for both kinds.
func (e *Exchange) restore(ctx context.Context) (int64, []schema.Command, error) {
	stateID := e.cfg.LoadStateID

	matchSeq := int64(-1)
	for _, w := range e.matchers {
		snap, err := e.processor.LoadSnapshot(ctx, stateID, journal.MatchingShard(w.id))
		if err != nil {
			return 0, nil, errors.Wrap(err, "load snapshot")
		}
		if matchSeq >= 0 && snap.Seq != matchSeq {
			return 0, nil, errors.Wrapf(exception.ErrSnapshotCorrupted, "%s at seq %d, want %d", snap.Shard, snap.Seq, matchSeq)
		}
		matchSeq = snap.Seq
		if err := w.shard.Restore(snap.Data); err != nil {
			return 0, nil, errors.Wrapf(err, "restore %s", snap.Shard)
		}
	}

	for _, w := range e.risks {
		snap, err := e.processor.LoadSnapshot(ctx, stateID, journal.RiskShard(w.id))
		if err != nil {
			return 0, nil, errors.Wrap(err, "load snapshot")
		}
		if snap.Seq != matchSeq+1 {
			return 0, nil, errors.Wrapf(exception.ErrSnapshotCorrupted, "%s at seq %d, want %d", snap.Shard, snap.Seq, matchSeq+1)
		}
		if err := w.shard.Restore(snap.Data); err != nil {
			return 0, nil, errors.Wrapf(err, "restore %s", snap.Shard)
		}
	}

	batches, err := e.processor.LoadJournalBatchesAfter(ctx, stateID)
	if err != nil {
		return 0, nil, errors.Wrap(err, "load journal")
	}
	var records []schema.Command
	expect := matchSeq + 1
	for _, b := range batches {
		for i := range b.Records {
			if b.Records[i].Seq != expect {
				return 0, nil, errors.Wrapf(exception.ErrSequenceGap, "journal seq %d, want %d", b.Records[i].Seq, expect)
			}
			records = append(records, b.Records[i])
			expect++
		}
	}

	logs.Infof("loaded state %d at seq %d, %d journal records to replay", stateID, matchSeq, len(records))
	return matchSeq, records, nil
}

// replay feeds journal records through the live stages and waits until
// the last one has been published.
func (e *Exchange) replay(ctx context.Context, records []schema.Command) error {
	start := time.Now()
	for i := range records {
		seq, err := e.ring.Next()
		if err != nil {
			if fault := e.Err(); fault != nil {
				return fault
			}
			return err
		}
		if seq != records[i].Seq {
			return errors.Wrapf(exception.ErrSequenceGap, "replay seq %d, ring seq %d", records[i].Seq, seq)
		}
		sl := e.ring.Get(seq)
		sl.reset()
		sl.cmd.SetInput(&records[i])
		sl.cmd.Replay = true
		sl.submitted = time.Now().UnixNano()
		e.ring.Publish(seq)
	}

	last := records[len(records)-1].Seq
	if err := e.waitPublished(ctx, last); err != nil {
		return errors.Wrapf(err, "replay up to seq %d", last)
	}
	logs.Infof("replayed %d commands up to seq %d in %s", len(records), last, time.Since(start))
	return nil
}
