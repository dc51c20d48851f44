package core

import (
	"fmt"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"exchange/internal/bus"
	"exchange/internal/journal"
	"exchange/internal/matching"
	"exchange/internal/risk"
	"exchange/internal/schema"
	"exchange/pkg/exception"
)

type riskWorker struct {
	id    int
	shard *risk.Shard
	// held is the last sequence that passed the hold stage.
	held *bus.Sequence
	// released is the last sequence that passed the release stage.
	released *bus.Sequence
}

func (w *riskWorker) name() string {
	return fmt.Sprintf("risk-%d", w.id)
}

type matchWorker struct {
	id    int
	shard *matching.Shard
}

func (w *matchWorker) name() string {
	return fmt.Sprintf("matching-%d", w.id)
}

type journalWorker struct {
	pending []schema.Command
}

// runRisk is the loop of one risk shard. It holds a group of commands,
// waits until every matching shard has passed the group, then releases
// the group in order.
func (e *Exchange) runRisk(w *riskWorker, matchSeqs []*bus.Sequence) error {
	cursor := e.ring.NewBarrier()
	matched := e.ring.NewBarrier(matchSeqs...)
	limit := int64(e.cfg.GroupLimit)

	next := w.released.Get() + 1
	for {
		avail, err := cursor.WaitFor(next)
		if err != nil {
			if err == exception.ErrAlerted {
				return nil
			}
			return err
		}
		if avail-next >= limit {
			avail = next + limit - 1
		}

		last := next - 1
		for seq := next; seq <= avail; seq++ {
			sl := e.ring.Get(seq)
			code, retry, err := w.shard.PreProcess(&sl.cmd, seq == next)
			if err != nil {
				return errors.Wrapf(err, "hold %s", sl.cmd.Kind).With("seq", seq)
			}
			if retry {
				break
			}
			sl.hold[w.id] = code
			last = seq
			if w.shard.EndsGroup(&sl.cmd) {
				break
			}
		}
		w.held.Set(last)

		if _, err := matched.WaitFor(last); err != nil {
			if err == exception.ErrAlerted {
				return nil
			}
			return err
		}
		for seq := next; seq <= last; seq++ {
			if err := e.release(w, e.ring.Get(seq)); err != nil {
				return err
			}
		}
		w.released.Set(last)
		next = last + 1
	}
}

func (e *Exchange) release(w *riskWorker, sl *slot) error {
	cmd := &sl.cmd
	if cmd.Kind == schema.CommandPersistStateRisk {
		sl.settle[w.id] = e.storeSnapshot(journal.RiskShard(w.id), cmd, schema.ResultSuccess, w.shard.Snapshot)
		return nil
	}
	owner := risk.ShardOf(cmd.UID, len(e.risks))
	code, err := w.shard.PostProcess(cmd, sl.hold[owner])
	if err != nil {
		return errors.Wrapf(err, "release %s", cmd.Kind).With("seq", cmd.Seq)
	}
	sl.settle[w.id] = code
	return nil
}

func (e *Exchange) matchHandler(w *matchWorker) bus.Handler[*slot] {
	riskShards := len(e.risks)
	return func(seq int64, sl *slot, _ bool) error {
		cmd := &sl.cmd
		switch cmd.Kind {
		case schema.CommandPersistStateMatching:
			sl.match[w.id] = e.storeSnapshot(journal.MatchingShard(w.id), cmd, schema.ResultAccepted, w.shard.Snapshot)
			return nil
		case schema.CommandPlaceOrder:
			if sl.hold[risk.ShardOf(cmd.UID, riskShards)] != schema.ResultSuccess {
				sl.match[w.id] = schema.ResultSuccess
				return nil
			}
		case schema.CommandBinaryData:
			// every risk shard holds the same symbols and refuses alike
			if sl.hold[0] != schema.ResultSuccess {
				sl.match[w.id] = schema.ResultSuccess
				return nil
			}
		}
		code, err := w.shard.Process(cmd)
		if err != nil {
			return errors.Wrapf(err, "match %s", cmd.Kind).With("seq", seq)
		}
		sl.match[w.id] = code
		return nil
	}
}

// storeSnapshot persists the state of one shard on the shard goroutine.
// Replayed persist commands store nothing.
func (e *Exchange) storeSnapshot(shard journal.ShardID, cmd *schema.Command, ok schema.ResultCode, snapshot func() ([]byte, error)) schema.ResultCode {
	if cmd.Replay {
		return ok
	}
	start := time.Now()
	data, err := snapshot()
	if err != nil {
		logs.Errorf("snapshot %s at seq %d, err: %+v", shard, cmd.Seq, err)
		return schema.ResultInternalError
	}
	err = e.processor.StoreSnapshot(e.ctx, journal.Snapshot{
		StateID: cmd.StateID,
		Shard:   shard,
		Seq:     cmd.Seq,
		Data:    data,
	})
	if err != nil {
		logs.Errorf("store snapshot %s state %d, err: %+v", shard, cmd.StateID, err)
		return schema.ResultInternalError
	}
	e.cfg.Metrics.ObserveSnapshot(time.Since(start))
	return ok
}

// journalHandler folds the result of every command and stores it before
// the consumer sequence moves past it.
func (e *Exchange) journalHandler() bus.Handler[*slot] {
	j := e.journal
	return func(_ int64, sl *slot, endOfBatch bool) error {
		sl.cmd.Result = sl.fold()
		if !sl.cmd.Replay {
			j.pending = append(j.pending, journal.Record(&sl.cmd))
		}
		if len(j.pending) == 0 {
			return nil
		}
		if endOfBatch || len(j.pending) >= e.cfg.JournalBatchSize {
			return e.flushJournal()
		}
		return nil
	}
}

func (e *Exchange) flushJournal() error {
	records := e.journal.pending
	e.journal.pending = make([]schema.Command, 0, e.cfg.JournalBatchSize)

	batch := journal.Batch{
		ID:       records[0].Seq,
		FirstSeq: records[0].Seq,
		LastSeq:  records[len(records)-1].Seq,
		Records:  records,
	}
	start := time.Now()
	if err := e.processor.StoreJournalBatch(e.ctx, batch); err != nil {
		return errors.Wrapf(err, "store journal batch %d-%d", batch.FirstSeq, batch.LastSeq)
	}
	e.cfg.Metrics.ObserveJournal(len(records), time.Since(start))
	return nil
}

func (e *Exchange) publishHandler() bus.Handler[*slot] {
	return func(_ int64, sl *slot, _ bool) error {
		cmd := &sl.cmd
		if cmd.Replay {
			e.cfg.Metrics.IncReplayed()
			return nil
		}
		if e.consumer != nil {
			e.consumer(cmd)
		}
		e.cfg.Metrics.ObservePublished(cmd.Kind, cmd.Result, time.Duration(time.Now().UnixNano()-sl.submitted))
		return nil
	}
}
