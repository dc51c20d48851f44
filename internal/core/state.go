package core

import (
	"github.com/yanun0323/errors"

	"exchange/internal/journal"
	"exchange/internal/matching"
	"exchange/internal/risk"
	"exchange/pkg/exception"
)

// ShardStates serializes every shard, matching shards first. Shard state
// belongs to the stage goroutines, so it is only readable before Start or
// after Shutdown.
func (e *Exchange) ShardStates() ([]journal.Snapshot, error) {
	if err := e.stopped(); err != nil {
		return nil, err
	}
	out := make([]journal.Snapshot, 0, len(e.matchers)+len(e.risks))
	for _, w := range e.matchers {
		data, err := w.shard.Snapshot()
		if err != nil {
			return nil, err
		}
		out = append(out, journal.Snapshot{Shard: journal.MatchingShard(w.id), Data: data})
	}
	for _, w := range e.risks {
		data, err := w.shard.Snapshot()
		if err != nil {
			return nil, err
		}
		out = append(out, journal.Snapshot{Shard: journal.RiskShard(w.id), Data: data})
	}
	return out, nil
}

// RiskShard returns risk shard i. Same access rule as ShardStates.
func (e *Exchange) RiskShard(i int) (*risk.Shard, error) {
	if err := e.stopped(); err != nil {
		return nil, err
	}
	if i < 0 || i >= len(e.risks) {
		return nil, errors.Wrapf(exception.ErrInvalidArgument, "risk shard %d", i)
	}
	return e.risks[i].shard, nil
}

// MatchingShard returns matching shard i. Same access rule as ShardStates.
func (e *Exchange) MatchingShard(i int) (*matching.Shard, error) {
	if err := e.stopped(); err != nil {
		return nil, err
	}
	if i < 0 || i >= len(e.matchers) {
		return nil, errors.Wrapf(exception.ErrInvalidArgument, "matching shard %d", i)
	}
	return e.matchers[i].shard, nil
}

func (e *Exchange) stopped() error {
	switch lifecycle(e.state.Load()) {
	case stateNew, stateClosed:
		return nil
	default:
		return errors.Wrap(exception.ErrInvalidArgument, "shard state read while running")
	}
}
