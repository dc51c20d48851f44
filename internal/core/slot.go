package core

import (
	"exchange/internal/matching"
	"exchange/internal/risk"
	"exchange/internal/schema"
)

// slot is one ring entry. Every field has exactly one writing stage:
// hold[i] and settle[i] by risk shard i, match[i] by matching shard i,
// cmd.Result by the journal stage.
type slot struct {
	cmd       schema.Command
	hold      []schema.ResultCode
	settle    []schema.ResultCode
	match     []schema.ResultCode
	submitted int64
}

func newSlotFactory(riskShards, matchingShards int) func() *slot {
	return func() *slot {
		return &slot{
			cmd:    schema.Command{Events: make([]schema.MatcherEvent, 0, 8)},
			hold:   make([]schema.ResultCode, riskShards),
			settle: make([]schema.ResultCode, riskShards),
			match:  make([]schema.ResultCode, matchingShards),
		}
	}
}

func (s *slot) reset() {
	clear(s.hold)
	clear(s.settle)
	clear(s.match)
}

// fold merges the per-shard outcomes into the result of the command.
func (s *slot) fold() schema.ResultCode {
	cmd := &s.cmd
	riskOwner := risk.ShardOf(cmd.UID, len(s.hold))
	matchOwner := matching.ShardOf(cmd.Symbol, len(s.match))

	switch cmd.Kind {
	case schema.CommandAddUser, schema.CommandBalanceAdjustment:
		return s.hold[riskOwner]
	case schema.CommandUserReport:
		return s.settle[riskOwner]
	case schema.CommandPlaceOrder:
		if code := s.hold[riskOwner]; code != schema.ResultSuccess {
			return code
		}
		if code := s.match[matchOwner]; code != schema.ResultSuccess {
			return code
		}
		return s.settle[riskOwner]
	case schema.CommandCancelOrder, schema.CommandReduceOrder, schema.CommandOrderBookRequest:
		return s.match[matchOwner]
	case schema.CommandBinaryData, schema.CommandReset:
		if code := firstFailure(s.hold, schema.ResultSuccess); code != schema.ResultSuccess {
			return code
		}
		if code := firstFailure(s.settle, schema.ResultSuccess); code != schema.ResultSuccess {
			return code
		}
		return firstFailure(s.match, schema.ResultSuccess)
	case schema.CommandPersistStateMatching:
		return firstFailure(s.match, schema.ResultAccepted)
	case schema.CommandPersistStateRisk:
		return firstFailure(s.settle, schema.ResultSuccess)
	default:
		return schema.ResultSuccess
	}
}

// firstFailure returns ok when every code equals ok, else the first
// code that does not.
func firstFailure(codes []schema.ResultCode, ok schema.ResultCode) schema.ResultCode {
	for _, code := range codes {
		if code != ok {
			return code
		}
	}
	return ok
}
