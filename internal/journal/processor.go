// Package journal defines how the pipeline persists its command journal
// and shard snapshots, and how both are read back for recovery.
package journal

import (
	"context"
	"fmt"

	"exchange/internal/schema"
)

// ShardKind tells risk shards from matching shards.
type ShardKind uint8

const (
	ShardRisk ShardKind = iota + 1
	ShardMatching
)

func (k ShardKind) String() string {
	switch k {
	case ShardRisk:
		return "risk"
	case ShardMatching:
		return "matching"
	default:
		return "unknown"
	}
}

// ShardID identifies one shard of the pipeline.
type ShardID struct {
	Kind  ShardKind `json:"kind"`
	Index int       `json:"index"`
}

func RiskShard(i int) ShardID     { return ShardID{Kind: ShardRisk, Index: i} }
func MatchingShard(i int) ShardID { return ShardID{Kind: ShardMatching, Index: i} }

func (id ShardID) String() string {
	return fmt.Sprintf("%s-%d", id.Kind, id.Index)
}

// Snapshot is the stored state of one shard. Seq is the sequence of the
// persist command that produced it; the state reflects every command
// before Seq.
type Snapshot struct {
	StateID int64
	Shard   ShardID
	Seq     int64
	Data    []byte
}

// Batch is a run of consecutive journal records.
type Batch struct {
	ID       int64
	FirstSeq int64
	LastSeq  int64
	Records  []schema.Command
}

// Processor durably stores journal batches and snapshots.
//
// StoreJournalBatch must not return before the batch is durable: results
// are published only after it returns. Batches are stored in sequence
// order. LoadJournalBatchesAfter returns every record after the persist
// marker of stateID in sequence order.
type Processor interface {
	StoreJournalBatch(ctx context.Context, batch Batch) error
	StoreSnapshot(ctx context.Context, snap Snapshot) error
	LoadSnapshot(ctx context.Context, stateID int64, shard ShardID) (Snapshot, error)
	LoadJournalBatchesAfter(ctx context.Context, stateID int64) ([]Batch, error)
	Close() error
}

// Record returns the journal form of cmd: input fields only, detached
// from the ring slot.
func Record(cmd *schema.Command) schema.Command {
	var rec schema.Command
	rec.SetInput(cmd)
	rec.Replay = false
	if len(cmd.Data) > 0 {
		rec.Data = append([]byte(nil), cmd.Data...)
	}
	return rec
}
