package journal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exchange/internal/schema"
	"exchange/pkg/exception"
)

func records(first, last int64) []schema.Command {
	out := make([]schema.Command, 0, last-first+1)
	for s := first; s <= last; s++ {
		out = append(out, schema.Command{Seq: s, Kind: schema.CommandAddUser, UID: schema.UserID(s)})
	}
	return out
}

func batch(id int64, recs []schema.Command) Batch {
	return Batch{ID: id, FirstSeq: recs[0].Seq, LastSeq: recs[len(recs)-1].Seq, Records: recs}
}

func TestAfterTrimsAtMarker(t *testing.T) {
	first := records(0, 4)
	first[3] = schema.Command{Seq: 3, Kind: schema.CommandPersistStateMatching, StateID: 7}
	first[4] = schema.Command{Seq: 4, Kind: schema.CommandPersistStateRisk, StateID: 7}
	batches := []Batch{batch(1, first), batch(2, records(5, 8))}

	marker, out, err := After(batches, 7)
	require.NoError(t, err)
	assert.EqualValues(t, 3, marker)
	require.Len(t, out, 2)
	assert.EqualValues(t, 4, out[0].FirstSeq)
	assert.Len(t, out[0].Records, 1)
	assert.EqualValues(t, 5, out[1].FirstSeq)
	assert.EqualValues(t, 8, out[1].LastSeq)
}

func TestAfterMarkerAtBatchEnd(t *testing.T) {
	first := records(0, 2)
	first[2] = schema.Command{Seq: 2, Kind: schema.CommandPersistStateRisk, StateID: 1}
	marker, out, err := After([]Batch{batch(1, first)}, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, marker)
	assert.Empty(t, out)
}

func TestAfterUnknownState(t *testing.T) {
	_, _, err := After([]Batch{batch(1, records(0, 3))}, 9)
	assert.ErrorIs(t, err, exception.ErrStateNotFound)
}

func TestAfterDetectsGap(t *testing.T) {
	first := records(0, 1)
	first[1] = schema.Command{Seq: 1, Kind: schema.CommandPersistStateMatching, StateID: 2}
	_, _, err := After([]Batch{batch(1, first), batch(2, records(3, 4))}, 2)
	assert.ErrorIs(t, err, exception.ErrSequenceGap)
}

func TestRecordKeepsInputOnly(t *testing.T) {
	cmd := &schema.Command{
		Seq:    5,
		Kind:   schema.CommandBinaryData,
		Data:   []byte{1, 2, 3},
		Result: schema.ResultSuccess,
		Events: []schema.MatcherEvent{{Type: schema.EventTrade}},
		Replay: true,
	}
	rec := Record(cmd)
	assert.Equal(t, schema.ResultNew, rec.Result)
	assert.Empty(t, rec.Events)
	assert.False(t, rec.Replay)
	cmd.Data[0] = 9
	assert.Equal(t, byte(1), rec.Data[0])
}

func TestMemoryProcessor(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryProcessor()

	_, err := p.LoadSnapshot(ctx, 1, RiskShard(0))
	assert.ErrorIs(t, err, exception.ErrSnapshotNotFound)

	data := []byte(`{"a":1}`)
	require.NoError(t, p.StoreSnapshot(ctx, Snapshot{StateID: 1, Shard: RiskShard(0), Seq: 4, Data: data}))
	data[0] = 'x'
	snap, err := p.LoadSnapshot(ctx, 1, RiskShard(0))
	require.NoError(t, err)
	assert.EqualValues(t, 4, snap.Seq)
	assert.Equal(t, `{"a":1}`, string(snap.Data))
	_, err = p.LoadSnapshot(ctx, 1, MatchingShard(0))
	assert.ErrorIs(t, err, exception.ErrSnapshotNotFound)

	recs := records(0, 3)
	recs[1] = schema.Command{Seq: 1, Kind: schema.CommandPersistStateMatching, StateID: 1}
	require.NoError(t, p.StoreJournalBatch(ctx, batch(1, recs)))
	out, err := p.LoadJournalBatchesAfter(ctx, 1)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.EqualValues(t, 2, out[0].FirstSeq)

	require.NoError(t, p.Close())
	assert.ErrorIs(t, p.StoreJournalBatch(ctx, batch(2, records(4, 4))), exception.ErrProcessorClosed)
}

func TestShardIDString(t *testing.T) {
	assert.Equal(t, "risk-2", RiskShard(2).String())
	assert.Equal(t, "matching-0", MatchingShard(0).String())
}
