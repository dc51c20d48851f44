package core

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exchange/internal/chaos"
	"exchange/internal/journal"
	"exchange/internal/schema"
	"exchange/internal/store"
	"exchange/pkg/conn"
	"exchange/pkg/exception"
)

type processorFactory func(t *testing.T, dir string) journal.Processor

// processors opens a store in dir. Opening the same dir again sees what
// the previous instance stored, except for memory which is reused as is.
func processors() map[string]processorFactory {
	return map[string]processorFactory{
		"disk": func(t *testing.T, dir string) journal.Processor {
			p, err := store.NewDiskProcessor(store.DiskConfig{Dir: dir, NoSync: true})
			require.NoError(t, err)
			return p
		},
		"badger": func(t *testing.T, dir string) journal.Processor {
			p, err := store.NewBadgerProcessor(store.BadgerConfig{Dir: filepath.Join(dir, "badger"), NoSync: true})
			require.NoError(t, err)
			return p
		},
		"sqlite": func(t *testing.T, dir string) journal.Processor {
			p, err := store.NewGormProcessor(conn.Option{Driver: conn.DriverSQLite, Path: filepath.Join(dir, "exchange.db")})
			require.NoError(t, err)
			return p
		},
	}
}

func submitAll(t *testing.T, e *Exchange, cmds []schema.Command) int64 {
	t.Helper()
	var last int64
	for i := range cmds {
		seq, err := e.Submit(&cmds[i])
		require.NoError(t, err)
		last = seq
	}
	return last
}

func nextCommands(gen *chaos.Generator, n int) []schema.Command {
	out := make([]schema.Command, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, gen.Next())
	}
	return out
}

func shardStates(t *testing.T, e *Exchange) map[journal.ShardID]string {
	t.Helper()
	snaps, err := e.ShardStates()
	require.NoError(t, err)
	out := make(map[journal.ShardID]string, len(snaps))
	for _, snap := range snaps {
		out[snap.Shard] = string(snap.Data)
	}
	return out
}

// recoverFrom starts an exchange from stateID, checks nothing replayed
// was delivered and returns it running.
func recoverFrom(t *testing.T, cfg Config, p journal.Processor, stateID int64) (*Exchange, *Results) {
	t.Helper()
	cfg.LoadStateID = stateID
	res := NewResults()
	e, err := New(cfg, p, res.Consume)
	require.NoError(t, err)
	require.NoError(t, e.Start(context.Background()))
	assert.Zero(t, res.Len())
	return e, res
}

func runRecovery(t *testing.T, open processorFactory, reopen bool) {
	cfg := testConfig()
	cfg.RiskShards = 2
	cfg.MatchingShards = 3
	cfg.GroupLimit = 16
	cfg.JournalBatchSize = 32

	dir := t.TempDir()
	p := open(t, dir)
	swap := func() {
		if !reopen {
			return
		}
		require.NoError(t, p.Close())
		p = open(t, dir)
	}
	defer func() { _ = p.Close() }()

	gen, err := chaos.NewGenerator(chaos.GeneratorConfig{Seed: 2024, Users: 20})
	require.NoError(t, err)

	live, liveRes := func() (*Exchange, *Results) {
		res := NewResults()
		e, err := New(cfg, p, res.Consume)
		require.NoError(t, err)
		require.NoError(t, e.Start(context.Background()))
		return e, res
	}()
	submitAll(t, live, gen.Setup())
	submitAll(t, live, nextCommands(gen, 800))
	persist1, err := live.PersistState(1)
	require.NoError(t, err)
	submitAll(t, live, nextCommands(gen, 800))
	persist2, err := live.PersistState(2)
	require.NoError(t, err)
	last := submitAll(t, live, nextCommands(gen, 800))
	require.NoError(t, live.Shutdown(context.Background()))

	for _, seq := range []int64{persist1, persist2} {
		cmd, ok := liveRes.Get(seq)
		require.True(t, ok)
		assert.Equal(t, schema.ResultAccepted, cmd.Result)
		cmd, ok = liveRes.Get(seq + 1)
		require.True(t, ok)
		assert.Equal(t, schema.ResultSuccess, cmd.Result)
	}
	want := shardStates(t, live)
	swap()

	for _, stateID := range []int64{1, 2} {
		e, _ := recoverFrom(t, cfg, p, stateID)
		assert.Equal(t, last, e.Published())
		require.NoError(t, e.Shutdown(context.Background()))
		assert.Equal(t, want, shardStates(t, e), "state %d", stateID)
	}

	// A recovered exchange keeps journaling after the replayed sequence.
	e, res := recoverFrom(t, cfg, p, 2)
	seq, err := e.Nop()
	require.NoError(t, err)
	assert.Equal(t, last+1, seq)
	submitAll(t, e, nextCommands(gen, 500))
	_, err = e.PersistState(3)
	require.NoError(t, err)
	more := submitAll(t, e, nextCommands(gen, 200))
	waiter(t, res)(more, nil)
	require.NoError(t, e.Shutdown(context.Background()))
	want = shardStates(t, e)
	swap()

	for _, stateID := range []int64{1, 3} {
		e, _ := recoverFrom(t, cfg, p, stateID)
		assert.Equal(t, more, e.Published())
		require.NoError(t, e.Shutdown(context.Background()))
		assert.Equal(t, want, shardStates(t, e), "state %d", stateID)
	}
}

func TestRecoveryReproducesLiveState(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		p := journal.NewMemoryProcessor()
		runRecovery(t, func(*testing.T, string) journal.Processor { return p }, false)
	})
	for name, open := range processors() {
		t.Run(name, func(t *testing.T) {
			runRecovery(t, open, false)
		})
		t.Run(name+"-reopen", func(t *testing.T) {
			runRecovery(t, open, true)
		})
	}
}

func TestRecoveryFailures(t *testing.T) {
	p := journal.NewMemoryProcessor()
	cfg := testConfig()
	cfg.MatchingShards = 2
	e, res := startExchange(t, cfg, p)
	wait := waiter(t, res)
	wait(e.AddUser(1))
	wait(e.PersistState(5))
	require.NoError(t, e.Shutdown(context.Background()))

	missing := cfg
	missing.LoadStateID = 6
	e, err := New(missing, p, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, e.Start(context.Background()), exception.ErrSnapshotNotFound)
	_, err = e.Nop()
	assert.ErrorIs(t, err, exception.ErrClosed)

	resharded := cfg
	resharded.LoadStateID = 5
	resharded.MatchingShards = 3
	e, err = New(resharded, p, nil)
	require.NoError(t, err)
	assert.Error(t, e.Start(context.Background()))

	fewer := cfg
	fewer.LoadStateID = 5
	fewer.MatchingShards = 1
	e, err = New(fewer, p, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, e.Start(context.Background()), exception.ErrShardCountMismatch)
}

func TestPersistWithoutJournalMarkerFails(t *testing.T) {
	p := journal.NewMemoryProcessor()
	cfg := testConfig()
	cfg.LoadStateID = 1
	for _, shard := range []journal.ShardID{journal.MatchingShard(0), journal.RiskShard(0)} {
		require.NoError(t, p.StoreSnapshot(context.Background(), journal.Snapshot{StateID: 1, Shard: shard, Seq: 10}))
	}
	e, err := New(cfg, p, nil)
	require.NoError(t, err)
	assert.Error(t, e.Start(context.Background()))
}
