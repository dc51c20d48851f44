package ops

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exchange/internal/bus"
	"exchange/internal/codec"
	"exchange/internal/core"
	"exchange/internal/matching"
	"exchange/internal/schema"
	"exchange/pkg/exception"
)

const sample = `{
	"core": {"ringSize": 1024, "riskShards": 2, "matchingShards": 2, "waitStrategy": "sleeping", "selfTrade": "cancel-taker"},
	"store": {"kind": "disk", "dir": "data", "noSync": true},
	"registry": {
		"currencies": [
			{"name": "USD", "id": 840, "scale": 2},
			{"name": "XBT", "id": 3762, "scale": 8}
		],
		"symbols": [
			{"name": "XBTUSD", "id": 1, "type": "exchange", "base": "XBT", "quote": "USD",
			 "baseScaleK": 1000000, "quoteScaleK": 1, "takerFee": 2, "makerFee": 1, "priceScale": 2},
			{"name": "XBTUSD-PERP", "id": 2, "type": "futures", "base": "XBT", "quote": "USD",
			 "baseScaleK": 1, "quoteScaleK": 1, "marginBuy": 100, "marginSell": 100, "priceScale": 2}
		]
	},
	"users": [
		{"uid": 1, "balances": [{"currency": "USD", "amount": 100000}, {"currency": "XBT", "amount": 500}]},
		{"uid": 2, "balances": [{"currency": "USD", "amount": 7}]}
	],
	"metrics": {"listen": ":9100"}
}`

func TestParse(t *testing.T) {
	loaded, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, 1024, loaded.Core.RingSize)
	assert.Equal(t, 2, loaded.Core.RiskShards)
	assert.Equal(t, 2, loaded.Core.MatchingShards)
	assert.Equal(t, core.DefaultConfig().GroupLimit, loaded.Core.GroupLimit)
	assert.IsType(t, bus.SleepingWait{}, loaded.Core.WaitStrategy)
	assert.Equal(t, matching.SelfTradeCancelTaker, loaded.Core.SelfTrade)

	assert.Equal(t, StoreDisk, loaded.Store.kind())
	assert.Equal(t, "exchange", loaded.Metrics.AppName)
	assert.Equal(t, ":9100", loaded.Metrics.Listen)

	sym, ok := loaded.Registry.SymbolByName("XBTUSD-PERP")
	require.True(t, ok)
	assert.Equal(t, schema.SymbolTypeFuturesContract, sym.Spec.Type)
	assert.Equal(t, schema.Currency(3762), sym.Spec.BaseCurrency)
	assert.Equal(t, schema.Currency(840), sym.Spec.QuoteCurrency)
	assert.Len(t, loaded.Registry.Specs(), 2)

	require.Len(t, loaded.Users, 2)
	assert.Equal(t, []Deposit{{Currency: 840, Amount: 100000}, {Currency: 3762, Amount: 500}}, loaded.Users[0].Deposits)
}

func TestParseRejects(t *testing.T) {
	cases := map[string]string{
		"syntax":        `{"core":`,
		"wait strategy": `{"core": {"waitStrategy": "spin-forever"}}`,
		"self trade":    `{"core": {"selfTrade": "maybe"}}`,
		"ring size":     `{"core": {"ringSize": 1000}}`,
		"store kind":    `{"store": {"kind": "tape"}}`,
		"store dir":     `{"store": {"kind": "badger"}}`,
		"sqlite path":   `{"store": {"kind": "sqlite"}}`,
		"postgres db":   `{"store": {"kind": "postgres"}}`,
		"currency dup":  `{"registry": {"currencies": [{"name": "USD", "id": 1}, {"name": "USD", "id": 2}]}}`,
		"symbol base":   `{"registry": {"currencies": [{"name": "USD", "id": 1}], "symbols": [{"name": "X", "id": 1, "base": "XBT", "quote": "USD", "baseScaleK": 1, "quoteScaleK": 1}]}}`,
		"symbol type":   `{"registry": {"currencies": [{"name": "USD", "id": 1}], "symbols": [{"name": "X", "id": 1, "type": "swap", "base": "USD", "quote": "USD"}]}}`,
		"user uid":      `{"users": [{"uid": 0}]}`,
		"user dup":      `{"users": [{"uid": 3}, {"uid": 3}]}`,
		"user currency": `{"users": [{"uid": 3, "balances": [{"currency": "EUR", "amount": 1}]}]}`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}

	_, err := Parse([]byte(`{"users": [{"uid": 0}]}`))
	assert.ErrorIs(t, err, exception.ErrInvalidConfig)
}

func TestLoadResolvesStorePaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "exchange.json")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "data"), loaded.Store.Dir)

	_, err = Load(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestStoreOpen(t *testing.T) {
	dir := t.TempDir()
	for _, cfg := range []StoreConfig{
		{},
		{Kind: StoreDisk, Dir: filepath.Join(dir, "disk"), NoSync: true},
		{Kind: StoreBadger, Dir: filepath.Join(dir, "badger"), NoSync: true},
		{Kind: StoreSQLite, SQLitePath: filepath.Join(dir, "exchange.db")},
	} {
		t.Run(cfg.kind(), func(t *testing.T) {
			p, err := cfg.Open()
			require.NoError(t, err)
			_, err = p.LoadJournalBatchesAfter(context.Background(), 1)
			assert.ErrorIs(t, err, exception.ErrStateNotFound)
			require.NoError(t, p.Close())
		})
	}

	_, err := StoreConfig{Kind: StoreDisk}.Open()
	assert.ErrorIs(t, err, exception.ErrInvalidConfig)
}

func TestBootstrapRunsOnExchange(t *testing.T) {
	loaded, err := Parse([]byte(sample))
	require.NoError(t, err)

	cmds := loaded.Bootstrap()
	require.Len(t, cmds, 6)
	assert.Equal(t, schema.CommandBinaryData, cmds[0].Kind)
	specs, ok := codec.DecodeSymbolBatch(cmds[0].Data)
	require.True(t, ok)
	assert.Equal(t, loaded.Registry.Specs(), specs)

	// Transaction ids are stable so a rerun is idempotent.
	again := loaded.Bootstrap()
	assert.Equal(t, cmds, again)

	res := core.NewResults()
	e, err := core.New(loaded.Core, journalProcessor(t), res.Consume)
	require.NoError(t, err)
	require.NoError(t, e.Start(context.Background()))
	first, err := e.SubmitBatch(cmds)
	require.NoError(t, err)
	last := first + int64(len(cmds)) - 1
	require.NoError(t, e.Shutdown(context.Background()))

	for seq := first; seq <= last; seq++ {
		cmd, ok := res.Get(seq)
		require.True(t, ok)
		assert.Equal(t, schema.ResultSuccess, cmd.Result, "seq %d kind %s", seq, cmd.Kind)
	}
}
