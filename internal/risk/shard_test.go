package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exchange/internal/codec"
	"exchange/internal/schema"
	"exchange/pkg/exception"
)

const (
	usd schema.Currency = 840
	eur schema.Currency = 978
	xbt schema.Currency = 3762
	eth schema.Currency = 3928

	symbolExchange schema.SymbolID = 9269
	symbolMargin   schema.SymbolID = 5991
)

var (
	exchangeSpec = schema.SymbolSpec{
		ID:            symbolExchange,
		Type:          schema.SymbolTypeCurrencyExchangePair,
		BaseCurrency:  eth,
		QuoteCurrency: xbt,
		BaseScaleK:    100_000,
		QuoteScaleK:   10,
		TakerFee:      2,
		MakerFee:      1,
	}
	marginSpec = schema.SymbolSpec{
		ID:            symbolMargin,
		Type:          schema.SymbolTypeFuturesContract,
		BaseCurrency:  eur,
		QuoteCurrency: usd,
		BaseScaleK:    1,
		QuoteScaleK:   1,
		MarginBuy:     2200,
		MarginSell:    3210,
	}
)

func newTestShard(t *testing.T) *Shard {
	t.Helper()
	s := NewShard(Config{ShardID: 0, Shards: 1})
	code, err := s.AddSymbols(codec.EncodeSymbolBatch(nil, []schema.SymbolSpec{exchangeSpec, marginSpec}))
	require.NoError(t, err)
	require.Equal(t, schema.ResultSuccess, code)
	return s
}

func fundedUser(t *testing.T, s *Shard, uid schema.UserID, c schema.Currency, amount int64) {
	t.Helper()
	require.Equal(t, schema.ResultSuccess, s.AddUser(uid))
	require.Equal(t, schema.ResultSuccess, s.AdjustBalance(uid, c, amount, int64(c)))
}

func placeCmd(uid schema.UserID, symbol schema.SymbolID, id schema.OrderID, side schema.Side, price schema.Price, size schema.Size) *schema.Command {
	return &schema.Command{
		Kind:      schema.CommandPlaceOrder,
		UID:       uid,
		Symbol:    symbol,
		OrderID:   id,
		Side:      side,
		Price:     price,
		Size:      size,
		OrderType: schema.OrderTypeGTC,
	}
}

func TestAddUserRejectsDuplicate(t *testing.T) {
	s := NewShard(Config{})
	assert.Equal(t, schema.ResultSuccess, s.AddUser(1))
	assert.Equal(t, schema.ResultDuplicateUser, s.AddUser(1))
}

func TestAdjustBalanceIsIdempotentPerTransaction(t *testing.T) {
	s := NewShard(Config{})
	assert.Equal(t, schema.ResultUnknownUser, s.AdjustBalance(7, usd, 100, 1))

	require.Equal(t, schema.ResultSuccess, s.AddUser(7))
	require.Equal(t, schema.ResultSuccess, s.AdjustBalance(7, usd, 100, 1))
	require.Equal(t, schema.ResultSuccess, s.AdjustBalance(7, usd, 100, 1))
	require.Equal(t, schema.ResultSuccess, s.AdjustBalance(7, usd, -30, 2))

	p, ok := s.User(7)
	require.True(t, ok)
	assert.Equal(t, int64(70), p.Balances[usd])
}

func TestHoldRejectsUnknownUserAndSymbol(t *testing.T) {
	s := newTestShard(t)
	code, retry := s.Hold(placeCmd(1, symbolExchange, 1, schema.SideBid, 100, 1), true)
	assert.False(t, retry)
	assert.Equal(t, schema.ResultUnknownUser, code)

	require.Equal(t, schema.ResultSuccess, s.AddUser(1))
	code, _ = s.Hold(placeCmd(1, 42, 1, schema.SideBid, 100, 1), true)
	assert.Equal(t, schema.ResultUnknownSymbol, code)
}

func TestHoldInsufficientFundsLeavesStateUnchanged(t *testing.T) {
	s := newTestShard(t)
	fundedUser(t, s, 1, xbt, 1_000)
	before, err := s.Snapshot()
	require.NoError(t, err)

	// 100 * 10 + 2 per lot, two lots
	code, retry := s.Hold(placeCmd(1, symbolExchange, 1, schema.SideBid, 100, 2), true)
	assert.False(t, retry)
	assert.Equal(t, schema.ResultInsufficientFunds, code)

	after, err := s.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestHoldDefersRejectionUntilSettled(t *testing.T) {
	s := newTestShard(t)
	fundedUser(t, s, 1, xbt, 100)

	code, retry := s.Hold(placeCmd(1, symbolExchange, 1, schema.SideBid, 100, 1), false)
	assert.True(t, retry)
	assert.Equal(t, schema.ResultNew, code)
	p, _ := s.User(1)
	assert.Empty(t, p.Holds)
	assert.Zero(t, p.Held[xbt])
}

func TestHoldReservesPerLot(t *testing.T) {
	s := newTestShard(t)
	fundedUser(t, s, 1, xbt, 10_000)
	require.Equal(t, schema.ResultSuccess, s.AdjustBalance(1, eth, 500_000, 99))

	code, _ := s.Hold(placeCmd(1, symbolExchange, 1, schema.SideBid, 100, 3), true)
	require.Equal(t, schema.ResultSuccess, code)
	code, _ = s.Hold(placeCmd(1, symbolExchange, 2, schema.SideAsk, 120, 4), true)
	require.Equal(t, schema.ResultSuccess, code)

	p, _ := s.User(1)
	assert.Equal(t, int64(3*(100*10+2)+4*2), p.Held[xbt])
	assert.Equal(t, int64(4*100_000), p.Held[eth])
	assert.Len(t, p.Holds, 2)

	code, _ = s.Hold(placeCmd(1, symbolExchange, 2, schema.SideAsk, 120, 1), true)
	assert.Equal(t, schema.ResultDuplicateOrderID, code)
}

func TestSettleExchangeTradeIsZeroSumNetOfFees(t *testing.T) {
	s := newTestShard(t)
	fundedUser(t, s, 1, xbt, 100_000)
	fundedUser(t, s, 2, eth, 1_000_000)
	// the ask holds its taker fee in the quote currency
	require.Equal(t, schema.ResultSuccess, s.AdjustBalance(2, xbt, 1_000, 77))

	ask := placeCmd(2, symbolExchange, 10, schema.SideAsk, 95, 5)
	code, _ := s.Hold(ask, true)
	require.Equal(t, schema.ResultSuccess, code)

	bid := placeCmd(1, symbolExchange, 11, schema.SideBid, 100, 3)
	code, _ = s.Hold(bid, true)
	require.Equal(t, schema.ResultSuccess, code)
	bid.Events = []schema.MatcherEvent{{
		Type:           schema.EventTrade,
		MakerOrderID:   10,
		MakerUID:       2,
		Price:          95,
		Size:           3,
		TakerCompleted: true,
	}}
	_, err := s.PostProcess(bid, schema.ResultSuccess)
	require.NoError(t, err)

	buyer, _ := s.User(1)
	seller, _ := s.User(2)
	fees := s.Fees()[xbt]
	assert.Equal(t, int64(3*2+3*1), fees)

	assert.Equal(t, int64(100_000-3*95*10-3*2), buyer.Balances[xbt])
	assert.Equal(t, int64(3*100_000), buyer.Balances[eth])
	assert.Zero(t, buyer.Held[xbt])
	assert.Empty(t, buyer.Holds)

	assert.Equal(t, int64(1_000+3*95*10-3*1), seller.Balances[xbt])
	assert.Equal(t, int64(1_000_000-3*100_000), seller.Balances[eth])
	assert.Equal(t, int64(2*100_000), seller.Held[eth])
	assert.Equal(t, int64(2*2), seller.Held[xbt])
	assert.Equal(t, schema.Size(2), seller.Holds[HoldKey{Symbol: symbolExchange, OrderID: 10}].Remaining)

	assert.Zero(t, buyer.Balances[xbt]+seller.Balances[xbt]+fees-100_000-1_000)
	assert.Zero(t, buyer.Balances[eth]+seller.Balances[eth]-1_000_000)
}

func TestSettleReleasesCancelledRemainder(t *testing.T) {
	s := newTestShard(t)
	fundedUser(t, s, 1, xbt, 10_000)
	code, _ := s.Hold(placeCmd(1, symbolExchange, 1, schema.SideBid, 100, 5), true)
	require.Equal(t, schema.ResultSuccess, code)

	cancel := &schema.Command{Kind: schema.CommandCancelOrder, UID: 1, Symbol: symbolExchange, OrderID: 1}
	cancel.Events = []schema.MatcherEvent{{Type: schema.EventReduce, MakerOrderID: 1, MakerUID: 1, Size: 5, MakerCompleted: true}}
	_, err := s.PostProcess(cancel, schema.ResultSuccess)
	require.NoError(t, err)

	p, _ := s.User(1)
	assert.Zero(t, p.Held[xbt])
	assert.Empty(t, p.Holds)
	assert.Equal(t, int64(10_000), p.Free(xbt))
}

func TestSettleOverreleaseIsFault(t *testing.T) {
	s := newTestShard(t)
	fundedUser(t, s, 1, xbt, 10_000)
	code, _ := s.Hold(placeCmd(1, symbolExchange, 1, schema.SideBid, 100, 2), true)
	require.Equal(t, schema.ResultSuccess, code)

	cancel := &schema.Command{Kind: schema.CommandCancelOrder, UID: 1, Symbol: symbolExchange, OrderID: 1}
	cancel.Events = []schema.MatcherEvent{{Type: schema.EventReduce, MakerOrderID: 1, MakerUID: 1, Size: 3, MakerCompleted: true}}
	_, err := s.PostProcess(cancel, schema.ResultSuccess)
	require.ErrorIs(t, err, exception.ErrHoldOverrelease)
}

func TestFuturesPositionOpenAndClose(t *testing.T) {
	s := newTestShard(t)
	fundedUser(t, s, 1, usd, 100_000)
	fundedUser(t, s, 2, usd, 100_000)

	// user 1 buys 2 lots at 1000 from user 2
	ask := placeCmd(2, symbolMargin, 1, schema.SideAsk, 1000, 2)
	code, _ := s.Hold(ask, true)
	require.Equal(t, schema.ResultSuccess, code)
	bid := placeCmd(1, symbolMargin, 2, schema.SideBid, 1000, 2)
	code, _ = s.Hold(bid, true)
	require.Equal(t, schema.ResultSuccess, code)
	bid.Events = []schema.MatcherEvent{{Type: schema.EventTrade, MakerOrderID: 1, MakerUID: 2, Price: 1000, Size: 2, MakerCompleted: true, TakerCompleted: true}}
	_, err := s.PostProcess(bid, schema.ResultSuccess)
	require.NoError(t, err)

	long, _ := s.User(1)
	short, _ := s.User(2)
	require.Equal(t, schema.SideBid, long.Positions[symbolMargin].Direction)
	assert.Equal(t, int64(2*2200), long.Held[usd])
	assert.Equal(t, int64(2*3210), short.Held[usd])

	// user 1 sells 2 lots at 1100 back to user 2
	bid2 := placeCmd(2, symbolMargin, 3, schema.SideBid, 1100, 2)
	code, _ = s.Hold(bid2, true)
	require.Equal(t, schema.ResultSuccess, code)
	ask2 := placeCmd(1, symbolMargin, 4, schema.SideAsk, 1100, 2)
	code, _ = s.Hold(ask2, true)
	require.Equal(t, schema.ResultSuccess, code)
	ask2.Events = []schema.MatcherEvent{{Type: schema.EventTrade, MakerOrderID: 3, MakerUID: 2, Price: 1100, Size: 2, MakerCompleted: true, TakerCompleted: true}}
	_, err = s.PostProcess(ask2, schema.ResultSuccess)
	require.NoError(t, err)

	assert.Empty(t, long.Positions)
	assert.Empty(t, short.Positions)
	assert.Zero(t, long.Held[usd])
	assert.Zero(t, short.Held[usd])
	assert.Equal(t, int64(100_000+200), long.Balances[usd])
	assert.Equal(t, int64(100_000-200), short.Balances[usd])
}

func TestEndsGroup(t *testing.T) {
	s := newTestShard(t)
	assert.False(t, s.EndsGroup(placeCmd(1, symbolExchange, 1, schema.SideBid, 1, 1)))
	assert.True(t, s.EndsGroup(placeCmd(1, symbolMargin, 1, schema.SideBid, 1, 1)))
	assert.True(t, s.EndsGroup(&schema.Command{Kind: schema.CommandReset}))
	assert.True(t, s.EndsGroup(&schema.Command{Kind: schema.CommandPersistStateRisk}))
	assert.True(t, s.EndsGroup(&schema.Command{Kind: schema.CommandUserReport}))
	assert.False(t, s.EndsGroup(&schema.Command{Kind: schema.CommandBalanceAdjustment}))
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	s := newTestShard(t)
	fundedUser(t, s, 1, xbt, 100_000)
	fundedUser(t, s, 2, usd, 50_000)
	code, _ := s.Hold(placeCmd(1, symbolExchange, 5, schema.SideBid, 100, 3), true)
	require.Equal(t, schema.ResultSuccess, code)

	data, err := s.Snapshot()
	require.NoError(t, err)

	restored := NewShard(Config{ShardID: 0, Shards: 1})
	require.NoError(t, restored.Restore(data))
	again, err := restored.Snapshot()
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(again))

	// transaction ids survive restore
	assert.Equal(t, schema.ResultSuccess, restored.AdjustBalance(1, xbt, 100_000, int64(xbt)))
	p, _ := restored.User(1)
	assert.Equal(t, int64(100_000), p.Balances[xbt])

	other := NewShard(Config{ShardID: 1, Shards: 2})
	require.ErrorIs(t, other.Restore(data), exception.ErrShardCountMismatch)
}

func TestSymbolSpecIsImmutable(t *testing.T) {
	s := newTestShard(t)

	code, err := s.AddSymbols(codec.EncodeSymbolBatch(nil, []schema.SymbolSpec{exchangeSpec}))
	require.NoError(t, err)
	assert.Equal(t, schema.ResultSuccess, code)

	changed := exchangeSpec
	changed.QuoteScaleK = 100
	added := marginSpec
	added.ID = 4242
	code, err = s.AddSymbols(codec.EncodeSymbolBatch(nil, []schema.SymbolSpec{added, changed}))
	require.NoError(t, err)
	assert.Equal(t, schema.ResultSymbolConflict, code)

	spec, ok := s.Symbol(symbolExchange)
	require.True(t, ok)
	assert.Equal(t, exchangeSpec, *spec)
	_, ok = s.Symbol(added.ID)
	assert.False(t, ok, "a refused batch adds nothing")

	s.Reset()
	code, err = s.AddSymbols(codec.EncodeSymbolBatch(nil, []schema.SymbolSpec{changed}))
	require.NoError(t, err)
	assert.Equal(t, schema.ResultSuccess, code)
}
