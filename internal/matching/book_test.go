package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"exchange/internal/schema"
	"exchange/pkg/exception"
)

var testSpec = schema.SymbolSpec{
	ID:            7,
	Type:          schema.SymbolTypeCurrencyExchangePair,
	BaseCurrency:  1,
	QuoteCurrency: 2,
	BaseScaleK:    1,
	QuoteScaleK:   1,
}

var seq int64

func order(uid schema.UserID, id schema.OrderID, side schema.Side, price schema.Price, size schema.Size, typ schema.OrderType) *schema.Command {
	seq++
	return &schema.Command{
		Seq:       seq,
		Kind:      schema.CommandPlaceOrder,
		UID:       uid,
		Symbol:    testSpec.ID,
		OrderID:   id,
		Side:      side,
		Price:     price,
		Size:      size,
		OrderType: typ,
	}
}

func gtc(uid schema.UserID, id schema.OrderID, side schema.Side, price schema.Price, size schema.Size) *schema.Command {
	return order(uid, id, side, price, size, schema.OrderTypeGTC)
}

func TestPlaceRestsWhenNotCrossing(t *testing.T) {
	b := NewOrderBook(testSpec)
	assert.Equal(t, schema.ResultSuccess, b.Place(gtc(1, 1, schema.SideBid, 100, 5), SelfTradeAllow))
	assert.Equal(t, schema.ResultSuccess, b.Place(gtc(2, 2, schema.SideAsk, 101, 3), SelfTradeAllow))

	bid, ok := b.BestBid()
	require.True(t, ok)
	assert.EqualValues(t, 100, bid)
	ask, ok := b.BestAsk()
	require.True(t, ok)
	assert.EqualValues(t, 101, ask)
	assert.Equal(t, 2, b.Len())
	require.NoError(t, b.Validate())
}

func TestPriceTimePriority(t *testing.T) {
	b := NewOrderBook(testSpec)
	b.Place(gtc(1, 1, schema.SideAsk, 101, 2), SelfTradeAllow)
	b.Place(gtc(2, 2, schema.SideAsk, 100, 2), SelfTradeAllow)
	b.Place(gtc(3, 3, schema.SideAsk, 100, 2), SelfTradeAllow)

	taker := gtc(9, 9, schema.SideBid, 101, 5)
	require.Equal(t, schema.ResultSuccess, b.Place(taker, SelfTradeAllow))
	require.Len(t, taker.Events, 3)

	assert.Equal(t, schema.OrderID(2), taker.Events[0].MakerOrderID)
	assert.EqualValues(t, 100, taker.Events[0].Price)
	assert.Equal(t, schema.OrderID(3), taker.Events[1].MakerOrderID)
	assert.Equal(t, schema.OrderID(1), taker.Events[2].MakerOrderID)
	assert.EqualValues(t, 101, taker.Events[2].Price)
	assert.EqualValues(t, 1, taker.Events[2].Size)
	assert.False(t, taker.Events[2].MakerCompleted)
	assert.True(t, taker.Events[2].TakerCompleted)

	o, ok := b.Order(1)
	require.True(t, ok)
	assert.EqualValues(t, 1, o.Remaining())
	require.NoError(t, b.Validate())
}

func TestIOCRemainderIsReduced(t *testing.T) {
	b := NewOrderBook(testSpec)
	b.Place(gtc(1, 1, schema.SideAsk, 100, 2), SelfTradeAllow)

	taker := order(2, 2, schema.SideBid, 100, 5, schema.OrderTypeIOC)
	require.Equal(t, schema.ResultSuccess, b.Place(taker, SelfTradeAllow))
	require.Len(t, taker.Events, 2)
	assert.Equal(t, schema.EventTrade, taker.Events[0].Type)
	assert.Equal(t, schema.EventReduce, taker.Events[1].Type)
	assert.Equal(t, schema.OrderID(2), taker.Events[1].MakerOrderID)
	assert.EqualValues(t, 3, taker.Events[1].Size)
	assert.True(t, taker.Events[1].MakerCompleted)
	assert.Equal(t, 0, b.Len())
}

func TestFOKRejectedWhenNotFillable(t *testing.T) {
	b := NewOrderBook(testSpec)
	b.Place(gtc(1, 1, schema.SideAsk, 100, 2), SelfTradeAllow)
	b.Place(gtc(1, 2, schema.SideAsk, 102, 2), SelfTradeAllow)

	taker := order(2, 3, schema.SideBid, 101, 3, schema.OrderTypeFOK)
	require.Equal(t, schema.ResultSuccess, b.Place(taker, SelfTradeAllow))
	require.Len(t, taker.Events, 1)
	assert.Equal(t, schema.EventReject, taker.Events[0].Type)
	assert.EqualValues(t, 3, taker.Events[0].Size)
	assert.Equal(t, 2, b.Len())

	taker = order(2, 4, schema.SideBid, 102, 3, schema.OrderTypeFOK)
	require.Equal(t, schema.ResultSuccess, b.Place(taker, SelfTradeAllow))
	require.Len(t, taker.Events, 2)
	assert.True(t, taker.Events[1].TakerCompleted)
	assert.Equal(t, 1, b.Len())
}

func TestDuplicateOrderIDRejected(t *testing.T) {
	b := NewOrderBook(testSpec)
	b.Place(gtc(1, 1, schema.SideBid, 100, 2), SelfTradeAllow)

	dup := gtc(2, 1, schema.SideAsk, 200, 2)
	assert.Equal(t, schema.ResultDuplicateOrderID, b.Place(dup, SelfTradeAllow))
	require.Len(t, dup.Events, 1)
	assert.Equal(t, schema.EventReject, dup.Events[0].Type)
	assert.Equal(t, schema.UserID(2), dup.Events[0].MakerUID)
	assert.Equal(t, 1, b.Len())
}

func TestCancelOnEmptyBook(t *testing.T) {
	b := NewOrderBook(testSpec)
	cmd := &schema.Command{Kind: schema.CommandCancelOrder, UID: 1, Symbol: testSpec.ID, OrderID: 42}
	assert.Equal(t, schema.ResultOrderNotFound, b.Cancel(cmd))
	assert.Empty(t, cmd.Events)
}

func TestCancelChecksOwner(t *testing.T) {
	b := NewOrderBook(testSpec)
	b.Place(gtc(1, 1, schema.SideBid, 100, 4), SelfTradeAllow)

	other := &schema.Command{Kind: schema.CommandCancelOrder, UID: 2, OrderID: 1}
	assert.Equal(t, schema.ResultOrderNotFound, b.Cancel(other))

	own := &schema.Command{Kind: schema.CommandCancelOrder, UID: 1, OrderID: 1}
	require.Equal(t, schema.ResultSuccess, b.Cancel(own))
	require.Len(t, own.Events, 1)
	assert.EqualValues(t, 4, own.Events[0].Size)
	assert.True(t, own.Events[0].MakerCompleted)
	_, ok := b.BestBid()
	assert.False(t, ok)
}

func TestReduceKeepsPriority(t *testing.T) {
	b := NewOrderBook(testSpec)
	b.Place(gtc(1, 1, schema.SideBid, 100, 5), SelfTradeAllow)
	b.Place(gtc(2, 2, schema.SideBid, 100, 5), SelfTradeAllow)

	reduce := &schema.Command{Kind: schema.CommandReduceOrder, UID: 1, OrderID: 1, Size: 3}
	require.Equal(t, schema.ResultSuccess, b.Reduce(reduce))
	assert.False(t, reduce.Events[0].MakerCompleted)

	md := b.L2(0)
	require.Len(t, md.Bids, 1)
	assert.EqualValues(t, 7, md.Bids[0].Volume)

	taker := gtc(3, 3, schema.SideAsk, 100, 2)
	b.Place(taker, SelfTradeAllow)
	assert.Equal(t, schema.OrderID(1), taker.Events[0].MakerOrderID)
	assert.True(t, taker.Events[0].MakerCompleted)

	cancel := &schema.Command{Kind: schema.CommandReduceOrder, UID: 2, OrderID: 2, Size: 10}
	require.Equal(t, schema.ResultSuccess, b.Reduce(cancel))
	assert.True(t, cancel.Events[0].MakerCompleted)
	assert.EqualValues(t, 5, cancel.Events[0].Size)
	assert.Equal(t, 0, b.Len())
}

func TestSelfTradePolicies(t *testing.T) {
	t.Run("allow", func(t *testing.T) {
		b := NewOrderBook(testSpec)
		b.Place(gtc(1, 1, schema.SideAsk, 100, 2), SelfTradeAllow)
		taker := gtc(1, 2, schema.SideBid, 100, 2)
		b.Place(taker, SelfTradeAllow)
		require.Len(t, taker.Events, 1)
		assert.Equal(t, schema.EventTrade, taker.Events[0].Type)
	})

	t.Run("cancel resting", func(t *testing.T) {
		b := NewOrderBook(testSpec)
		b.Place(gtc(1, 1, schema.SideAsk, 100, 2), SelfTradeAllow)
		b.Place(gtc(2, 2, schema.SideAsk, 100, 2), SelfTradeAllow)
		taker := gtc(1, 3, schema.SideBid, 100, 2)
		b.Place(taker, SelfTradeCancelResting)
		require.Len(t, taker.Events, 2)
		assert.Equal(t, schema.EventReduce, taker.Events[0].Type)
		assert.Equal(t, schema.OrderID(1), taker.Events[0].MakerOrderID)
		assert.Equal(t, schema.EventTrade, taker.Events[1].Type)
		assert.Equal(t, schema.OrderID(2), taker.Events[1].MakerOrderID)
		assert.Equal(t, 0, b.Len())
	})

	t.Run("cancel taker", func(t *testing.T) {
		b := NewOrderBook(testSpec)
		b.Place(gtc(2, 1, schema.SideAsk, 99, 1), SelfTradeAllow)
		b.Place(gtc(1, 2, schema.SideAsk, 100, 2), SelfTradeAllow)
		taker := gtc(1, 3, schema.SideBid, 100, 5)
		b.Place(taker, SelfTradeCancelTaker)
		require.Len(t, taker.Events, 2)
		assert.Equal(t, schema.EventTrade, taker.Events[0].Type)
		assert.Equal(t, schema.EventReduce, taker.Events[1].Type)
		assert.Equal(t, schema.OrderID(3), taker.Events[1].MakerOrderID)
		assert.EqualValues(t, 4, taker.Events[1].Size)
		assert.Equal(t, 1, b.Len())
		require.NoError(t, b.CheckCrossed())
	})
}

func TestL2Depth(t *testing.T) {
	b := NewOrderBook(testSpec)
	for i := 0; i < 5; i++ {
		b.Place(gtc(1, schema.OrderID(i+1), schema.SideBid, schema.Price(90+i), 1), SelfTradeAllow)
		b.Place(gtc(2, schema.OrderID(i+11), schema.SideAsk, schema.Price(100+i), 2), SelfTradeAllow)
	}
	md := b.L2(3)
	require.Len(t, md.Bids, 3)
	require.Len(t, md.Asks, 3)
	assert.EqualValues(t, 94, md.Bids[0].Price)
	assert.EqualValues(t, 92, md.Bids[2].Price)
	assert.EqualValues(t, 100, md.Asks[0].Price)
	assert.EqualValues(t, 2, md.Asks[0].Volume)
	assert.Len(t, b.L2(0).Asks, 5)
}

func TestCheckCrossedDetectsCorruption(t *testing.T) {
	b := NewOrderBook(testSpec)
	b.rest(&Order{ID: 1, UID: 1, Side: schema.SideBid, Price: 101, Size: 1})
	b.rest(&Order{ID: 2, UID: 2, Side: schema.SideAsk, Price: 100, Size: 1})
	assert.ErrorIs(t, b.CheckCrossed(), exception.ErrCrossedBook)
	assert.ErrorIs(t, b.Validate(), exception.ErrCrossedBook)
}

func TestBookProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		b := NewOrderBook(testSpec)
		stp := SelfTradePolicy(rapid.IntRange(0, 2).Draw(t, "stp"))
		var placed, traded, reduced schema.Size
		n := rapid.IntRange(1, 200).Draw(t, "n")
		for i := 0; i < n; i++ {
			cmd := order(
				schema.UserID(rapid.IntRange(1, 4).Draw(t, "uid")),
				schema.OrderID(i+1),
				schema.Side(rapid.IntRange(1, 2).Draw(t, "side")),
				schema.Price(rapid.Int64Range(95, 105).Draw(t, "price")),
				schema.Size(rapid.Int64Range(1, 20).Draw(t, "size")),
				schema.OrderType(rapid.IntRange(1, 3).Draw(t, "type")),
			)
			if rapid.IntRange(0, 4).Draw(t, "cancel") == 0 && b.Len() > 0 {
				cmd.Kind = schema.CommandCancelOrder
				cmd.OrderID = schema.OrderID(rapid.IntRange(1, i+1).Draw(t, "target"))
				if o, ok := b.Order(cmd.OrderID); ok {
					cmd.UID = o.UID
				}
				b.Cancel(cmd)
			} else {
				placed += cmd.Size
				b.Place(cmd, stp)
			}
			for _, ev := range cmd.Events {
				switch ev.Type {
				case schema.EventTrade:
					traded += ev.Size
				default:
					reduced += ev.Size
				}
			}
			if err := b.Validate(); err != nil {
				t.Fatalf("step %d: %v", i, err)
			}
		}

		var resting schema.Size
		md := b.L2(0)
		for _, lvl := range append(md.Bids, md.Asks...) {
			resting += lvl.Volume
		}
		// every placed lot is traded on both sides, resting or released
		if placed != 2*traded+resting+reduced {
			t.Fatalf("volume not conserved: placed %d traded %d resting %d reduced %d", placed, traded, resting, reduced)
		}
	})
}
