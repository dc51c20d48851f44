package matching

import (
	"github.com/tidwall/btree"
	"github.com/yanun0323/errors"

	"exchange/internal/schema"
	"exchange/pkg/exception"
)

const levelDegree = 32

// OrderBook holds the resting orders of one symbol. Bids are matched from
// the highest price, asks from the lowest, and orders within a price
// level in arrival order.
type OrderBook struct {
	spec   schema.SymbolSpec
	bids   *btree.Map[int64, *level]
	asks   *btree.Map[int64, *level]
	orders map[schema.OrderID]*Order
}

// NewOrderBook creates an empty book.
func NewOrderBook(spec schema.SymbolSpec) *OrderBook {
	return &OrderBook{
		spec:   spec,
		bids:   btree.NewMap[int64, *level](levelDegree),
		asks:   btree.NewMap[int64, *level](levelDegree),
		orders: make(map[schema.OrderID]*Order),
	}
}

func (b *OrderBook) Spec() schema.SymbolSpec {
	return b.spec
}

// Len returns the number of resting orders.
func (b *OrderBook) Len() int {
	return len(b.orders)
}

// Order returns a resting order by id.
func (b *OrderBook) Order(id schema.OrderID) (*Order, bool) {
	o, ok := b.orders[id]
	return o, ok
}

// BestBid returns the highest bid price.
func (b *OrderBook) BestBid() (schema.Price, bool) {
	price, _, ok := b.bids.Max()
	return schema.Price(price), ok
}

// BestAsk returns the lowest ask price.
func (b *OrderBook) BestAsk() (schema.Price, bool) {
	price, _, ok := b.asks.Min()
	return schema.Price(price), ok
}

func (b *OrderBook) side(side schema.Side) *btree.Map[int64, *level] {
	if side == schema.SideBid {
		return b.bids
	}
	return b.asks
}

// best returns the top level of the given side.
func (b *OrderBook) best(side schema.Side) (*level, bool) {
	if side == schema.SideBid {
		_, lvl, ok := b.bids.Max()
		return lvl, ok
	}
	_, lvl, ok := b.asks.Min()
	return lvl, ok
}

// crosses reports whether a resting price is acceptable for the taker.
func crosses(taker schema.Side, limit, resting schema.Price) bool {
	if taker == schema.SideBid {
		return resting <= limit
	}
	return resting >= limit
}

// Place matches an incoming order and rests or reports its remainder.
// Matcher events are appended to cmd.Events.
func (b *OrderBook) Place(cmd *schema.Command, stp SelfTradePolicy) schema.ResultCode {
	if _, dup := b.orders[cmd.OrderID]; dup {
		cmd.Events = append(cmd.Events, rejectEvent(cmd))
		return schema.ResultDuplicateOrderID
	}
	if cmd.OrderType == schema.OrderTypeFOK && b.fillable(cmd, stp) < cmd.Size {
		cmd.Events = append(cmd.Events, rejectEvent(cmd))
		return schema.ResultSuccess
	}

	remaining, stopped := b.match(cmd, stp)
	if remaining == 0 {
		return schema.ResultSuccess
	}
	if cmd.OrderType == schema.OrderTypeGTC && !stopped {
		b.rest(&Order{
			ID:    cmd.OrderID,
			UID:   cmd.UID,
			Side:  cmd.Side,
			Price: cmd.Price,
			Size:  remaining,
			Seq:   cmd.Seq,
		})
		return schema.ResultSuccess
	}
	cmd.Events = append(cmd.Events, schema.MatcherEvent{
		Type:           schema.EventReduce,
		MakerOrderID:   cmd.OrderID,
		MakerUID:       cmd.UID,
		Price:          cmd.Price,
		Size:           remaining,
		MakerCompleted: true,
		TakerCompleted: true,
	})
	return schema.ResultSuccess
}

func rejectEvent(cmd *schema.Command) schema.MatcherEvent {
	return schema.MatcherEvent{
		Type:           schema.EventReject,
		MakerOrderID:   cmd.OrderID,
		MakerUID:       cmd.UID,
		Price:          cmd.Price,
		Size:           cmd.Size,
		MakerCompleted: true,
		TakerCompleted: true,
	}
}

// match consumes resting liquidity. stopped is true when a self-trade
// cancelled the incoming remainder.
func (b *OrderBook) match(cmd *schema.Command, stp SelfTradePolicy) (remaining schema.Size, stopped bool) {
	remaining = cmd.Size
	opposite := cmd.Side.Opposite()
	for remaining > 0 {
		lvl, ok := b.best(opposite)
		if !ok || !crosses(cmd.Side, cmd.Price, lvl.price) {
			break
		}
		for o := lvl.head; o != nil && remaining > 0; {
			next := o.next
			if o.UID == cmd.UID && stp != SelfTradeAllow {
				if stp == SelfTradeCancelTaker {
					return remaining, true
				}
				released := o.Remaining()
				b.unlink(o)
				cmd.Events = append(cmd.Events, schema.MatcherEvent{
					Type:           schema.EventReduce,
					MakerOrderID:   o.ID,
					MakerUID:       o.UID,
					Price:          o.Price,
					Size:           released,
					MakerCompleted: true,
				})
				o = next
				continue
			}

			qty := remaining
			if r := o.Remaining(); r < qty {
				qty = r
			}
			o.Filled += qty
			lvl.volume -= qty
			remaining -= qty
			completed := o.Remaining() == 0
			cmd.Events = append(cmd.Events, schema.MatcherEvent{
				Type:           schema.EventTrade,
				MakerOrderID:   o.ID,
				MakerUID:       o.UID,
				Price:          o.Price,
				Size:           qty,
				MakerCompleted: completed,
				TakerCompleted: remaining == 0,
			})
			if completed {
				b.unlink(o)
			}
			o = next
		}
	}
	return remaining, false
}

// fillable returns how much of the incoming order could be filled,
// capped at its size.
func (b *OrderBook) fillable(cmd *schema.Command, stp SelfTradePolicy) schema.Size {
	var total schema.Size
	iter := func(price int64, lvl *level) bool {
		if !crosses(cmd.Side, cmd.Price, schema.Price(price)) {
			return false
		}
		if stp == SelfTradeAllow {
			total += lvl.volume
			return total < cmd.Size
		}
		for o := lvl.head; o != nil; o = o.next {
			if o.UID == cmd.UID {
				if stp == SelfTradeCancelTaker {
					return false
				}
				continue
			}
			total += o.Remaining()
			if total >= cmd.Size {
				return false
			}
		}
		return true
	}
	if cmd.Side == schema.SideBid {
		b.asks.Scan(iter)
	} else {
		b.bids.Reverse(iter)
	}
	if total > cmd.Size {
		total = cmd.Size
	}
	return total
}

func (b *OrderBook) rest(o *Order) {
	tree := b.side(o.Side)
	lvl, ok := tree.Get(int64(o.Price))
	if !ok {
		lvl = &level{price: o.Price}
		tree.Set(int64(o.Price), lvl)
	}
	lvl.push(o)
	b.orders[o.ID] = o
}

// unlink removes an order from its level, the level from the tree when
// it empties, and the order from the index.
func (b *OrderBook) unlink(o *Order) {
	lvl := o.level
	lvl.remove(o)
	if lvl.count == 0 {
		b.side(o.Side).Delete(int64(lvl.price))
	}
	delete(b.orders, o.ID)
}

// Cancel removes an order owned by cmd.UID.
func (b *OrderBook) Cancel(cmd *schema.Command) schema.ResultCode {
	o, ok := b.orders[cmd.OrderID]
	if !ok || o.UID != cmd.UID {
		return schema.ResultOrderNotFound
	}
	released := o.Remaining()
	b.unlink(o)
	cmd.Events = append(cmd.Events, schema.MatcherEvent{
		Type:           schema.EventReduce,
		MakerOrderID:   o.ID,
		MakerUID:       o.UID,
		Price:          o.Price,
		Size:           released,
		MakerCompleted: true,
	})
	return schema.ResultSuccess
}

// Reduce shrinks an order owned by cmd.UID by cmd.Size. Reducing by the
// remaining size or more cancels it.
func (b *OrderBook) Reduce(cmd *schema.Command) schema.ResultCode {
	o, ok := b.orders[cmd.OrderID]
	if !ok || o.UID != cmd.UID {
		return schema.ResultOrderNotFound
	}
	if cmd.Size >= o.Remaining() {
		return b.Cancel(cmd)
	}
	o.Size -= cmd.Size
	o.level.volume -= cmd.Size
	cmd.Events = append(cmd.Events, schema.MatcherEvent{
		Type:         schema.EventReduce,
		MakerOrderID: o.ID,
		MakerUID:     o.UID,
		Price:        o.Price,
		Size:         cmd.Size,
	})
	return schema.ResultSuccess
}

// L2 aggregates the book. depth <= 0 returns every level.
func (b *OrderBook) L2(depth int) schema.L2MarketData {
	md := schema.L2MarketData{Symbol: b.spec.ID}
	collect := func(dst *[]schema.L2Level) func(int64, *level) bool {
		return func(price int64, lvl *level) bool {
			*dst = append(*dst, schema.L2Level{Price: lvl.price, Volume: lvl.volume, Orders: lvl.count})
			return depth <= 0 || len(*dst) < depth
		}
	}
	b.bids.Reverse(collect(&md.Bids))
	b.asks.Scan(collect(&md.Asks))
	return md
}

// CheckCrossed returns exception.ErrCrossedBook when best bid >= best ask.
func (b *OrderBook) CheckCrossed() error {
	bid, okBid := b.BestBid()
	ask, okAsk := b.BestAsk()
	if okBid && okAsk && bid >= ask {
		return errors.Wrapf(exception.ErrCrossedBook, "symbol %d bid %d ask %d", b.spec.ID, bid, ask)
	}
	return nil
}

// Validate walks the whole book and checks its structural invariants.
func (b *OrderBook) Validate() error {
	if err := b.CheckCrossed(); err != nil {
		return err
	}
	seen := 0
	var verr error
	check := func(side schema.Side) func(int64, *level) bool {
		return func(price int64, lvl *level) bool {
			if lvl.count == 0 || lvl.head == nil {
				verr = errors.Wrapf(exception.ErrBookCorrupted, "empty level %d", price)
				return false
			}
			var volume schema.Size
			count := 0
			lastSeq := int64(-1 << 63)
			for o := lvl.head; o != nil; o = o.next {
				if o.Side != side || int64(o.Price) != price || o.level != lvl || o.Remaining() <= 0 {
					verr = errors.Wrapf(exception.ErrBookCorrupted, "order %d misplaced", o.ID)
					return false
				}
				if o.Seq < lastSeq {
					verr = errors.Wrapf(exception.ErrBookCorrupted, "order %d breaks time priority", o.ID)
					return false
				}
				if idx, ok := b.orders[o.ID]; !ok || idx != o {
					verr = errors.Wrapf(exception.ErrBookCorrupted, "order %d not indexed", o.ID)
					return false
				}
				lastSeq = o.Seq
				volume += o.Remaining()
				count++
			}
			if volume != lvl.volume || count != lvl.count {
				verr = errors.Wrapf(exception.ErrBookCorrupted, "level %d volume %d/%d count %d/%d", price, volume, lvl.volume, count, lvl.count)
				return false
			}
			seen += count
			return true
		}
	}
	b.bids.Scan(check(schema.SideBid))
	if verr != nil {
		return verr
	}
	b.asks.Scan(check(schema.SideAsk))
	if verr != nil {
		return verr
	}
	if seen != len(b.orders) {
		return errors.Wrapf(exception.ErrBookCorrupted, "index has %d orders, levels have %d", len(b.orders), seen)
	}
	return nil
}
