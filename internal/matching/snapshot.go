package matching

import (
	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"

	"exchange/internal/schema"
	"exchange/pkg/exception"
)

type shardSnapshot struct {
	ShardID int            `json:"shardId"`
	Shards  int            `json:"shards"`
	Books   []bookSnapshot `json:"books"`
}

type bookSnapshot struct {
	Spec schema.SymbolSpec `json:"spec"`
	// Orders are stored bids first from the best price, then asks from
	// the best price, each level in time priority.
	Orders []orderSnapshot `json:"orders"`
}

type orderSnapshot struct {
	ID     schema.OrderID `json:"id"`
	UID    schema.UserID  `json:"uid"`
	Side   schema.Side    `json:"side"`
	Price  schema.Price   `json:"price"`
	Size   schema.Size    `json:"size"`
	Filled schema.Size    `json:"filled"`
	Seq    int64          `json:"seq"`
}

// Snapshot serializes every book of the shard. Equal states produce
// equal bytes.
func (s *Shard) Snapshot() ([]byte, error) {
	snap := shardSnapshot{
		ShardID: s.id,
		Shards:  s.shards,
		Books:   make([]bookSnapshot, 0, len(s.books)),
	}
	for _, id := range s.Symbols() {
		snap.Books = append(snap.Books, s.books[id].snapshot())
	}
	data, err := sonic.Marshal(snap)
	if err != nil {
		return nil, errors.Wrap(err, "marshal matching snapshot")
	}
	return data, nil
}

// Restore replaces every book with the snapshot content.
func (s *Shard) Restore(data []byte) error {
	var snap shardSnapshot
	if err := sonic.Unmarshal(data, &snap); err != nil {
		return errors.Wrapf(exception.ErrSnapshotCorrupted, "unmarshal matching snapshot: %v", err)
	}
	if snap.ShardID != s.id || snap.Shards != s.shards {
		return errors.Wrapf(exception.ErrShardCountMismatch, "matching snapshot shard %d/%d, want %d/%d", snap.ShardID, snap.Shards, s.id, s.shards)
	}

	s.Reset()
	for _, bs := range snap.Books {
		book := NewOrderBook(bs.Spec)
		for _, o := range bs.Orders {
			if _, dup := book.orders[o.ID]; dup || o.Size-o.Filled <= 0 {
				return errors.Wrapf(exception.ErrSnapshotCorrupted, "symbol %d order %d", bs.Spec.ID, o.ID)
			}
			book.rest(&Order{
				ID:     o.ID,
				UID:    o.UID,
				Side:   o.Side,
				Price:  o.Price,
				Size:   o.Size,
				Filled: o.Filled,
				Seq:    o.Seq,
			})
		}
		if err := book.Validate(); err != nil {
			return errors.Wrapf(exception.ErrSnapshotCorrupted, "symbol %d: %v", bs.Spec.ID, err)
		}
		s.books[bs.Spec.ID] = book
	}
	return nil
}

func (b *OrderBook) snapshot() bookSnapshot {
	bs := bookSnapshot{Spec: b.spec, Orders: make([]orderSnapshot, 0, len(b.orders))}
	add := func(_ int64, lvl *level) bool {
		for o := lvl.head; o != nil; o = o.next {
			bs.Orders = append(bs.Orders, orderSnapshot{
				ID:     o.ID,
				UID:    o.UID,
				Side:   o.Side,
				Price:  o.Price,
				Size:   o.Size,
				Filled: o.Filled,
				Seq:    o.Seq,
			})
		}
		return true
	}
	b.bids.Reverse(add)
	b.asks.Scan(add)
	return bs
}
