package risk

import (
	"sort"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"

	"exchange/internal/schema"
	"exchange/pkg/exception"
)

type shardSnapshot struct {
	ShardID int                 `json:"shardId"`
	Shards  int                 `json:"shards"`
	Symbols []schema.SymbolSpec `json:"symbols"`
	Users   []userSnapshot      `json:"users"`
	Fees    []amountEntry       `json:"fees"`
}

type userSnapshot struct {
	UID          schema.UserID `json:"uid"`
	Balances     []amountEntry `json:"balances"`
	Held         []amountEntry `json:"held"`
	Holds        []Hold        `json:"holds"`
	Positions    []Position    `json:"positions"`
	Transactions []int64       `json:"transactions"`
}

type amountEntry struct {
	Currency schema.Currency `json:"currency"`
	Amount   int64           `json:"amount"`
}

// Snapshot serializes the complete shard state. Equal states produce
// equal bytes.
func (s *Shard) Snapshot() ([]byte, error) {
	snap := shardSnapshot{
		ShardID: s.id,
		Shards:  s.shards,
		Symbols: make([]schema.SymbolSpec, 0, len(s.symbols)),
		Users:   make([]userSnapshot, 0, len(s.users)),
		Fees:    sortedAmounts(s.fees),
	}
	for _, spec := range s.symbols {
		snap.Symbols = append(snap.Symbols, *spec)
	}
	sort.Slice(snap.Symbols, func(i, j int) bool { return snap.Symbols[i].ID < snap.Symbols[j].ID })

	for _, p := range s.users {
		snap.Users = append(snap.Users, snapshotUser(p))
	}
	sort.Slice(snap.Users, func(i, j int) bool { return snap.Users[i].UID < snap.Users[j].UID })

	data, err := sonic.Marshal(snap)
	if err != nil {
		return nil, errors.Wrap(err, "marshal risk snapshot")
	}
	return data, nil
}

// Restore replaces the shard state with a snapshot taken by a shard with
// the same id and shard count.
func (s *Shard) Restore(data []byte) error {
	var snap shardSnapshot
	if err := sonic.Unmarshal(data, &snap); err != nil {
		return errors.Wrapf(exception.ErrSnapshotCorrupted, "unmarshal risk snapshot: %v", err)
	}
	if snap.ShardID != s.id || snap.Shards != s.shards {
		return errors.Wrapf(exception.ErrShardCountMismatch, "risk snapshot shard %d/%d, want %d/%d", snap.ShardID, snap.Shards, s.id, s.shards)
	}

	s.Reset()
	for i := range snap.Symbols {
		spec := snap.Symbols[i]
		s.symbols[spec.ID] = &spec
	}
	for _, e := range snap.Fees {
		s.fees[e.Currency] = e.Amount
	}
	for _, u := range snap.Users {
		p := newUserProfile(u.UID)
		for _, e := range u.Balances {
			p.Balances[e.Currency] = e.Amount
		}
		for _, e := range u.Held {
			p.Held[e.Currency] = e.Amount
		}
		for i := range u.Holds {
			h := u.Holds[i]
			p.Holds[HoldKey{Symbol: h.Symbol, OrderID: h.OrderID}] = &h
		}
		for i := range u.Positions {
			pos := u.Positions[i]
			p.Positions[pos.Symbol] = &pos
		}
		for _, tx := range u.Transactions {
			p.Transactions[tx] = struct{}{}
		}
		s.users[u.UID] = p
	}
	return nil
}

func snapshotUser(p *UserProfile) userSnapshot {
	u := userSnapshot{
		UID:          p.UID,
		Balances:     sortedAmounts(p.Balances),
		Held:         sortedAmounts(p.Held),
		Holds:        make([]Hold, 0, len(p.Holds)),
		Positions:    make([]Position, 0, len(p.Positions)),
		Transactions: make([]int64, 0, len(p.Transactions)),
	}
	for _, h := range p.Holds {
		u.Holds = append(u.Holds, *h)
	}
	sort.Slice(u.Holds, func(i, j int) bool {
		if u.Holds[i].Symbol != u.Holds[j].Symbol {
			return u.Holds[i].Symbol < u.Holds[j].Symbol
		}
		return u.Holds[i].OrderID < u.Holds[j].OrderID
	})
	for _, pos := range p.Positions {
		u.Positions = append(u.Positions, *pos)
	}
	sort.Slice(u.Positions, func(i, j int) bool { return u.Positions[i].Symbol < u.Positions[j].Symbol })
	for tx := range p.Transactions {
		u.Transactions = append(u.Transactions, tx)
	}
	sort.Slice(u.Transactions, func(i, j int) bool { return u.Transactions[i] < u.Transactions[j] })
	return u
}

func sortedAmounts(m map[schema.Currency]int64) []amountEntry {
	out := make([]amountEntry, 0, len(m))
	for c, v := range m {
		if v == 0 {
			continue
		}
		out = append(out, amountEntry{Currency: c, Amount: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out
}
