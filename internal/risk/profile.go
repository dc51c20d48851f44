package risk

import (
	"sort"

	"exchange/internal/schema"
)

// HoldKey identifies the hold of one order.
type HoldKey struct {
	Symbol  schema.SymbolID
	OrderID schema.OrderID
}

// Reservation is the per-lot amount reserved for an order, in the base
// and quote currency of its symbol.
type Reservation struct {
	Base  int64 `json:"base"`
	Quote int64 `json:"quote"`
}

// Hold is the held state of an order: what is reserved for its remaining
// size. It lives from a successful hold until the order is filled,
// cancelled or rejected.
type Hold struct {
	Symbol    schema.SymbolID `json:"symbol"`
	OrderID   schema.OrderID  `json:"orderId"`
	Side      schema.Side     `json:"side"`
	Price     schema.Price    `json:"price"`
	Remaining schema.Size     `json:"remaining"`
	PerLot    Reservation     `json:"perLot"`
}

// Position is an open futures position.
type Position struct {
	Symbol       schema.SymbolID `json:"symbol"`
	Direction    schema.Side     `json:"direction"`
	OpenVolume   schema.Size     `json:"openVolume"`
	OpenPriceSum int64           `json:"openPriceSum"`
	Margin       int64           `json:"margin"`
}

// UserProfile is the risk state of one user. Owned by one shard.
type UserProfile struct {
	UID          schema.UserID
	Balances     map[schema.Currency]int64
	Held         map[schema.Currency]int64
	Holds        map[HoldKey]*Hold
	Positions    map[schema.SymbolID]*Position
	Transactions map[int64]struct{}
}

func newUserProfile(uid schema.UserID) *UserProfile {
	return &UserProfile{
		UID:          uid,
		Balances:     make(map[schema.Currency]int64),
		Held:         make(map[schema.Currency]int64),
		Holds:        make(map[HoldKey]*Hold),
		Positions:    make(map[schema.SymbolID]*Position),
		Transactions: make(map[int64]struct{}),
	}
}

// Free returns the balance not reserved by holds or margin.
func (p *UserProfile) Free(c schema.Currency) int64 {
	return p.Balances[c] - p.Held[c]
}

// Credit adds amount (may be negative) to the balance.
func (p *UserProfile) Credit(c schema.Currency, amount int64) {
	if amount == 0 {
		return
	}
	v := p.Balances[c] + amount
	if v == 0 {
		delete(p.Balances, c)
		return
	}
	p.Balances[c] = v
}

// Lock moves amount (may be negative) into the held part of the balance.
func (p *UserProfile) Lock(c schema.Currency, amount int64) {
	if amount == 0 {
		return
	}
	v := p.Held[c] + amount
	if v == 0 {
		delete(p.Held, c)
		return
	}
	p.Held[c] = v
}

// Position returns the position for symbol, creating an empty one.
func (p *UserProfile) Position(symbol schema.SymbolID) *Position {
	pos, ok := p.Positions[symbol]
	if !ok {
		pos = &Position{Symbol: symbol}
		p.Positions[symbol] = pos
	}
	return pos
}

// Report builds a read-only view of the profile.
func (p *UserProfile) Report() schema.UserReport {
	currencies := make(map[schema.Currency]struct{}, len(p.Balances)+len(p.Held))
	for c := range p.Balances {
		currencies[c] = struct{}{}
	}
	for c := range p.Held {
		currencies[c] = struct{}{}
	}
	rep := schema.UserReport{
		UID:      p.UID,
		Balances: make([]schema.BalanceReport, 0, len(currencies)),
		Orders:   len(p.Holds),
	}
	for c := range currencies {
		rep.Balances = append(rep.Balances, schema.BalanceReport{
			Currency: c,
			Total:    p.Balances[c],
			Held:     p.Held[c],
		})
	}
	sort.Slice(rep.Balances, func(i, j int) bool {
		return rep.Balances[i].Currency < rep.Balances[j].Currency
	})
	for _, pos := range p.Positions {
		if pos.OpenVolume == 0 {
			continue
		}
		rep.Positions = append(rep.Positions, schema.PositionReport{
			Symbol:       pos.Symbol,
			Direction:    pos.Direction,
			OpenVolume:   pos.OpenVolume,
			OpenPriceSum: pos.OpenPriceSum,
			Margin:       pos.Margin,
		})
	}
	sort.Slice(rep.Positions, func(i, j int) bool {
		return rep.Positions[i].Symbol < rep.Positions[j].Symbol
	})
	return rep
}
