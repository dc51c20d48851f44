package schema

import (
	"strings"

	"github.com/shopspring/decimal"
)

// L2Level is one aggregated price level.
type L2Level struct {
	Price  Price `json:"price"`
	Volume Size  `json:"volume"`
	Orders int   `json:"orders"`
}

// L2MarketData is a read-only depth snapshot of one order book.
// Bids are in descending price order, asks in ascending price order.
type L2MarketData struct {
	Symbol SymbolID  `json:"symbol"`
	Seq    int64     `json:"seq"`
	Bids   []L2Level `json:"bids"`
	Asks   []L2Level `json:"asks"`
}

func (m L2MarketData) Copy() L2MarketData {
	out := m
	out.Bids = append([]L2Level(nil), m.Bids...)
	out.Asks = append([]L2Level(nil), m.Asks...)
	return out
}

// BestBid returns the top bid level.
func (m L2MarketData) BestBid() (L2Level, bool) {
	if len(m.Bids) == 0 {
		return L2Level{}, false
	}
	return m.Bids[0], true
}

// BestAsk returns the top ask level.
func (m L2MarketData) BestAsk() (L2Level, bool) {
	if len(m.Asks) == 0 {
		return L2Level{}, false
	}
	return m.Asks[0], true
}

// FormatScaled renders a fixed-point integer with the given number of
// decimal places. Display only.
func FormatScaled(v int64, places int32) string {
	return decimal.New(v, -places).StringFixed(places)
}

// String renders the book as "price x volume" rows with prices shown
// with the given decimal places.
func (m L2MarketData) String(pricePlaces int32) string {
	var sb strings.Builder
	for i := len(m.Asks) - 1; i >= 0; i-- {
		writeLevel(&sb, "ASK", m.Asks[i], pricePlaces)
	}
	for _, lvl := range m.Bids {
		writeLevel(&sb, "BID", lvl, pricePlaces)
	}
	return sb.String()
}

func writeLevel(sb *strings.Builder, side string, lvl L2Level, places int32) {
	sb.WriteString(side)
	sb.WriteString(" ")
	sb.WriteString(FormatScaled(int64(lvl.Price), places))
	sb.WriteString(" x ")
	sb.WriteString(decimal.NewFromInt(int64(lvl.Volume)).String())
	sb.WriteString("\n")
}
