package schema

import (
	"github.com/yanun0323/errors"

	"exchange/pkg/exception"
)

// SymbolType distinguishes spot pairs from margin contracts.
type SymbolType uint8

const (
	SymbolTypeCurrencyExchangePair SymbolType = iota + 1
	SymbolTypeFuturesContract
)

func (t SymbolType) String() string {
	switch t {
	case SymbolTypeCurrencyExchangePair:
		return "CURRENCY_EXCHANGE_PAIR"
	case SymbolTypeFuturesContract:
		return "FUTURES_CONTRACT"
	default:
		return "UNKNOWN"
	}
}

// SymbolSpec describes a tradable symbol. Immutable once added.
//
// One lot is BaseScaleK units of the base currency. A price step is
// QuoteScaleK units of the quote currency per lot. Fees and margin are
// quote currency units per lot.
type SymbolSpec struct {
	ID            SymbolID   `json:"id"`
	Type          SymbolType `json:"type"`
	BaseCurrency  Currency   `json:"baseCurrency"`
	QuoteCurrency Currency   `json:"quoteCurrency"`
	BaseScaleK    int64      `json:"baseScaleK"`
	QuoteScaleK   int64      `json:"quoteScaleK"`
	TakerFee      int64      `json:"takerFee"`
	MakerFee      int64      `json:"makerFee"`
	MarginBuy     int64      `json:"marginBuy"`
	MarginSell    int64      `json:"marginSell"`
}

// Validate reports whether the spec can be used for holds and settlement.
func (s SymbolSpec) Validate() error {
	switch s.Type {
	case SymbolTypeCurrencyExchangePair, SymbolTypeFuturesContract:
	default:
		return errors.Wrapf(exception.ErrInvalidSymbol, "symbol %d: unknown type %d", s.ID, s.Type)
	}
	if s.BaseScaleK <= 0 || s.QuoteScaleK <= 0 {
		return errors.Wrapf(exception.ErrInvalidSymbol, "symbol %d: scale must be > 0", s.ID)
	}
	if s.TakerFee < 0 || s.MakerFee < 0 {
		return errors.Wrapf(exception.ErrInvalidSymbol, "symbol %d: fee must be >= 0", s.ID)
	}
	if s.MakerFee > s.TakerFee {
		return errors.Wrapf(exception.ErrInvalidSymbol, "symbol %d: maker fee above taker fee", s.ID)
	}
	if s.Type == SymbolTypeFuturesContract && (s.MarginBuy <= 0 || s.MarginSell <= 0) {
		return errors.Wrapf(exception.ErrInvalidSymbol, "symbol %d: futures margin must be > 0", s.ID)
	}
	if s.Type == SymbolTypeCurrencyExchangePair && s.BaseCurrency == s.QuoteCurrency {
		return errors.Wrapf(exception.ErrInvalidSymbol, "symbol %d: base equals quote", s.ID)
	}
	return nil
}
