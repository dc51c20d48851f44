package risk

import (
	"github.com/yanun0323/errors"

	"exchange/internal/schema"
	"exchange/pkg/exception"
)

// Fill is one executed leg of a trade for one user.
type Fill struct {
	Side  schema.Side
	Price schema.Price
	Size  schema.Size
	Taker bool
}

// Policy computes order reservations and applies fills to a profile.
//
// Settle runs after the fill's reservation has been released from the
// profile's held balance. It returns the fee charged, in the quote
// currency of the symbol.
type Policy interface {
	Reserve(spec *schema.SymbolSpec, side schema.Side, price schema.Price) (Reservation, error)
	Settle(p *UserProfile, spec *schema.SymbolSpec, fill Fill) int64
}

// DefaultPolicy charges per-lot fees in the quote currency, fully funds
// exchange pair orders and requires per-lot margin for futures.
type DefaultPolicy struct{}

var _ Policy = DefaultPolicy{}

func (DefaultPolicy) Reserve(spec *schema.SymbolSpec, side schema.Side, price schema.Price) (Reservation, error) {
	switch spec.Type {
	case schema.SymbolTypeCurrencyExchangePair:
		if side == schema.SideAsk {
			return Reservation{Base: spec.BaseScaleK, Quote: spec.TakerFee}, nil
		}
		notional, overflow := mulChecked(int64(price), spec.QuoteScaleK)
		if overflow || notional > maxInt64-spec.TakerFee {
			return Reservation{}, errors.Wrapf(exception.ErrInvalidArgument, "price %d overflows symbol %d", price, spec.ID)
		}
		return Reservation{Quote: notional + spec.TakerFee}, nil
	case schema.SymbolTypeFuturesContract:
		margin := spec.MarginBuy
		if side == schema.SideAsk {
			margin = spec.MarginSell
		}
		return Reservation{Quote: margin + spec.TakerFee}, nil
	default:
		return Reservation{}, errors.Wrapf(exception.ErrInvalidSymbol, "symbol %d type %d", spec.ID, spec.Type)
	}
}

func (DefaultPolicy) Settle(p *UserProfile, spec *schema.SymbolSpec, fill Fill) int64 {
	feeRate := spec.MakerFee
	if fill.Taker {
		feeRate = spec.TakerFee
	}
	fee := feeRate * int64(fill.Size)

	switch spec.Type {
	case schema.SymbolTypeCurrencyExchangePair:
		notional := int64(fill.Price) * int64(fill.Size) * spec.QuoteScaleK
		base := int64(fill.Size) * spec.BaseScaleK
		if fill.Side == schema.SideBid {
			p.Credit(spec.QuoteCurrency, -(notional + fee))
			p.Credit(spec.BaseCurrency, base)
		} else {
			p.Credit(spec.BaseCurrency, -base)
			p.Credit(spec.QuoteCurrency, notional-fee)
		}
	case schema.SymbolTypeFuturesContract:
		p.Credit(spec.QuoteCurrency, -fee)
		settleFutures(p, spec, fill)
	}
	return fee
}

func settleFutures(p *UserProfile, spec *schema.SymbolSpec, fill Fill) {
	pos := p.Position(spec.ID)
	remaining := fill.Size

	if pos.OpenVolume > 0 && pos.Direction != fill.Side {
		closing := minSize(remaining, pos.OpenVolume)
		entry := mulDiv(pos.OpenPriceSum, int64(closing), int64(pos.OpenVolume))
		margin := mulDiv(pos.Margin, int64(closing), int64(pos.OpenVolume))
		exit := int64(fill.Price) * int64(closing)

		pnl := exit - entry
		if pos.Direction == schema.SideAsk {
			pnl = -pnl
		}
		p.Credit(spec.QuoteCurrency, pnl*spec.QuoteScaleK)
		p.Lock(spec.QuoteCurrency, -margin)

		pos.OpenVolume -= closing
		pos.OpenPriceSum -= entry
		pos.Margin -= margin
		remaining -= closing
	}

	if remaining > 0 {
		perLot := spec.MarginBuy
		if fill.Side == schema.SideAsk {
			perLot = spec.MarginSell
		}
		margin := perLot * int64(remaining)
		pos.Direction = fill.Side
		pos.OpenVolume += remaining
		pos.OpenPriceSum += int64(fill.Price) * int64(remaining)
		pos.Margin += margin
		p.Lock(spec.QuoteCurrency, margin)
	}

	if pos.OpenVolume == 0 {
		delete(p.Positions, spec.ID)
	}
}
