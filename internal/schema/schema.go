package schema

// SchemaVersion is the current journal and snapshot schema version.
const SchemaVersion uint16 = 1

// UserID identifies an account holder.
type UserID int64

// SymbolID identifies a tradable symbol.
type SymbolID int32

// Currency identifies an asset held in user balances.
type Currency int32

// OrderID identifies an order. Unique within a symbol.
type OrderID int64

// Price is a scaled integer. The scale is defined by the symbol spec.
type Price int64

// Size is a number of lots. The lot size is defined by the symbol spec.
type Size int64

// Side describes order direction.
type Side uint8

const (
	SideBid Side = iota + 1
	SideAsk
)

// Opposite returns the other side of the book.
func (s Side) Opposite() Side {
	if s == SideBid {
		return SideAsk
	}
	return SideBid
}

func (s Side) Valid() bool {
	return s == SideBid || s == SideAsk
}

func (s Side) String() string {
	switch s {
	case SideBid:
		return "BID"
	case SideAsk:
		return "ASK"
	default:
		return "UNKNOWN"
	}
}

// OrderType describes how an unmatched remainder is treated.
type OrderType uint8

const (
	// OrderTypeGTC rests the remainder in the book.
	OrderTypeGTC OrderType = iota + 1
	// OrderTypeIOC reports the remainder as unfilled.
	OrderTypeIOC
	// OrderTypeFOK fills completely or not at all.
	OrderTypeFOK
)

func (t OrderType) Valid() bool {
	return t >= OrderTypeGTC && t <= OrderTypeFOK
}

func (t OrderType) String() string {
	switch t {
	case OrderTypeGTC:
		return "GTC"
	case OrderTypeIOC:
		return "IOC"
	case OrderTypeFOK:
		return "FOK"
	default:
		return "UNKNOWN"
	}
}
